package detect

import (
	"context"
	"log/slog"
	"math/bits"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/mpegts"
)

// MatchConfig tunes the fingerprint matcher.
type MatchConfig struct {
	// ItemsPerSecond converts fingerprint item offsets to time.
	ItemsPerSecond float64

	// MaxBitError is the accepted mean Hamming distance per 32-bit item, so
	// 0 demands exact matches and 32 accepts anything. Typical broadcast
	// captures land well under 10 on a true match.
	MaxBitError float64

	// MinSeconds discards matches shorter than this. Very short references
	// match by chance.
	MinSeconds float64
}

// DefaultMatchConfig returns the matcher settings used by the CLI.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		ItemsPerSecond: 8.0,
		MaxBitError:    8.0,
		MinSeconds:     3.0,
	}
}

// FingerprintDetector matches known ad fingerprints from packs against the
// recording fingerprint and proposes the matching spans for removal.
type FingerprintDetector struct {
	log   *slog.Logger
	packs []*Pack
	cfg   MatchConfig
}

// NewFingerprintDetector builds a detector over the given packs.
func NewFingerprintDetector(log *slog.Logger, packs []*Pack, cfg MatchConfig) *FingerprintDetector {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ItemsPerSecond <= 0 {
		cfg.ItemsPerSecond = DefaultMatchConfig().ItemsPerSecond
	}
	return &FingerprintDetector{log: log, packs: packs, cfg: cfg}
}

func (d *FingerprintDetector) Name() string { return "fingerprint" }

// Detect slides every pack entry over the recording fingerprint and emits
// one candidate per non-overlapping occurrence below the bit-error budget.
// Entries are matched concurrently; the query fingerprint is read-only.
func (d *FingerprintDetector) Detect(ctx context.Context, src *Source) ([]cue.Candidate, error) {
	query := src.Fingerprint
	if len(query) == 0 {
		d.log.Debug("no recording fingerprint, skipping fingerprint detection")
		return nil, nil
	}

	var (
		mu  sync.Mutex
		out []cue.Candidate
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range d.packs {
		for _, e := range p.Entries {
			e := e
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				spans := matchEntry(query, e.Fingerprint, d.cfg)
				if len(spans) == 0 {
					return nil
				}
				mu.Lock()
				for _, s := range spans {
					d.log.Debug("fingerprint match",
						"entry", e.Name,
						"start", cue.FormatTime(s.start),
						"end", cue.FormatTime(s.end),
						"bit_error", s.bitError)
					out = append(out, cue.Candidate{
						Start:      s.start,
						End:        s.end,
						Confidence: 1.0 - s.bitError/32.0,
						Source:     "fingerprint:" + e.Name,
					})
				}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type matchSpan struct {
	start, end int64 // 90 kHz, relative to stream start
	bitError   float64
}

// matchEntry scans ref across query and collects non-overlapping offsets
// whose mean bit error beats the budget. The scan is greedy: once an offset
// matches, the next candidate may not start before the match ends.
func matchEntry(query, ref []uint32, cfg MatchConfig) []matchSpan {
	if len(ref) == 0 || len(ref) > len(query) {
		return nil
	}
	if float64(len(ref))/cfg.ItemsPerSecond < cfg.MinSeconds {
		return nil
	}

	itemTicks := float64(mpegts.ClockRate) / cfg.ItemsPerSecond
	budget := cfg.MaxBitError * float64(len(ref))

	var spans []matchSpan
	for off := 0; off+len(ref) <= len(query); off++ {
		var errBits float64
		ok := true
		for j, w := range ref {
			errBits += float64(bits.OnesCount32(query[off+j] ^ w))
			if errBits > budget {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		// Refine to the local minimum before committing: the first offset
		// under budget is usually a few items early.
		best, bestErr := off, errBits
		for probe := off + 1; probe+len(ref) <= len(query) && probe < off+len(ref); probe++ {
			e := bitError(query[probe:probe+len(ref)], ref)
			if e < bestErr {
				best, bestErr = probe, e
			}
		}
		spans = append(spans, matchSpan{
			start:    int64(float64(best) * itemTicks),
			end:      int64(float64(best+len(ref)) * itemTicks),
			bitError: bestErr / float64(len(ref)),
		})
		off = best + len(ref) - 1
	}
	return spans
}

func bitError(a, b []uint32) float64 {
	var n int
	for i := range b {
		n += bits.OnesCount32(a[i] ^ b[i])
	}
	return float64(n)
}
