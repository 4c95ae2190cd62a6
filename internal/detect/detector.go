// Package detect hosts the ad-detection collaborators that propose cue
// points to the cut engine. Detection strategies are interchangeable: each
// produces scored candidate removal ranges from a stream handle, and a
// merge policy combines them before anything reaches the cue resolver.
// The cut engine treats all of this as an untrusted upstream producer.
package detect

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/index"
)

// Source is the stream handle given to detectors: the read-only index,
// plus an opener for strategies that re-read container payloads, plus the
// recording's audio fingerprint when one was computed upstream.
type Source struct {
	Index *index.StreamIndex

	// Open returns a fresh reader over the input container. The detector
	// owns closing it.
	Open func() (io.ReadSeekCloser, error)

	// Fingerprint is the whole-recording audio fingerprint, empty when
	// unavailable.
	Fingerprint []uint32
}

// Detector is one detection strategy.
type Detector interface {
	Name() string
	Detect(ctx context.Context, src *Source) ([]cue.Candidate, error)
}

// Run executes all detectors against one source concurrently and returns
// the combined candidate list. A failing detector fails the run; partial
// detection would silently under-cut the recording.
func Run(ctx context.Context, log *slog.Logger, detectors []Detector, src *Source) ([]cue.Candidate, error) {
	if log == nil {
		log = slog.Default()
	}

	results := make([][]cue.Candidate, len(detectors))
	g, ctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		i, d := i, d
		g.Go(func() error {
			cands, err := d.Detect(ctx, src)
			if err != nil {
				return err
			}
			log.Debug("detector finished", "detector", d.Name(), "candidates", len(cands))
			results[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []cue.Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}
