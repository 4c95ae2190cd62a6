package detect

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// PackEntry is one known ad fingerprint.
type PackEntry struct {
	Name        string
	Fingerprint []uint32
}

// Pack is a named collection of ad fingerprints loaded from a pack file.
type Pack struct {
	Name    string
	Entries []PackEntry
}

// InvalidLineError reports a pack file line that is not name:base64.
type InvalidLineError struct {
	Line int
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("pack: invalid entry at line %d", e.Line)
}

// DecodePack reads a pack file: one entry per line, "name:base64" where the
// base64 payload is the fingerprint as little-endian uint32 words. Blank
// lines and #-comments are skipped.
func DecodePack(name string, r io.Reader) (*Pack, error) {
	p := &Pack{Name: name}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entryName, encoded, ok := strings.Cut(line, ":")
		if !ok || entryName == "" {
			return nil, &InvalidLineError{Line: lineNo}
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw)%4 != 0 || len(raw) == 0 {
			return nil, &InvalidLineError{Line: lineNo}
		}
		fp := make([]uint32, len(raw)/4)
		for i := range fp {
			fp[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
		p.Entries = append(p.Entries, PackEntry{Name: entryName, Fingerprint: fp})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode writes the pack in the same line format DecodePack reads.
func (p *Pack) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range p.Entries {
		raw := make([]byte, len(e.Fingerprint)*4)
		for i, word := range e.Fingerprint {
			binary.LittleEndian.PutUint32(raw[i*4:], word)
		}
		if _, err := fmt.Fprintf(bw, "%s:%s\n", e.Name, base64.StdEncoding.EncodeToString(raw)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadPacks reads all pack files concurrently. Order of the result matches
// the order of paths.
func LoadPacks(ctx context.Context, paths []string) ([]*Pack, error) {
	packs := make([]*Pack, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			p, err := DecodePack(path, f)
			if err != nil {
				return fmt.Errorf("pack %s: %w", path, err)
			}
			packs[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return packs, nil
}
