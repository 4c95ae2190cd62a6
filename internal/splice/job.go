package splice

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/index"
)

// Config describes one cut job: input, cue points, and output policy.
type Config struct {
	Input  string
	Output string

	Points  []cue.Point
	Resolve cue.Options

	// Detect, when set and Points is empty, produces the cue points from
	// the freshly built index. This is how upstream detectors plug in
	// without a second indexing pass.
	Detect func(ctx context.Context, ix *index.StreamIndex) ([]cue.Point, error)

	Policy PCRPolicy
	Strict bool
}

// Result reports what a completed job produced.
type Result struct {
	Index        *index.StreamIndex
	Plan         *cue.Plan
	BytesWritten int64
}

// Job runs the two-pass cut for a single input and output: a lightweight
// index pass, then a streaming copy pass. Distinct jobs share nothing and
// may run concurrently.
type Job struct {
	log *slog.Logger
	cfg Config
}

// NewJob creates a job. If log is nil, slog.Default() is used.
func NewJob(cfg Config, log *slog.Logger) *Job {
	if log == nil {
		log = slog.Default()
	}
	return &Job{
		log: log.With("component", "job", "input", cfg.Input),
		cfg: cfg,
	}
}

// Run indexes the input, resolves the cut plan, and writes the output.
// The output is produced in a temporary file next to the destination and
// atomically renamed into place only on full success; cancellation or any
// failure removes it, so no partial output ever lands at the final path.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	in, err := os.Open(j.cfg.Input)
	if err != nil {
		return nil, &IOError{Op: "open input", Err: err}
	}
	defer in.Close()

	ix, err := index.New(j.log).Build(ctx, in)
	if err != nil {
		return nil, err
	}

	points := j.cfg.Points
	if len(points) == 0 && j.cfg.Detect != nil {
		if points, err = j.cfg.Detect(ctx, ix); err != nil {
			return nil, err
		}
		j.log.Info("detection produced cue points", "points", len(points))
	}

	plan, err := cue.Resolve(ix, points, j.cfg.Resolve)
	if err != nil {
		return nil, err
	}
	j.log.Info("cut plan resolved",
		"segments", len(plan.Segments),
		"keptBytes", plan.KeptBytes(),
		"removed90k", plan.Removed90k,
	)

	written, err := j.writeOutput(ctx, in, ix, plan)
	if err != nil {
		return nil, err
	}

	return &Result{Index: ix, Plan: plan, BytesWritten: written}, nil
}

func (j *Job) writeOutput(ctx context.Context, in *os.File, ix *index.StreamIndex, plan *cue.Plan) (int64, error) {
	dir := filepath.Dir(j.cfg.Output)
	tmp, err := os.CreateTemp(dir, ".tscut-*.ts")
	if err != nil {
		return 0, &IOError{Op: "create temp output", Err: err}
	}
	tmpName := tmp.Name()

	published := false
	defer func() {
		tmp.Close()
		if !published {
			if rErr := os.Remove(tmpName); rErr != nil && !os.IsNotExist(rErr) {
				j.log.Warn("failed to remove temp output", "path", tmpName, "error", rErr)
			}
		}
	}()

	bw := bufio.NewWriterSize(tmp, 256*1024)
	rmx := NewRemuxer(bw, j.cfg.Policy, j.log)
	ext := NewExtractor(in, j.cfg.Strict, j.log)

	if err := ext.Run(ctx, ix, plan, rmx); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, &IOError{Op: "flush output", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return 0, &IOError{Op: "sync output", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &IOError{Op: "close output", Err: err}
	}
	if err := os.Rename(tmpName, j.cfg.Output); err != nil {
		return 0, &IOError{Op: "publish output", Err: err}
	}
	published = true

	j.log.Info("output published", "path", j.cfg.Output, "bytes", rmx.BytesWritten())
	return rmx.BytesWritten(), nil
}

// String identifies the job in log output.
func (j *Job) String() string {
	return fmt.Sprintf("cut %s -> %s (%s)", j.cfg.Input, j.cfg.Output, j.cfg.Policy)
}
