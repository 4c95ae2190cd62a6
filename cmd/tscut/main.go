package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/detect"
	"github.com/tscut/tscut/internal/edl"
	"github.com/tscut/tscut/internal/index"
	"github.com/tscut/tscut/internal/splice"
)

var version = "dev"

// Exit codes are part of the command contract so wrappers can branch on
// the failure class without parsing log output.
const (
	exitOK              = 0
	exitOther           = 1
	exitFormat          = 2
	exitStreamCorrupt   = 3
	exitCueOutOfRange   = 4
	exitSpliceIntegrity = 5
	exitIO              = 6
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		inPath    = flag.String("in", "", "input MPEG-TS recording")
		outPath   = flag.String("out", "", "output path for the cut recording")
		cuesPath  = flag.String("cues", "", "cue point file, or - for stdin; omit to run detection")
		pcrMode   = flag.String("pcr", "preserve", "PCR handling: preserve or rebase")
		strict    = flag.Bool("strict", false, "fail instead of warn when a segment cannot start cleanly")
		edlPath   = flag.String("edl", "", "write an edit decision list here, or - for stdout")
		packList  = flag.String("packs", "", "comma-separated ad fingerprint pack files")
		fpPath    = flag.String("fp", "", "recording fingerprint file (base64 of little-endian uint32 words)")
		threshold = flag.Float64("threshold", detect.DefaultMergeConfig().MinConfidence, "minimum detector confidence to act on")
		showVer   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *showVer {
		fmt.Println("tscut", version)
		return exitOK
	}
	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "tscut: -in and -out are required")
		flag.Usage()
		return exitOther
	}

	policy, err := splice.ParsePCRPolicy(*pcrMode)
	if err != nil {
		slog.Error("invalid -pcr value", "error", err)
		return exitOther
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, aborting", "signal", sig)
		cancel()
	}()

	cfg := splice.Config{
		Input:   *inPath,
		Output:  *outPath,
		Resolve: cue.DefaultOptions(),
		Policy:  policy,
		Strict:  *strict,
	}

	if *cuesPath != "" {
		points, err := loadCues(*cuesPath)
		if err != nil {
			slog.Error("failed to read cue points", "error", err)
			return exitOther
		}
		cfg.Points = points
	} else {
		detectFn, err := buildDetection(ctx, *inPath, *packList, *fpPath, *threshold)
		if err != nil {
			slog.Error("failed to set up detection", "error", err)
			return exitOther
		}
		cfg.Detect = detectFn
	}

	slog.Info("tscut starting",
		"version", version,
		"input", *inPath,
		"output", *outPath,
		"pcr", policy,
	)

	res, err := splice.NewJob(cfg, slog.Default()).Run(ctx)
	if err != nil {
		slog.Error("cut failed", "error", err)
		return exitCode(err)
	}

	if *edlPath != "" {
		if err := writeEDL(*edlPath, res.Plan); err != nil {
			slog.Error("failed to write edit decision list", "error", err)
			return exitIO
		}
	}

	slog.Info("cut complete",
		"segments", len(res.Plan.Segments),
		"bytes", res.BytesWritten,
		"removed", cue.FormatTime(res.Plan.Removed90k),
	)
	return exitOK
}

func loadCues(path string) ([]cue.Point, error) {
	if path == "-" {
		return cue.ParseFile(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cue.ParseFile(f)
}

// buildDetection loads packs and the recording fingerprint up front so bad
// inputs fail before the index pass, and returns the detection hook the
// job runs once the index exists.
func buildDetection(ctx context.Context, input, packList, fpPath string, threshold float64) (func(context.Context, *index.StreamIndex) ([]cue.Point, error), error) {
	detectors := []detect.Detector{detect.NewSCTE35Detector(slog.Default())}

	var fingerprint []uint32
	if packList != "" {
		packs, err := detect.LoadPacks(ctx, strings.Split(packList, ","))
		if err != nil {
			return nil, err
		}
		if fpPath == "" {
			return nil, fmt.Errorf("-packs requires -fp with the recording fingerprint")
		}
		if fingerprint, err = readFingerprint(fpPath); err != nil {
			return nil, err
		}
		detectors = append(detectors, detect.NewFingerprintDetector(slog.Default(), packs, detect.DefaultMatchConfig()))
	}

	return func(ctx context.Context, ix *index.StreamIndex) ([]cue.Point, error) {
		src := &detect.Source{
			Index:       ix,
			Fingerprint: fingerprint,
			Open: func() (io.ReadSeekCloser, error) {
				return os.Open(input)
			},
		}
		cands, err := detect.Run(ctx, slog.Default(), detectors, src)
		if err != nil {
			return nil, err
		}
		return detect.Merge(cands, detect.MergeConfig{MinConfidence: threshold}), nil
	}, nil
}

func readFingerprint(path string) ([]uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(decoded)%4 != 0 {
		return nil, fmt.Errorf("fingerprint %s: not base64 uint32 words", path)
	}
	fp := make([]uint32, len(decoded)/4)
	for i := range fp {
		fp[i] = binary.LittleEndian.Uint32(decoded[i*4:])
	}
	return fp, nil
}

func writeEDL(path string, plan *cue.Plan) error {
	if path == "-" {
		return edl.Write(os.Stdout, plan)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := edl.Write(f, plan); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exitCode(err error) int {
	var (
		formatErr    *index.FormatError
		corruptErr   *index.StreamCorruptError
		rangeErr     *cue.OutOfRangeError
		integrityErr *splice.IntegrityError
		ioErr        *splice.IOError
	)
	switch {
	case errors.As(err, &formatErr):
		return exitFormat
	case errors.As(err, &corruptErr):
		return exitStreamCorrupt
	case errors.As(err, &rangeErr):
		return exitCueOutOfRange
	case errors.As(err, &integrityErr):
		return exitSpliceIntegrity
	case errors.As(err, &ioErr):
		return exitIO
	}
	return exitOther
}
