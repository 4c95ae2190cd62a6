// Package edl renders a finalized cut plan as a human-readable edit
// decision list. The listing is for operators reviewing a cut before (or
// after) it runs; nothing in the cut path depends on it.
package edl

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/tscut/tscut/internal/cue"
)

// Write renders the plan as a table of kept segments followed by the
// removed ranges between them. Times are h:mm:ss.ff on the output
// timeline's source clock.
func Write(w io.Writer, plan *cue.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "#\tkept\tstart\tend\tduration\tbytes")
	for i, seg := range plan.Segments {
		fmt.Fprintf(tw, "%d\tkeep\t%s\t%s\t%s\t%d\n",
			i+1,
			cue.FormatTime(seg.StartTime),
			cue.FormatTime(seg.EndTime),
			cue.FormatTime(seg.EndTime-seg.StartTime),
			seg.Bytes())
	}

	for i, rng := range removedRanges(plan) {
		fmt.Fprintf(tw, "%d\tcut\t%s\t%s\t%s\t\n",
			i+1,
			cue.FormatTime(rng.start),
			cue.FormatTime(rng.end),
			cue.FormatTime(rng.end-rng.start))
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "removed %s total, keeping %d of %d bytes\n",
		cue.FormatTime(plan.Removed90k), plan.KeptBytes(), plan.TotalBytes)
	return err
}

type timeRange struct {
	start, end int64
}

// removedRanges reconstructs the cut spans from the gaps between kept
// segments. StartTime and EndTime are source-clock values, so adjacent
// segments with rebased output still show the true removed span.
func removedRanges(plan *cue.Plan) []timeRange {
	var out []timeRange
	var prevEnd int64
	for i, seg := range plan.Segments {
		if i == 0 {
			if seg.StartTime > 0 {
				out = append(out, timeRange{0, seg.StartTime})
			}
		} else if seg.StartTime > prevEnd {
			out = append(out, timeRange{prevEnd, seg.StartTime})
		}
		prevEnd = seg.EndTime
	}

	// A trailing cut leaves no following segment to bound it, but the plan
	// knows the total removed time; whatever is unaccounted for sits after
	// the last kept segment.
	var accounted int64
	for _, r := range out {
		accounted += r.end - r.start
	}
	if trailing := plan.Removed90k - accounted; trailing > 0 {
		out = append(out, timeRange{prevEnd, prevEnd + trailing})
	}
	return out
}
