package cue

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tscut/tscut/internal/mpegts"
)

// ParseTime converts a cue timestamp string to 90 kHz ticks. Accepted
// forms: plain seconds ("90.5"), "mm:ss.ff", and "h:mm:ss.ff".
func ParseTime(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("cue: invalid timestamp %q", s)
	}

	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("cue: invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return int64(math.Round(total * mpegts.ClockRate)), nil
}

// FormatTime renders 90 kHz ticks as h:mm:ss.ff.
func FormatTime(t int64) string {
	neg := ""
	if t < 0 {
		neg = "-"
		t = -t
	}
	totalSecs := t / mpegts.ClockRate
	frac := (t % mpegts.ClockRate) * 100 / mpegts.ClockRate
	return fmt.Sprintf("%s%d:%02d:%02d.%02d", neg, totalSecs/3600, totalSecs%3600/60, totalSecs%60, frac)
}

// ParseFile reads cue points from a text listing: one point per line,
// "out <time>" or "in <time>", with '#' comments and blank lines ignored.
func ParseFile(r io.Reader) ([]Point, error) {
	var points []Point
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("cue: line %d: expected \"in|out <time>\", got %q", line, text)
		}

		var kind Kind
		switch strings.ToLower(fields[0]) {
		case "in":
			kind = CutIn
		case "out":
			kind = CutOut
		default:
			return nil, fmt.Errorf("cue: line %d: unknown cue kind %q", line, fields[0])
		}

		t, err := ParseTime(fields[1])
		if err != nil {
			return nil, fmt.Errorf("cue: line %d: %w", line, err)
		}
		points = append(points, Point{Time: t, Kind: kind})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cue: reading cue list: %w", err)
	}
	return points, nil
}
