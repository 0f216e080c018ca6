package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SampleTimestamps enumerates export sample times: 0, step, 2*step, ... with
// step = 1/samplesPerSecond, ending with the duration itself (the final
// sample is clamped to the duration, never past it).
func SampleTimestamps(durationSec, samplesPerSecond float64) []float64 {
	if samplesPerSecond <= 0 {
		samplesPerSecond = 1
	}
	if durationSec < 0 {
		durationSec = 0
	}
	step := 1.0 / samplesPerSecond

	var ts []float64
	for i := 0; ; i++ {
		t := float64(i) * step
		if t >= durationSec-1e-9 {
			break
		}
		ts = append(ts, t)
	}
	return append(ts, durationSec)
}

// AspectRatio is an output aspect preset or custom W:H pair.
type AspectRatio struct {
	W, H int
}

// ParseAspect parses a "W:H" string such as "16:9" or "1:1".
func ParseAspect(s string) (AspectRatio, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q: %w", s, err)
	}
	if w < 1 || h < 1 {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return AspectRatio{W: w, H: h}, nil
}

// OutputSize computes the export resolution for an aspect ratio: the long
// edge is the source width capped at maxLongEdge (bounding memory), the
// short edge follows the ratio.
func OutputSize(aspect AspectRatio, sourceW, maxLongEdge int) (w, h int) {
	long := sourceW
	if maxLongEdge > 0 && long > maxLongEdge {
		long = maxLongEdge
	}
	if long < 1 {
		long = 1
	}

	if aspect.W >= aspect.H {
		w = long
		h = int(math.Round(float64(long) * float64(aspect.H) / float64(aspect.W)))
	} else {
		h = long
		w = int(math.Round(float64(long) * float64(aspect.W) / float64(aspect.H)))
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
