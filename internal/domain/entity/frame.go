package entity

import "math"

// FrameKey identifies one rendered frame. Identical keys always describe
// identical output, which is what makes the provider's single-slot cache
// sound. The timestamp is rounded to 1 ms so float jitter from UI sliders
// does not defeat caching.
type FrameKey struct {
	TimestampMs int64
	Pitch       float64
	Yaw         float64
	Roll        float64
	W, H        int
}

// NewFrameKey builds the cache key for a render request.
func NewFrameKey(tsSec float64, angle Angle, w, h int) FrameKey {
	return FrameKey{
		TimestampMs: int64(math.Round(tsSec * 1000)),
		Pitch:       angle.Pitch,
		Yaw:         angle.Yaw,
		Roll:        angle.Roll,
		W:           w,
		H:           h,
	}
}

// ProcessedFrame is one rendered still: the encoded JPEG plus the request
// that produced it.
type ProcessedFrame struct {
	Key          FrameKey
	TimestampSec float64
	Data         []byte
	W, H         int
}
