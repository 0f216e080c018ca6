package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFrameKeyRoundsToMillisecond(t *testing.T) {
	a := NewFrameKey(1.2344999, Angle{}, 640, 480)
	b := NewFrameKey(1.2340001, Angle{}, 640, 480)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(1234), a.TimestampMs)
}

func TestFrameKeySensitivity(t *testing.T) {
	base := NewFrameKey(1.0, Angle{Pitch: 10, Yaw: 20, Roll: 30}, 640, 480)

	variants := []FrameKey{
		NewFrameKey(1.5, Angle{Pitch: 10, Yaw: 20, Roll: 30}, 640, 480),
		NewFrameKey(1.0, Angle{Pitch: 11, Yaw: 20, Roll: 30}, 640, 480),
		NewFrameKey(1.0, Angle{Pitch: 10, Yaw: 21, Roll: 30}, 640, 480),
		NewFrameKey(1.0, Angle{Pitch: 10, Yaw: 20, Roll: 31}, 640, 480),
		NewFrameKey(1.0, Angle{Pitch: 10, Yaw: 20, Roll: 30}, 641, 480),
		NewFrameKey(1.0, Angle{Pitch: 10, Yaw: 20, Roll: 30}, 640, 481),
	}
	for i, v := range variants {
		assert.NotEqual(t, base, v, "variant %d must produce a different key", i)
	}

	same := NewFrameKey(1.0, Angle{Pitch: 10, Yaw: 20, Roll: 30}, 640, 480)
	assert.Equal(t, base, same)
}
