package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAngleNormalizeWrapsYawAndRoll(t *testing.T) {
	a := Angle{Yaw: 190, Roll: -190}.Normalize()
	assert.Equal(t, -170.0, a.Yaw)
	assert.Equal(t, 170.0, a.Roll)

	b := Angle{Yaw: 540}.Normalize()
	assert.Equal(t, 180.0, b.Yaw)
}

func TestAngleNormalizeClampsPitch(t *testing.T) {
	assert.Equal(t, 90.0, Angle{Pitch: 100}.Normalize().Pitch)
	assert.Equal(t, -90.0, Angle{Pitch: -100}.Normalize().Pitch)
	assert.Equal(t, 45.0, Angle{Pitch: 45}.Normalize().Pitch)
}

func TestAngleNormalizeInRangeUnchanged(t *testing.T) {
	a := Angle{Pitch: -30, Yaw: 120, Roll: -45}
	assert.Equal(t, a, a.Normalize())
}
