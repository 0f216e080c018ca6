package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCameraListMonotonicIDs(t *testing.T) {
	list := NewCameraList()
	a := list.Add("front", Angle{})
	b := list.Add("back", Angle{Yaw: 180})
	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)

	list.Remove(a.ID)
	c := list.Add("side", Angle{Yaw: 90})
	// ids are never reused
	assert.Equal(t, 3, c.ID)
	assert.Len(t, list.Cameras(), 2)
}

func TestCameraListUpdate(t *testing.T) {
	list := NewCameraList()
	cam := list.Add("front", Angle{})
	list.Update(cam.ID, "entrance", Angle{Yaw: 15})
	got := list.Cameras()[0]
	assert.Equal(t, "entrance", got.Label)
	assert.Equal(t, 15.0, got.Angle.Yaw)
	assert.Equal(t, cam.ID, got.ID)
}

func TestFileLabelSanitization(t *testing.T) {
	cam := VirtualCamera{ID: 3, Label: "Front Door #1!"}
	assert.Equal(t, "Front_Door__1_", cam.FileLabel())

	clean := VirtualCamera{ID: 4, Label: "cam-2_low"}
	assert.Equal(t, "cam-2_low", clean.FileLabel())
}

func TestFileLabelEmptyFallsBack(t *testing.T) {
	cam := VirtualCamera{ID: 7, Label: ""}
	assert.Equal(t, "Angle_7", cam.FileLabel())
}

func TestFrameName(t *testing.T) {
	cam := VirtualCamera{ID: 1, Label: "front"}
	assert.Equal(t, "front_0.jpg", FrameName(cam, 0))
	assert.Equal(t, "front_0_5.jpg", FrameName(cam, 0.5))
	assert.Equal(t, "front_2.jpg", FrameName(cam, 2))
	assert.Equal(t, "front_1_25.jpg", FrameName(cam, 1.25))
}
