package entity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VirtualCamera is a named viewpoint into the panorama. Cameras live for the
// duration of a session; they are not persisted.
type VirtualCamera struct {
	ID    int
	Label string
	Angle Angle
}

// CameraList owns the session's cameras and hands out monotonically
// increasing ids.
type CameraList struct {
	cameras []VirtualCamera
	nextID  int
}

func NewCameraList() *CameraList {
	return &CameraList{nextID: 1}
}

// Add creates a camera with the given label and angle and returns it.
func (l *CameraList) Add(label string, angle Angle) VirtualCamera {
	cam := VirtualCamera{ID: l.nextID, Label: label, Angle: angle}
	l.nextID++
	l.cameras = append(l.cameras, cam)
	return cam
}

// Remove drops the camera with the given id. Ids are never reused.
func (l *CameraList) Remove(id int) {
	for i, cam := range l.cameras {
		if cam.ID == id {
			l.cameras = append(l.cameras[:i], l.cameras[i+1:]...)
			return
		}
	}
}

// Update replaces the label and angle of the camera with the given id.
func (l *CameraList) Update(id int, label string, angle Angle) {
	for i := range l.cameras {
		if l.cameras[i].ID == id {
			l.cameras[i].Label = label
			l.cameras[i].Angle = angle
			return
		}
	}
}

// Cameras returns the cameras in creation order.
func (l *CameraList) Cameras() []VirtualCamera {
	out := make([]VirtualCamera, len(l.cameras))
	copy(out, l.cameras)
	return out
}

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// FileLabel sanitizes the camera label for use in a filename. Characters
// outside [a-zA-Z0-9-_] become underscores; a label that sanitizes away
// entirely falls back to Angle_{id}.
func (c VirtualCamera) FileLabel() string {
	s := unsafeLabelChars.ReplaceAllString(c.Label, "_")
	if s == "" {
		return fmt.Sprintf("Angle_%d", c.ID)
	}
	return s
}

// FrameName is the deterministic output filename for one export cell:
// {fileLabel}_{timestamp with '.' replaced by '_'}.jpg.
func FrameName(cam VirtualCamera, tsSec float64) string {
	ts := strconv.FormatFloat(tsSec, 'f', -1, 64)
	ts = strings.ReplaceAll(ts, ".", "_")
	return fmt.Sprintf("%s_%s.jpg", cam.FileLabel(), ts)
}
