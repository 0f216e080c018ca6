package entity

// Angle is a camera orientation in degrees. The UI keeps yaw and roll in
// [-180,180] and pitch in [-90,90]; Normalize makes out-of-range values
// safe for the core.
type Angle struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Normalize wraps yaw and roll into [-180,180] and clamps pitch into
// [-90,90].
func (a Angle) Normalize() Angle {
	return Angle{
		Pitch: clamp(a.Pitch, -90, 90),
		Yaw:   wrapDegrees(a.Yaw),
		Roll:  wrapDegrees(a.Roll),
	}
}

func wrapDegrees(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
