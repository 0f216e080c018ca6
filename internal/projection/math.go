// Package projection implements the spherical-to-rectilinear reprojection
// math: camera rays, angle rotation, spherical sampling coordinates and
// bilinear resampling over an equirectangular source. Everything here is a
// pure function of its inputs.
package projection

import "math"

// Vec3 is a direction in camera or world space.
type Vec3 struct {
	X, Y, Z float64
}

const (
	minFOVDeg = 1.0
	maxFOVDeg = 175.0
)

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }

// Rotate applies yaw (about the vertical axis), then pitch (about the
// horizontal axis), then roll (about the optical axis) to v, each as a
// standard 3x3 rotation. The composition order is fixed; reference output
// depends on it bit-for-bit.
func Rotate(v Vec3, yawDeg, pitchDeg, rollDeg float64) Vec3 {
	sy, cy := math.Sincos(radians(yawDeg))
	sp, cp := math.Sincos(radians(pitchDeg))
	sr, cr := math.Sincos(radians(rollDeg))

	// yaw about Y
	v = Vec3{
		X: cy*v.X + sy*v.Z,
		Y: v.Y,
		Z: -sy*v.X + cy*v.Z,
	}
	// pitch about X
	v = Vec3{
		X: v.X,
		Y: cp*v.Y - sp*v.Z,
		Z: sp*v.Y + cp*v.Z,
	}
	// roll about Z
	return Vec3{
		X: cr*v.X - sr*v.Y,
		Y: sr*v.X + cr*v.Y,
		Z: v.Z,
	}
}

// PinholeRay derives the unit camera-space ray through the center of output
// pixel (px, py) for an outW x outH image with the given horizontal field of
// view. Screen Y grows downward; the ray's Y follows the world-up
// convention. fovDeg is clamped to [1, 175] before use.
func PinholeRay(px, py, outW, outH int, fovDeg float64) Vec3 {
	fov := math.Min(math.Max(fovDeg, minFOVDeg), maxFOVDeg)
	f := 0.5 * float64(outW) / math.Tan(radians(fov)/2)

	x := float64(px) + 0.5 - float64(outW)/2
	y := float64(outH)/2 - (float64(py) + 0.5)

	n := math.Sqrt(x*x + y*y + f*f)
	return Vec3{X: x / n, Y: y / n, Z: f / n}
}

// ToSpherical maps a world-space ray to normalized equirectangular sampling
// coordinates. u encodes longitude and wraps across the seam at 0/1; v
// encodes latitude and does not wrap (poles are edges).
func ToSpherical(ray Vec3) (u, v float64) {
	lon := math.Atan2(ray.X, ray.Z)
	lat := math.Asin(math.Min(math.Max(ray.Y, -1), 1))
	u = (lon + math.Pi) / (2 * math.Pi)
	v = (math.Pi/2 - lat) / math.Pi
	return u, v
}
