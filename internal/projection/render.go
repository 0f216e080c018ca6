package projection

// Render projects an equirectangular source onto a rectilinear outW x outH
// view rotated by yaw, pitch and roll degrees with the given horizontal
// field of view. A fresh output buffer is allocated on every call; the
// source is never aliased or modified.
func Render(src *Raster, outW, outH int, yawDeg, pitchDeg, rollDeg, fovDeg float64) *Raster {
	out := NewRaster(outW, outH)
	for py := 0; py < outH; py++ {
		for px := 0; px < outW; px++ {
			ray := PinholeRay(px, py, outW, outH, fovDeg)
			ray = Rotate(ray, yawDeg, pitchDeg, rollDeg)
			u, v := ToSpherical(ray)
			out.set(px, py, BilinearSample(src, u, v))
		}
	}
	return out
}
