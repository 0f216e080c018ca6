package projection

import (
	"image"
	"image/draw"
	"math"
)

// Raster is an owned row-major RGBA pixel buffer with explicit dimensions.
// Decoded bitmaps and raw backend frames are both materialized into this one
// representation so sampling never branches on where the pixels came from.
type Raster struct {
	W, H int
	Pix  []uint8 // RGBA, len == W*H*4
}

// NewRaster allocates a zeroed W x H raster.
func NewRaster(w, h int) *Raster {
	return &Raster{W: w, H: h, Pix: make([]uint8, w*h*4)}
}

// FromImage materializes any image.Image into a raster.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	dst := &image.RGBA{Pix: r.Pix, Stride: r.W * 4, Rect: image.Rect(0, 0, r.W, r.H)}
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return r
}

// FromRaw wraps a raw RGBA buffer without copying. The buffer must be
// exactly w*h*4 bytes.
func FromRaw(w, h int, pix []uint8) *Raster {
	return &Raster{W: w, H: h, Pix: pix}
}

// RGBA returns an image.RGBA view sharing the raster's pixels.
func (r *Raster) RGBA() *image.RGBA {
	return &image.RGBA{Pix: r.Pix, Stride: r.W * 4, Rect: image.Rect(0, 0, r.W, r.H)}
}

func (r *Raster) at(x, y int) [4]uint8 {
	i := (y*r.W + x) * 4
	return [4]uint8{r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3]}
}

func (r *Raster) set(x, y int, px [4]uint8) {
	i := (y*r.W + x) * 4
	r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3] = px[0], px[1], px[2], px[3]
}

// BilinearSample reads the source at normalized coordinates (u, v) with
// 4-tap bilinear interpolation. u wraps into [0,1) so longitude is
// continuous across the seam; v clamps into [0,1] so the poles behave as
// edges. Each channel is interpolated independently and rounded to the
// nearest sample value.
func BilinearSample(src *Raster, u, v float64) [4]uint8 {
	u = u - math.Floor(u)
	v = math.Min(math.Max(v, 0), 1)

	fx := u * float64(src.W)
	fy := v * float64(src.H)

	x0 := int(math.Floor(fx - 0.5))
	y0 := int(math.Floor(fy - 0.5))
	dx := fx - 0.5 - float64(x0)
	dy := fy - 0.5 - float64(y0)

	x1 := x0 + 1
	y1 := y0 + 1

	// longitude wraps, latitude clamps
	x0 = wrapIndex(x0, src.W)
	x1 = wrapIndex(x1, src.W)
	y0 = clampIndex(y0, src.H)
	y1 = clampIndex(y1, src.H)

	p00 := src.at(x0, y0)
	p10 := src.at(x1, y0)
	p01 := src.at(x0, y1)
	p11 := src.at(x1, y1)

	var out [4]uint8
	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-dx) + float64(p10[c])*dx
		bot := float64(p01[c])*(1-dx) + float64(p11[c])*dx
		out[c] = uint8(math.Round(top*(1-dy) + bot*dy))
	}
	return out
}

func wrapIndex(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
