package ffmpeg

import (
	"fmt"
	"math"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
)

// buildDualLensGraph describes the backend filter chain for vendor dual-lens
// sources: correct each lens track for fisheye distortion at the capture
// field of view, composite the two tracks side by side, then reproject the
// composite to a rectilinear view at the requested orientation, output field
// of view and exact output size.
func buildDualLensGraph(angle entity.Angle, captureFOV, outputFOV float64, outW, outH int) string {
	vfov := verticalFOV(outputFOV, outW, outH)
	return fmt.Sprintf(
		"[0:v:0]v360=input=fisheye:output=hequirect:ih_fov=%g:iv_fov=%g[front];"+
			"[0:v:1]v360=input=fisheye:output=hequirect:ih_fov=%g:iv_fov=%g:yaw=180[back];"+
			"[front][back]hstack=inputs=2[pano];"+
			"[pano]v360=input=equirect:output=rectilinear:yaw=%g:pitch=%g:roll=%g:h_fov=%g:v_fov=%g:w=%d:h=%d[out]",
		captureFOV, captureFOV,
		captureFOV, captureFOV,
		angle.Yaw, angle.Pitch, angle.Roll,
		outputFOV, vfov, outW, outH,
	)
}

// verticalFOV derives the vertical field of view from the horizontal one and
// the output aspect, using the pinhole model.
func verticalFOV(hfovDeg float64, outW, outH int) float64 {
	hfov := hfovDeg * math.Pi / 180
	vfov := 2 * math.Atan(math.Tan(hfov/2)*float64(outH)/float64(outW))
	return vfov * 180 / math.Pi
}
