package ffmpeg

import (
	"context"
	"fmt"
	"os"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"go.uber.org/zap"
)

// hardwareAvailable probes for a usable hardware decode path. The hardware
// provider is not implemented yet, so the probe additionally requires an
// explicit opt-in.
func hardwareAvailable() bool {
	if os.Getenv("PANOCONV_HWACCEL") != "1" {
		return false
	}
	_, err := os.Stat("/dev/dri/renderD128")
	return err == nil
}

// HardwareProvider is the hardware-codec variant of the provider contract.
// It is a stub: it satisfies the interface so the factory can dispatch on
// capability, but loading reports the backend as unavailable.
type HardwareProvider struct {
	logger *zap.Logger
}

func newHardwareProvider(logger *zap.Logger) *HardwareProvider {
	return &HardwareProvider{logger: logger}
}

func (h *HardwareProvider) Load(ctx context.Context, name, srcPath string) error {
	if err := port.CheckSourceName(name); err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}
	return fmt.Errorf("%w: hardware decode not implemented", port.ErrBackendInit)
}

func (h *HardwareProvider) FrameAt(ctx context.Context, tsSec float64, angle entity.Angle, outW, outH int) (*entity.ProcessedFrame, error) {
	return nil, port.ErrNotLoaded
}

func (h *HardwareProvider) Busy() bool        { return false }
func (h *HardwareProvider) Duration() float64 { return 0 }
func (h *HardwareProvider) SourceWidth() int  { return 0 }
func (h *HardwareProvider) Close() error      { return nil }
