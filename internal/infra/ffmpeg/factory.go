package ffmpeg

import (
	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"go.uber.org/zap"
)

// NewProvider selects a provider implementation for one source: the
// hardware-codec variant when the capability probe passes, otherwise the
// software backend.
func NewProvider(cfg Config, logger *zap.Logger) port.FrameProvider {
	if hardwareAvailable() {
		logger.Info("hardware decode capability detected, selecting hardware provider")
		return newHardwareProvider(logger)
	}
	return newProvider(cfg, logger, execRunner{})
}
