package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"go.uber.org/zap"
)

// PreviewSession throttles interactive preview renders against one provider.
// Rapid angle edits coalesce to the latest value: at most one FrameAt call
// is issued per interval, and intermediate edits are never issued at all.
// A busy provider or a failed render leaves the previous preview in place;
// the export path handles those cases differently.
type PreviewSession struct {
	provider port.FrameProvider
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	pending   *previewRequest
	timer     *time.Timer
	lastIssue time.Time
	current   *entity.ProcessedFrame
	closed    bool
}

type previewRequest struct {
	tsSec float64
	angle entity.Angle
	w, h  int
}

func NewPreviewSession(provider port.FrameProvider, interval time.Duration, logger *zap.Logger) *PreviewSession {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &PreviewSession{provider: provider, interval: interval, logger: logger}
}

// Update requests a preview of the given cell. The call returns immediately;
// the render happens when the throttle window allows it, using whatever
// values were most recently requested by then.
func (s *PreviewSession) Update(ctx context.Context, tsSec float64, angle entity.Angle, w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &previewRequest{tsSec: tsSec, angle: angle.Normalize(), w: w, h: h}
	if s.timer != nil {
		// a render is already scheduled; it will pick up the latest request
		return
	}
	wait := s.interval - time.Since(s.lastIssue)
	if wait < 0 {
		wait = 0
	}
	s.timer = time.AfterFunc(wait, func() { s.fire(ctx) })
}

func (s *PreviewSession) fire(ctx context.Context) {
	s.mu.Lock()
	req := s.pending
	s.pending = nil
	s.timer = nil
	s.lastIssue = time.Now()
	closed := s.closed
	s.mu.Unlock()
	if req == nil || closed {
		return
	}

	frame, err := s.provider.FrameAt(ctx, req.tsSec, req.angle, req.w, req.h)
	if err != nil {
		if errors.Is(err, port.ErrProviderBusy) {
			s.logger.Debug("preview dropped, provider busy")
		} else {
			s.logger.Warn("preview render failed, keeping previous frame", zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	if !s.closed {
		s.current = frame
	}
	s.mu.Unlock()
}

// Current returns the most recent successful preview, or nil before the
// first one.
func (s *PreviewSession) Current() *entity.ProcessedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close drops any scheduled render. It does not close the provider; the
// session does not own it.
func (s *PreviewSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}
