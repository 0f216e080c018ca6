package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitForCalls(t *testing.T, fp *fakeProvider, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(fp.callLog()) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPreviewCoalescesRapidUpdates(t *testing.T) {
	fp := &fakeProvider{duration: 10, srcW: 1920}
	s := NewPreviewSession(fp, 50*time.Millisecond, zap.NewNop())
	defer s.Close()
	ctx := context.Background()

	for yaw := 0.0; yaw < 5; yaw++ {
		s.Update(ctx, 1.0, entity.Angle{Yaw: yaw}, 640, 360)
	}

	time.Sleep(150 * time.Millisecond)

	calls := fp.callLog()
	require.NotEmpty(t, calls)
	assert.LessOrEqual(t, len(calls), 2, "five rapid edits must coalesce")
	// whatever fired last used the latest requested angle
	assert.Equal(t, 4.0, calls[len(calls)-1].angle.Yaw)
	require.NotNil(t, s.Current())
	assert.Equal(t, 1.0, s.Current().TimestampSec)
}

func TestPreviewBusyDropKeepsPrevious(t *testing.T) {
	fp := &fakeProvider{
		duration: 10,
		srcW:     1920,
		errAt:    map[float64]error{2: port.ErrProviderBusy},
	}
	s := NewPreviewSession(fp, 10*time.Millisecond, zap.NewNop())
	defer s.Close()
	ctx := context.Background()

	s.Update(ctx, 1.0, entity.Angle{}, 640, 360)
	waitForCalls(t, fp, 1)
	require.Eventually(t, func() bool { return s.Current() != nil }, time.Second, 5*time.Millisecond)
	prev := s.Current()

	s.Update(ctx, 2.0, entity.Angle{}, 640, 360)
	waitForCalls(t, fp, 2)

	assert.Same(t, prev, s.Current(), "a busy drop leaves the last preview in place")
}

func TestPreviewRenderFailureKeepsPrevious(t *testing.T) {
	fp := &fakeProvider{
		duration: 10,
		srcW:     1920,
		errAt:    map[float64]error{3: port.ErrRenderFailed},
	}
	s := NewPreviewSession(fp, 10*time.Millisecond, zap.NewNop())
	defer s.Close()
	ctx := context.Background()

	s.Update(ctx, 1.0, entity.Angle{}, 640, 360)
	waitForCalls(t, fp, 1)
	require.Eventually(t, func() bool { return s.Current() != nil }, time.Second, 5*time.Millisecond)
	prev := s.Current()

	s.Update(ctx, 3.0, entity.Angle{}, 640, 360)
	waitForCalls(t, fp, 2)

	assert.Same(t, prev, s.Current())
}

func TestPreviewCloseCancelsScheduledRender(t *testing.T) {
	fp := &fakeProvider{duration: 10, srcW: 1920}
	s := NewPreviewSession(fp, 300*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	s.Update(ctx, 1.0, entity.Angle{}, 640, 360)
	waitForCalls(t, fp, 1)

	// this one lands inside the throttle window, so it is only scheduled
	s.Update(ctx, 2.0, entity.Angle{}, 640, 360)
	s.Close()

	time.Sleep(400 * time.Millisecond)
	assert.Len(t, fp.callLog(), 1, "closing drops the scheduled render")
}

func TestPreviewUpdateAfterCloseIgnored(t *testing.T) {
	fp := &fakeProvider{duration: 10, srcW: 1920}
	s := NewPreviewSession(fp, 10*time.Millisecond, zap.NewNop())
	s.Close()

	s.Update(context.Background(), 1.0, entity.Angle{}, 640, 360)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fp.callLog())
}

func TestPreviewDefaultInterval(t *testing.T) {
	s := NewPreviewSession(&fakeProvider{}, 0, zap.NewNop())
	assert.Equal(t, 200*time.Millisecond, s.interval)
}
