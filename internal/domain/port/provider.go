package port

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
)

// Provider error taxonomy. Callers distinguish these with errors.Is; the
// propagation split (abort vs skip-and-continue vs drop) is decided at the
// orchestrator and preview layers, never inside the provider.
var (
	// ErrUnsupportedSource means the input failed the extension gate.
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrBackendInit means the decode backend failed to start.
	ErrBackendInit = errors.New("decode backend failed to initialize")
	// ErrSourceMount means neither mounting nor writing the source into the
	// backend's file space succeeded.
	ErrSourceMount = errors.New("failed to mount source into backend")
	// ErrProviderBusy is returned while a render is in flight. Requests are
	// rejected, never queued; retry policy belongs to the caller.
	ErrProviderBusy = errors.New("provider busy")
	// ErrBackendFatal means the backend process aborted; the provider has
	// already reinitialized it, but the originating request still failed.
	ErrBackendFatal = errors.New("decode backend fatal error")
	// ErrRenderFailed means the backend produced an empty or undecodable
	// still for one request.
	ErrRenderFailed = errors.New("frame render failed")
	// ErrNotLoaded means FrameAt was called before a successful Load.
	ErrNotLoaded = errors.New("no source loaded")
)

// FrameProvider owns a single decode-backend instance for one loaded source
// and turns (timestamp, angle, size) requests into rendered stills. At most
// one render is in flight per provider; concurrent calls fail with
// ErrProviderBusy.
type FrameProvider interface {
	// Load initializes the backend and mounts the source file into its
	// addressable file space. name is the original filename; it gates
	// accepted source types.
	Load(ctx context.Context, name, srcPath string) error

	// FrameAt renders one outW x outH rectilinear still at tsSec looking
	// along angle. Identical consecutive requests are served from a
	// single-slot cache without touching the backend.
	FrameAt(ctx context.Context, tsSec float64, angle entity.Angle, outW, outH int) (*entity.ProcessedFrame, error)

	// Busy reports whether a render is currently in flight.
	Busy() bool

	// Duration is the probed source duration in seconds.
	Duration() float64

	// SourceWidth is the probed width of the source frame in pixels.
	SourceWidth() int

	// Close unmounts the source and terminates the backend. Idempotent and
	// safe on a never-loaded provider.
	Close() error
}

// ProviderFactory creates a fresh provider for one source. One provider per
// loaded source; providers are never shared across sources.
type ProviderFactory func() FrameProvider

// Accepted source extensions: the generic container format and the
// vendor-specific dual-lens format.
const (
	ExtMP4      = ".mp4"
	ExtDualLens = ".360"
)

// CheckSourceName rejects inputs outside the two recognized source types
// before they reach the core.
func CheckSourceName(name string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtMP4, ExtDualLens:
		return nil
	default:
		return ErrUnsupportedSource
	}
}
