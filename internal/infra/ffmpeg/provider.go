package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/metrics"
	"github.com/Jacoby6000/panoptoconverter/internal/projection"
	"go.uber.org/zap"
)

// Config carries the provider's backend knobs.
type Config struct {
	FFmpegPath  string // empty means look up "ffmpeg" in PATH
	FFprobePath string // empty means look up "ffprobe" in PATH
	WorkDir     string // parent directory for backend workspaces
	CaptureFOV  float64
	OutputFOV   float64
	JPEGQuality int // ffmpeg -q:v scale (2 best .. 31 worst)
}

type providerState int

const (
	stateUnloaded providerState = iota
	stateLoading
	stateReady
	stateProcessing
	stateClosed
)

type sourceKind int

const (
	kindEquirect sourceKind = iota
	kindDualLens
)

// Quality used when the in-process path encodes the rendered raster.
const rasterJPEGQuality = 90

// Substrings in backend output that indicate the backend process died or
// read out of bounds, as opposed to an ordinary per-request failure. These
// trigger a full backend reinitialization.
var fatalBackendMarkers = []string{
	"signal:",
	"Assertion",
	"out of bounds",
	"killed",
}

// Provider is the ffmpeg-backed frame provider. It owns one backend
// workspace per loaded source, serializes renders behind a busy gate
// (concurrent calls are rejected, not queued), memoizes the most recent
// result, and reinitializes the backend when it crashes.
type Provider struct {
	cfg    Config
	logger *zap.Logger
	run    commandRunner

	mu         sync.Mutex
	st         providerState
	workDir    string
	ffmpegBin  string
	ffprobeBin string
	srcName    string
	srcOrig    string // path handed to Load, used for crash-recovery remount
	mounted    string // source path inside the workspace
	kind       sourceKind
	duration   float64
	srcW, srcH int
	cached     *entity.ProcessedFrame
}

func newProvider(cfg Config, logger *zap.Logger, run commandRunner) *Provider {
	if cfg.CaptureFOV == 0 {
		cfg.CaptureFOV = 190
	}
	if cfg.OutputFOV == 0 {
		cfg.OutputFOV = 90
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 4
	}
	return &Provider{cfg: cfg, logger: logger, run: run}
}

// Load initializes the backend and mounts the named source into its
// workspace. The one-time startup cost (binary resolution, workspace
// creation, source probing) happens here, not on the first render.
func (p *Provider) Load(ctx context.Context, name, srcPath string) error {
	if err := port.CheckSourceName(name); err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}

	p.mu.Lock()
	if p.st != stateUnloaded {
		p.mu.Unlock()
		return fmt.Errorf("provider already loaded with %s", p.srcName)
	}
	p.st = stateLoading
	p.mu.Unlock()

	fail := func(err error) error {
		p.mu.Lock()
		p.st = stateUnloaded
		p.mu.Unlock()
		return err
	}

	if err := p.initBackend(); err != nil {
		return fail(fmt.Errorf("%w: %v", port.ErrBackendInit, err))
	}

	mounted, err := p.mountSource(name, srcPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", port.ErrSourceMount, err))
	}

	srcW, srcH, err := p.probeDimensions(ctx, mounted)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", port.ErrSourceMount, err))
	}

	duration, err := p.probeDuration(ctx, mounted)
	if err != nil {
		p.logger.Warn("could not get source duration", zap.Error(err))
	}

	kind := kindEquirect
	if strings.EqualFold(filepath.Ext(name), port.ExtDualLens) {
		kind = kindDualLens
	}

	p.mu.Lock()
	p.srcName = name
	p.srcOrig = srcPath
	p.mounted = mounted
	p.kind = kind
	p.duration = duration
	p.srcW, p.srcH = srcW, srcH
	p.st = stateReady
	p.mu.Unlock()

	p.logger.Info("source loaded",
		zap.String("name", name),
		zap.Float64("duration", duration),
		zap.Int("width", srcW),
		zap.Int("height", srcH),
		zap.Bool("dual_lens", kind == kindDualLens),
	)
	return nil
}

// initBackend resolves the backend binaries and creates a fresh workspace.
func (p *Provider) initBackend() error {
	ffmpegBin := p.cfg.FFmpegPath
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	ffprobeBin := p.cfg.FFprobePath
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}

	resolved, err := p.run.LookPath(ffmpegBin)
	if err != nil {
		return fmt.Errorf("resolve ffmpeg: %w", err)
	}
	p.ffmpegBin = resolved

	resolved, err = p.run.LookPath(ffprobeBin)
	if err != nil {
		return fmt.Errorf("resolve ffprobe: %w", err)
	}
	p.ffprobeBin = resolved

	workDir, err := os.MkdirTemp(p.cfg.WorkDir, "backend-*")
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	p.workDir = workDir
	return nil
}

// mountSource links the source into the workspace under its original name,
// falling back to copying the full file when linking is not possible (e.g.
// across filesystems).
func (p *Provider) mountSource(name, srcPath string) (string, error) {
	dst := filepath.Join(p.workDir, filepath.Base(name))
	if err := os.Link(srcPath, dst); err == nil {
		return dst, nil
	}
	if err := copyFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FrameAt renders one still at tsSec looking along angle. The most recent
// result is memoized and served even while another render is in flight; any
// other request arriving mid-render fails immediately with ErrProviderBusy.
func (p *Provider) FrameAt(ctx context.Context, tsSec float64, angle entity.Angle, outW, outH int) (*entity.ProcessedFrame, error) {
	if outW < 1 || outH < 1 {
		return nil, fmt.Errorf("invalid output size %dx%d", outW, outH)
	}
	angle = angle.Normalize()
	key := entity.NewFrameKey(tsSec, angle, outW, outH)

	p.mu.Lock()
	switch p.st {
	case stateReady, stateProcessing:
		// loaded; the cache may answer even while a render is in flight
	default:
		p.mu.Unlock()
		return nil, port.ErrNotLoaded
	}
	if p.cached != nil && p.cached.Key == key {
		frame := p.cached
		p.mu.Unlock()
		return frame, nil
	}
	if p.st == stateProcessing {
		p.mu.Unlock()
		metrics.ProviderBusyRejections.Inc()
		return nil, port.ErrProviderBusy
	}
	p.st = stateProcessing
	p.mu.Unlock()

	// The busy gate is always released, whatever the render did. Close can
	// race a render; don't resurrect a closed provider.
	defer func() {
		p.mu.Lock()
		if p.st == stateProcessing {
			p.st = stateReady
		}
		p.mu.Unlock()
	}()

	frame, err := p.renderOnce(ctx, tsSec, angle, outW, outH)
	if err != nil {
		if isFatalBackendError(err) {
			p.recoverBackend(ctx)
			return nil, fmt.Errorf("%w: %v", port.ErrBackendFatal, err)
		}
		// a failed render never overwrites the last-good cached result
		return nil, err
	}
	frame.Key = key

	// Close may have raced the render; a closed provider keeps no cache.
	p.mu.Lock()
	if p.st == stateProcessing {
		p.cached = frame
	}
	p.mu.Unlock()

	metrics.FramesRenderedTotal.Inc()
	return frame, nil
}

func (p *Provider) renderOnce(ctx context.Context, tsSec float64, angle entity.Angle, outW, outH int) (*entity.ProcessedFrame, error) {
	if p.kind == kindDualLens {
		return p.renderViaBackend(ctx, tsSec, angle, outW, outH)
	}
	return p.renderInProcess(ctx, tsSec, angle, outW, outH)
}

// renderViaBackend delegates the whole reprojection to the backend filter
// pipeline and reads back a single encoded still.
func (p *Provider) renderViaBackend(ctx context.Context, tsSec float64, angle entity.Angle, outW, outH int) (*entity.ProcessedFrame, error) {
	graph := buildDualLensGraph(angle, p.cfg.CaptureFOV, p.cfg.OutputFOV, outW, outH)
	out, stderr, err := p.run.Run(ctx, p.ffmpegBin,
		"-hide_banner",
		"-ss", formatTimestamp(tsSec),
		"-i", p.mounted,
		"-filter_complex", graph,
		"-map", "[out]",
		"-frames:v", "1",
		"-f", "image2",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(p.cfg.JPEGQuality),
		"pipe:1",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(stderr))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: backend produced no output", port.ErrRenderFailed)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: decode still: %v", port.ErrRenderFailed, err)
	}
	return &entity.ProcessedFrame{
		TimestampSec: tsSec,
		Data:         out,
		W:            cfg.Width,
		H:            cfg.Height,
	}, nil
}

// renderInProcess grabs one raw full frame from the backend and reprojects
// it with the projection package. Used for mono equirectangular sources,
// where the backend only decodes.
func (p *Provider) renderInProcess(ctx context.Context, tsSec float64, angle entity.Angle, outW, outH int) (*entity.ProcessedFrame, error) {
	out, stderr, err := p.run.Run(ctx, p.ffmpegBin,
		"-hide_banner",
		"-ss", formatTimestamp(tsSec),
		"-i", p.mounted,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(stderr))
	}
	want := p.srcW * p.srcH * 4
	if len(out) != want {
		return nil, fmt.Errorf("%w: got %d bytes of raw frame, want %d", port.ErrRenderFailed, len(out), want)
	}

	src := projection.FromRaw(p.srcW, p.srcH, out)
	rendered := projection.Render(src, outW, outH, angle.Yaw, angle.Pitch, angle.Roll, p.cfg.OutputFOV)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rendered.RGBA(), &jpeg.Options{Quality: rasterJPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode still: %v", port.ErrRenderFailed, err)
	}
	return &entity.ProcessedFrame{
		TimestampSec: tsSec,
		Data:         buf.Bytes(),
		W:            outW,
		H:            outH,
	}, nil
}

// recoverBackend tears the backend down and brings up a fresh instance with
// the source remounted, so the next request runs against a clean backend.
// The request that observed the crash still fails.
func (p *Provider) recoverBackend(ctx context.Context) {
	p.logger.Warn("backend fatal error, reinitializing",
		zap.String("source", p.srcName),
	)
	metrics.BackendReinitsTotal.Inc()

	oldWorkDir := p.workDir
	if err := p.initBackend(); err != nil {
		p.logger.Error("backend reinit failed", zap.Error(err))
		return
	}

	mounted, err := p.mountSource(p.srcName, p.srcOrig)
	if err != nil {
		// original source may be gone; salvage the previously mounted copy
		mounted = filepath.Join(p.workDir, filepath.Base(p.srcName))
		if mvErr := os.Rename(p.mounted, mounted); mvErr != nil {
			p.logger.Error("backend remount failed",
				zap.NamedError("mount_error", err),
				zap.Error(mvErr),
			)
			return
		}
	}

	p.mu.Lock()
	p.mounted = mounted
	p.mu.Unlock()

	if oldWorkDir != "" {
		os.RemoveAll(oldWorkDir)
	}
}

// Busy reports whether a render is currently in flight.
func (p *Provider) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st == stateProcessing
}

func (p *Provider) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *Provider) SourceWidth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.srcW
}

// Close unmounts the source and tears down the backend workspace. Idempotent
// and safe on a never-loaded provider, including during session teardown
// with a render still in flight.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st == stateClosed {
		return nil
	}
	p.st = stateClosed
	p.cached = nil
	if p.workDir != "" {
		if err := os.RemoveAll(p.workDir); err != nil {
			return fmt.Errorf("remove backend workspace: %w", err)
		}
		p.workDir = ""
	}
	return nil
}

func isFatalBackendError(err error) bool {
	msg := err.Error()
	for _, marker := range fatalBackendMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func formatTimestamp(tsSec float64) string {
	return strconv.FormatFloat(tsSec, 'f', 3, 64)
}
