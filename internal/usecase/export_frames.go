package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ExportFramesUseCase struct {
	repo        port.JobRepository
	storage     port.SourceStorage
	newProvider port.ProviderFactory
	zipper      port.Zipper
	publisher   port.StatusPublisher
	dlq         port.DLQPublisher
	notifier    port.FailureNotifier
	logger      *zap.Logger
	cfg         ExportFramesConfig
}

type ExportFramesConfig struct {
	TempDir          string
	MaxRetries       int
	MaxLongEdge      int
	DefaultAspect    string
	SamplesPerSecond float64
	// BusyRetryDelay is the fixed pause before the single retry of a cell
	// rejected with ErrProviderBusy.
	BusyRetryDelay time.Duration
}

func NewExportFramesUseCase(
	repo port.JobRepository,
	storage port.SourceStorage,
	newProvider port.ProviderFactory,
	zipper port.Zipper,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ExportFramesConfig,
) *ExportFramesUseCase {
	return &ExportFramesUseCase{
		repo:        repo,
		storage:     storage,
		newProvider: newProvider,
		zipper:      zipper,
		publisher:   publisher,
		dlq:         dlq,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
	}
}

func (uc *ExportFramesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExportFramesUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ExportRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewExportJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	// an unsupported source never becomes supported by retrying
	if err := port.CheckSourceName(msg.VideoKey); err != nil {
		log.Warn("unsupported source type", zap.Error(err))
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "unsupported_source: "+msg.VideoKey)
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.exportPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ExportFramesUseCase) exportPipeline(
	ctx context.Context,
	job *entity.ExportJob,
	msg entity.ExportRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download the 360 source from object storage
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_source")
	srcName := filepath.Base(msg.VideoKey)
	srcPath := filepath.Join(workDir, srcName)
	if err := uc.storage.DownloadSource(ctx2, msg.VideoKey, srcPath); err != nil {
		spanDl.End()
		log.Error("failed to download source", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_source: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Bring up a provider for this source
	loadStart := time.Now()
	ctx3, spanLoad := tracer.Start(ctx, "load_provider")
	provider := uc.newProvider()
	defer provider.Close()
	if err := provider.Load(ctx3, srcName, srcPath); err != nil {
		spanLoad.End()
		log.Error("provider load failed", zap.Error(err))
		if errors.Is(err, port.ErrBackendInit) || errors.Is(err, port.ErrSourceMount) || errors.Is(err, port.ErrUnsupportedSource) {
			// load failures are not retried automatically; the user reloads
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "load_provider: "+err.Error())
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "load_provider: "+err.Error(), log)
	}
	spanLoad.End()
	metrics.JobProcessingDuration.WithLabelValues("load").Observe(time.Since(loadStart).Seconds())

	// Render the timestamp x angle grid
	renderStart := time.Now()
	ctx4, spanRender := tracer.Start(ctx, "render_grid")
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		spanRender.End()
		return fmt.Errorf("create frames dir: %w", err)
	}
	result, err := uc.renderGrid(ctx4, provider, msg, framesDir, log)
	spanRender.End()
	if err != nil {
		log.Error("grid render failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "render_grid: "+err.Error(), log)
	}
	metrics.JobProcessingDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())

	// Packaging and upload proceed even when the export was cancelled
	// mid-grid: whatever rendered is delivered.
	packCtx := context.WithoutCancel(ctx)

	// Package the stills into the downloadable archive
	zipStart := time.Now()
	ctx5, spanZip := tracer.Start(packCtx, "create_archive")
	zipPath := filepath.Join(workDir, "stills.zip")
	if err := uc.zipper.CreateZip(ctx5, result.framePaths, zipPath); err != nil {
		spanZip.End()
		log.Error("archive creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_archive: "+err.Error(), log)
	}
	spanZip.End()
	metrics.JobProcessingDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	// Upload the archive
	upStart := time.Now()
	ctx6, spanUp := tracer.Start(packCtx, "upload_archive")
	archiveKey := fmt.Sprintf("%s/stills_%s.zip", msg.UserID, job.ID.String())
	zipFile, err := os.Open(zipPath)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_archive: "+err.Error(), log)
	}
	zipStat, _ := zipFile.Stat()
	if err := uc.storage.UploadArchive(ctx6, archiveKey, zipFile, zipStat.Size()); err != nil {
		zipFile.Close()
		spanUp.End()
		log.Error("archive upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_archive: "+err.Error(), log)
	}
	zipFile.Close()
	spanUp.End()
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	// Mark completed
	job.MarkCompleted(archiveKey, result.rendered, result.total, result.skipped, provider.Duration())
	if err := uc.repo.Update(packCtx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(packCtx, job, log)

	log.Info("export completed",
		zap.Int("frames_rendered", result.rendered),
		zap.Int("cells_total", result.total),
		zap.Int("cells_skipped", result.skipped),
		zap.Float64("duration_secs", provider.Duration()),
		zap.String("archive_key", archiveKey),
	)

	return nil
}

type gridResult struct {
	framePaths []string
	rendered   int
	skipped    int
	total      int
}

// renderGrid walks the cartesian product of sample timestamps and cameras in
// timestamp-then-angle order, one strictly sequential FrameAt call per cell.
// A busy rejection is retried exactly once after a fixed delay; a cell that
// still fails is logged and skipped. Cancellation is checked between cells;
// the in-flight cell always completes. Export is best-effort, not
// all-or-nothing.
func (uc *ExportFramesUseCase) renderGrid(
	ctx context.Context,
	provider port.FrameProvider,
	msg entity.ExportRequestMessage,
	framesDir string,
	log *zap.Logger,
) (*gridResult, error) {
	aspectStr := msg.Aspect
	if aspectStr == "" {
		aspectStr = uc.cfg.DefaultAspect
	}
	aspect, err := entity.ParseAspect(aspectStr)
	if err != nil {
		return nil, err
	}
	outW, outH := entity.OutputSize(aspect, provider.SourceWidth(), uc.cfg.MaxLongEdge)

	sps := msg.SamplesPerSecond
	if sps <= 0 {
		sps = uc.cfg.SamplesPerSecond
	}
	timestamps := entity.SampleTimestamps(provider.Duration(), sps)

	cameras := entity.NewCameraList()
	for _, spec := range msg.Cameras {
		cameras.Add(spec.Label, entity.Angle{Pitch: spec.Pitch, Yaw: spec.Yaw, Roll: spec.Roll})
	}
	cams := cameras.Cameras()
	if len(cams) == 0 {
		return nil, fmt.Errorf("no cameras in export request")
	}

	res := &gridResult{total: len(timestamps) * len(cams)}
	log.Info("rendering export grid",
		zap.Int("timestamps", len(timestamps)),
		zap.Int("cameras", len(cams)),
		zap.Int("out_w", outW),
		zap.Int("out_h", outH),
	)

	done := 0
grid:
	for _, ts := range timestamps {
		for _, cam := range cams {
			select {
			case <-ctx.Done():
				log.Info("export cancelled, packaging partial results",
					zap.Int("done", done),
					zap.Int("total", res.total),
				)
				break grid
			default:
			}

			frame, err := provider.FrameAt(ctx, ts, cam.Angle, outW, outH)
			if errors.Is(err, port.ErrProviderBusy) {
				time.Sleep(uc.cfg.BusyRetryDelay)
				frame, err = provider.FrameAt(ctx, ts, cam.Angle, outW, outH)
			}
			done++
			if err != nil {
				log.Warn("cell render failed, skipping",
					zap.Float64("timestamp", ts),
					zap.Int("camera_id", cam.ID),
					zap.Error(err),
				)
				metrics.CellsSkippedTotal.Inc()
				res.skipped++
				continue
			}

			framePath := filepath.Join(framesDir, entity.FrameName(cam, ts))
			if err := os.WriteFile(framePath, frame.Data, 0644); err != nil {
				return nil, fmt.Errorf("write frame %s: %w", framePath, err)
			}
			res.framePaths = append(res.framePaths, framePath)
			res.rendered++

			log.Debug("cell rendered",
				zap.Int("done", done),
				zap.Int("total", res.total),
			)
		}
	}

	if res.rendered == 0 {
		return nil, fmt.Errorf("no frames rendered (%d cells skipped)", res.skipped)
	}
	return res, nil
}

func (uc *ExportFramesUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.ExportJob,
	msg entity.ExportRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ExportFramesUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.ExportJob,
	msg entity.ExportRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ExportFramesUseCase) publishStatus(ctx context.Context, job *entity.ExportJob, log *zap.Logger) {
	statusMsg := entity.ExportStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		ArchiveKey:   job.ArchiveKey,
		FrameCount:   job.FrameCount,
		CellsTotal:   job.CellsTotal,
		CellsSkipped: job.CellsSkipped,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
