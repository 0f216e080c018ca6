package integration

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/entity"
	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/email"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/ffmpeg"
	miniostorage "github.com/Jacoby6000/panoptoconverter/internal/infra/minio"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/postgres"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/rabbitmq"
	"github.com/Jacoby6000/panoptoconverter/internal/usecase"
	"github.com/Jacoby6000/panoptoconverter/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

type stack struct {
	pool      *pgxpool.Pool
	repo      *postgres.JobRepository
	storage   *miniostorage.Storage
	minio     *miniogo.Client
	rmqConn   *amqp.Connection
	rmqURL    string
	statusPub *rabbitmq.StatusPublisher
	dlqPub    *rabbitmq.DLQPublisher
}

// startStack brings up postgres, rabbitmq and minio containers and wires the
// adapters against them.
func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := postgres.NewJobRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		UploadBucket:  "uploads",
		ArchiveBucket: "archives",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, "panoconv.export")
	require.NoError(t, err)

	return &stack{
		pool:      pool,
		repo:      repo,
		storage:   storage,
		minio:     minioClient,
		rmqConn:   rmqConn,
		rmqURL:    rmqURL,
		statusPub: rabbitmq.NewStatusPublisher(pub),
		dlqPub:    rabbitmq.NewDLQPublisher(pub, "export.request.dlq"),
	}
}

func startWorker(t *testing.T, ctx context.Context, s *stack) {
	t.Helper()

	log, _ := logger.New("debug")

	providerFactory := func() port.FrameProvider {
		return ffmpeg.NewProvider(ffmpeg.Config{WorkDir: os.TempDir()}, log)
	}

	uc := usecase.NewExportFramesUseCase(
		s.repo, s.storage, providerFactory, ffmpeg.NewZipCreator(),
		s.statusPub, s.dlqPub,
		email.NewSMTPNotifier("localhost", 1025, "noreply@test.local", log),
		log,
		usecase.ExportFramesConfig{
			TempDir:          t.TempDir(),
			MaxRetries:       3,
			MaxLongEdge:      1920,
			DefaultAspect:    "16:9",
			SamplesPerSecond: 1,
			BusyRetryDelay:   250 * time.Millisecond,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         s.rmqURL,
		Queue:       "export.request",
		Exchange:    "panoconv.export",
		DLQ:         "export.request.dlq",
		StatusQueue: "export.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)
	go func() {
		_ = consumer.Start(consumerCtx)
	}()

	// give the consumer time to attach
	time.Sleep(500 * time.Millisecond)
}

func publishRequest(t *testing.T, ctx context.Context, s *stack, body []byte) {
	t.Helper()
	ch, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.PublishWithContext(ctx,
		"panoconv.export",
		"export.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	))
}

func TestExportEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}

	testVideoPath := filepath.Join("..", "testdata", "pano.mp4")
	if _, err := os.Stat(testVideoPath); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/pano.mp4 - generate it with: " +
			"ffmpeg -f lavfi -i testsrc=duration=2:size=640x320:rate=1 -c:v libx264 -pix_fmt yuv420p tests/testdata/pano.mp4")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(t, ctx)
	startWorker(t, ctx, s)

	videoKey := "testuser/pano.mp4"
	_, err := s.minio.FPutObject(ctx, "uploads", videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	jobID := uuid.New()
	videoInfo, _ := os.Stat(testVideoPath)
	request := entity.ExportRequestMessage{
		JobID:            jobID,
		UserID:           "testuser",
		VideoKey:         videoKey,
		FileSize:         videoInfo.Size(),
		SamplesPerSecond: 1,
		Aspect:           "16:9",
		Cameras: []entity.CameraSpec{
			{Label: "front", Yaw: 0},
			{Label: "back", Yaw: 180},
		},
	}
	body, err := json.Marshal(request)
	require.NoError(t, err)
	publishRequest(t, ctx, s, body)

	// Await the completion status
	statusCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume("export.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var status entity.ExportStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &status))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, status.JobID)
	assert.Equal(t, entity.JobStatusCompleted, status.Status)
	assert.NotEmpty(t, status.ArchiveKey)
	// 2 second source at 1 sample/sec -> 3 timestamps x 2 cameras
	assert.Equal(t, 6, status.CellsTotal)
	assert.Greater(t, status.FrameCount, 0)

	// Verify the archive landed in object storage with the rendered stills
	archiveObj, err := s.minio.GetObject(ctx, "archives", status.ArchiveKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)

	tmpZip := filepath.Join(t.TempDir(), "stills.zip")
	tmpFile, err := os.Create(tmpZip)
	require.NoError(t, err)
	_, err = tmpFile.ReadFrom(archiveObj)
	require.NoError(t, err)
	tmpFile.Close()

	zipReader, err := zip.OpenReader(tmpZip)
	require.NoError(t, err)
	defer zipReader.Close()

	jpgCount := 0
	for _, f := range zipReader.File {
		if strings.HasSuffix(f.Name, ".jpg") {
			jpgCount++
		}
	}
	assert.Equal(t, status.FrameCount, jpgCount, "archive must contain exactly the rendered stills")

	// Verify the job record
	var dbStatus string
	var dbFrameCount int
	err = s.pool.QueryRow(ctx,
		"SELECT status, frame_count FROM export_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, jpgCount, dbFrameCount)
}

func TestExportMalformedMessageGoesToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(t, ctx)
	startWorker(t, ctx, s)

	publishRequest(t, ctx, s, []byte(`{invalid json`))

	time.Sleep(2 * time.Second)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("export.request.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
}

func TestExportUnsupportedSourceGoesToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(t, ctx)
	startWorker(t, ctx, s)

	request := entity.ExportRequestMessage{
		JobID:    uuid.New(),
		UserID:   "testuser",
		VideoKey: "testuser/clip.avi",
		Cameras:  []entity.CameraSpec{{Label: "front"}},
	}
	body, err := json.Marshal(request)
	require.NoError(t, err)
	publishRequest(t, ctx, s, body)

	time.Sleep(2 * time.Second)

	dlqCh, err := s.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	_, ok, err := dlqCh.Get("export.request.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "unsupported source should be dead-lettered")

	var dbStatus string
	err = s.pool.QueryRow(ctx,
		"SELECT status FROM export_jobs WHERE id=$1", request.JobID,
	).Scan(&dbStatus)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", dbStatus)
}
