package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jacoby6000/panoptoconverter/internal/domain/port"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/config"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/email"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/ffmpeg"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/metrics"
	miniostorage "github.com/Jacoby6000/panoptoconverter/internal/infra/minio"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/postgres"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/rabbitmq"
	"github.com/Jacoby6000/panoptoconverter/internal/infra/tracing"
	"github.com/Jacoby6000/panoptoconverter/internal/usecase"
	"github.com/Jacoby6000/panoptoconverter/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting panoptoconverter worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	repo := postgres.NewJobRepository(pool)
	fatalOnErr(repo.EnsureSchema(ctx), "ensure schema")

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	zipper := ffmpeg.NewZipCreator()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// One provider per loaded source, never shared across sources
	providerFactory := port.ProviderFactory(func() port.FrameProvider {
		return ffmpeg.NewProvider(ffmpeg.Config{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
			WorkDir:     cfg.TempDir,
			CaptureFOV:  cfg.CaptureFOV,
			OutputFOV:   cfg.OutputFOV,
			JPEGQuality: cfg.JPEGQuality,
		}, log)
	})

	// Use case
	uc := usecase.NewExportFramesUseCase(
		repo, storage, providerFactory, zipper,
		statusPub, dlqPub, notifier,
		log,
		usecase.ExportFramesConfig{
			TempDir:          cfg.TempDir,
			MaxRetries:       cfg.MaxRetries,
			MaxLongEdge:      cfg.MaxLongEdge,
			DefaultAspect:    cfg.DefaultAspect,
			SamplesPerSecond: cfg.SamplesPerSecond,
			BusyRetryDelay:   time.Duration(cfg.BusyRetryDelayMs) * time.Millisecond,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQExportQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("panoptoconverter worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("panoptoconverter worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
