package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"resizeq/internal/blob"
	"resizeq/internal/models"
	"resizeq/internal/pipeline"
	"resizeq/internal/queue"
	"resizeq/internal/server"
	"resizeq/internal/storage"
	"resizeq/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := models.LoadConfig(configPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(lvl)
	}

	db, err := storage.NewStorage(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}
	defer db.Close()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init blob store")
	}

	producer := queue.NewKafka(cfg.KafkaBroker, cfg.KafkaTopic)
	defer producer.Close()

	pipe := pipeline.New(blobs, producer, db, cfg.MaxUploadBytes, logger)

	// Consumer runs in-process; it shares the blob store and pool handles.
	ctx, cancel := context.WithCancel(context.Background())
	reader := queue.NewReader(cfg.KafkaBroker, cfg.KafkaTopic, "resizeq-worker")
	go func() {
		defer reader.Close()
		worker.New(reader, blobs, db, logger).Run(ctx)
	}()

	srv := server.NewServer(cfg, pipe, db, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func newBlobStore(cfg *models.Config) (blob.Store, error) {
	if cfg.StorageBackend == "gcs" {
		return blob.NewGCS(context.Background(), cfg.GCSBucket)
	}
	return blob.NewLocal(cfg.StoragePath, cfg.PublicBaseURL)
}
