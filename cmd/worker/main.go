// Package main is the Kafka worker that runs queued fine-tune jobs.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/pipeline"
	"github.com/Sandro385/expert-tune/internal/repository"
	"github.com/Sandro385/expert-tune/pkg/database"
	"github.com/Sandro385/expert-tune/pkg/kafka"
	"github.com/Sandro385/expert-tune/pkg/log"
	"github.com/Sandro385/expert-tune/pkg/storage"
)

func main() {
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	database.Init(cfg.Database)

	var uploader pipeline.ArtifactUploader
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.InitMinIO(cfg.MinIO)
		if err != nil {
			log.Fatal("failed to init minio", err)
		}
		uploader = store
	}

	processor := pipeline.NewProcessor(repository.NewFineTuneJobRepository(database.DB), cfg.FineTune, uploader)

	// a signal kills the running training process and the job is recorded as canceled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := kafka.StartConsumer(ctx, cfg.Kafka, processor); err != nil {
		log.Fatal("kafka consumer stopped", err)
	}
	log.Info("worker stopped")
}
