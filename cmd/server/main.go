// Package main is the HTTP and WebSocket server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/dataset"
	"github.com/Sandro385/expert-tune/internal/handler"
	"github.com/Sandro385/expert-tune/internal/pipeline"
	"github.com/Sandro385/expert-tune/internal/repository"
	"github.com/Sandro385/expert-tune/internal/service"
	"github.com/Sandro385/expert-tune/pkg/database"
	"github.com/Sandro385/expert-tune/pkg/es"
	"github.com/Sandro385/expert-tune/pkg/kafka"
	"github.com/Sandro385/expert-tune/pkg/llm"
	"github.com/Sandro385/expert-tune/pkg/log"
	"github.com/Sandro385/expert-tune/pkg/scheduler"
	"github.com/Sandro385/expert-tune/pkg/storage"
	"github.com/Sandro385/expert-tune/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. config and logger
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 2. stores
	database.Init(cfg.Database)
	blacklist := repository.NewMemoryTokenBlacklist()
	if rdb := database.InitRedis(cfg.Database.Redis); rdb != nil {
		blacklist = repository.NewRedisTokenBlacklist(rdb)
	}

	var uploader pipeline.ArtifactUploader
	var linker service.ArtifactLinker
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.InitMinIO(cfg.MinIO)
		if err != nil {
			log.Fatal("failed to init minio", err)
		}
		uploader, linker = store, store
	}

	var indexer service.RecordIndexer
	if cfg.Elasticsearch.Addresses != "" {
		idx, err := es.InitES(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("failed to init elasticsearch", err)
		}
		indexer = idx
	}

	// 3. repositories
	userRepo := repository.NewUserRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	jobRepo := repository.NewFineTuneJobRepository(database.DB)

	// 4. job submission
	var submitter service.JobSubmitter
	var runner *pipeline.LocalRunner
	switch strings.ToLower(cfg.FineTune.Mode) {
	case "kafka":
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		submitter = producer
	case "", "local":
		// jobs of a previous process can never finish
		if n, err := jobRepo.FailUnfinished(context.Background(), "server restarted before the job finished"); err != nil {
			log.Fatal("failed to reset unfinished jobs", err)
		} else if n > 0 {
			log.Warnf("marked %d unfinished fine-tune jobs failed", n)
		}
		runner = pipeline.NewLocalRunner(pipeline.NewProcessor(jobRepo, cfg.FineTune, uploader))
		submitter = runner
	default:
		log.Fatalf("unknown finetune mode %q", cfg.FineTune.Mode)
	}

	// 5. services
	pairing, err := dataset.ParsePairing(cfg.Dataset.Pairing)
	if err != nil {
		log.Fatal("invalid dataset config", err)
	}
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	userService := service.NewUserService(userRepo, blacklist, jwtManager)
	if err := userService.LoadCredentials(context.Background()); err != nil {
		log.Fatal("failed to load credentials", err)
	}
	chatService := service.NewChatService(llm.NewClient(cfg.LLM), messageRepo, cfg.Chat)
	fineTuneService := service.NewFineTuneService(
		messageRepo,
		jobRepo,
		chatService,
		dataset.NewBuilder(cfg.Dataset.Instruction, pairing),
		submitter,
		cfg.Dataset,
		indexer,
		linker,
	)

	sched := scheduler.New()
	if err := sched.Add("credential refresh", cfg.Scheduler.CredentialRefresh, userService.LoadCredentials); err != nil {
		log.Fatal("invalid scheduler config", err)
	}
	sched.Start()
	defer sched.Stop()

	// 6. HTTP
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Services{User: userService, Chat: chatService, FineTune: fineTuneService})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP server shutdown failed: %v", err)
	}

	// running local jobs are killed and recorded as canceled
	if runner != nil {
		runner.Shutdown()
	}
	log.Info("server stopped")
}
