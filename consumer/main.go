package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/consumer/worker"
	infraPkg "github.com/mosaiclabs/mosaic-media-service/infra"
	"github.com/mosaiclabs/mosaic-media-service/repository"
	"github.com/mosaiclabs/mosaic-media-service/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra, err := infraPkg.InitInfra(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infra: %v", err)
	}
	repo := repository.InitRepository(infra)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := service.NewHub(infra.Redis, infra.Logger)
	go hub.RunBridge(ctx)

	styleConsumer := worker.NewStyleJobConsumer(
		infra.RabbitMQ.Channel,
		repo.JobRepo,
		repo.AssetRepo,
		infra.Minio,
		infra.StyleProcessor,
		infra.Produce.JobService,
		hub,
		infra.Redis,
		infra.Logger,
		cfg.EnvConfig,
	)
	if err := styleConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start style job consumer")
		log.Fatalf("Failed to start style job consumer: %v", err)
	}

	sweeper := worker.NewSessionSweeper(repo.UploadSessionRepo, infra.Minio, hub, infra.Logger, cfg.EnvConfig)
	go sweeper.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel()

	if err := infra.Logger.Shutdown(context.Background()); err != nil {
		log.Printf("Telemetry shutdown: %v", err)
	}
	infra.Logger.InfoWithContextf(context.Background(), "Consumer exited properly")
}
