package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/http/controller"
	routes "github.com/mosaiclabs/mosaic-media-service/http/route"
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

	ctrl := controller.NewController(cfg, infra, repo, hub)

	router := routes.SetupRouter(ctrl)

	log.Println("HTTP Server started on :8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
