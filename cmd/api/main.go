package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/acara/acara-auth/internal/infra/app"
	"github.com/acara/acara-auth/internal/infra/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("acara-auth: %v", err)
	}
}

func run() error {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	return api.Run(ctx)
}
