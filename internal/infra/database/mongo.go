package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/infra/config"
)

// NewMongoClient connects to cfg.URL and verifies the primary is reachable.
func NewMongoClient(ctx context.Context, cfg config.DatabaseSettings, log *zap.Logger) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URL).SetAppName("acara-auth")
	if cfg.MaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.MinConns))
	}
	if cfg.MaxConnIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.MaxConnIdleTime)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
		opts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Info("connected to mongo", zap.String("database", cfg.Name))
	return client, nil
}

// MongoHealth adapts a client to the readiness probe.
type MongoHealth struct {
	Client *mongo.Client
}

func (h MongoHealth) Name() string { return "mongo" }

func (h MongoHealth) HealthCheck(ctx context.Context) error {
	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}
