package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/infra/database"
	redisinfra "github.com/acara/acara-auth/internal/infra/redis"
	"github.com/acara/acara-auth/internal/repository/mongodb"
	postgresrepo "github.com/acara/acara-auth/internal/repository/postgres"
	"github.com/acara/acara-auth/internal/transport/http/handlers"
)

// infrastructure holds the connections shared by the API and the worker.
type infrastructure struct {
	users    port.UserRepository
	sessions port.SessionRepository
	redis    *redisinfra.Client
	health   []handlers.HealthChecker
	closers  []func(context.Context) error
	logger   *zap.Logger
}

func newInfrastructure(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*infrastructure, error) {
	infra := &infrastructure{logger: log}

	if err := infra.openStore(ctx, cfg, log); err != nil {
		infra.close(ctx)
		return nil, err
	}

	client, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		infra.close(ctx)
		return nil, fmt.Errorf("init redis: %w", err)
	}
	infra.redis = client
	infra.health = append(infra.health, client)
	infra.closers = append(infra.closers, func(context.Context) error { return client.Close() })

	return infra, nil
}

func (i *infrastructure) openStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) error {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		i.closers = append(i.closers, func(context.Context) error {
			pool.Close()
			return nil
		})

		if cfg.Database.Migrate {
			if err := database.RunMigrations(ctx, pool, log); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}

		repos := postgresrepo.NewRepositories(pool)
		i.users, i.sessions = repos.Users, repos.Sessions
		i.health = append(i.health, database.PostgresHealth{Pool: pool})
	default:
		client, err := database.NewMongoClient(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("init mongo: %w", err)
		}
		i.closers = append(i.closers, client.Disconnect)

		db := client.Database(cfg.Database.Name)
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("ensure mongo indexes: %w", err)
		}

		repos := mongodb.NewRepositories(db)
		i.users, i.sessions = repos.Users, repos.Sessions
		i.health = append(i.health, database.MongoHealth{Client: client})
	}
	return nil
}

func (i *infrastructure) close(ctx context.Context) {
	for idx := len(i.closers) - 1; idx >= 0; idx-- {
		if err := i.closers[idx](ctx); err != nil {
			i.logger.Warn("close connection", zap.Error(err))
		}
	}
	i.closers = nil
}
