package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/infra/jobs"
	"github.com/acara/acara-auth/internal/infra/logger"
	"github.com/acara/acara-auth/internal/infra/telemetry"
	"github.com/acara/acara-auth/internal/usecase"
)

// WorkerProcess runs the job worker on its own, without the HTTP surface.
type WorkerProcess struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	telemetry *telemetry.Provider
	infra     *infrastructure
	worker    *jobs.Worker
}

func NewWorker(ctx context.Context, cfg *config.AppConfig) (*WorkerProcess, error) {
	if !cfg.Jobs.Enabled {
		return nil, errors.New("jobs are disabled, set JOBS_ENABLED=true to run the worker")
	}

	log, err := logger.New(cfg.App.Name+"-worker", cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Attach(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	infra, err := newInfrastructure(ctx, cfg, log)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	p := &WorkerProcess{cfg: cfg, logger: log, telemetry: provider, infra: infra}

	var sessions *usecase.SessionIssuer
	if cfg.Auth.Strategy == config.StrategySession {
		if _, sessions, err = newIssuer(cfg, infra, log); err != nil {
			p.close()
			return nil, err
		}
	}

	mailer, err := newMailer(cfg, log)
	if err != nil {
		p.close()
		return nil, err
	}

	worker, err := newWorker(cfg, activationSender(cfg, mailer, log), sessions, provider.Auth(), log)
	if err != nil {
		p.close()
		return nil, err
	}
	p.worker = worker
	return p, nil
}

// Run blocks until ctx is cancelled.
func (p *WorkerProcess) Run(ctx context.Context) error {
	defer p.close()
	p.logger.Info("starting job worker",
		zap.String("env", p.cfg.App.Env),
		zap.String("queue", p.cfg.Jobs.Queue),
	)
	return p.worker.Run(ctx)
}

func (p *WorkerProcess) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	p.infra.close(ctx)
	if err := p.telemetry.Shutdown(ctx); err != nil {
		p.logger.Warn("shutdown telemetry", zap.Error(err))
	}
	_ = p.logger.Sync()
}
