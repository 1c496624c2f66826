package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/infra/jobs"
	kafkainfra "github.com/acara/acara-auth/internal/infra/kafka"
	"github.com/acara/acara-auth/internal/infra/logger"
	"github.com/acara/acara-auth/internal/infra/mail"
	"github.com/acara/acara-auth/internal/infra/security"
	"github.com/acara/acara-auth/internal/infra/telemetry"
	redisrepo "github.com/acara/acara-auth/internal/repository/redis"
	"github.com/acara/acara-auth/internal/transport/http/middleware"
	"github.com/acara/acara-auth/internal/transport/http/routes"
	"github.com/acara/acara-auth/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application is the API process: HTTP server, optional metrics server and
// optional embedded job worker.
type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	telemetry *telemetry.Provider
	infra     *infrastructure
	worker    *jobs.Worker
	closers   []func(context.Context) error
}

// New connects to every backing service and builds the HTTP engine.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Name, cfg.App.Env)
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

	a := &Application{cfg: cfg, logger: log, telemetry: provider, infra: infra}
	if err := a.wire(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire() error {
	cfg, log := a.cfg, a.logger

	hasher, err := newHasher(cfg.Argon2)
	if err != nil {
		return err
	}

	issuer, sessions, err := newIssuer(cfg, a.infra, log)
	if err != nil {
		return err
	}

	events := a.newEventPublisher()

	mailer, err := newMailer(cfg, log)
	if err != nil {
		return err
	}

	var notifier port.ActivationNotifier
	switch {
	case mailer == nil:
		notifier = mail.NewLogNotifier(cfg.App.ClientHost, log)
	case cfg.Jobs.Enabled:
		client := jobs.NewClient(jobs.RedisOpt(cfg.Redis), cfg.Jobs, log)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		notifier = client
	default:
		inline := mail.NewNotifier(mailer, mail.WithDeliveryRecorder(a.telemetry.Auth()))
		a.closers = append(a.closers, inline.Close)
		notifier = inline
	}

	if cfg.Jobs.Enabled && cfg.Jobs.EmbeddedWorker {
		worker, err := newWorker(cfg, activationSender(cfg, mailer, log), sessions, a.telemetry.Auth(), log)
		if err != nil {
			return err
		}
		a.worker = worker
	}

	auth := usecase.NewAuthService(a.infra.users, hasher, issuer, events, log)
	registration := usecase.NewRegistrationService(a.infra.users, hasher,
		security.NewPasswordPolicy(cfg.Password.MinStrength), notifier, events, log)

	if err := a.telemetry.Registry().Register(a.infra.redis.Collector()); err != nil {
		return fmt.Errorf("register redis pool metrics: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: a.telemetry.Registry(),
	})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	rateLimitStore := redisrepo.NewRateLimitRepository(a.infra.redis.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix + ":rate-limit",
		TTL:       2 * longestWindow(cfg.RateLimit),
	})

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		Services: routes.ServiceSet{
			Auth:         auth,
			Registration: registration,
		},
		HTTPMetrics:  httpMetrics,
		Outcomes:     a.telemetry.Auth(),
		HealthChecks: a.infra.health,
	}
	if !a.separateMetricsServer() {
		deps.MetricsHandler = a.telemetry.Handler()
	}

	engine, err := routes.Register(deps)
	if err != nil {
		return fmt.Errorf("init routes: %w", err)
	}
	a.engine = engine

	log.Info("application wired",
		zap.String("database", cfg.Database.Driver),
		zap.String("credential_strategy", cfg.Auth.Strategy),
		zap.Bool("mail", cfg.Mail.Enabled),
		zap.Bool("jobs", cfg.Jobs.Enabled),
		zap.Bool("embedded_worker", a.worker != nil),
	)
	return nil
}

func (a *Application) newEventPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger
	if !cfg.Kafka.Enabled {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.closers = append(a.closers, func(context.Context) error { return producer.Close() })

	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

func (a *Application) separateMetricsServer() bool {
	port := a.cfg.Telemetry.MetricsPort
	return port > 0 && port != a.cfg.App.Port
}

// Run serves until ctx is cancelled or a component fails, then shuts
// everything down.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)
	g.Go(func() error { return serve(gctx, srv) })

	if a.separateMetricsServer() {
		metricsSrv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.Telemetry.MetricsPort),
			Handler:           a.telemetry.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.logger.Info("starting metrics server", zap.String("address", metricsSrv.Addr))
		g.Go(func() error { return serve(gctx, metricsSrv) })
	}

	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(gctx) })
	}

	return g.Wait()
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("run server %s: %w", srv.Addr, err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server %s: %w", srv.Addr, err)
		}
		return nil
	}
}

func (a *Application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close component", zap.Error(err))
		}
	}
	if a.infra != nil {
		a.infra.close(ctx)
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newHasher(cfg config.Argon2Settings) (*security.Argon2Hasher, error) {
	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Memory,
		Iterations:  cfg.Iterations,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init argon2: %w", err)
	}
	return hasher, nil
}

// newIssuer builds the configured credential strategy. The session issuer is
// also returned so the worker can sweep expired sessions; it is nil for jwt.
func newIssuer(cfg *config.AppConfig, infra *infrastructure, log *zap.Logger) (port.CredentialIssuer, *usecase.SessionIssuer, error) {
	switch cfg.Auth.Strategy {
	case config.StrategySession:
		cache := redisrepo.NewSessionCacheRepository(infra.redis.Client(), cfg.Redis.KeyPrefix+":session")
		issuer, err := usecase.NewSessionIssuer(infra.sessions, cache, usecase.SessionPolicy{
			ExpiresIn:   cfg.Auth.SessionExpiresIn,
			UpdateAge:   cfg.Auth.SessionUpdateAge,
			MaxLifetime: cfg.Auth.SessionMaxLifetime,
			CacheTTL:    cfg.Auth.SessionCacheTTL,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init session issuer: %w", err)
		}
		return issuer, issuer, nil
	default:
		denylist := redisrepo.NewTokenDenylistRepository(infra.redis.Client(), cfg.Redis.KeyPrefix+":revoked")
		issuer, err := security.NewJWTIssuer(security.JWTConfig{
			Secret: cfg.Auth.Secret,
			Issuer: cfg.App.BaseURL,
			TTL:    cfg.Auth.TokenTTL,
		}, denylist)
		if err != nil {
			return nil, nil, fmt.Errorf("init jwt issuer: %w", err)
		}
		return issuer, nil, nil
	}
}

// newMailer returns nil when mail delivery is disabled.
func newMailer(cfg *config.AppConfig, log *zap.Logger) (*mail.Mailer, error) {
	if !cfg.Mail.Enabled {
		return nil, nil
	}

	transport, err := mail.NewSMTPTransport(cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("init smtp transport: %w", err)
	}
	mailer, err := mail.NewMailer(transport, cfg.Mail, cfg.App.ClientHost, log)
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}
	return mailer, nil
}

// activationSender picks what the worker delivers queued emails with.
func activationSender(cfg *config.AppConfig, mailer *mail.Mailer, log *zap.Logger) jobs.ActivationSender {
	if mailer == nil {
		return mail.NewLogNotifier(cfg.App.ClientHost, log)
	}
	return mailer
}

func newWorker(cfg *config.AppConfig, sender jobs.ActivationSender, sessions *usecase.SessionIssuer, metrics *telemetry.AuthMetrics, log *zap.Logger) (*jobs.Worker, error) {
	wc := jobs.WorkerConfig{
		RedisOpt: jobs.RedisOpt(cfg.Redis),
		Settings: cfg.Jobs,
		Sender:   sender,
		Recorder: metrics,
		Logger:   log,
	}
	if sessions != nil {
		wc.Sweeper = sessions
	}

	worker, err := jobs.NewWorker(wc)
	if err != nil {
		return nil, fmt.Errorf("init job worker: %w", err)
	}
	return worker, nil
}

func longestWindow(cfg config.RateLimitSettings) time.Duration {
	longest := time.Minute
	for _, rule := range []config.RateLimitRule{cfg.API, cfg.Auth, cfg.EmailVerification, cfg.Docs} {
		if rule.Window > longest {
			longest = rule.Window
		}
	}
	return longest
}
