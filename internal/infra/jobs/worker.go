package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/infra/logger"
)

// ActivationSender delivers activation emails.
type ActivationSender interface {
	SendActivation(ctx context.Context, notice domain.ActivationNotice) error
}

// SessionSweeper removes expired sessions.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// DeliveryRecorder counts email outcomes. Optional.
type DeliveryRecorder interface {
	RecordEmail(outcome string)
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpt asynq.RedisClientOpt
	Settings config.JobsSettings
	Sender   ActivationSender
	// Sweeper is nil under the jwt strategy.
	Sweeper  SessionSweeper
	Recorder DeliveryRecorder
	Logger   *zap.Logger
}

// Worker wraps the asynq server and the sweep scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *zap.Logger
}

// NewWorker registers handlers and, when a sweeper is configured, the periodic sweep.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Sender == nil {
		return nil, errors.New("worker: activation sender is required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	srv := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: cfg.Settings.Concurrency,
		Queues: map[string]int{
			cfg.Settings.Queue: 1,
		},
		Logger:   newAsynqLogger(log),
		LogLevel: asynq.WarnLevel,
	})

	handlers := &Handlers{sender: cfg.Sender, sweeper: cfg.Sweeper, recorder: cfg.Recorder, log: log}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskActivationEmail, handlers.HandleActivationEmail)

	var scheduler *asynq.Scheduler
	if cfg.Sweeper != nil && cfg.Settings.SweepInterval > 0 {
		mux.HandleFunc(TaskSessionSweep, handlers.HandleSessionSweep)
		scheduler = asynq.NewScheduler(cfg.RedisOpt, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   newAsynqLogger(log),
			LogLevel: asynq.WarnLevel,
		})
		spec := fmt.Sprintf("@every %s", cfg.Settings.SweepInterval)
		if _, err := scheduler.Register(spec, NewSessionSweepTask(), asynq.Queue(cfg.Settings.Queue), asynq.MaxRetry(0)); err != nil {
			return nil, fmt.Errorf("register session sweep: %w", err)
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: log}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if err := w.server.Start(w.mux); err != nil {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return fmt.Errorf("start worker: %w", err)
	}
	w.logger.Info("job worker started")

	<-ctx.Done()

	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("job worker stopped")
	return nil
}

// Handlers executes queued tasks.
type Handlers struct {
	sender   ActivationSender
	sweeper  SessionSweeper
	recorder DeliveryRecorder
	log      *zap.Logger
}

// NewHandlers constructs task handlers outside of a Worker.
func NewHandlers(sender ActivationSender, sweeper SessionSweeper, recorder DeliveryRecorder, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{sender: sender, sweeper: sweeper, recorder: recorder, log: log}
}

// HandleActivationEmail sends one activation email. Malformed payloads are not retried.
func (h *Handlers) HandleActivationEmail(ctx context.Context, t *asynq.Task) error {
	var payload ActivationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.Error("discarding malformed activation task", zap.Error(err))
		return fmt.Errorf("decode activation payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Email == "" || payload.Code == "" {
		return fmt.Errorf("activation payload incomplete: %w", asynq.SkipRetry)
	}

	if err := h.sender.SendActivation(ctx, payload.Notice()); err != nil {
		h.record("error")
		h.log.Warn("activation email failed",
			zap.String("user_id", payload.UserID),
			zap.String("email", logger.MaskEmail(payload.Email)),
			zap.Error(err),
		)
		return err
	}
	h.record("success")
	return nil
}

// HandleSessionSweep deletes expired sessions.
func (h *Handlers) HandleSessionSweep(ctx context.Context, _ *asynq.Task) error {
	if h.sweeper == nil {
		return nil
	}
	removed, err := h.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		h.log.Info("expired sessions swept", zap.Int64("removed", removed))
	}
	return nil
}

func (h *Handlers) record(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordEmail(outcome)
	}
}

// asynqLogger routes asynq's internal logging through zap.
type asynqLogger struct {
	log *zap.SugaredLogger
}

func newAsynqLogger(log *zap.Logger) asynqLogger {
	return asynqLogger{log: log.Named("asynq").Sugar()}
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(args...) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(args...) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(args...) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(args...) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(args...) }
