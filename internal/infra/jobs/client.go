package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/config"
)

// taskEnqueuer is the part of *asynq.Client the notifier needs.
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client queues background work on Redis.
type Client struct {
	client   taskEnqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
	log      *zap.Logger
}

// RedisOpt maps redis settings onto asynq's connection options.
func RedisOpt(cfg config.RedisSettings) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient constructs an asynq-backed client.
func NewClient(redisOpt asynq.RedisClientOpt, cfg config.JobsSettings, log *zap.Logger) *Client {
	return newClient(asynq.NewClient(redisOpt), cfg, log)
}

func newClient(enqueuer taskEnqueuer, cfg config.JobsSettings, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		client:   enqueuer,
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
		timeout:  cfg.Timeout,
		log:      log,
	}
}

// NotifyActivation queues the activation email; delivery happens on a worker.
func (c *Client) NotifyActivation(ctx context.Context, notice domain.ActivationNotice) error {
	task, err := NewActivationEmailTask(notice)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskActivationEmail, err)
	}

	c.log.Debug("activation email queued",
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.String("user_id", notice.UserID),
	)
	return nil
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ port.ActivationNotifier = (*Client)(nil)
