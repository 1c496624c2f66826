package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/infra/config"
)

// Producer wraps a Sarama producer. Async mode fires and forgets; sync mode
// waits for the leader to acknowledge each message.
type Producer struct {
	async   sarama.AsyncProducer
	sync    sarama.SyncProducer
	logger  *zap.Logger
	cfg     config.KafkaSettings
	errChan chan error
	done    chan struct{}
}

func newSaramaConfig(cfg config.KafkaSettings) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.ClientID = "acara-auth"

	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Errors = true
	// SyncProducer refuses to start without success reporting
	saramaConfig.Producer.Return.Successes = !cfg.Async

	if cfg.Async {
		saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
		saramaConfig.Producer.Flush.Messages = 100
	}

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond
	return saramaConfig
}

// NewProducer dials the configured brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	saramaConfig := newSaramaConfig(cfg)

	p := &Producer{
		logger:  logger,
		cfg:     cfg,
		errChan: make(chan error, 256),
		done:    make(chan struct{}),
	}

	if cfg.Async {
		producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		p.async = producer
		go p.handleErrors()
	} else {
		producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		p.sync = producer
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)

	return p, nil
}

func (p *Producer) handleErrors() {
	for {
		select {
		case err, ok := <-p.async.Errors():
			if !ok {
				return
			}
			if err != nil {
				p.logger.Error("Kafka producer error",
					zap.Error(err.Err),
					zap.String("topic", err.Msg.Topic),
				)
				select {
				case p.errChan <- err.Err:
				default:
					p.logger.Warn("Error channel full, dropping error")
				}
			}
		case <-p.done:
			return
		}
	}
}

// Send hands msg to the broker. In async mode it only blocks until the
// producer accepts the message or ctx ends.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	if p.sync != nil {
		if _, _, err := p.sync.SendMessage(msg); err != nil {
			return fmt.Errorf("send %s: %w", msg.Topic, err)
		}
		return nil
	}

	select {
	case p.async.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Errors exposes asynchronous delivery failures.
func (p *Producer) Errors() <-chan error {
	return p.errChan
}

// Close flushes pending messages and releases the connection.
func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka producer")
	close(p.done)

	var err error
	if p.async != nil {
		err = p.async.Close()
	}
	if p.sync != nil {
		err = p.sync.Close()
	}
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}

	return prefix + eventType
}
