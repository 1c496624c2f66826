package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/infra/config"
)

const namespace = "acara"

// Outcome labels recorded by AuthMetrics.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Provider owns the metrics registry and, when enabled, the tracer provider.
type Provider struct {
	registry *prometheus.Registry
	auth     *AuthMetrics
	tracer   *sdktrace.TracerProvider
}

// Attach builds the registry and optionally starts OTLP tracing.
func Attach(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	auth, err := NewAuthMetrics(registry)
	if err != nil {
		return nil, err
	}

	p := &Provider{registry: registry, auth: auth}

	if cfg.Telemetry.TracingEnabled {
		tp, err := newTracerProvider(ctx, cfg.Telemetry, logger)
		if err != nil {
			return nil, err
		}
		p.tracer = tp
	}

	return p, nil
}

// Registry is where HTTP and domain collectors are registered.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Auth exposes counters for registration, activation and login outcomes.
func (p *Provider) Auth() *AuthMetrics {
	if p == nil {
		return nil
	}
	return p.auth
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracer == nil {
		return nil
	}
	return shutdownTracer(ctx, p.tracer)
}

// AuthMetrics counts auth operations by outcome.
type AuthMetrics struct {
	operations *prometheus.CounterVec
	emails     *prometheus.CounterVec
}

// NewAuthMetrics registers the auth collectors with reg.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	operations, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "operations_total",
		Help:      "Auth operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})
	if err != nil {
		return nil, err
	}

	emails, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mail",
		Name:      "activation_emails_total",
		Help:      "Activation emails partitioned by delivery outcome.",
	}, []string{"outcome"})
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{operations: operations, emails: emails}, nil
}

// Record increments the counter for operation with the given outcome.
func (m *AuthMetrics) Record(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordEmail counts an activation email delivery attempt.
func (m *AuthMetrics) RecordEmail(outcome string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(outcome).Inc()
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
	}
	return vec, nil
}
