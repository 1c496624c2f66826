package redis

import (
	"context"
	"strconv"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/acara/acara-auth/internal/infra/config"
)

func settingsFor(t *testing.T, server *miniredis.Miniredis) config.RedisSettings {
	t.Helper()
	port, err := strconv.Atoi(server.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}
	return config.RedisSettings{Host: server.Host(), Port: port}
}

func TestNewClient_PingsAndReportsHealth(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewClient(context.Background(), settingsFor(t, server), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if client.Name() != "redis" {
		t.Fatalf("unexpected name %q", client.Name())
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}

	server.Close()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected health check to fail once redis is gone")
	}
}

func TestNewClient_FailsWhenUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	cfg := settingsFor(t, server)
	server.Close()

	if _, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected an error for an unreachable server")
	}
}

func TestClient_CollectorExportsPoolStats(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewClient(context.Background(), settingsFor(t, server), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if got := testutil.CollectAndCount(client.Collector()); got != 5 {
		t.Fatalf("expected 5 pool metrics, got %d", got)
	}
}
