package logger

import (
	"context"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// base is the process logger WithContext derives from.
var base atomic.Pointer[zap.Logger]

// New builds the service logger and makes it the base for WithContext.
// Production gets JSON output, everything else the colored console encoder.
func New(service, env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !strings.EqualFold(env, "production") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lg, err := cfg.Build(zap.Fields(
		zap.String("service", service),
		zap.String("env", env),
	))
	if err != nil {
		return nil, err
	}
	base.Store(lg)
	return lg, nil
}

// ReplaceBase swaps the logger WithContext derives from and returns a func
// restoring the previous one.
func ReplaceBase(lg *zap.Logger) func() {
	prev := base.Swap(lg)
	return func() { base.Store(prev) }
}

// WithContext returns the base logger carrying the request and trace ids
// stored on ctx. Before New runs it returns a no-op logger.
func WithContext(ctx context.Context) *zap.Logger {
	lg := base.Load()
	if lg == nil {
		return zap.NewNop()
	}
	if ctx == nil {
		return lg
	}

	fields := make([]zap.Field, 0, 2)
	if id, ok := ctx.Value(RequestIDKey{}).(string); ok && id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctx.Value(TraceIDKey{}).(string); ok && id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	return lg.With(fields...)
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// TraceIDKey is used to store the active trace identifier on the context.
type TraceIDKey struct{}

// MaskEmail keeps up to three leading characters and the domain:
// john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***"
	}
	if len(local) > 3 {
		local = local[:3]
	}
	return local + "***@" + domain
}

// MaskIP keeps the network part: two IPv4 octets or four IPv6 groups.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "***"
	}
	if addr.Is4() || addr.Is4In6() {
		octets := addr.Unmap().As4()
		return strconv.Itoa(int(octets[0])) + "." + strconv.Itoa(int(octets[1])) + ".*.*"
	}
	groups := strings.Split(addr.StringExpanded(), ":")
	return strings.Join(groups[:4], ":") + ":*:*:*:*"
}

// MaskSecret shows two characters at each end of codes and tokens.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
