package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DriverMongo    = "mongo"
	DriverPostgres = "postgres"

	StrategyJWT     = "jwt"
	StrategySession = "session"

	minSecretLength = 32
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Database  DatabaseSettings  `mapstructure:"database"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Password  PasswordSettings  `mapstructure:"password"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Mail      MailSettings      `mapstructure:"mail"`
	Jobs      JobsSettings      `mapstructure:"jobs"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	CORS      CORSSettings      `mapstructure:"cors"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// BaseURL is the public URL of this service, used as the token issuer.
	BaseURL string `mapstructure:"base_url"`
	// ClientHost is the front-end origin activation links point at.
	ClientHost string `mapstructure:"client_host"`
}

// IsProduction reports whether the service runs with production defaults.
func (a AppSettings) IsProduction() bool {
	return strings.EqualFold(a.Env, EnvProduction)
}

type DatabaseSettings struct {
	Driver            string        `mapstructure:"driver"`
	URL               string        `mapstructure:"url"`
	Name              string        `mapstructure:"name"`
	Migrate           bool          `mapstructure:"migrate"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// Addr returns host:port.
func (r RedisSettings) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaSettings configures the event producer
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type AuthSettings struct {
	Strategy string        `mapstructure:"strategy"`
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	SessionExpiresIn time.Duration `mapstructure:"session_expires_in"`
	SessionUpdateAge time.Duration `mapstructure:"session_update_age"`
	SessionCacheTTL  time.Duration `mapstructure:"session_cache_ttl"`

	// SessionMaxLifetime bounds rolling refreshes, measured from session creation.
	SessionMaxLifetime time.Duration `mapstructure:"session_max_lifetime"`
}

type PasswordSettings struct {
	// MinStrength is the zxcvbn score floor; 0 disables the check.
	MinStrength int `mapstructure:"min_strength"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type MailSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Secure      bool   `mapstructure:"secure"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	From        string `mapstructure:"from"`
}

type JobsSettings struct {
	Enabled        bool          `mapstructure:"enabled"`
	Queue          string        `mapstructure:"queue"`
	Concurrency    int           `mapstructure:"concurrency"`
	MaxRetry       int           `mapstructure:"max_retry"`
	Timeout        time.Duration `mapstructure:"timeout"`
	EmbeddedWorker bool          `mapstructure:"embedded_worker"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type TelemetrySettings struct {
	MetricsPort    int     `mapstructure:"metrics_port"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// RateLimitRule is a sliding window with separate ceilings per environment.
type RateLimitRule struct {
	Window         time.Duration `mapstructure:"window"`
	Max            int           `mapstructure:"max"`
	DevelopmentMax int           `mapstructure:"development_max"`
}

// Limit returns the ceiling applicable to the environment.
func (r RateLimitRule) Limit(production bool) int {
	if production || r.DevelopmentMax <= 0 {
		return r.Max
	}
	return r.DevelopmentMax
}

// RateLimitSettings configures rate limiting windows per route group
type RateLimitSettings struct {
	Enabled           bool          `mapstructure:"enabled"`
	API               RateLimitRule `mapstructure:"api"`
	Auth              RateLimitRule `mapstructure:"auth"`
	EmailVerification RateLimitRule `mapstructure:"email_verification"`
	Docs              RateLimitRule `mapstructure:"docs"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// legacyEnv maps environment names used by earlier deployments onto config keys.
var legacyEnv = map[string]string{
	"auth.secret":          "SECRET",
	"database.url":         "DATABASE_URL",
	"app.client_host":      "CLIENT_HOST",
	"app.base_url":         "BETTER_AUTH_URL",
	"app.env":              "NODE_ENV",
	"cors.allowed_origins": "BETTER_AUTH_TRUSTED_ORIGINS",
	"mail.service_name":    "EMAIL_SMTP_SERVICE_NAME",
	"mail.host":            "EMAIL_SMTP_HOST",
	"mail.port":            "EMAIL_SMTP_PORT",
	"mail.secure":          "EMAIL_SMTP_SECURE",
	"mail.username":        "EMAIL_SMTP_USER",
	"mail.password":        "EMAIL_SMTP_PASS",
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.base_url",
	"app.client_host",
	"database.driver",
	"database.url",
	"database.name",
	"database.migrate",
	"database.connect_timeout",
	"database.max_conns",
	"database.min_conns",
	"database.max_conn_lifetime",
	"database.max_conn_idle_time",
	"database.health_check_period",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.key_prefix",
	"kafka.enabled",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.async",
	"auth.strategy",
	"auth.secret",
	"auth.token_ttl",
	"auth.session_expires_in",
	"auth.session_update_age",
	"auth.session_cache_ttl",
	"auth.session_max_lifetime",
	"password.min_strength",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"mail.enabled",
	"mail.service_name",
	"mail.host",
	"mail.port",
	"mail.secure",
	"mail.username",
	"mail.password",
	"mail.from",
	"jobs.enabled",
	"jobs.queue",
	"jobs.concurrency",
	"jobs.max_retry",
	"jobs.timeout",
	"jobs.embedded_worker",
	"jobs.sweep_interval",
	"telemetry.metrics_port",
	"telemetry.tracing_enabled",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.enabled",
	"rate_limit.api.window",
	"rate_limit.api.max",
	"rate_limit.api.development_max",
	"rate_limit.auth.window",
	"rate_limit.auth.max",
	"rate_limit.auth.development_max",
	"rate_limit.email_verification.window",
	"rate_limit.email_verification.max",
	"rate_limit.email_verification.development_max",
	"rate_limit.docs.window",
	"rate_limit.docs.max",
	"rate_limit.docs.development_max",
	"cors.allowed_origins",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ACARA")

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// comma separated lists arrive as a single element from the environment
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot safely start with.
func (c *AppConfig) Validate() error {
	var errs []error

	if len(c.Auth.Secret) < minSecretLength {
		errs = append(errs, fmt.Errorf("auth.secret must be at least %d bytes", minSecretLength))
	}

	switch c.Auth.Strategy {
	case StrategyJWT:
		if c.Auth.TokenTTL <= 0 {
			errs = append(errs, errors.New("auth.token_ttl must be positive"))
		}
	case StrategySession:
		if c.Auth.SessionExpiresIn <= 0 {
			errs = append(errs, errors.New("auth.session_expires_in must be positive"))
		}
		if c.Auth.SessionUpdateAge <= 0 || c.Auth.SessionUpdateAge > c.Auth.SessionExpiresIn {
			errs = append(errs, errors.New("auth.session_update_age must be positive and not exceed session_expires_in"))
		}
		if c.Auth.SessionMaxLifetime < c.Auth.SessionExpiresIn {
			errs = append(errs, errors.New("auth.session_max_lifetime must not be shorter than session_expires_in"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.strategy %q must be %q or %q", c.Auth.Strategy, StrategyJWT, StrategySession))
	}

	switch c.Database.Driver {
	case DriverMongo:
		if !strings.HasPrefix(c.Database.URL, "mongodb://") && !strings.HasPrefix(c.Database.URL, "mongodb+srv://") {
			errs = append(errs, errors.New("database.url must start with mongodb:// or mongodb+srv://"))
		}
		if strings.TrimSpace(c.Database.Name) == "" {
			errs = append(errs, errors.New("database.name is required for the mongo driver"))
		}
	case DriverPostgres:
		if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
			errs = append(errs, errors.New("database.url must start with postgres:// or postgresql://"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be %q or %q", c.Database.Driver, DriverMongo, DriverPostgres))
	}

	if u, err := url.Parse(c.App.ClientHost); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("app.client_host must be an absolute URL"))
	}

	if c.Mail.Enabled {
		if strings.TrimSpace(c.Mail.Host) == "" {
			errs = append(errs, errors.New("mail.host is required when mail is enabled"))
		}
		if c.Mail.Port <= 0 {
			errs = append(errs, errors.New("mail.port must be positive"))
		}
		if _, err := mail.ParseAddress(c.Mail.Sender()); err != nil {
			errs = append(errs, fmt.Errorf("mail.from: %w", err))
		}
	}

	if c.Password.MinStrength < 0 || c.Password.MinStrength > 4 {
		errs = append(errs, errors.New("password.min_strength must be within 0..4"))
	}

	if c.Argon2.Memory == 0 || c.Argon2.Iterations == 0 || c.Argon2.Parallelism == 0 || c.Argon2.SaltLength == 0 || c.Argon2.KeyLength == 0 {
		errs = append(errs, errors.New("argon2 parameters must be positive"))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Sender returns the From address for outgoing mail, defaulting to the SMTP user.
func (m MailSettings) Sender() string {
	if strings.TrimSpace(m.From) != "" {
		return m.From
	}
	return m.Username
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "acara-auth")
	v.SetDefault("app.env", EnvDevelopment)
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.client_host", "http://localhost:3000")

	v.SetDefault("database.driver", DriverMongo)
	v.SetDefault("database.url", "mongodb://localhost:27017")
	v.SetDefault("database.name", "acara")
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "60m")
	v.SetDefault("database.max_conn_idle_time", "15m")
	v.SetDefault("database.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "acara")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "acara")
	v.SetDefault("kafka.async", true)

	v.SetDefault("auth.strategy", StrategyJWT)
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.session_expires_in", "168h")
	v.SetDefault("auth.session_update_age", "24h")
	v.SetDefault("auth.session_cache_ttl", "5m")
	v.SetDefault("auth.session_max_lifetime", "720h")

	v.SetDefault("password.min_strength", 0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.service_name", "Acara")
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.secure", false)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.queue", "mail")
	v.SetDefault("jobs.concurrency", 5)
	v.SetDefault("jobs.max_retry", 5)
	v.SetDefault("jobs.timeout", "30s")
	v.SetDefault("jobs.embedded_worker", false)
	v.SetDefault("jobs.sweep_interval", "1h")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "acara-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.api.window", "15m")
	v.SetDefault("rate_limit.api.max", 100)
	v.SetDefault("rate_limit.api.development_max", 1000)
	v.SetDefault("rate_limit.auth.window", "15m")
	v.SetDefault("rate_limit.auth.max", 5)
	v.SetDefault("rate_limit.auth.development_max", 50)
	v.SetDefault("rate_limit.email_verification.window", "1h")
	v.SetDefault("rate_limit.email_verification.max", 5)
	v.SetDefault("rate_limit.email_verification.development_max", 30)
	v.SetDefault("rate_limit.docs.window", "15m")
	v.SetDefault("rate_limit.docs.max", 200)
	v.SetDefault("rate_limit.docs.development_max", 2000)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := []string{key, "ACARA_" + envKey, envKey}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
