package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/transport/http/handlers"
	"github.com/acara/acara-auth/internal/transport/http/middleware"
)

const (
	apiLimitMessage   = "Too many requests from this IP, please try again later."
	authLimitMessage  = "Too many authentication attempts from this IP, please try again after 15 minutes."
	emailLimitMessage = "Too many email verification requests from this IP, please try again after 1 hour."
	docsLimitMessage  = "Too many requests, please try again later."
)

// AuthService is everything the HTTP layer needs from the login usecase.
type AuthService interface {
	handlers.AuthService
	handlers.UserDirectory
}

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         AuthService
	Registration handlers.RegistrationService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	// HTTPMetrics instruments every request when set.
	HTTPMetrics *middleware.HTTPMetrics
	// Outcomes counts auth operation results when set.
	Outcomes handlers.OutcomeRecorder
	// MetricsHandler serves /metrics on the API port when set.
	MetricsHandler http.Handler
	HealthChecks   []handlers.HealthChecker
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("routes: config is required")
	}
	production := deps.Config.App.IsProduction()
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := handlers.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Config.Telemetry.TracingEnabled {
		r.Use(otelgin.Middleware(deps.Config.Telemetry.ServiceName))
	}
	r.Use(middleware.SecurityHeaders(production))
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}
	if limit := apiLimit(deps); limit != nil {
		r.Use(limit)
	}

	healthHandler := handlers.NewHealthHandler(deps.HealthChecks...)
	r.GET("/", healthHandler.Status)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := r.Group("/api")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth,
			handlers.WithRegistrationService(deps.Services.Registration),
			handlers.WithOutcomeRecorder(deps.Outcomes),
			handlers.WithDevMode(!production),
		)

		authGroup := api.Group("/auth")
		authGroup.GET("/health", healthHandler.Status)
		authHandler.RegisterRoutes(authGroup, handlers.AuthRouteLimits{
			Credential:        limiters(deps, "auth", deps.Config.RateLimit.Auth, authLimitMessage, true),
			EmailVerification: limiters(deps, "email_verification", deps.Config.RateLimit.EmailVerification, emailLimitMessage, false),
		})

		userHandler := handlers.NewUserHandler(deps.Services.Auth, deps.Outcomes, !production)
		usersGroup := api.Group("/users")
		usersGroup.Use(
			middleware.RequireAuth(deps.Services.Auth),
			middleware.RequireRole(domain.RoleAdmin),
		)
		usersGroup.GET("/:id", userHandler.GetUser)
	}

	handlers.RegisterSwagger(r, limiters(deps, "docs", deps.Config.RateLimit.Docs, docsLimitMessage, false)...)

	return r, nil
}

// apiLimit is the catch-all limiter; probes and the metrics scrape are exempt.
func apiLimit(deps Dependencies) gin.HandlerFunc {
	chain := limiters(deps, "api", deps.Config.RateLimit.API, apiLimitMessage, false)
	if len(chain) == 0 {
		return nil
	}
	return chain[0]
}

func limiters(deps Dependencies, name string, cfg config.RateLimitRule, message string, skipSuccessful bool) []gin.HandlerFunc {
	if deps.RateLimiter == nil || !deps.Config.RateLimit.Enabled {
		return nil
	}

	limit := cfg.Limit(deps.Config.App.IsProduction())
	if limit <= 0 || cfg.Window <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:           name,
		Limit:          limit,
		Window:         cfg.Window,
		Identifier:     middleware.ClientIPIdentifier(),
		Message:        message,
		SkipSuccessful: skipSuccessful,
	}
	if name == "api" {
		rule.Skip = middleware.SkipPaths("/", "/healthz", "/readyz", "/metrics", "/api/auth/health")
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
