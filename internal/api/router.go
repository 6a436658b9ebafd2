package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"github.com/ulule/limiter/v3"

	"github.com/librarium/circulation/internal/api/handler"
	"github.com/librarium/circulation/internal/api/middleware"
	"github.com/librarium/circulation/internal/core/ports"
)

// Deps holds everything the router wires into handlers.
// RateLimiter is optional; when nil, /api is not rate limited. Metrics
// defaults to the global Prometheus registry.
type Deps struct {
	AuthService   ports.AuthService
	BookService   ports.BookService
	BorrowService ports.BorrowService
	UserService   ports.UserService
	HealthChecks  map[string]handler.Pinger
	RateLimiter   *limiter.Limiter
	Metrics       *prometheus.Registry
	JWTSecret     string
	Logger        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(d.Logger))
	registerer, gatherer := prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	if d.Metrics != nil {
		registerer, gatherer = d.Metrics, d.Metrics
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "library",
		Registerer: registerer,
	}))

	// --- Operational endpoints ---
	healthHandler := handler.NewHealthHandler(d.HealthChecks)
	e.GET("/health", healthHandler.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- API ---
	apiGroup := e.Group("/api")
	if d.RateLimiter != nil {
		apiGroup.Use(middleware.RateLimit(d.RateLimiter))
	}

	authRequired := middleware.Auth(d.JWTSecret)
	adminOnly := middleware.RequireAdmin()

	authHandler := handler.NewAuthHandler(d.AuthService)
	apiGroup.POST("/auth/register", authHandler.Register)
	apiGroup.POST("/auth/login", authHandler.Login)

	bookHandler := handler.NewBookHandler(d.BookService)
	apiGroup.GET("/books", bookHandler.List)
	apiGroup.GET("/books/:id", bookHandler.Get)
	apiGroup.GET("/books/:id/cover", bookHandler.Cover)
	apiGroup.POST("/books", bookHandler.Create, authRequired, adminOnly)
	apiGroup.PUT("/books/:id", bookHandler.Update, authRequired, adminOnly)
	apiGroup.DELETE("/books/:id", bookHandler.Delete, authRequired, adminOnly)
	apiGroup.PATCH("/books/:id/cover", bookHandler.UploadCover, authRequired, adminOnly)

	// Self-or-admin checks on /users/:id live in the user service.
	userHandler := handler.NewUserHandler(d.UserService)
	users := apiGroup.Group("/users", authRequired)
	users.GET("", userHandler.List, adminOnly)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	borrowHandler := handler.NewBorrowHandler(d.BorrowService)
	borrows := apiGroup.Group("/borrows", authRequired)
	borrows.POST("", borrowHandler.Create)
	borrows.PATCH("/:id/return", borrowHandler.Return)
	borrows.PATCH("/:id/check-in", borrowHandler.CheckIn, adminOnly)
	borrows.GET("", borrowHandler.List, adminOnly)

	return e
}

// requestLogger emits one zerolog access-log entry per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			evt.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
