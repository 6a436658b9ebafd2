// @title                       Library Circulation API
// @version                     1.0
// @description                 Borrowing and returning books with a single-holder availability gate.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/librarium/circulation/docs"
	"github.com/librarium/circulation/internal/api"
	"github.com/librarium/circulation/internal/api/handler"
	"github.com/librarium/circulation/internal/core/service"
	"github.com/librarium/circulation/internal/infrastructure/config"
	mongodb "github.com/librarium/circulation/internal/infrastructure/db/mongo"
	redisdb "github.com/librarium/circulation/internal/infrastructure/db/redis"
	"github.com/librarium/circulation/internal/infrastructure/queue"
	"github.com/librarium/circulation/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		// The logger is not configured yet.
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "circulation",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	rateLimiter, err := redisdb.NewRateLimiter(rdb, cfg.RateLimit)
	if err != nil {
		return err
	}

	// --- Repositories and collaborators ---
	users := mongodb.NewUserRepository(db)
	books := mongodb.NewBookRepository(db)
	borrows := mongodb.NewBorrowRepository(db)
	gate := mongodb.NewAvailabilityGate(db)

	retrier := queue.NewReleaseRetrier(cfg.Circulation.ReleaseWorkers, gate, borrows, logger.Component("release_retrier"))
	retrier.Start(ctx)

	reconciler := queue.NewAvailabilityReconciler(books, borrows, gate,
		cfg.Circulation.ReconcileInterval,
		cfg.Circulation.ReconcileGrace,
		cfg.Circulation.ReconcileBatch,
		logger.Component("availability_reconciler"))
	go reconciler.Run(ctx)

	sweeper := queue.NewOverdueSweeper(borrows,
		cfg.Circulation.OverdueSweepInterval,
		cfg.Circulation.OverdueSweepBatch,
		logger.Component("overdue_sweeper"))
	go sweeper.Run(ctx)

	// --- Services ---
	authService := service.NewAuthService(users, cfg.JWTSecret, cfg.TokenTTL)
	bookService := service.NewBookService(books, mongodb.NewCoverStore(db), logger.Component("book_service"))
	userService := service.NewUserService(users, borrows, logger.Component("user_service"))
	borrowService := service.NewBorrowService(service.BorrowServiceDeps{
		Borrows:     borrows,
		Users:       users,
		Books:       books,
		Gate:        gate,
		Retrier:     retrier,
		Idempotency: redisdb.NewIdempotencyStore(rdb),
		Logger:      logger.Component("borrow_service"),
	})

	if cfg.Admin.Email != "" {
		admin, err := authService.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return err
		}
		log.Info().Str("user_id", admin.ID).Str("email", admin.Email).Msg("admin account ready")
	}

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		AuthService:   authService,
		BookService:   bookService,
		BorrowService: borrowService,
		UserService:   userService,
		HealthChecks: map[string]handler.Pinger{
			"mongodb": mongodb.NewPinger(db),
			"redis":   redisdb.NewPinger(rdb),
		},
		RateLimiter: rateLimiter,
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
