package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/selenly/selenly-api/internal/config"
	"github.com/selenly/selenly-api/internal/database"
	"github.com/selenly/selenly-api/internal/handler"
	"github.com/selenly/selenly-api/internal/middleware"
	"github.com/selenly/selenly-api/internal/queue"
	"github.com/selenly/selenly-api/internal/repository"
	"github.com/selenly/selenly-api/internal/router"
	"github.com/selenly/selenly-api/internal/service"
	"github.com/selenly/selenly-api/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load() // Load environment config
	log := config.NewLogger(cfg.Env)

	if weak := cfg.InsecureDefaults(); len(weak) > 0 {
		if cfg.IsProd() {
			log.Error("refusing to start with development secrets", "vars", weak)
			os.Exit(1)
		}
		log.Warn("using development secrets", "vars", weak)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		return err
	}
	store := repository.NewStore(db, cfg.DBDriver)

	codec, err := utils.NewTokenCodec(utils.CodecConfig{
		AccessSecret:  []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		Issuer:        "selenly-api",
	})
	if err != nil {
		return err
	}

	opts := service.Options{
		BcryptCost: cfg.BcryptCost,
		ResetTTL:   cfg.ResetTTL,
		VerifyTTL:  cfg.VerifyTTL,
		Logger:     log,
	}
	// Without a broker, one-time tokens are only reachable through
	// EXPOSE_ONE_TIME_TOKENS.
	if cfg.RabbitMQURL != "" {
		pub, err := queue.NewPublisher(cfg.RabbitMQURL, cfg.MailQueue, log)
		if err != nil {
			log.Warn("mail publisher unavailable, continuing without it", "err", err)
		} else {
			defer pub.Close()
			opts.Notifier = pub
		}
	}

	svc, err := service.NewAuthService(store, codec, opts)
	if err != nil {
		return err
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestLogger(log))

	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}
	rdb := newLimiterClient(rlCfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	router.RegisterRoutes(e) // Register application routes
	router.RegisterAuth(e, handler.NewAuthHandler(svc, cfg.ExposeOneTimeTokens), codec, middleware.NewTokenBucket(rlCfg, rdb))
	router.RegisterAdmin(e, handler.NewAdminHandler(svc), codec, store.Users)

	addr := ":" + cfg.Port // Address string with port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newLimiterClient returns the Redis client backing the rate limiter, or nil
// when limiting is off for any reason. A nil client makes NewTokenBucket a
// no-op.
func newLimiterClient(rlCfg config.RateLimitConfig, log *slog.Logger) *redis.Client {
	if !rlCfg.Enabled {
		log.Info("rate limiting disabled")
		return nil
	}
	rc, err := config.LoadRedisConfig()
	if err != nil {
		log.Error("invalid redis config, rate limiting disabled", "err", err)
		return nil
	}
	rdb := config.NewRedisClient(rc)
	if rdb == nil {
		log.Warn("redis unreachable, rate limiting disabled", "addr", rc.Addr)
		return nil
	}
	log.Info("rate limiting enabled", "limit", middleware.DescribeLimit(rlCfg))
	return rdb
}
