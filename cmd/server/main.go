package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/auth"
	"github.com/PortNumber53/readflash/backend/internal/billing"
	"github.com/PortNumber53/readflash/backend/internal/chat"
	"github.com/PortNumber53/readflash/backend/internal/config"
	"github.com/PortNumber53/readflash/backend/internal/freeread"
	"github.com/PortNumber53/readflash/backend/internal/gemini"
	"github.com/PortNumber53/readflash/backend/internal/handlers"
	"github.com/PortNumber53/readflash/backend/internal/httpserver"
	"github.com/PortNumber53/readflash/backend/internal/logger"
	"github.com/PortNumber53/readflash/backend/internal/migrations"
	"github.com/PortNumber53/readflash/backend/internal/sheets"
	"github.com/PortNumber53/readflash/backend/internal/store"
	"github.com/PortNumber53/readflash/backend/internal/stripe"
	"github.com/PortNumber53/readflash/backend/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	log.Info("database configured", logger.DSNFields("primary", cfg.DatabaseURL)...)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrationsWithDirtyFix(db, log); err != nil {
		return fmt.Errorf("apply database migrations: %w", err)
	}

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := goredis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	st, err := store.New(db)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	loc, err := time.LoadLocation(cfg.FreeRead.Timezone)
	if err != nil {
		return fmt.Errorf("load free read timezone: %w", err)
	}

	stripeClient := stripe.NewClient(cfg.Stripe.SecretKey, stripe.WithBaseURL(cfg.Stripe.APIBase))
	catalog := billing.NewCatalog(cfg.Stripe.PriceBasic, cfg.Stripe.PricePremium)
	reconciler := billing.NewReconciler(stripeClient, st, log)

	var refresher *worker.Worker
	if cfg.Refresh.Enabled {
		refresher = worker.New(worker.Config{
			Interval:      cfg.Refresh.Interval,
			BatchSize:     cfg.Refresh.BatchSize,
			MaxConcurrent: cfg.Refresh.MaxConcurrent,
			Grace:         cfg.Refresh.Grace,
		}, st, reconciler, log)
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Store:      st,
		Verifier:   auth.NewVerifier(cfg.JWTSecret),
		Reconciler: reconciler,
		Initiator:  billing.NewInitiator(stripeClient, catalog, log),
		Chat:       chat.NewService(gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.APIBase), st, st, log),
		Leads:      sheets.NewClient(cfg.Sheets.APIKey, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, cfg.Sheets.APIBase),
		Gate:       freeread.NewGate(rdb, cfg.FreeRead.Wait, loc),
		Health: map[string]handlers.Pinger{
			"database": st,
			"redis":    handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		},
		Worker: refresher,
	}, log)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("backend starting", zap.String("addr", cfg.ServerAddress))
	return serve(shutdownCtx, srv, 10*time.Second, log)
}

type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until ctx is done and returns only after Shutdown has
// drained in-flight requests, so deferred closes in the caller run last.
func serve(ctx context.Context, srv lifecycle, grace time.Duration, log *zap.Logger) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB, log *zap.Logger) error {
	err := migrations.Up(db, log)
	if err == nil || !migrations.IsDirty(err) {
		return err
	}

	log.Warn("dirty database detected, attempting to fix", zap.Error(err))
	if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
		log.Error("failed to fix dirty database", zap.Error(fixErr))
		return err
	}
	return migrations.Up(db, log)
}
