package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/playfastgg/pingmap/internal/config"
	"github.com/playfastgg/pingmap/internal/httpserver"
	"github.com/playfastgg/pingmap/internal/legacy"
	"github.com/playfastgg/pingmap/internal/ratelimit"
	"github.com/playfastgg/pingmap/internal/store"
)

const (
	legacyCacheTTL  = 5 * time.Minute
	rateLimitWindow = 30 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Local dev convenience; a missing .env is fine.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "listen address (overrides LISTEN_ADDR)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := newLogger(*verbose)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	merger := legacy.NewMerger(log, cfg.LegacyDataDir, cfg.LegacyConsolidatedFile, legacyCacheTTL)
	defer merger.Close()

	limiter := ratelimit.New(cfg.ReportRateLimit, rateLimitWindow)
	defer limiter.Close()

	router := httpserver.NewRouter(cfg, log, db, merger, limiter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go db.RunRetention(ctx, log, clockwork.NewRealClock(), cfg.RetentionDays)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
}
