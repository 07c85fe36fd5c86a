package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/playfastgg/pingmap/internal/probe"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	probesURL := flag.String("probes", "", "URL serving the [{region, url}] probe list")
	reportURL := flag.String("report", "", "ingestion endpoint URL")
	game := flag.String("game", "", "game the measurements are attributed to")
	statePath := flag.String("state", defaultStatePath(), "local throttle state file")
	loop := flag.Bool("loop", false, "keep running instead of a single cycle")
	every := flag.Duration("every", time.Minute, "cycle check interval with --loop")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	agent, err := probe.New(&probe.Config{
		Logger:    log,
		ProbesURL: *probesURL,
		ReportURL: *reportURL,
		Game:      *game,
		StatePath: *statePath,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cycle := func() error {
		err := agent.RunCycle(ctx)
		if errors.Is(err, probe.ErrThrottled) {
			return nil
		}
		return err
	}

	if !*loop {
		return cycle()
	}

	// The agent's own 30-minute throttle gates actual reporting; the
	// ticker only decides how often we check.
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	if err := cycle(); err != nil {
		log.Error("cycle failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := cycle(); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Error("cycle failed", "error", err)
			}
		}
	}
}

func defaultStatePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "pingmap", "probe-state.json")
}
