package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/orbitcast/broadcaster/internal/broadcaster"
	"github.com/orbitcast/broadcaster/internal/config"
	"github.com/orbitcast/broadcaster/internal/playlist"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log.Info("broadcaster starting",
		"width", cfg.Width,
		"height", cfg.Height,
		"asset_dir", cfg.AssetDir,
		"multimedia_dir", cfg.MultimediaDir,
	)

	// PLAY_AND_DELETE / VIDEO_CONTENT is the default a fresh playlist
	// starts with; a command front-end can change either policy at
	// runtime via the Playlist's setters.
	pl := playlist.New(playlist.PlayAndDelete, playlist.VideoContent)

	runner := broadcaster.New(log, cfg, pl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("broadcaster exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("broadcaster stopped")
}
