package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rarora2025/pollit/internal/api"
	"github.com/rarora2025/pollit/internal/cache"
	"github.com/rarora2025/pollit/internal/category"
	"github.com/rarora2025/pollit/internal/config"
	"github.com/rarora2025/pollit/internal/feed"
	"github.com/rarora2025/pollit/internal/image"
	"github.com/rarora2025/pollit/internal/schedule"
	"github.com/rarora2025/pollit/internal/tui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagCategory != "" {
		c, err := category.Resolve(flagCategory)
		if err != nil {
			return err
		}
		cfg.DefaultCategory = string(c)
	}

	// The terminal belongs to the TUI; logs go to a file or nowhere.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		log = slog.New(slog.NewTextHandler(f, nil))
	}

	db, err := cache.Open(config.CachePath())
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer db.Close()

	if flagRefresh {
		if err := db.Clear(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}

	client := api.New(cfg.Relay(), log)

	ctrl := feed.NewController(feed.Options{
		News:    client,
		Polls:   client,
		Store:   db,
		Images:  image.NewResolver(cfg.Relay()),
		Refresh: schedule.New(log),
		Filter:  feed.Filter{MinDescription: cfg.MinDescriptionChars()},
		Query:   category.Query(cfg.Category()),
		Logger:  log,
	})
	defer ctrl.Close()

	return tui.Run(tui.RunOpts{
		Cfg:        cfg,
		Controller: ctrl,
		Loader:     image.NewLoader(log),
		Version:    version,
	})
}
