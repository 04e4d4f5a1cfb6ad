package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rarora2025/pollit/internal/cache"
	"github.com/rarora2025/pollit/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cache.Open(config.CachePath())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer db.Close()

		s, err := db.Stats()
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		fmt.Printf("Cache: %s\n", s.Path)
		fmt.Printf("Articles: %d\n", s.Articles)
		if !s.FetchedAt.IsZero() {
			fmt.Printf("Fetched: %s\n", s.FetchedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Printf("Size: %s\n", formatBytes(s.SizeBytes))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the cached article batch",
	Long:  "Delete the cached snapshot so the next launch fetches fresh articles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cache.Open(config.CachePath())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer db.Close()

		if err := db.Clear(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
