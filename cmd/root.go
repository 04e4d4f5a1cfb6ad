package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig   string
	flagCategory string
	flagRefresh  bool
)

var rootCmd = &cobra.Command{
	Use:   "pollit",
	Short: "Terminal news reader with a poll for every story",
	Long:  "pollit shows a scrollable feed of news articles, each paired with an AI-drafted opinion poll you can vote on without leaving the terminal.",
	RunE:  runTUI,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&flagCategory, "category", "", "start on this category (e.g. technology, sports)")
	rootCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "drop the cached batch and fetch fresh articles")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pollit %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
