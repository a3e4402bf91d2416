package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kairoai/engine/core/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kairo",
	Short: "Kairo - task coordination and autonomous goal execution engine",
	Long: `Kairo classifies free-form requests into worker capabilities, plans them
into dependency-linked subgoals, and executes them under bounded concurrency
with retries, recovery strategies, and per-worker health tracking.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to engine config yaml")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configured yaml (defaults when absent) and installs
// the slog handler at the configured level.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
