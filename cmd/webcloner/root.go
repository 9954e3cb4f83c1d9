package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kononmatsumoto/webcloner/internal/config"
	"github.com/kononmatsumoto/webcloner/observability"
)

var rootCmd = &cobra.Command{
	Use:   "webcloner",
	Short: "Clone the visual design of a web page into a new HTML document",
	Long: `webcloner renders a page in a headless browser, summarizes its design
(colors, navigation, buttons, layout, imagery, text) and asks a language model
to generate a new self-contained document in the same style.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// loadConfig reads configuration and builds the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	level, err := observability.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
