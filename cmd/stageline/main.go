// Command stageline serves plugin-defined request pipelines over HTTP.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/stageline/internal/pkg/config"
)

// Version information set at build time.
var (
	commit = "none"
	date   = "unknown"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "stageline",
		Short: "Staged request pipelines loaded from plugin manifests",
		Long: `stageline serves HTTP routes whose handling runs through a fixed
pipeline of stages: authenticate, authorize, action and render.

Routes are described by plugin manifests discovered on disk. Requests no
plugin claims fall through to the upstream router.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the configuration file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		pluginsCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger and installs it as the default.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
