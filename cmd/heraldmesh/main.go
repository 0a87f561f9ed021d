// heraldmesh is the HTTP transport daemon for a peer-to-peer messaging overlay
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/heraldmesh/heraldmesh/internal/config"
)

var (
	// Set at build time via -ldflags
	version = "dev"

	cfgFile  string
	logLevel string
	logFile  string
	dataDir  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "heraldmesh",
		Short: "HTTP transport for a peer-to-peer messaging overlay",
		Long: `heraldmesh receives overlay messages addressed to the local peer over
HTTP, validates that each claimed sender matches its observed network
origin, and hands decoded envelopes to the routing core. It also pulls
remote peers' self-descriptions when discovery needs them.

Features:
  • Anti-spoofing access checks against the peer directory
  • Per-peer inbound rate limiting
  • Persistent peer directory
  • Bootstrap peer discovery with retries
  • Prometheus metrics`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file path (default: stderr)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "data directory")

	// Add commands
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(peersCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger creates a configured zap logger based on global flags.
func setupLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
	}

	return cfg.Build()
}

// configPaths returns the list of config file paths to search.
func configPaths() []string {
	if cfgFile != "" {
		return []string{cfgFile}
	}
	homeDir, _ := os.UserHomeDir()
	return []string{
		"/etc/heraldmesh/config.toml",
		filepath.Join(homeDir, ".config", "heraldmesh", "config.toml"),
	}
}

// loadConfig loads configuration from the first available config file.
func loadConfig() (*config.Config, error) {
	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	return config.DefaultConfig(), nil
}

// resolveDataDir applies the --data-dir override to the configured value.
func resolveDataDir(cfg *config.Config) string {
	if dataDir != "" {
		return dataDir
	}
	return cfg.Node.DataDir
}
