package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heraldmesh/heraldmesh/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configInitCmd())

	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("Configuration\n")
			fmt.Printf("══════════════════════════════════════\n")
			fmt.Printf("\n[node]\n")
			fmt.Printf("  uid               = %s\n", cfg.Node.UID)
			fmt.Printf("  name              = %s\n", cfg.Node.Name)
			fmt.Printf("  data_dir          = %s\n", cfg.Node.DataDir)
			fmt.Printf("\n[transport]\n")
			fmt.Printf("  listen_addr       = %s\n", cfg.Transport.ListenAddr)
			fmt.Printf("  reception_path    = %s\n", cfg.Transport.ReceptionPath)
			fmt.Printf("  metrics_port      = %d\n", cfg.Transport.MetricsPort)
			fmt.Printf("  metrics_bind      = %s\n", cfg.Transport.MetricsBind)
			fmt.Printf("\n[discovery]\n")
			fmt.Printf("  bootstrap_peers   = %s\n", strings.Join(cfg.Discovery.BootstrapPeers, ", "))
			fmt.Printf("  pull_interval     = %s\n", cfg.Discovery.PullInterval)
			fmt.Printf("  pull_attempts     = %d\n", cfg.Discovery.PullAttempts)
			fmt.Printf("\n[limits]\n")
			fmt.Printf("  messages_per_second = %g\n", cfg.Limits.MessagesPerSecond)
			fmt.Printf("  burst             = %d\n", cfg.Limits.Burst)
			fmt.Printf("\n[logging]\n")
			fmt.Printf("  level             = %s\n", cfg.Logging.Level)
			fmt.Printf("  file              = %s\n", cfg.Logging.File)
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()

			var cfgPath string
			if cfgFile != "" {
				cfgPath = cfgFile
			} else {
				homeDir, _ := os.UserHomeDir()
				cfgPath = filepath.Join(homeDir, ".config", "heraldmesh", "config.toml")
			}

			if err := cfg.Save(cfgPath); err != nil {
				return err
			}

			fmt.Printf("Created configuration file: %s\n", cfgPath)
			return nil
		},
	}
}
