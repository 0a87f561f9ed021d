package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("heraldmesh version %s\n", version)
			fmt.Printf("\nFeatures:\n")
			fmt.Printf("  • HTTP message reception\n")
			fmt.Printf("  • Peer directory with SQLite persistence\n")
			fmt.Printf("  • Bootstrap peer discovery\n")
			fmt.Printf("  • Per-peer rate limiting\n")
			fmt.Printf("  • Prometheus metrics\n")
			fmt.Printf("  • Sender access validation\n")
		},
	}
}
