package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/directory"
)

func peersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List known peers",
		Long:  "List peers persisted in the local directory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := directory.OpenStore(resolveDataDir(cfg), zap.NewNop())
			if err != nil {
				return fmt.Errorf("opening peer store: %w", err)
			}
			defer store.Close()

			peers, err := store.LoadPeers()
			if err != nil {
				return err
			}

			if len(peers) == 0 {
				fmt.Println("No peers known yet. Peers are learned from bootstrap pulls and inbound messages.")
				return nil
			}

			fmt.Printf("%-38s %-20s %-22s %s\n", "UID", "NAME", "HOST:PORT", "PATH")
			for _, p := range peers {
				fmt.Printf("%-38s %-20s %-22s %s\n",
					p.UID, p.Name,
					fmt.Sprintf("%s:%d", p.Access.Host, p.Access.Port),
					p.Access.Path)
			}
			return nil
		},
	}
}
