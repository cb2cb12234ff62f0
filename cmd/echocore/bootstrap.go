package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EchoCog/echocore/internal/graph"
)

var (
	bootstrapGraphID string
	bootstrapConfig  string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed functional entities into a graph and exit",
	RunE:  runBootstrap,
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapGraphID, "graph-id", "default", "graph identifier to load and persist")
	bootstrapCmd.Flags().StringVar(&bootstrapConfig, "bootstrap-config", "", "path to the YAML functional-entity seed listing")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	log, err := buildLogger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if bootstrapConfig == "" {
		return fmt.Errorf("echocore: --bootstrap-config is required")
	}

	store, err := buildStorageAdapter()
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("echocore: bootstrap requires --storage dgraph or --storage supabase")
	}

	ctx := context.Background()

	g, err := store.LoadGraph(ctx, bootstrapGraphID)
	if err != nil {
		log.Warnw("no existing graph, bootstrapping fresh", "graph_id", bootstrapGraphID, "err", err)
		g = graph.New()
	}

	if err := store.BootstrapFunctionalEntities(ctx, g, bootstrapConfig); err != nil {
		return fmt.Errorf("echocore: bootstrap functional entities: %w", err)
	}

	if err := store.PersistSubentities(ctx, g); err != nil {
		return fmt.Errorf("echocore: persist bootstrapped entities: %w", err)
	}

	log.Infow("bootstrap complete", "graph_id", bootstrapGraphID, "config", bootstrapConfig)
	return nil
}
