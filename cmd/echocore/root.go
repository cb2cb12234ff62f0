package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EchoCog/echocore/internal/adapter"
	"github.com/EchoCog/echocore/internal/adapter/dgraphadapter"
	"github.com/EchoCog/echocore/internal/adapter/supabaseadapter"
	"github.com/EchoCog/echocore/core/persistence"
)

var (
	storageBackend string
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "echocore",
	Short: "The consciousness runtime core",
	Long:  "echocore drives one or more per-agent frame-pipeline engines over a weighted directed graph, emitting a typed event stream.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storageBackend, "storage", "none", "storage backend: dgraph, supabase, or none (in-memory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd, bootstrapCmd, statusCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func buildLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("echocore: parse log level: %w", err)
	}
	cfg.Level = level
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("echocore: build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// buildStorageAdapter constructs the StorageAdapter named by --storage, or
// nil for "none" (a fresh in-memory graph with no durable backing).
func buildStorageAdapter() (adapter.StorageAdapter, error) {
	switch storageBackend {
	case "none", "":
		return nil, nil
	case "dgraph":
		client, err := persistence.NewDgraphClient(persistence.DefaultDgraphConfig())
		if err != nil {
			return nil, fmt.Errorf("echocore: connect to dgraph: %w", err)
		}
		return dgraphadapter.New(client), nil
	case "supabase":
		a, err := supabaseadapter.NewFromEnv()
		if err != nil {
			return nil, fmt.Errorf("echocore: build supabase adapter: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("echocore: unknown storage backend %q", storageBackend)
	}
}
