package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/EchoCog/echocore/core/persistence"
	"github.com/EchoCog/echocore/internal/adapter"
	"github.com/EchoCog/echocore/internal/api"
	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/engine"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
)

var (
	runAgents     int
	runGraphID    string
	runConfigPath string
	runListen     string
	runStateDir   string
	runSampleRate float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the frame loop for one or more agents",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().IntVar(&runAgents, "agents", 1, "number of independent agent engines to run")
	runCmd.Flags().StringVar(&runGraphID, "graph-id", "default", "graph identifier to load from the storage backend")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to a runtime config file (viper-loaded); empty uses defaults")
	runCmd.Flags().StringVar(&runListen, "listen", ":8090", "address the HTTP/websocket API listens on")
	runCmd.Flags().StringVar(&runStateDir, "state-dir", "./echocore-state", "directory for per-agent crash-recovery checkpoints")
	runCmd.Flags().Float64Var(&runSampleRate, "sample-rate", 1.0, "fraction of non-critical events retained by the emitter")
}

func runRun(cmd *cobra.Command, args []string) error {
	log, err := buildLogger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}

	store, err := buildStorageAdapter()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(runStateDir, 0o755); err != nil {
		return fmt.Errorf("echocore: create state dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := api.New(log)
	grp, gctx := errgroup.WithContext(ctx)

	for _, agentID := range agentIDsFor(runAgents, runGraphID) {
		agentID := agentID

		g, err := loadOrCreateGraph(ctx, store, runGraphID)
		if err != nil {
			return fmt.Errorf("echocore: load graph for agent %s: %w", agentID, err)
		}

		emitter := events.NewEmitter(ctx, log, 1024, runSampleRate)
		if err := emitter.Start(); err != nil {
			return fmt.Errorf("echocore: start emitter for agent %s: %w", agentID, err)
		}

		eng := engine.New(cfg, agentID, g, store, emitter, log, time.Now())
		server.RegisterEngine(eng)
		server.Subscribe(emitter)

		ckpt := persistence.NewCheckpointManager(checkpointPath(runStateDir, agentID), true, 10*time.Second)
		if _, err := ckpt.Initialize(agentID); err != nil {
			return fmt.Errorf("echocore: initialize checkpoint for agent %s: %w", agentID, err)
		}
		ckpt.StartAutoSave(func() persistence.AgentCheckpoint {
			active, total := eng.ActivationCounts()
			return persistence.AgentCheckpoint{
				Version:     "1",
				AgentID:     eng.AgentID(),
				LastSaved:   time.Now(),
				FrameID:     eng.FrameID(),
				Rho:         eng.Rho(),
				SafetyState: eng.SafetyState(),
				NodesActive: active,
				NodesTotal:  total,
			}
		})

		grp.Go(func() error {
			eng.Run(gctx)
			ckpt.Stop()
			return nil
		})
	}

	grp.Go(func() error {
		log.Infow("echocore API listening", "addr", runListen)
		errCh := make(chan error, 1)
		go func() { errCh <- server.Run(runListen) }()
		select {
		case <-gctx.Done():
			return nil
		case err := <-errCh:
			return err
		}
	})

	return grp.Wait()
}

func loadRuntimeConfig() (*config.Config, error) {
	if runConfigPath == "" {
		return config.Defaults(), nil
	}
	return config.Load(runConfigPath)
}

// agentIDsFor names each agent deterministically off graphID when only one
// is requested, and with a random suffix per agent otherwise so concurrent
// agents never collide on a checkpoint path.
func agentIDsFor(n int, graphID string) []string {
	if n <= 1 {
		return []string{graphID + "-agent"}
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-agent-%s", graphID, uuid.NewString()[:8])
	}
	return ids
}

func loadOrCreateGraph(ctx context.Context, store adapter.StorageAdapter, graphID string) (*graph.Graph, error) {
	if store == nil {
		return graph.New(), nil
	}
	return store.LoadGraph(ctx, graphID)
}

func checkpointPath(dir, agentID string) string {
	return dir + "/" + agentID + ".json"
}
