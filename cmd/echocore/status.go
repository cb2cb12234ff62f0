package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/EchoCog/echocore/core/persistence"
)

var statusStateDir string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last known checkpoint for every agent in state-dir",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusStateDir, "state-dir", "./echocore-state", "directory containing per-agent checkpoint files")
}

func runStatus(cmd *cobra.Command, args []string) error {
	entries, err := os.ReadDir(statusStateDir)
	if err != nil {
		return fmt.Errorf("echocore: read state dir: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Agent", "Frame", "Rho", "Safety", "Active/Total", "Last Saved"})

	found := 0
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		agentID := strings.TrimSuffix(ent.Name(), ".json")
		path := filepath.Join(statusStateDir, ent.Name())

		cm := persistence.NewCheckpointManager(path, false, 0)
		cp, err := cm.LoadState()
		if err != nil {
			table.Append([]string{agentID, "-", "-", "-", "-", "unreadable: " + err.Error()})
			continue
		}

		found++
		table.Append([]string{
			cp.AgentID,
			fmt.Sprintf("%d", cp.FrameID),
			fmt.Sprintf("%.4f", cp.Rho),
			cp.SafetyState,
			fmt.Sprintf("%d/%d", cp.NodesActive, cp.NodesTotal),
			cp.LastSaved.Format("2006-01-02 15:04:05"),
		})
	}

	if found == 0 {
		fmt.Fprintln(os.Stdout, "no agent checkpoints found in", statusStateDir)
		return nil
	}

	table.Render()
	return nil
}
