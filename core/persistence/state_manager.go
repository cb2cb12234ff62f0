package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CheckpointManager persists local crash-recovery state for one agent's
// engine runtime, independent of the external StorageAdapter — the graph
// itself stays durable in Dgraph/Supabase, but frame_id/rho/safety-state
// are cheap to resume locally without a full LoadGraph round trip after a
// restart. Atomic write-then-rename and backup/restore generalize an
// older thought/goal/emotion snapshot to the engine's tick_frame
// runtime fields.
type CheckpointManager struct {
	mu           sync.RWMutex
	statePath    string
	autoSave     bool
	saveInterval time.Duration
	stopChan     chan struct{}
}

// AgentCheckpoint is the resumable runtime snapshot for one agent.
type AgentCheckpoint struct {
	Version     string    `json:"version"`
	AgentID     string    `json:"agent_id"`
	StartedAt   time.Time `json:"started_at"`
	LastSaved   time.Time `json:"last_saved"`
	FrameID     uint64    `json:"frame_id"`
	Rho         float64   `json:"rho"`
	SafetyState string    `json:"safety_state"`
	NodesActive int       `json:"nodes_active"`
	NodesTotal  int       `json:"nodes_total"`
}

// SnapshotFunc produces the current checkpoint on demand; StartAutoSave
// calls it on every tick of the save interval.
type SnapshotFunc func() AgentCheckpoint

// NewCheckpointManager creates a checkpoint manager rooted at statePath.
func NewCheckpointManager(statePath string, autoSave bool, saveInterval time.Duration) *CheckpointManager {
	return &CheckpointManager{
		statePath:    statePath,
		autoSave:     autoSave,
		saveInterval: saveInterval,
		stopChan:     make(chan struct{}),
	}
}

// Initialize loads an existing checkpoint or creates a fresh one for agentID.
func (cm *CheckpointManager) Initialize(agentID string) (*AgentCheckpoint, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cp, err := cm.loadState()
	if err != nil {
		cp = &AgentCheckpoint{
			Version:   "1",
			AgentID:   agentID,
			StartedAt: time.Now(),
		}
	}
	return cp, nil
}

// SaveState atomically writes cp to disk (write to a temp file, then rename).
func (cm *CheckpointManager) SaveState(cp *AgentCheckpoint) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cp.LastSaved = time.Now()
	if cp.Version == "" {
		cp.Version = "1"
	}

	dir := filepath.Dir(cm.statePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("persistence: create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal checkpoint: %w", err)
	}

	tempPath := cm.statePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("persistence: write checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, cm.statePath); err != nil {
		return fmt.Errorf("persistence: rename checkpoint file: %w", err)
	}
	return nil
}

// LoadState loads the checkpoint from disk.
func (cm *CheckpointManager) LoadState() (*AgentCheckpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.loadState()
}

func (cm *CheckpointManager) loadState() (*AgentCheckpoint, error) {
	data, err := os.ReadFile(cm.statePath)
	if err != nil {
		return nil, fmt.Errorf("persistence: read checkpoint file: %w", err)
	}
	var cp AgentCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// StartAutoSave runs SaveState(snapshot()) on every saveInterval tick until
// Stop is called. No-op if autoSave is false.
func (cm *CheckpointManager) StartAutoSave(snapshot SnapshotFunc) {
	if !cm.autoSave {
		return
	}
	go cm.autoSaveLoop(snapshot)
}

func (cm *CheckpointManager) autoSaveLoop(snapshot SnapshotFunc) {
	ticker := time.NewTicker(cm.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cp := snapshot()
			_ = cm.SaveState(&cp)
		case <-cm.stopChan:
			return
		}
	}
}

// Stop halts the auto-save loop.
func (cm *CheckpointManager) Stop() {
	close(cm.stopChan)
}

// CreateBackup copies the current checkpoint file to a timestamped backup.
func (cm *CheckpointManager) CreateBackup() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	data, err := os.ReadFile(cm.statePath)
	if err != nil {
		return fmt.Errorf("persistence: read checkpoint for backup: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := fmt.Sprintf("%s.backup_%s", cm.statePath, timestamp)
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("persistence: write backup: %w", err)
	}
	return nil
}

// RestoreFromBackup replaces the live checkpoint with a previously taken backup.
func (cm *CheckpointManager) RestoreFromBackup(backupPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("persistence: read backup: %w", err)
	}

	var cp AgentCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("persistence: backup file is corrupted: %w", err)
	}

	if err := os.WriteFile(cm.statePath, data, 0644); err != nil {
		return fmt.Errorf("persistence: restore backup: %w", err)
	}
	return nil
}

// GetStateInfo returns basic metadata about the checkpoint file. It loads
// and parses the file to build that metadata.
func (cm *CheckpointManager) GetStateInfo() (map[string]interface{}, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	info := make(map[string]interface{})
	fileInfo, err := os.Stat(cm.statePath)
	if err != nil {
		info["exists"] = false
		return info, nil
	}

	info["exists"] = true
	info["size"] = fileInfo.Size()
	info["modified"] = fileInfo.ModTime()
	info["path"] = cm.statePath

	if cp, err := cm.loadState(); err == nil {
		info["version"] = cp.Version
		info["agent_id"] = cp.AgentID
		info["last_saved"] = cp.LastSaved
		info["frame_id"] = cp.FrameID
	}
	return info, nil
}
