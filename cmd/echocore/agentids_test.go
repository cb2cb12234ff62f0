package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDsForSingleAgentIsDeterministic(t *testing.T) {
	ids := agentIDsFor(1, "demo")
	require.Len(t, ids, 1)
	assert.Equal(t, "demo-agent", ids[0])
}

func TestAgentIDsForMultipleAgentsAreUniqueAndPrefixed(t *testing.T) {
	ids := agentIDsFor(4, "demo")
	require.Len(t, ids, 4)

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.Contains(t, id, "demo-agent-")
		assert.False(t, seen[id], "expected unique agent id, got duplicate %s", id)
		seen[id] = true
	}
}

func TestCheckpointPathJoinsDirAndAgent(t *testing.T) {
	assert.Equal(t, "./state/foo.json", checkpointPath("./state", "foo"))
}

func TestLoadRuntimeConfigDefaultsWhenNoPathGiven(t *testing.T) {
	orig := runConfigPath
	runConfigPath = ""
	defer func() { runConfigPath = orig }()

	cfg, err := loadRuntimeConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestBuildStorageAdapterNoneReturnsNil(t *testing.T) {
	orig := storageBackend
	storageBackend = "none"
	defer func() { storageBackend = orig }()

	adapter, err := buildStorageAdapter()
	require.NoError(t, err)
	assert.Nil(t, adapter)
}

func TestBuildStorageAdapterUnknownBackendErrors(t *testing.T) {
	orig := storageBackend
	storageBackend = "carrier-pigeon"
	defer func() { storageBackend = orig }()

	_, err := buildStorageAdapter()
	assert.Error(t, err)
}
