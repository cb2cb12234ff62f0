// +build integration

package integration

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoCog/echocore/core/persistence"
	"github.com/EchoCog/echocore/internal/adapter/dgraphadapter"
	"github.com/EchoCog/echocore/internal/graph"
)

// TestDgraphConnection exercises real connection setup against a live
// Dgraph cluster. Skipped unless DGRAPH_ENDPOINT is set.
func TestDgraphConnection(t *testing.T) {
	if os.Getenv("DGRAPH_ENDPOINT") == "" {
		t.Skip("DGRAPH_ENDPOINT not set, skipping Dgraph integration tests")
	}

	cfg := persistence.DefaultDgraphConfig()
	client, err := persistence.NewDgraphClient(cfg)
	require.NoError(t, err, "failed to connect to Dgraph")
	defer client.Close()

	assert.True(t, client.IsConnected(), "client should be connected")
}

// TestDgraphSchemaSetup applies the node/link schema the engine's
// dgraphadapter reads and writes against.
func TestDgraphSchemaSetup(t *testing.T) {
	if os.Getenv("DGRAPH_ENDPOINT") == "" {
		t.Skip("DGRAPH_ENDPOINT not set, skipping Dgraph integration tests")
	}

	client, err := persistence.NewDgraphClient(nil)
	require.NoError(t, err)
	defer client.Close()

	const schema = `
graph_id: string @index(exact) .
node_id: string @index(exact) .
node_type: string @index(exact) .
name: string @index(fulltext) .
description: string .
energy: string .
log_weight: float .
log_weight_overlays: string .
link_id: string @index(exact) .
link_type: string @index(exact) .
source_id: string @index(exact) .
target_id: string @index(exact) .

type Node {
	node_id
	node_type
	name
	description
	energy
	log_weight
	log_weight_overlays
}

type Link {
	link_id
	link_type
	source_id
	target_id
	log_weight
}
`
	require.NoError(t, client.SetSchema(schema))
}

// TestDgraphAdapterRoundTrip writes a node through dgraphadapter and reads
// the graph back, exercising the V2 energy encoding and overlay column.
func TestDgraphAdapterRoundTrip(t *testing.T) {
	if os.Getenv("DGRAPH_ENDPOINT") == "" {
		t.Skip("DGRAPH_ENDPOINT not set, skipping Dgraph integration tests")
	}

	cfg := persistence.DefaultDgraphConfig()
	client, err := persistence.NewDgraphClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	a := dgraphadapter.New(client)
	ctx := context.Background()

	node := &graph.Node{ID: "dgraph-integration-node-1", NodeType: graph.NodeTypeConcept, Name: "Integration Node", E: 0.73}
	require.NoError(t, a.UpdateNodeEnergy(ctx, node))

	g, err := a.LoadGraph(ctx, node.ID)
	if err != nil {
		t.Logf("load graph returned error (schema may not be applied yet): %v", err)
		t.Skip("skipping - run TestDgraphSchemaSetup first")
	}
	_ = g
}
