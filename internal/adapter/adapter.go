// Package adapter defines the storage-adapter boundary the engine
// consumes but never implements: graph load/bootstrap and
// fire-and-forget persistence of energy/weight/subentity state. Concrete
// adapters live in sibling packages (dgraphadapter, supabaseadapter).
package adapter

import (
	"context"

	"github.com/EchoCog/echocore/internal/graph"
)

// FunctionalEntitySeed is one entry from the bootstrap YAML listing.
type FunctionalEntitySeed struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// StorageAdapter is the external interface the engine calls outside the
// frame, or via non-blocking persistence that never blocks a frame. Implementations are assumed to tolerate concurrent calls.
type StorageAdapter interface {
	// LoadGraph returns the stored graph, tolerating both V1 and V2 energy
	// encodings and a JSON-string log_weight_overlays column. The dgraph
	// and supabase adapters load nodes and node-to-node links only, not
	// entities.
	LoadGraph(ctx context.Context, graphID string) (*graph.Graph, error)

	UpdateNodeEnergy(ctx context.Context, node *graph.Node) error
	UpdateLinkWeight(ctx context.Context, link *graph.Link) error
	PersistSubentities(ctx context.Context, g *graph.Graph) error

	// BootstrapFunctionalEntities reads a YAML listing of seed entities
	// and wires BELONGS_TO(node→entity) links by matching keywords
	// against node name+description.
	BootstrapFunctionalEntities(ctx context.Context, g *graph.Graph, configPath string) error
}

// ParseEnergyValue tolerates both the V1 `{entity_name: value}` encoding
// (extract the first value as scalar E) and the V2 `{default: value}`
// encoding.
func ParseEnergyValue(raw map[string]float64) float64 {
	if v, ok := raw["default"]; ok {
		return v
	}
	for _, v := range raw {
		return v
	}
	return 0
}
