// Package supabaseadapter implements the StorageAdapter interface against
// Supabase, grounded on core/deeptreeecho/supabase_persistence.go's
// client.From(table).Upsert/Select().Execute() pattern (the supabase-go +
// postgrest-go combination) — generalized here from persisted-memory rows
// to the engine's node/link/entity rows, including the same tolerant
// V1/V2 energy decoding and JSON-string overlay column as dgraphadapter.
package supabaseadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"gopkg.in/yaml.v3"

	"github.com/EchoCog/echocore/internal/adapter"
	"github.com/EchoCog/echocore/internal/graph"
)

// Adapter is a Supabase-backed StorageAdapter.
type Adapter struct {
	client *supabase.Client
}

// New wraps an already-constructed supabase-go client.
func New(client *supabase.Client) *Adapter {
	return &Adapter{client: client}
}

// NewFromEnv builds a client from SUPABASE_URL/SUPABASE_KEY.
func NewFromEnv() (*Adapter, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_KEY")
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabaseadapter: SUPABASE_URL and SUPABASE_KEY must be set")
	}
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("supabaseadapter: new client: %w", err)
	}
	return New(client), nil
}

type nodeRow struct {
	ID                string             `json:"id"`
	GraphID           string             `json:"graph_id"`
	NodeType          string             `json:"node_type"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	Energy            map[string]float64 `json:"energy"`
	LogWeight         float64            `json:"log_weight"`
	LogWeightOverlays string             `json:"log_weight_overlays"`
}

type linkRow struct {
	ID        string  `json:"id"`
	GraphID   string  `json:"graph_id"`
	LinkType  string  `json:"link_type"`
	SourceID  string  `json:"source_id"`
	TargetID  string  `json:"target_id"`
	LogWeight float64 `json:"log_weight"`
}

// LoadGraph selects every node/link row for graphID and reconstructs a
// Graph, tolerating both V1 and V2 energy encodings. It loads nodes and
// node-to-node links only; entities are not loaded.
func (a *Adapter) LoadGraph(_ context.Context, graphID string) (*graph.Graph, error) {
	g := graph.New()

	var nodeRows []nodeRow
	data, _, err := a.client.From("nodes").
		Select("*", "", false).
		Eq("graph_id", graphID).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabaseadapter: select nodes: %w", err)
	}
	if err := json.Unmarshal(data, &nodeRows); err != nil {
		return nil, fmt.Errorf("supabaseadapter: unmarshal nodes: %w", err)
	}
	for _, row := range nodeRows {
		n := &graph.Node{
			ID: row.ID, NodeType: graph.NodeType(row.NodeType),
			Name: row.Name, Description: row.Description,
			E: adapter.ParseEnergyValue(row.Energy), LogWeight: row.LogWeight,
		}
		if row.LogWeightOverlays != "" {
			var overlays graph.OverlayMap
			if err := json.Unmarshal([]byte(row.LogWeightOverlays), &overlays); err == nil {
				n.LogWeightOverlay = overlays
			}
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("supabaseadapter: add node %s: %w", n.ID, err)
		}
	}

	var linkRows []linkRow
	data, _, err = a.client.From("links").
		Select("*", "", false).
		Eq("graph_id", graphID).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabaseadapter: select links: %w", err)
	}
	if err := json.Unmarshal(data, &linkRows); err != nil {
		return nil, fmt.Errorf("supabaseadapter: unmarshal links: %w", err)
	}
	for _, row := range linkRows {
		err := g.AddLink(&graph.Link{
			ID: row.ID, SourceID: row.SourceID, SourceKind: graph.EndpointNode,
			TargetID: row.TargetID, TargetKind: graph.EndpointNode,
			LinkType: graph.LinkType(row.LinkType), LogWeight: row.LogWeight,
		})
		if err != nil {
			continue // duplicate-on-load tolerated
		}
	}
	return g, nil
}

// UpdateNodeEnergy upserts the node's current energy/weight/overlay state.
func (a *Adapter) UpdateNodeEnergy(_ context.Context, node *graph.Node) error {
	overlays, err := json.Marshal(node.LogWeightOverlay)
	if err != nil {
		return fmt.Errorf("supabaseadapter: marshal overlays: %w", err)
	}
	row := nodeRow{
		ID: node.ID, Energy: map[string]float64{"default": node.E},
		LogWeight: node.LogWeight, LogWeightOverlays: string(overlays),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("supabaseadapter: marshal node: %w", err)
	}
	_, _, err = a.client.From("nodes").Upsert(data, "id", "", "").Execute()
	return err
}

// UpdateLinkWeight upserts a link's current log_weight.
func (a *Adapter) UpdateLinkWeight(_ context.Context, link *graph.Link) error {
	row := linkRow{ID: link.ID, LogWeight: link.LogWeight}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("supabaseadapter: marshal link: %w", err)
	}
	_, _, err = a.client.From("links").Upsert(data, "id", "", "").Execute()
	return err
}

// PersistSubentities upserts every entity's current state.
func (a *Adapter) PersistSubentities(_ context.Context, g *graph.Graph) error {
	for _, ent := range g.AllEntities() {
		data, err := json.Marshal(ent)
		if err != nil {
			return fmt.Errorf("supabaseadapter: marshal entity %s: %w", ent.ID, err)
		}
		if _, _, err := a.client.From("entities").Upsert(data, "id", "", "").Execute(); err != nil {
			return fmt.Errorf("supabaseadapter: persist entity %s: %w", ent.ID, err)
		}
	}
	return nil
}

// BootstrapFunctionalEntities reads a YAML seed listing and wires
// BELONGS_TO links by keyword matching.
func (a *Adapter) BootstrapFunctionalEntities(_ context.Context, g *graph.Graph, configPath string) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("supabaseadapter: read bootstrap config: %w", err)
	}
	var seeds []adapter.FunctionalEntitySeed
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return fmt.Errorf("supabaseadapter: parse bootstrap config: %w", err)
	}
	return adapter.MatchKeywords(g, seeds)
}
