// Package dgraphadapter implements the StorageAdapter interface against
// Dgraph, reusing core/persistence.DgraphClient's retry-on-connect gRPC
// wrapper around dgo for the connection and mutate/query mechanics.
// Node/link/entity records are stored as JSON blobs via SetJson
// mutations, generalized from an older memory-node schema to the
// engine's own node/link/entity schema, including tolerant V1/V2 energy
// decoding and JSON-string overlay maps.
package dgraphadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgraph-io/dgo/v230/protos/api"
	"gopkg.in/yaml.v3"

	"github.com/EchoCog/echocore/core/persistence"
	"github.com/EchoCog/echocore/internal/adapter"
	"github.com/EchoCog/echocore/internal/graph"
)

// Adapter is a Dgraph-backed StorageAdapter.
type Adapter struct {
	client *persistence.DgraphClient
}

// New wraps an already-connected DgraphClient.
func New(client *persistence.DgraphClient) *Adapter {
	return &Adapter{client: client}
}

// nodeRecord is the wire shape persisted to Dgraph for one node, tolerating
// both V1 `{entity_name: value}` and V2 `{default: value}` energy
// encodings, and overlays serialized as a JSON string column.
type nodeRecord struct {
	UID              string            `json:"uid,omitempty"`
	DType            []string          `json:"dgraph.type,omitempty"`
	NodeID           string            `json:"node_id,omitempty"`
	NodeType         string            `json:"node_type,omitempty"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Energy           map[string]float64 `json:"energy,omitempty"`
	LogWeight        float64           `json:"log_weight,omitempty"`
	LogWeightOverlays string           `json:"log_weight_overlays,omitempty"`
}

type linkRecord struct {
	UID        string  `json:"uid,omitempty"`
	DType      []string `json:"dgraph.type,omitempty"`
	LinkID     string  `json:"link_id,omitempty"`
	LinkType   string  `json:"link_type,omitempty"`
	SourceID   string  `json:"source_id,omitempty"`
	TargetID   string  `json:"target_id,omitempty"`
	LogWeight  float64 `json:"log_weight,omitempty"`
}

// LoadGraph queries all node and link records and reconstructs a Graph,
// tolerating both energy encodings and a JSON-string overlay column. It
// loads nodes and node-to-node links only; entities are not loaded.
func (a *Adapter) LoadGraph(ctx context.Context, graphID string) (*graph.Graph, error) {
	g := graph.New()

	query := fmt.Sprintf(`{
		nodes(func: eq(graph_id, %q)) @filter(type(Node)) {
			uid node_id node_type name description energy log_weight log_weight_overlays
		}
	}`, graphID)

	resp, err := a.client.Query(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("dgraphadapter: query nodes: %w", err)
	}

	var result struct {
		Nodes []nodeRecord `json:"nodes"`
	}
	if err := json.Unmarshal(resp.Json, &result); err != nil {
		return nil, fmt.Errorf("dgraphadapter: unmarshal nodes: %w", err)
	}

	for _, rec := range result.Nodes {
		n := &graph.Node{
			ID:          rec.NodeID,
			NodeType:    graph.NodeType(rec.NodeType),
			Name:        rec.Name,
			Description: rec.Description,
			E:           adapter.ParseEnergyValue(rec.Energy),
			LogWeight:   rec.LogWeight,
		}
		if rec.LogWeightOverlays != "" {
			var overlays graph.OverlayMap
			if err := json.Unmarshal([]byte(rec.LogWeightOverlays), &overlays); err == nil {
				n.LogWeightOverlay = overlays
			}
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("dgraphadapter: add node %s: %w", n.ID, err)
		}
	}

	linkQuery := fmt.Sprintf(`{
		links(func: eq(graph_id, %q)) @filter(type(Link)) {
			uid link_id link_type source_id target_id log_weight
		}
	}`, graphID)
	resp, err = a.client.Query(ctx, linkQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("dgraphadapter: query links: %w", err)
	}
	var linkResult struct {
		Links []linkRecord `json:"links"`
	}
	if err := json.Unmarshal(resp.Json, &linkResult); err != nil {
		return nil, fmt.Errorf("dgraphadapter: unmarshal links: %w", err)
	}
	for _, rec := range linkResult.Links {
		err := g.AddLink(&graph.Link{
			ID: rec.LinkID, SourceID: rec.SourceID, SourceKind: graph.EndpointNode,
			TargetID: rec.TargetID, TargetKind: graph.EndpointNode,
			LinkType: graph.LinkType(rec.LinkType), LogWeight: rec.LogWeight,
		})
		if err != nil {
			// Duplicate-on-load is tolerated per the graph container contract.
			continue
		}
	}

	return g, nil
}

// UpdateNodeEnergy persists a single node's live energy via an upsert
// mutation (fire-and-forget from the engine's perspective, ).
func (a *Adapter) UpdateNodeEnergy(ctx context.Context, node *graph.Node) error {
	overlays, err := json.Marshal(node.LogWeightOverlay)
	if err != nil {
		return fmt.Errorf("dgraphadapter: marshal overlays: %w", err)
	}
	rec := nodeRecord{
		NodeID: node.ID, Energy: map[string]float64{"default": node.E},
		LogWeight: node.LogWeight, LogWeightOverlays: string(overlays),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("dgraphadapter: marshal node: %w", err)
	}
	_, err = a.client.Mutate(ctx, &api.Mutation{SetJson: data, CommitNow: true})
	return err
}

// UpdateLinkWeight persists a link's current log_weight.
func (a *Adapter) UpdateLinkWeight(ctx context.Context, link *graph.Link) error {
	rec := linkRecord{LinkID: link.ID, LogWeight: link.LogWeight}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("dgraphadapter: marshal link: %w", err)
	}
	_, err = a.client.Mutate(ctx, &api.Mutation{SetJson: data, CommitNow: true})
	return err
}

// PersistSubentities writes every entity's current membership state.
func (a *Adapter) PersistSubentities(ctx context.Context, g *graph.Graph) error {
	for _, ent := range g.AllEntities() {
		data, err := json.Marshal(ent)
		if err != nil {
			return fmt.Errorf("dgraphadapter: marshal entity %s: %w", ent.ID, err)
		}
		if _, err := a.client.Mutate(ctx, &api.Mutation{SetJson: data, CommitNow: true}); err != nil {
			return fmt.Errorf("dgraphadapter: persist entity %s: %w", ent.ID, err)
		}
	}
	return nil
}

// BootstrapFunctionalEntities reads a YAML seed listing and wires
// BELONGS_TO links by keyword matching.
func (a *Adapter) BootstrapFunctionalEntities(_ context.Context, g *graph.Graph, configPath string) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("dgraphadapter: read bootstrap config: %w", err)
	}
	var seeds []adapter.FunctionalEntitySeed
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return fmt.Errorf("dgraphadapter: parse bootstrap config: %w", err)
	}
	return adapter.MatchKeywords(g, seeds)
}
