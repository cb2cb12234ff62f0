package diffusion

import "github.com/EchoCog/echocore/internal/graph"

// Frontier is computed once per frame: active is every node at or
// above its own threshold, plus anything that received ΔE this frame;
// shadow is the 1-hop boundary of active minus active itself.
type Frontier struct {
	Active map[string]struct{}
	Shadow map[string]struct{}
}

// ComputeFrontier builds the frontier from the current node energies
// against the supplied per-node thresholds, unioned with the set of nodes
// that received ΔE this frame (stimulusRecipients — empty if none).
func ComputeFrontier(g *graph.Graph, theta map[string]float64, stimulusRecipients map[string]struct{}) Frontier {
	active := make(map[string]struct{})
	for _, n := range g.AllNodes() {
		th, ok := theta[n.ID]
		if !ok {
			th = 0
		}
		if n.E >= th {
			active[n.ID] = struct{}{}
		}
	}
	for id := range stimulusRecipients {
		active[id] = struct{}{}
	}

	shadow := make(map[string]struct{})
	for id := range active {
		for _, l := range g.OutgoingLinks(id) {
			if _, inActive := active[l.TargetID]; !inActive {
				shadow[l.TargetID] = struct{}{}
			}
		}
	}
	return Frontier{Active: active, Shadow: shadow}
}
