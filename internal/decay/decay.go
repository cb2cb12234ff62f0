// Package decay implements per-frame activation decay on the fast
// clock and per-link/per-node weight decay on a slow cadence, both
// type-dependent, with optional consolidation/resistance modulators.
package decay

import (
	"math"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
)

// ConsolidationMax and ResistanceMax bound the two optional modulators.
// Both default off — Consolidate/Resist are no-ops unless the
// caller opts in via Options.
const (
	ConsolidationMax = 3.0
	ResistanceMax    = 3.0
)

// Options toggles the optional enrichments, default off per SPEC_FULL .
type Options struct {
	ConsolidationEnabled bool
	ResistanceEnabled    bool
}

// Result is returned by Tick and mirrors the decay.tick event payload.
type Result struct {
	DeltaE       float64
	NodesDecayed int
	EnergyBefore float64
	EnergyAfter  float64
}

// Tick applies one frame of activation decay to every node in g. rateOverride,
// when non-nil, is the controller's effective decay rate ( — "rate_eff
// = clamp(effective_delta_E provided by controller...) if provided, else
// base × type_multiplier[type]"). dt is the frame's physics delta-time.
func Tick(g *graph.Graph, cfg *config.Config, dt float64, rateOverride *float64, opts Options) Result {
	var res Result
	for _, n := range g.AllNodes() {
		res.EnergyBefore += n.E

		rate := effectiveRate(cfg, n.NodeType, rateOverride)

		// Consolidation and resistance both slow decay by dividing the
		// rate, rather than literally raising the decay factor to a power
		// — doing the latter makes decay FASTER as c_total grows for any
		// factor in (0,1), the opposite of "slower when important".
		if opts.ConsolidationEnabled {
			rate = rate / (1 + consolidation(n))
		}
		if opts.ResistanceEnabled {
			rate = rate / resistance(g, n)
		}

		before := n.E
		n.E = math.Max(cfg.EnergyFloor, n.E*math.Exp(-rate*dt))
		if before != n.E {
			res.NodesDecayed++
		}
		res.DeltaE += before - n.E
		res.EnergyAfter += n.E
	}
	return res
}

func effectiveRate(cfg *config.Config, nt graph.NodeType, rateOverride *float64) float64 {
	if rateOverride != nil {
		return graph.Clamp(*rateOverride, cfg.ActivationDecayMin, cfg.ActivationDecayMax)
	}
	mult, ok := cfg.DecayTypeMultiplier[string(nt)]
	if !ok {
		mult = 1.0
	}
	return cfg.ActivationDecayBase * mult
}

// consolidation derives c_total in [0, ConsolidationMax] from three
// triggers: retrieval EMA, affect magnitude, and the node's Consolidated
// flag. Each trigger contributes at most 1.0 and the sum is clamped to
// ConsolidationMax. Goal links are not inspected.
func consolidation(n *graph.Node) float64 {
	c := 0.0
	c += graph.Clamp(n.EMATraceSeats, 0, 1)
	if n.Affect != nil {
		c += graph.Clamp(n.Affect.Magnitude(), 0, 1)
	}
	if n.Consolidated {
		c += 1.0
	}
	return graph.Clamp(c, 0, ConsolidationMax)
}

// resistance derives r_i in [1.0, ResistanceMax] from degree centrality and
// type class, the two signals it can derive purely from the node itself.
// Cross-entity bridging is not included.
func resistance(g *graph.Graph, n *graph.Node) float64 {
	degree := len(n.OutgoingLinks) + len(n.IncomingLinks)
	r := 1.0 + math.Log1p(float64(degree))/4.0
	if n.NodeType == graph.NodeTypeGoal || n.NodeType == graph.NodeTypePerson {
		r += 0.5
	}
	return graph.Clamp(r, 1.0, ResistanceMax)
}

// WeightDecay runs on the slow cadence (every N frames, caller-driven) and
// is independent of the criticality controller.
func WeightDecay(g *graph.Graph, cfg *config.Config, dt float64) (nodesDecayed, linksDecayed int) {
	for _, n := range g.AllNodes() {
		mult, ok := cfg.DecayTypeMultiplier[string(n.NodeType)]
		if !ok {
			mult = 1.0
		}
		before := n.LogWeight
		n.LogWeight = math.Max(cfg.WeightFloor, n.LogWeight-cfg.WeightDecayBase*mult*dt)
		if before != n.LogWeight {
			nodesDecayed++
		}
	}
	for _, t := range []graph.LinkType{graph.LinkAssociation, graph.LinkCausal, graph.LinkTemporal, graph.LinkBelongsTo, graph.LinkRelatesTo} {
		for _, l := range g.GetLinksByType(t) {
			before := l.LogWeight
			l.LogWeight = math.Max(cfg.WeightFloor, l.LogWeight-cfg.WeightDecayBase*dt)
			if before != l.LogWeight {
				linksDecayed++
			}
		}
	}
	return nodesDecayed, linksDecayed
}

// ToEvent converts a Result (plus the slow-cadence weight-decay counts, 0 if
// this frame didn't run one) into the decay.tick payload.
func (r Result) ToEvent(deltaW float64, weightNodes, weightLinks int) events.DecayTickPayload {
	return events.DecayTickPayload{
		DeltaE:       r.DeltaE,
		DeltaW:       deltaW,
		NodesDecayed: r.NodesDecayed,
		Energy: events.EnergyBeforeAfterLost{
			Before: r.EnergyBefore,
			After:  r.EnergyAfter,
			Lost:   r.EnergyBefore - r.EnergyAfter,
		},
		WeightDecay: events.WeightDecayCounts{Nodes: weightNodes, Links: weightLinks},
	}
}
