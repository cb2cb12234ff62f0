package diffusion

import (
	"math"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
)

// StagedDeltas accumulates delta_E per node id across a frame's strides,
// applied atomically at commit time.
type StagedDeltas map[string]float64

// StrideResult carries everything a caller needs to emit stride.exec and
// to feed the link-strengthening classifier, without diffusion
// itself depending on that package.
type StrideResult struct {
	SourceID       string
	TargetID       string
	Link           *graph.Link
	Cost           CostBreakdown
	DeltaE         float64
	Stickiness     float64
	RetainedDeltaE float64
	SourceEBefore  float64
	TargetEBefore  float64
}

// Stickiness derives s_j ∈ [0.1, 1.0] at the target from its type,
// consolidation, and degree centrality: consolidated and
// high-degree (central) targets retain more of the incoming energy.
func Stickiness(g *graph.Graph, target *graph.Node) float64 {
	s := 0.5
	if target.Consolidated {
		s += 0.3
	}
	degree := len(target.OutgoingLinks) + len(target.IncomingLinks)
	s += 0.15 * graph.Clamp(math.Log1p(float64(degree))/4.0, 0, 1)
	switch target.NodeType {
	case graph.NodeTypeGoal, graph.NodeTypePerson:
		s += 0.1
	}
	return graph.Clamp(s, 0.1, 1.0)
}

// Stride executes a single stride from source i over the chosen link,
// staging its effect into staged rather than mutating
// E directly — mutation happens only at atomic commit. dissipated
// accumulates the (1-s)·ΔE lost to stickiness each stride, so the
// conservation check at commit time can net it out.
func Stride(cfg *config.Config, g *graph.Graph, source *graph.Node, link *graph.Link, cost CostBreakdown, alphaTick, dt float64, staged StagedDeltas, dissipated *float64) (StrideResult, bool) {
	target, ok := g.GetNode(link.TargetID)
	if !ok {
		return StrideResult{}, false
	}

	deltaE := source.E * graph.Ease(link.EffectiveLogWeight("")) * alphaTick * dt
	s := Stickiness(g, target)
	retained := s * deltaE

	staged[source.ID] -= deltaE
	staged[target.ID] += retained
	*dissipated += deltaE - retained

	return StrideResult{
		SourceID:       source.ID,
		TargetID:       target.ID,
		Link:           link,
		Cost:           cost,
		DeltaE:         deltaE,
		Stickiness:     s,
		RetainedDeltaE: retained,
		SourceEBefore:  source.E,
		TargetEBefore:  target.E,
	}, true
}

// CommitResult reports the atomic-commit outcome and the conservation
// check.
type CommitResult struct {
	SumDelta       float64
	ConservationOK bool
}

// Commit applies all staged deltas atomically: `E ← max(0, E + delta)` for
// every touched node, then clears staged. The conservation invariant nets
// out the dissipation accumulated by Stride before comparing against
// cfg.TripwireConservationEpsilon — a healthy frame dissipates energy to
// stickiness but must not create or destroy any beyond that.
func Commit(g *graph.Graph, cfg *config.Config, staged StagedDeltas, dissipated float64) CommitResult {
	var sum float64
	for id, d := range staged {
		sum += d
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		n.E = math.Max(0, n.E+d)
	}
	for id := range staged {
		delete(staged, id)
	}
	unaccounted := sum + dissipated
	return CommitResult{
		SumDelta:       sum,
		ConservationOK: math.Abs(unaccounted) <= cfg.TripwireConservationEpsilon,
	}
}
