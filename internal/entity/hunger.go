package entity

import (
	"math"

	"github.com/EchoCog/echocore/internal/graph"
)

// HungerWeights defaults to uniform-ish weighting across the five hungers.
// All five default to 0.2 so no single signal dominates out of the
// box; callers may retune per deployment.
type HungerWeights struct {
	GoalFit      float64
	Integration  float64
	Completeness float64
	Ease         float64
	Novelty      float64
}

// DefaultHungerWeights is the uniform starting point.
func DefaultHungerWeights() HungerWeights {
	return HungerWeights{GoalFit: 0.2, Integration: 0.2, Completeness: 0.2, Ease: 0.2, Novelty: 0.2}
}

// HungerScore is the weighted sum of the five between-entity hungers for
// one candidate entity, given the currently-active entity.
type HungerScore struct {
	EntityID     string
	GoalFit      float64
	Integration  float64
	Completeness float64
	Ease         float64
	Novelty      float64
	Total        float64
}

// ScoreCandidate computes the five hungers for moving from current to
// candidate. relatesToEase is exp(RELATES_TO.log_weight) from
// current→candidate, not normalized across candidates (0 if no such link
// exists yet).
func ScoreCandidate(w HungerWeights, current, candidate *graph.Entity, goalEmbedding []float64, relatesToEase float64) HungerScore {
	goalFit := 0.0
	if goalEmbedding != nil && candidate.CentroidEmbedding != nil {
		goalFit = (graph.CosineSimilarity(candidate.CentroidEmbedding, goalEmbedding) + 1) / 2
	}

	integration := 0.5
	if current != nil && current.CentroidEmbedding != nil && candidate.CentroidEmbedding != nil {
		integration = 1 - (graph.CosineSimilarity(current.CentroidEmbedding, candidate.CentroidEmbedding)+1)/2
	}

	completeness := 1.0
	if total := len(candidate.Members); total > 0 {
		active := 0
		for id, weight := range candidate.Members {
			_ = id
			if weight > 0 {
				active++
			}
		}
		completeness = 1 - float64(active)/float64(total)
	}

	novelty := 1 - graph.Clamp(candidate.EMAActive, 0, 1)

	total := w.GoalFit*goalFit + w.Integration*integration + w.Completeness*completeness +
		w.Ease*relatesToEase + w.Novelty*novelty

	return HungerScore{
		EntityID: candidate.ID, GoalFit: goalFit, Integration: integration,
		Completeness: completeness, Ease: relatesToEase, Novelty: novelty, Total: total,
	}
}

// Softmax converts raw scores into a probability distribution with
// temperature T ( — "argmax (Phase 1) or softmax sample").
func Softmax(scores []float64, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1.0
	}
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	exps := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		exps[i] = math.Exp((s - maxScore) / temperature)
		sum += exps[i]
	}
	if sum == 0 {
		return exps
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// ArgMax returns the index of the candidate with the highest score.
func ArgMax(scores []HungerScore) int {
	best := 0
	for i, s := range scores {
		if s.Total > scores[best].Total {
			best = i
		}
	}
	return best
}

// AllocateStrideBudget distributes a total stride budget across candidate
// entities by softmax over their scores.
func AllocateStrideBudget(scores []HungerScore, totalBudget int, temperature float64) map[string]int {
	raw := make([]float64, len(scores))
	for i, s := range scores {
		raw[i] = s.Total
	}
	weights := Softmax(raw, temperature)

	alloc := make(map[string]int, len(scores))
	remaining := totalBudget
	for i, s := range scores {
		share := int(math.Round(weights[i] * float64(totalBudget)))
		if share > remaining {
			share = remaining
		}
		alloc[s.EntityID] = share
		remaining -= share
	}
	return alloc
}

// BoundaryEndpoints finds the source member with max E and the target
// member maximizing (θ−E)·mean_incoming_ease, the boundary-stride
// endpoint selection.
func BoundaryEndpoints(g *graph.Graph, current, next *graph.Entity, theta map[string]float64) (sourceID, targetID string, ok bool) {
	var bestE = math.Inf(-1)
	for id := range current.Members {
		n, found := g.GetNode(id)
		if !found {
			continue
		}
		if n.E > bestE {
			bestE = n.E
			sourceID = id
		}
	}
	if sourceID == "" {
		return "", "", false
	}

	var bestScore = math.Inf(-1)
	for id := range next.Members {
		n, found := g.GetNode(id)
		if !found {
			continue
		}
		gap := math.Max(0, theta[id]-n.E)
		meanEase := meanIncomingEase(g, id)
		score := gap * meanEase
		if score > bestScore {
			bestScore = score
			targetID = id
		}
	}
	if targetID == "" {
		return "", "", false
	}
	return sourceID, targetID, true
}

func meanIncomingEase(g *graph.Graph, nodeID string) float64 {
	n, ok := g.GetNode(nodeID)
	if !ok || len(n.IncomingLinks) == 0 {
		return 0
	}
	var sum float64
	count := 0
	for _, linkID := range n.IncomingLinks {
		l, ok := g.GetLink(linkID)
		if !ok {
			continue
		}
		sum += graph.Ease(l.LogWeight)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// BoundaryLearn applies the RELATES_TO log_weight update after a boundary
// stride executes: bounded += η·ΔE, bumps the stride count, and
// EMA-updates semantic distance.
func BoundaryLearn(link *graph.Link, eta, deltaE, semanticDistanceSample, emaAlpha, ceiling float64) {
	link.LogWeight = math.Min(ceiling, link.LogWeight+eta*deltaE)
	link.BoundaryStrideCount++
	link.SemanticDistance = emaAlpha*semanticDistanceSample + (1-emaAlpha)*link.SemanticDistance
}
