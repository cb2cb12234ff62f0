// Package diffusion implements the stride-based energy-transfer mechanics:
// frontier computation, link cost and selection, fanout
// strategy, single-stride execution with staged deltas, and the
// atomic commit + conservation check. The cost-breakdown shape and the
// emotion-gated multiplier pattern are grounded on
// core/deeptreeecho/identity_processor.go's affect-weighted scoring (a
// base score adjusted by monotone multipliers derived from cosine
// similarity between two affect vectors) — generalized here from identity
// scoring to link selection.
package diffusion

import (
	"math"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
)

const epsilon = 1e-9

// CostBreakdown mirrors the stride.exec cost fields.
type CostBreakdown struct {
	Ease         float64
	EaseCost     float64
	GoalAffinity float64
	BaseCost     float64
	ResMult      float64
	ResScore     float64
	CompMult     float64
	EmotionMult  float64
	TotalCost    float64
}

// LinkCost computes the full CostBreakdown for one candidate link from the
// perspective of a stride originating at entityID (empty string means use
// the link's global log_weight). goalEmbedding and entityAffect may be nil.
func LinkCost(cfg *config.Config, g *graph.Graph, l *graph.Link, entityID string, goalEmbedding []float64, entityAffect *graph.Affect) CostBreakdown {
	ease := graph.Ease(l.EffectiveLogWeight(entityID))
	easeCost := 1.0 / math.Max(ease, epsilon)

	goalAffinity := 0.0
	if goalEmbedding != nil {
		if target, ok := g.GetNode(l.TargetID); ok && target.Embedding != nil {
			goalAffinity = graph.CosineSimilarity(target.Embedding, goalEmbedding)
		}
	}

	baseCost := easeCost - goalAffinity

	resMult, resScore, compMult := 1.0, 0.0, 1.0
	if cfg.EmotionGatesEnabled && entityAffect != nil && l.EmotionVector != nil {
		cos := graph.CosineSimilarity(
			[]float64{entityAffect.Valence, entityAffect.Arousal},
			[]float64{l.EmotionVector.Valence, l.EmotionVector.Arousal},
		)
		resScore = cos
		// Aligned affect (cos > 0) is attractive: resonance multiplier drops
		// below 1 as alignment grows, per cfg.ResLambda's strength.
		resMult = 1.0 - cfg.ResLambda*math.Max(0, cos)

		intensityGate := graph.Clamp(entityAffect.Arousal, 0, 1)
		contextGate := graph.Clamp(l.EmotionVector.Magnitude(), 0, 1)
		compMult = 1.0 - cfg.CompLambda*math.Max(0, -cos)*intensityGate*contextGate
	}
	emotionMult := resMult * compMult
	totalCost := baseCost * emotionMult

	return CostBreakdown{
		Ease:         ease,
		EaseCost:     easeCost,
		GoalAffinity: goalAffinity,
		BaseCost:     baseCost,
		ResMult:      resMult,
		ResScore:     resScore,
		CompMult:     compMult,
		EmotionMult:  emotionMult,
		TotalCost:    totalCost,
	}
}

// SelectBestLink chooses the argmin-cost link from candidates (already
// pruned by fanout strategy). Returns nil, zero-value if candidates is
// empty.
func SelectBestLink(cfg *config.Config, g *graph.Graph, candidates []*graph.Link, entityID string, goalEmbedding []float64, entityAffect *graph.Affect) (*graph.Link, CostBreakdown) {
	var best *graph.Link
	var bestCost CostBreakdown
	lowest := math.Inf(1)
	for _, l := range candidates {
		c := LinkCost(cfg, g, l, entityID, goalEmbedding, entityAffect)
		if c.TotalCost < lowest {
			lowest = c.TotalCost
			best = l
			bestCost = c
		}
	}
	return best, bestCost
}
