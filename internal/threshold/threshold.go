// Package threshold implements the per-frame activation threshold:
// a criticality-driven base, an optional affect-modulated reduction that
// only ever lowers it, and the controller's global multiplier applied
// last.
package threshold

import (
	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
)

// The affect reduction h is bounded to [0, λ_aff], where λ_aff is
// cfg.AffectiveThresholdLambdaFactor.

// Base computes θ_base = BASE × (1 + CRIT_FACTOR × active/total).
func Base(cfg *config.Config, activeCount, totalCount int) float64 {
	if totalCount == 0 {
		return cfg.BaseThreshold
	}
	frac := float64(activeCount) / float64(totalCount)
	return cfg.BaseThreshold * (1 + cfg.CriticalityFactor*frac)
}

// AffectReduction computes h, the optional affect-modulated reduction
//: h = ‖A‖ · cos(A, E_emo) · clip(‖E_emo‖, 0, 1), clamped to
// [0, λ_aff]. A is the node/entity's own affect; emo is the ambient
// emotional context (e.g. the current entity's affect) being compared
// against. Returns 0 if either vector is absent.
func AffectReduction(cfg *config.Config, a, emo *graph.Affect) float64 {
	if a == nil || emo == nil {
		return 0
	}
	cos := graph.CosineSimilarity([]float64{a.Valence, a.Arousal}, []float64{emo.Valence, emo.Arousal})
	emoMag := graph.Clamp(emo.Magnitude(), 0, 1)
	h := a.Magnitude() * cos * emoMag
	return graph.Clamp(h, 0, cfg.AffectiveThresholdLambdaFactor)
}

// Theta computes the final per-node/per-entity threshold: θ_base minus the
// (non-negative) affect reduction, times the controller's multiplier,
// applied last.
func Theta(cfg *config.Config, activeCount, totalCount int, a, emo *graph.Affect, controllerMultiplier float64) float64 {
	base := Base(cfg, activeCount, totalCount)
	h := AffectReduction(cfg, a, emo)
	theta := base - h
	if theta < 0 {
		theta = 0
	}
	return theta * controllerMultiplier
}

// IsActive reports hard activation: E >= θ.
func IsActive(e, theta float64) bool {
	return e >= theta
}
