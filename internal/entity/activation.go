// Package entity implements per-frame entity activation derived
// from member energies, cohort-relative thresholding with hysteresis,
// flip detection, quality-EMA lifecycle transitions, and the two-scale
// between-entity hunger scoring and boundary stride. The cohort
// rolling-mean/std + hysteresis-band shape is grounded on
// core/echobeats/enhanced_scheduler.go's adaptive-interval smoothing
// (a live value compared against a rolling baseline with a dead band
// before it flips state), generalized here from scheduling intervals to
// entity activation thresholds.
package entity

import (
	"math"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
)

// NormalizedMembership returns each member's weight divided by the sum of
// all member weights, so they sum to 1 over the entity.
func NormalizedMembership(ent *graph.Entity) map[string]float64 {
	var sum float64
	for _, w := range ent.Members {
		sum += w
	}
	norm := make(map[string]float64, len(ent.Members))
	if sum == 0 {
		return norm
	}
	for id, w := range ent.Members {
		norm[id] = w / sum
	}
	return norm
}

// Energy computes E_entity = Σ m̃ · max(0, E_i − θ_i) over normalized
// memberships and per-node thresholds.
func Energy(g *graph.Graph, ent *graph.Entity, theta map[string]float64) float64 {
	norm := NormalizedMembership(ent)
	var e float64
	for id, m := range norm {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		th := theta[id]
		e += m * math.Max(0, n.E-th)
	}
	return e
}

// Cohort is the rolling mean/std of touched entities' energies, used to
// derive the per-entity threshold.
type Cohort struct {
	Mean float64
	Std  float64
}

// ComputeCohort derives the mean/std of the supplied entity energies.
func ComputeCohort(energies []float64) Cohort {
	if len(energies) == 0 {
		return Cohort{}
	}
	var sum float64
	for _, e := range energies {
		sum += e
	}
	mean := sum / float64(len(energies))
	var variance float64
	for _, e := range energies {
		variance += (e - mean) * (e - mean)
	}
	variance /= float64(len(energies))
	return Cohort{Mean: mean, Std: math.Sqrt(variance)}
}

// hysteresisBand is the fractional dead band applied around the cohort
// threshold before a flip is allowed.
const hysteresisBand = 0.1

// Threshold derives θ_entity from the cohort (mean + std), modulated by
// the entity's own quality score, then by the controller multiplier.
func Threshold(cohort Cohort, ent *graph.Entity, controllerMultiplier float64) float64 {
	base := cohort.Mean + cohort.Std
	quality := graph.Clamp(ent.QualityScore(), 0.1, 1.0)
	// Higher quality entities get a slightly lower bar to activate —
	// established entities shouldn't need as much evidence as a new one.
	return base * (1.5 - 0.5*quality) * controllerMultiplier
}

// FlipDirection reports the flip kind, or "" if the entity's active state
// didn't change this frame.
type FlipDirection string

const (
	FlipActivate   FlipDirection = "activate"
	FlipDeactivate FlipDirection = "deactivate"
)

// DetectFlip applies hysteresis around theta and returns the flip
// direction (if any) plus the entity's active state after this frame.
// wasActive is the entity's Active field before this call.
func DetectFlip(ent *graph.Entity, energy, theta float64, wasActive bool) (nowActive bool, flip FlipDirection) {
	upper := theta * (1 + hysteresisBand)
	lower := theta * (1 - hysteresisBand)

	nowActive = wasActive
	switch {
	case !wasActive && energy >= upper:
		nowActive = true
	case wasActive && energy < lower:
		nowActive = false
	}

	if nowActive && !wasActive {
		ent.ActivateStreak++
		ent.DeactivateStreak = 0
		return nowActive, FlipActivate
	}
	if !nowActive && wasActive {
		ent.DeactivateStreak++
		ent.ActivateStreak = 0
		return nowActive, FlipDeactivate
	}
	return nowActive, ""
}

// ActivationLevel buckets energy/theta into the entity's runtime
// activation level label.
func ActivationLevel(energy, theta float64) graph.ActivationLevel {
	if theta <= 0 {
		if energy > 0 {
			return graph.LevelDominant
		}
		return graph.LevelAbsent
	}
	ratio := energy / theta
	switch {
	case ratio >= 2.0:
		return graph.LevelDominant
	case ratio >= 1.2:
		return graph.LevelStrong
	case ratio >= 1.0:
		return graph.LevelModerate
	case ratio >= 0.5:
		return graph.LevelWeak
	default:
		return graph.LevelAbsent
	}
}

// sustainedFramesForPromotion is the entity age, in frames, before a
// promotion can fire; a promotion also needs quality at or above
// qualityPromoteThreshold in the current frame, and no run of high-quality
// frames is tracked. sustainedFramesForDemotion is the number of
// consecutive low-quality frames before an entity is marked for dissolution.
const (
	sustainedFramesForPromotion = 20
	sustainedFramesForDemotion  = 20
	qualityPromoteThreshold     = 0.6
	qualityDissolveThreshold    = 0.15
)

// UpdateQuality folds this frame's activation signal into the entity's
// five quality EMAs. wmPresent,
// traceSeats and formationQuality are 0 when not applicable this frame.
func UpdateQuality(ent *graph.Entity, cfg *config.Config, active bool, coherence, wmPresence, traceSeats, formationQuality float64) {
	alpha := cfg.TraceEMAAlpha
	activeSignal := 0.0
	if active {
		activeSignal = 1.0
	}
	ent.EMAActive = ema(ent.EMAActive, activeSignal, alpha)
	ent.CoherenceEMA = ema(ent.CoherenceEMA, coherence, alpha)
	ent.EMAWMPresence = ema(ent.EMAWMPresence, wmPresence, alpha)
	ent.EMATraceSeats = ema(ent.EMATraceSeats, traceSeats, alpha)
	ent.EMAFormationQuality = ema(ent.EMAFormationQuality, formationQuality, alpha)
}

func ema(prev, sample, alpha float64) float64 {
	return alpha*sample + (1-alpha)*prev
}

// LifecycleTrigger is the reason a transition fired.
type LifecycleTrigger string

const (
	TriggerPromotion   LifecycleTrigger = "promotion"
	TriggerDemotion    LifecycleTrigger = "demotion"
	TriggerDissolution LifecycleTrigger = "dissolution"
)

// LifecycleResult reports a transition, or a zero value if none fired.
type LifecycleResult struct {
	Fired    bool
	OldState graph.StabilityState
	NewState graph.StabilityState
	Trigger  LifecycleTrigger
	Reason   string
}

// AdvanceLifecycle promotes or marks-for-dissolution based on quality; it
// has no demotion path. Call once per frame after UpdateQuality.
func AdvanceLifecycle(ent *graph.Entity) LifecycleResult {
	ent.FramesSinceCreation++
	quality := ent.QualityScore()

	if quality >= qualityPromoteThreshold {
		ent.RuminationFramesConsecutive = 0
		if ent.FramesSinceCreation >= sustainedFramesForPromotion {
			switch ent.StabilityState {
			case graph.StabilityCandidate:
				old := ent.StabilityState
				ent.StabilityState = graph.StabilityProvisional
				return LifecycleResult{true, old, ent.StabilityState, TriggerPromotion, "sustained high quality"}
			case graph.StabilityProvisional:
				old := ent.StabilityState
				ent.StabilityState = graph.StabilityMature
				return LifecycleResult{true, old, ent.StabilityState, TriggerPromotion, "sustained high quality"}
			}
		}
		return LifecycleResult{}
	}

	if quality <= qualityDissolveThreshold {
		ent.RuminationFramesConsecutive++
		if ent.RuminationFramesConsecutive >= sustainedFramesForDemotion && !ent.MarkedForDissolution {
			ent.MarkedForDissolution = true
			return LifecycleResult{true, ent.StabilityState, ent.StabilityState, TriggerDissolution, "sustained low quality"}
		}
	} else {
		ent.RuminationFramesConsecutive = 0
	}
	return LifecycleResult{}
}
