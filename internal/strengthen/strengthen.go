// Package strengthen implements three-tier Hebbian link
// strengthening, called inside the stride executor whenever energy
// transfers through a link. The z-scored noise filter uses
// gonum.org/v1/gonum/stat, previously declared as a dependency but
// unused — this is its first real use.
package strengthen

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
)

// Tier is the three-way classification of a stride's link update.
type Tier string

const (
	TierStrong Tier = "STRONG"
	TierMedium Tier = "MEDIUM"
	TierWeak   Tier = "WEAK"

	ReasonCoActivation Tier2Reason = "co_activation"
	ReasonCausal       Tier2Reason = "causal"
	ReasonBackground   Tier2Reason = "background"
)

// Tier2Reason is the human-facing reason accompanying a Tier.
type Tier2Reason string

// tierScale returns the fixed multiplier for each tier.
func tierScale(t Tier) float64 {
	switch t {
	case TierStrong:
		return 1.0
	case TierMedium:
		return 0.6
	default:
		return 0.3
	}
}

// Classify buckets a stride's endpoint-state transition into a tier.
// sourceActive/targetActive are post-stride hard
// activation; targetWasActiveBefore is the target's activation state
// before the stride ran.
func Classify(sourceActive, targetActive, targetWasActiveBefore bool) (Tier, Tier2Reason) {
	if sourceActive && targetActive {
		return TierStrong, ReasonCoActivation
	}
	if targetActive && !targetWasActiveBefore {
		return TierMedium, ReasonCausal
	}
	return TierWeak, ReasonBackground
}

// Utility computes the stride utility φ: gap closure per energy spent,
// i.e. dE-per-threshold. thetaTarget is the target's own
// threshold; deltaE is the amount retained at the target this stride.
func Utility(deltaE, thetaTarget float64) float64 {
	if thetaTarget <= 0 {
		return deltaE
	}
	return deltaE / thetaTarget
}

// CohortZScore z-scores phi against the cohort of recent stride
// utilities (mean/std via gonum/stat), returning 0 if the cohort has
// fewer than 2 samples (too little signal to judge noise).
func CohortZScore(phi float64, cohort []float64) float64 {
	if len(cohort) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(cohort, nil)
	if std == 0 {
		return 0
	}
	return (phi - mean) / std
}

// AffectMultiplier computes the optional affect-boosted multiplier
// `m_affect = 1 + κ·tanh(‖emotion‖)`. emotion may be
// nil, in which case the multiplier is 1 (no-op).
func AffectMultiplier(kappa float64, emotion *graph.Affect) float64 {
	if emotion == nil {
		return 1.0
	}
	return 1 + kappa*math.Tanh(emotion.Magnitude())
}

// Update is the outcome of applying one stride's strengthening.
type Update struct {
	Tier           Tier
	Reason         Tier2Reason
	TierScale      float64
	Phi            float64
	ZPhi           float64
	Skipped        bool
	DeltaLogWeight float64
}

// Apply runs the strengthening pipeline against a link for a tier the
// caller has already classified: z-scores phi against the cohort, skips as
// noise if z_phi < -1.0, and
// otherwise computes and applies the bounded Δlog_weight.
func Apply(cfg *config.Config, link *graph.Link, tier Tier, reason Tier2Reason, phi float64, cohort []float64, deltaE float64, kappa float64, emotion *graph.Affect) Update {
	zPhi := CohortZScore(phi, cohort)
	if zPhi < -1.0 {
		return Update{Tier: tier, Reason: reason, TierScale: tierScale(tier), Phi: phi, ZPhi: zPhi, Skipped: true}
	}

	mAffect := AffectMultiplier(kappa, emotion)
	ts := tierScale(tier)
	deltaLogWeight := cfg.LearningRateBase * deltaE * ts * math.Max(0, zPhi) * mAffect
	link.LogWeight = math.Min(cfg.WeightCeiling, link.LogWeight+deltaLogWeight)

	return Update{
		Tier: tier, Reason: reason, TierScale: ts, Phi: phi, ZPhi: zPhi, DeltaLogWeight: deltaLogWeight,
	}
}
