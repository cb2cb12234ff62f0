// Package scheduler implements the adaptive tick scheduler: a
// three-factor minimum over stimulus recency, total activation energy,
// and mean affect arousal, EMA-smoothed, with a separately capped physics
// dt. The adaptive-interval-with-clamping shape is grounded directly on
// core/deeptreeecho/autonomous_heartbeat.go's calculateAdaptiveInterval —
// same idea (several signals each propose an interval, take the
// tightest, clamp, smooth), generalized from a single heartbeat signal to
// three independent factors.
package scheduler

import (
	"math"
	"time"

	"github.com/EchoCog/echocore/internal/config"
)

// Factor names which of the three intervals won the minimum.
type Factor string

const (
	FactorStimulus     Factor = "stimulus"
	FactorActivation   Factor = "activation"
	FactorArousalFloor Factor = "arousal_floor"
)

// Scheduler owns the live smoothed interval and the last-stimulus clock.
// One per agent engine.
type Scheduler struct {
	cfg              *config.Config
	smoothedInterval float64
	lastStimulusTime time.Time
	started          time.Time
}

// New seeds the scheduler at its max interval (idle) and records the
// creation time as the initial stimulus baseline.
func New(cfg *config.Config, now time.Time) *Scheduler {
	return &Scheduler{
		cfg:              cfg,
		smoothedInterval: cfg.MaxIntervalS,
		lastStimulusTime: now,
		started:          now,
	}
}

// OnStimulus records now as the last-stimulus time.
func (s *Scheduler) OnStimulus(now time.Time) {
	s.lastStimulusTime = now
}

// Decision is the scheduler's per-tick output.
type Decision struct {
	IntervalNext float64
	WinningFactor Factor
	SmoothedInterval float64
	DtUsed       float64
	WasCapped    bool
}

// intervalStimulus clamps time-since-last-stimulus into [MIN_MS/1000, MAX_S].
func intervalStimulus(cfg *config.Config, now, lastStimulus time.Time) float64 {
	elapsed := now.Sub(lastStimulus).Seconds()
	minS := cfg.MinIntervalMS / 1000.0
	if elapsed < minS {
		return minS
	}
	if elapsed > cfg.MaxIntervalS {
		return cfg.MaxIntervalS
	}
	return elapsed
}

// intervalActivation maps total active-node energy to an interval
//: ≥10 → MIN, ≤1 → MAX, else log-interpolated.
func intervalActivation(cfg *config.Config, totalActiveEnergy float64) float64 {
	minS := cfg.MinIntervalMS / 1000.0
	switch {
	case totalActiveEnergy >= 10:
		return minS
	case totalActiveEnergy <= 1:
		return cfg.MaxIntervalS
	default:
		// log-interpolate between (1, MAX) and (10, MIN) in log-energy space.
		t := math.Log(totalActiveEnergy) / math.Log(10)
		return cfg.MaxIntervalS + t*(minS-cfg.MaxIntervalS)
	}
}

// intervalArousal maps mean affect magnitude across active entities to an
// interval: >0.7 → 2·MIN, <0.3 → MAX, else linear.
func intervalArousal(cfg *config.Config, meanArousal float64) float64 {
	minS := cfg.MinIntervalMS / 1000.0
	switch {
	case meanArousal > 0.7:
		return 2 * minS
	case meanArousal < 0.3:
		return cfg.MaxIntervalS
	default:
		t := (meanArousal - 0.3) / (0.7 - 0.3)
		return cfg.MaxIntervalS + t*(2*minS-cfg.MaxIntervalS)
	}
}

// Tick computes the next interval and physics dt from the three factors.
// now is the current wall-clock time, totalActiveEnergy is Σ
// active node energies, meanArousal is the mean ‖affect‖ across active
// entities.
func (s *Scheduler) Tick(now time.Time, totalActiveEnergy, meanArousal float64) Decision {
	stim := intervalStimulus(s.cfg, now, s.lastStimulusTime)
	act := intervalActivation(s.cfg, totalActiveEnergy)
	aro := intervalArousal(s.cfg, meanArousal)

	intervalNext := stim
	winner := FactorStimulus
	if act < intervalNext {
		intervalNext = act
		winner = FactorActivation
	}
	if aro < intervalNext {
		intervalNext = aro
		winner = FactorArousalFloor
	}

	s.smoothedInterval = s.cfg.EMABeta*intervalNext + (1-s.cfg.EMABeta)*s.smoothedInterval

	dtUsed := intervalNext
	wasCapped := false
	if dtUsed > s.cfg.DTCapS {
		dtUsed = s.cfg.DTCapS
		wasCapped = true
	}

	return Decision{
		IntervalNext:     intervalNext,
		WinningFactor:    winner,
		SmoothedInterval: s.smoothedInterval,
		DtUsed:           dtUsed,
		WasCapped:        wasCapped,
	}
}
