// Package tripwire implements rolling-window violation counting
// across the four tripwire conditions and the safe-mode controller that
// trips on accumulated violations and exits on sustained compliance. The
// rolling-window counter + override-table-on-trip shape is grounded on
// core/deeptreeecho/autonomous_heartbeat.go's VitalSigns monitoring (a
// live metric compared against a threshold, with a cumulative counter
// that triggers a mode change), generalized here from heartbeat vitals to
// the four physics tripwires. Violation logging uses go.uber.org/zap,
// this codebase's structured-logging library.
package tripwire

import (
	"time"

	"go.uber.org/zap"

	"github.com/EchoCog/echocore/internal/config"
)

// Kind names a tripwire condition.
type Kind string

const (
	KindConservation Kind = "conservation"
	KindCriticality  Kind = "criticality_band"
	KindFrontier     Kind = "frontier"
	KindObservability Kind = "observability"
)

type violation struct {
	kind Kind
	at   time.Time
}

// Monitor tracks rolling-window violations and safe-mode state for one
// agent engine. Not safe for concurrent use — the engine that owns it is
// the sole caller.
type Monitor struct {
	cfg *config.Config
	log *zap.SugaredLogger

	violations []violation

	criticalityBandStreak int
	frontierStreak        int
	missingEventsStreak    int

	inSafeMode    bool
	safeModeSince time.Time
}

// NewMonitor constructs a Monitor bound to cfg's tripwire thresholds.
func NewMonitor(cfg *config.Config, log *zap.SugaredLogger) *Monitor {
	return &Monitor{cfg: cfg, log: log}
}

// InSafeMode reports whether the engine is currently in safe mode.
func (m *Monitor) InSafeMode() bool { return m.inSafeMode }

// CheckConservation records a conservation violation if |sumDelta| exceeds
// the epsilon.
func (m *Monitor) CheckConservation(now time.Time, sumDelta float64) bool {
	if abs(sumDelta) <= m.cfg.TripwireConservationEpsilon {
		return false
	}
	m.record(now, KindConservation)
	return true
}

// CheckCriticalityBand tracks consecutive out-of-band ρ frames, tripping
// once the streak reaches TripwireCriticalityFrames.
func (m *Monitor) CheckCriticalityBand(now time.Time, rho float64) bool {
	if rho < m.cfg.CriticalityBandLow || rho > m.cfg.CriticalityBandHigh {
		m.criticalityBandStreak++
	} else {
		m.criticalityBandStreak = 0
	}
	if m.criticalityBandStreak >= m.cfg.TripwireCriticalityFrames {
		m.record(now, KindCriticality)
		return true
	}
	return false
}

// CheckFrontier tracks consecutive over-threshold active-fraction frames.
func (m *Monitor) CheckFrontier(now time.Time, activeFraction float64) bool {
	if activeFraction > m.cfg.TripwireFrontierPct {
		m.frontierStreak++
	} else {
		m.frontierStreak = 0
	}
	if m.frontierStreak >= m.cfg.TripwireFrontierFrames {
		m.record(now, KindFrontier)
		return true
	}
	return false
}

// CheckObservability tracks consecutive frames that failed to emit
// tick_frame.v1.
func (m *Monitor) CheckObservability(now time.Time, emittedTickFrame bool) bool {
	if !emittedTickFrame {
		m.missingEventsStreak++
	} else {
		m.missingEventsStreak = 0
	}
	if m.missingEventsStreak >= m.cfg.TripwireMissingEventsFrames {
		m.record(now, KindObservability)
		return true
	}
	return false
}

func (m *Monitor) record(now time.Time, kind Kind) {
	m.violations = append(m.violations, violation{kind: kind, at: now})
	if m.log != nil {
		m.log.Warnw("tripwire violation", "kind", string(kind), "at", now)
	}
	m.prune(now)
}

func (m *Monitor) prune(now time.Time) {
	cutoff := now.Add(-time.Duration(m.cfg.SafeModeViolationWindowS * float64(time.Second)))
	kept := m.violations[:0]
	for _, v := range m.violations {
		if v.at.After(cutoff) {
			kept = append(kept, v)
		}
	}
	m.violations = kept
}

// CountInWindow returns how many violations are currently within the
// rolling window.
func (m *Monitor) CountInWindow(now time.Time) int {
	m.prune(now)
	return len(m.violations)
}

// Overrides is the override table safe mode applies.
type Overrides struct {
	AlphaMultiplier        float64
	DTCapS                 float64
	DisableEnrichments     bool
	ForceSelectiveFanout   bool
	SampleRate             float64
}

// SafeModeOverrides is the fixed override table applied on entry: α_tick
// cut to 30%, DT_CAP pinned to 1.0 regardless of the configured cap,
// optional enrichments disabled, fanout forced selective, sampling at 1.0.
func SafeModeOverrides(cfg *config.Config) Overrides {
	return Overrides{
		AlphaMultiplier:      0.3,
		DTCapS:               1.0,
		DisableEnrichments:   true,
		ForceSelectiveFanout: true,
		SampleRate:           1.0,
	}
}

// Evaluate checks the rolling-window violation count against
// SafeModeViolationThreshold and transitions in/out of safe mode,
// returning the transition that fired (if any) and its reason/tripwire.
type Transition struct {
	Entered  bool
	Exited   bool
	Reason   string
	Tripwire Kind
}

// Evaluate is called once per frame after the four Check* calls above,
// returning any safe-mode transition.
func (m *Monitor) Evaluate(now time.Time, lastTripwireKind Kind) Transition {
	count := m.CountInWindow(now)

	if !m.inSafeMode && count >= m.cfg.SafeModeViolationThreshold {
		m.inSafeMode = true
		m.safeModeSince = now
		return Transition{Entered: true, Reason: "violation threshold reached", Tripwire: lastTripwireKind}
	}

	if m.inSafeMode && count == 0 {
		m.inSafeMode = false
		return Transition{Exited: true, Reason: "sustained compliance"}
	}

	return Transition{}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
