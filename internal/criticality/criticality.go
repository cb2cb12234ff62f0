// Package criticality implements the per-frame branching-ratio
// proxy, the periodic power-iteration spectral-radius estimate, the
// P-controller that adjusts effective decay (and optionally α), and the
// safety-state classifier. The clamp-bounded adaptive-parameter shape is
// grounded on core/deeptreeecho/autonomous_heartbeat.go's
// calculateAdaptiveInterval (same idea — a base value nudged by a live
// signal, then clamped to [min, max]); the power-iteration estimator uses
// gonum/mat, previously declared as a dependency but unused — this is
// its first real use.
package criticality

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
)

// SafetyState classifies ρ against the band.
type SafetyState string

const (
	Subcritical  SafetyState = "subcritical"
	Critical     SafetyState = "critical"
	Supercritical SafetyState = "supercritical"
)

// Controller owns the live δ (effective decay) and α (diffusion share),
// adjusted every frame by a P-controller on the ρ estimate. One Controller
// per agent engine — never shared.
type Controller struct {
	cfg *config.Config

	delta float64
	alpha float64

	alpha0 float64 // starting α, the reference for the dual-lever's bounds

	kP float64

	framesSincePowerIter int
	powerIterEvery       int

	rhoHistory []float64 // bounded window for the oscillation index
	oscWindow  int

	lastRho float64
}

// NewController seeds δ and α at the caller-supplied starting point (the
// engine's configured base decay rate and base diffusion share α_tick).
func NewController(cfg *config.Config, initialDelta, initialAlpha float64) *Controller {
	return &Controller{
		cfg:            cfg,
		delta:          initialDelta,
		alpha:          initialAlpha,
		alpha0:         initialAlpha,
		kP:             0.15,
		powerIterEvery: 20,
		oscWindow:      10,
		lastRho:        1.0,
	}
}

// Delta and Alpha return the live controller outputs.
func (c *Controller) Delta() float64 { return c.delta }
func (c *Controller) Alpha() float64 { return c.alpha }

// Proxy computes the branching-ratio proxy B = Σ out-active / Σ in-active
// across the current frontier. active is the frontier's
// active-node id set.
func Proxy(g *graph.Graph, active map[string]struct{}) float64 {
	var outActive, inActive float64
	for id := range active {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		for _, linkID := range n.OutgoingLinks {
			if l, ok := g.GetLink(linkID); ok {
				if _, targetActive := active[l.TargetID]; targetActive {
					outActive++
				}
			}
		}
		for _, linkID := range n.IncomingLinks {
			if _, ok := g.GetLink(linkID); ok {
				inActive++
			}
		}
	}
	if inActive == 0 {
		return 1.0
	}
	return outActive / inActive
}

// PowerIteration estimates ρ, the dominant eigenvalue magnitude of the
// effective propagation operator P' = α · δ · P, where P is the
// row-stochastic operator built from exp(log_weight) over the node set.
// nodeIDs fixes iteration order; for graphs with more than
// maxDim nodes, only the first maxDim entries of nodeIDs, in the order
// given, are used — ρ is a
// system-level proxy, not an exact eigenvalue, and a bounded-size estimate
// keeps this from blowing up the frame budget on large graphs.
func PowerIteration(g *graph.Graph, nodeIDs []string, alpha, delta float64, iterations int) float64 {
	n := len(nodeIDs)
	if n == 0 {
		return 1.0
	}
	const maxDim = 256
	if n > maxDim {
		nodeIDs = nodeIDs[:maxDim]
		n = maxDim
	}

	idx := make(map[string]int, n)
	for i, id := range nodeIDs {
		idx[id] = i
	}

	P := mat.NewDense(n, n, nil)
	for i, id := range nodeIDs {
		node, ok := g.GetNode(id)
		if !ok {
			continue
		}
		rowSum := 0.0
		ease := make([]float64, 0, len(node.OutgoingLinks))
		targets := make([]int, 0, len(node.OutgoingLinks))
		for _, linkID := range node.OutgoingLinks {
			l, ok := g.GetLink(linkID)
			if !ok {
				continue
			}
			j, ok := idx[l.TargetID]
			if !ok {
				continue
			}
			e := graph.Ease(l.LogWeight)
			ease = append(ease, e)
			targets = append(targets, j)
			rowSum += e
		}
		if rowSum == 0 {
			continue
		}
		for k, j := range targets {
			P.Set(i, j, (ease[k]/rowSum)*alpha*delta)
		}
	}

	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 1.0/float64(n))
	}

	var rho float64
	tmp := mat.NewVecDense(n, nil)
	for it := 0; it < iterations; it++ {
		tmp.MulVec(P, v)
		norm := mat.Norm(tmp, 2)
		if norm == 0 {
			return 0
		}
		rho = norm
		tmp.ScaleVec(1/norm, tmp)
		v.CopyVec(tmp)
	}
	return rho
}

// Step runs one frame of the controller: it folds the supplied ρ estimate
// (proxy every frame, or the periodic power-iteration value) into the
// P-controller, updates δ (and a small dual-lever on α), classifies the
// safety state, and returns the threshold multiplier f_ρ.
func (c *Controller) Step(rho float64) StepResult {
	deltaBefore := c.delta
	alphaBefore := c.alpha

	err := rho - 1.0
	c.delta = graph.Clamp(c.delta+c.kP*err, c.cfg.ActivationDecayMin, c.cfg.ActivationDecayMax)

	// Small dual-lever on α: nudge at 10% of the controller's own gain,
	// bounded to ±20% of the starting share so α never runs away.
	c.alpha = graph.Clamp(c.alpha-0.1*c.kP*err*c.alpha, 0.8*c.alpha0, 1.2*c.alpha0)

	c.rhoHistory = append(c.rhoHistory, rho)
	if len(c.rhoHistory) > c.oscWindow {
		c.rhoHistory = c.rhoHistory[len(c.rhoHistory)-c.oscWindow:]
	}

	state := Classify(c.cfg, rho)
	fRho := thresholdMultiplier(state)
	c.lastRho = rho

	return StepResult{
		Rho:                 rho,
		SafetyState:         state,
		DeltaBefore:         deltaBefore,
		DeltaAfter:          c.delta,
		AlphaBefore:         alphaBefore,
		AlphaAfter:          c.alpha,
		ThresholdMultiplier: fRho,
		OscillationIndex:    oscillationIndex(c.rhoHistory),
	}
}

// StepResult is the per-frame output, feeding criticality.state.
type StepResult struct {
	Rho                 float64
	SafetyState         SafetyState
	DeltaBefore         float64
	DeltaAfter          float64
	AlphaBefore         float64
	AlphaAfter          float64
	ThresholdMultiplier float64
	OscillationIndex    float64
}

// Classify buckets ρ against the band.
func Classify(cfg *config.Config, rho float64) SafetyState {
	switch {
	case rho < 0.9:
		return Subcritical
	case rho > 1.1:
		return Supercritical
	default:
		return Critical
	}
}

// thresholdMultiplier is a small bounded adjustment: supercritical raises
// the threshold (fewer strides fire), subcritical lowers it slightly.
func thresholdMultiplier(state SafetyState) float64 {
	switch state {
	case Supercritical:
		return 1.1
	case Subcritical:
		return 0.95
	default:
		return 1.0
	}
}

func oscillationIndex(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	var sumAbsDelta float64
	for i := 1; i < len(history); i++ {
		sumAbsDelta += math.Abs(history[i] - history[i-1])
	}
	return sumAbsDelta / float64(len(history)-1)
}

// ShouldRunPowerIteration reports whether this frame is due for the
// periodic power-iteration estimate.
func (c *Controller) ShouldRunPowerIteration() bool {
	c.framesSincePowerIter++
	if c.framesSincePowerIter >= c.powerIterEvery {
		c.framesSincePowerIter = 0
		return true
	}
	return false
}
