// Package trace implements the TRACE consumer's dual-view weight
// learning: cohort-relative van der Waerden rank z-scoring, an adaptive
// learning rate from elapsed time, a global log-weight update, and an
// 80%-weighted per-entity overlay split by membership. The van der
// Waerden transform (rank → inverse-normal-CDF score) uses
// gonum.org/v1/gonum/stat/distuv's Normal quantile function — gonum was
// previously declared as a dependency but unused elsewhere.
package trace

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
)

// TauDecay is the adaptive-learning-rate time constant, 1 day.
const TauDecay = 24 * time.Hour

// Record is one externally-produced TRACE item.
type Record struct {
	ItemID             string
	Type               string // "node" | "link"
	Scope              graph.Scope
	ReinforcementSeats float64
	IsFormation        bool
	FormationQuality   float64
}

// Cohort groups records by (type, scope) for rank z-scoring.
type Cohort struct {
	Key     string
	Records []Record
}

// BuildCohorts groups records by (type, scope).
func BuildCohorts(records []Record) []Cohort {
	index := map[string]int{}
	var cohorts []Cohort
	for _, r := range records {
		key := r.Type + "|" + string(r.Scope)
		if i, ok := index[key]; ok {
			cohorts[i].Records = append(cohorts[i].Records, r)
			continue
		}
		index[key] = len(cohorts)
		cohorts = append(cohorts, Cohort{Key: key, Records: []Record{r}})
	}
	return cohorts
}

// vanDerWaerdenScores ranks values and maps each rank to the inverse
// normal CDF at rank/(n+1) — the van der Waerden normal score transform.
func vanDerWaerdenScores(values []float64) []float64 {
	n := len(values)
	scores := make([]float64, n)
	if n == 0 {
		return scores
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	dist := distuv.Normal{Mu: 0, Sigma: 1}
	for rank, idx := range order {
		p := float64(rank+1) / float64(n+1)
		scores[idx] = dist.Quantile(p)
	}
	return scores
}

// EMA folds a new sample into a running EMA.
func EMA(prev, sample, alpha float64) float64 {
	return alpha*sample + (1-alpha)*prev
}

// LearningRate derives the adaptive η from elapsed time:
// `η = 1 − exp(−Δt/τ)`.
func LearningRate(elapsed time.Duration) float64 {
	return 1 - math.Exp(-elapsed.Seconds()/TauDecay.Seconds())
}

// EntityContext resolves which entities a member node's overlay update
// should target, by priority: last WM entity list, then TRACE
// annotations, then the dominant active entity.
func EntityContext(lastWMEntities, traceAnnotatedEntities []string, dominantActiveEntity string) []string {
	if len(lastWMEntities) > 0 {
		return lastWMEntities
	}
	if len(traceAnnotatedEntities) > 0 {
		return traceAnnotatedEntities
	}
	if dominantActiveEntity != "" {
		return []string{dominantActiveEntity}
	}
	return nil
}

// ItemUpdate is the result of applying one record's dual-view update,
// ready to persist and emit.
type ItemUpdate struct {
	Record          Record
	ZRein           float64
	ZForm           float64
	ZTotal          float64
	Eta             float64
	LogWeightBefore float64
	LogWeightAfter  float64
	Overlays        []events.LocalOverlay
}

// ApplyCohort runs the z-score and learning-rate steps for one cohort:
// rank z-scores of each record's raw reinforcement seats and formation
// quality within the cohort (no per-item EMA is kept), adaptive η, the
// global update, and the per-entity overlay split weighted by membership.
func ApplyCohort(cfg *config.Config, g *graph.Graph, cohort Cohort, elapsed time.Duration, logWeightOf func(itemID string) float64, setLogWeight func(itemID string, w float64), overlayOf func(itemID, entityID string) float64, setOverlay func(itemID, entityID string, v float64), entityContext func(itemID string) []string, membershipWeight func(itemID, entityID string) float64) []ItemUpdate {
	seats := make([]float64, len(cohort.Records))
	formQuality := make([]float64, len(cohort.Records))
	for i, r := range cohort.Records {
		seats[i] = r.ReinforcementSeats
		if r.IsFormation {
			formQuality[i] = r.FormationQuality
		}
	}
	zRein := vanDerWaerdenScores(seats)
	zForm := vanDerWaerdenScores(formQuality)

	eta := LearningRate(elapsed)
	var updates []ItemUpdate

	for i, r := range cohort.Records {
		zTotal := zRein[i]
		if r.IsFormation {
			zTotal += zForm[i]
		}

		before := logWeightOf(r.ItemID)
		deltaGlobal := cfg.AlphaGlobal * eta * zTotal
		after := graph.Clamp(before+deltaGlobal, cfg.WeightFloor, cfg.WeightCeiling)
		setLogWeight(r.ItemID, after)

		var overlays []events.LocalOverlay
		for _, entID := range entityContext(r.ItemID) {
			mw := membershipWeight(r.ItemID, entID)
			deltaOverlay := cfg.AlphaLocal * eta * zTotal * mw
			before := overlayOf(r.ItemID, entID)
			afterOverlay := graph.Clamp(before+deltaOverlay, -cfg.OverlayCap, cfg.OverlayCap)
			setOverlay(r.ItemID, entID, afterOverlay)
			overlays = append(overlays, events.LocalOverlay{
				Entity: entID, Delta: deltaOverlay, OverlayAfter: afterOverlay, MembershipWeight: mw,
			})
		}

		updates = append(updates, ItemUpdate{
			Record: r, ZRein: zRein[i], ZForm: zForm[i], ZTotal: zTotal, Eta: eta,
			LogWeightBefore: before, LogWeightAfter: after, Overlays: overlays,
		})
	}
	return updates
}

// ToEvent converts a batch of ItemUpdates into the weights.updated.trace
// payload.
func ToEvent(updates []ItemUpdate) events.WeightsUpdatedTracePayload {
	payload := events.WeightsUpdatedTracePayload{Source: "trace"}
	for _, u := range updates {
		payload.Updates = append(payload.Updates, events.TraceUpdate{
			ItemID:          u.Record.ItemID,
			Type:            u.Record.Type,
			LogWeightBefore: u.LogWeightBefore,
			LogWeightAfter:  u.LogWeightAfter,
			Signals:         events.TraceSignals{ZRein: u.ZRein, ZForm: u.ZForm},
			Eta:             u.Eta,
			LocalOverlays:   u.Overlays,
		})
	}
	return payload
}
