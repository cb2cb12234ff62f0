package engine

import (
	"time"

	"github.com/EchoCog/echocore/internal/diffusion"
	"github.com/EchoCog/echocore/internal/entity"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
	"github.com/EchoCog/echocore/internal/strengthen"
	"github.com/EchoCog/echocore/internal/threshold"
	"github.com/EchoCog/echocore/internal/workingmemory"
)

// strengthenLink classifies and applies the three-tier Hebbian update for
// one stride's link, feeding the rolling stride-utility cohort used by the
// noise-filter z-score. Called during pipeline step 5. Tier classification
// runs on post-stride energies — the ledger is only staged at this point
// (step 6 commits it), so both endpoints' post-stride state must be
// reconstructed from the stride result rather than read off the live node.
func (e *Engine) strengthenLink(r diffusion.StrideResult, source, target *graph.Node, targetWasActive bool) strengthen.Update {
	sourceActive := threshold.IsActive(r.SourceEBefore-r.DeltaE, source.Theta)
	targetActive := threshold.IsActive(r.TargetEBefore+r.RetainedDeltaE, target.Theta)
	tier, reason := strengthen.Classify(sourceActive, targetActive, targetWasActive)

	phi := strengthen.Utility(r.RetainedDeltaE, target.Theta)
	e.strideUtilityCohort = append(e.strideUtilityCohort, phi)
	if len(e.strideUtilityCohort) > strideUtilityCohortSize {
		e.strideUtilityCohort = e.strideUtilityCohort[len(e.strideUtilityCohort)-strideUtilityCohortSize:]
	}

	var emotion *graph.Affect
	if r.Link.EmotionVector != nil {
		emotion = r.Link.EmotionVector
	}
	return strengthen.Apply(e.cfg, r.Link, tier, reason, phi, e.strideUtilityCohort, r.RetainedDeltaE, 0.3, emotion)
}

// updateEntityActivations recomputes every entity's energy, cohort
// -relative threshold, flip state, quality EMAs, and lifecycle transition.
// Pipeline step 8. Returns the active/total node counts used as next
// frame's threshold-fraction lag.
func (e *Engine) updateEntityActivations(controllerMultiplier float64) (activeCount, totalCount int) {
	g := e.graph
	entities := g.AllEntities()

	energies := make(map[string]float64, len(entities))
	for _, ent := range entities {
		energies[ent.ID] = entity.Energy(g, ent, e.nodeTheta)
	}
	var energyList []float64
	for _, v := range energies {
		energyList = append(energyList, v)
	}
	cohort := entity.ComputeCohort(energyList)

	for _, ent := range entities {
		energy := energies[ent.ID]
		theta := entity.Threshold(cohort, ent, controllerMultiplier)
		e.entityTheta[ent.ID] = theta

		wasActive := ent.Active
		nowActive, flip := entity.DetectFlip(ent, energy, theta, wasActive)

		ent.EnergyRuntime = energy
		ent.ThresholdRuntime = theta
		ent.ActivationLevelRuntime = entity.ActivationLevel(energy, theta)
		ent.Active = nowActive

		if flip != "" {
			activeMembers := 0
			for nodeID := range ent.Members {
				if n, ok := g.GetNode(nodeID); ok && threshold.IsActive(n.E, n.Theta) {
					activeMembers++
				}
			}
			e.emit(events.TypeSubentityFlip, events.SubentityFlipPayload{
				EntityID: ent.ID, FlipDirection: string(flip), Energy: energy, Threshold: theta,
				ActivationLevel: string(ent.ActivationLevelRuntime), MemberCount: len(ent.Members), ActiveMembers: activeMembers,
			})
		}

		coherence := e.coherence(ent)
		entity.UpdateQuality(ent, e.cfg, nowActive, coherence, ent.EMAWMPresence, ent.EMATraceSeats, ent.EMAFormationQuality)
		lifecycle := entity.AdvanceLifecycle(ent)
		if lifecycle.Fired {
			e.emit(events.TypeSubentityLifecycle, events.SubentityLifecyclePayload{
				EntityID: ent.ID, OldState: string(lifecycle.OldState), NewState: string(lifecycle.NewState),
				QualityScore: ent.QualityScore(), Trigger: string(lifecycle.Trigger), Reason: lifecycle.Reason,
			})
		}
	}

	for _, n := range g.AllNodes() {
		totalCount++
		if threshold.IsActive(n.E, n.Theta) {
			activeCount++
		}
	}
	return activeCount, totalCount
}

// coherence derives a simple entity-affect-vs-member-affect agreement
// score in [0,1], an optional coherence metric generalized here to
// per-entity member-affect consistency.
func (e *Engine) coherence(ent *graph.Entity) float64 {
	affect, ok := e.entityAffect[ent.ID]
	if !ok || affect == nil {
		return 0.5
	}
	norm := entity.NormalizedMembership(ent)
	var agreement, weightSum float64
	for nodeID, w := range norm {
		n, ok := e.graph.GetNode(nodeID)
		if !ok || n.Affect == nil {
			continue
		}
		sim := graph.CosineSimilarity([]float64{n.Affect.Valence, n.Affect.Arousal}, []float64{affect.Valence, affect.Arousal})
		agreement += w * (sim + 1) / 2
		weightSum += w
	}
	if weightSum == 0 {
		return 0.5
	}
	return agreement / weightSum
}

// wmSelectAndEmit runs entity-first working-memory selection and emits
// wm.emit. Pipeline step 9.
func (e *Engine) wmSelectAndEmit() (events.WMEmitPayload, int) {
	energies := make(map[string]float64)
	for _, ent := range e.graph.AllEntities() {
		energies[ent.ID] = ent.EnergyRuntime
	}
	selected, tokensUsed := workingmemory.Select(e.graph, energies, e.cfg.BudgetTokens)
	payload := workingmemory.BuildEvent(e.graph, e.cfg, selected, tokensUsed)

	e.lastWMEntities = payload.SelectedEntities
	e.emit(events.TypeWMEmit, payload)
	return payload, tokensUsed
}

// buildTickFrame assembles the mandatory per-frame heartbeat. Pipeline step 10.
func (e *Engine) buildTickFrame(frontier diffusion.Frontier, stridesExecuted int, rho float64, tickDuration time.Duration) events.TickFramePayload {
	var entitiesData []events.EntityData
	for _, ent := range e.graph.AllEntities() {
		data := events.EntityData{
			ID: ent.ID, Name: ent.Name, Kind: string(ent.Kind), Color: ent.Color,
			Energy: ent.EnergyRuntime, Theta: ent.ThresholdRuntime, Active: ent.Active,
			MembersCount: len(ent.Members), Coherence: ent.CoherenceEMA,
		}
		if affect, ok := e.entityAffect[ent.ID]; ok && affect != nil {
			data.EmotionValence = affect.Valence
			data.EmotionArousal = affect.Arousal
			data.EmotionMagnitude = affect.Magnitude()
		}
		entitiesData = append(entitiesData, data)
	}

	activeCount, totalCount := 0, 0
	for _, n := range e.graph.AllNodes() {
		totalCount++
		if threshold.IsActive(n.E, n.Theta) {
			activeCount++
		}
	}

	return events.TickFramePayload{
		Entities:        entitiesData,
		NodesActive:     activeCount,
		NodesTotal:      totalCount,
		StridesExecuted: stridesExecuted,
		StrideBudget:    len(frontier.Active),
		Rho:             rho,
		Coherence:       e.overallCoherence(entitiesData),
		TickDurationMs:  tickDuration.Seconds() * 1000,
	}
}

func (e *Engine) overallCoherence(entities []events.EntityData) float64 {
	if len(entities) == 0 {
		return 0
	}
	var sum float64
	for _, ent := range entities {
		sum += ent.Coherence
	}
	return sum / float64(len(entities))
}
