// Package engine implements the per-agent frame pipeline that
// animates a Graph through exactly ten ordered steps, wiring together
// every runtime package (threshold, criticality, diffusion, entity,
// workingmemory, strengthen, scheduler, tripwire) plus the event emitter.
// The cooperative, single-goroutine-per-agent loop with panic-guarded
// frame steps is grounded on core/echobeats/enhanced_scheduler.go's run
// loop (a ticking goroutine that recovers per-iteration panics and backs
// off briefly rather than dying), generalized here from echobeat phases
// to the ten-step physics pipeline.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EchoCog/echocore/internal/adapter"
	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/criticality"
	"github.com/EchoCog/echocore/internal/decay"
	"github.com/EchoCog/echocore/internal/diffusion"
	"github.com/EchoCog/echocore/internal/entity"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
	"github.com/EchoCog/echocore/internal/scheduler"
	"github.com/EchoCog/echocore/internal/strengthen"
	"github.com/EchoCog/echocore/internal/threshold"
	"github.com/EchoCog/echocore/internal/tripwire"
	"github.com/EchoCog/echocore/internal/workingmemory"
)

// weightDecayEveryFrames is the slow, independent cadence for WeightDecay,
// well below the per-frame rate.
const weightDecayEveryFrames = 50

// strideUtilityCohortSize bounds the rolling window fed to the
// strengthening noise filter.
const strideUtilityCohortSize = 50

// stimulusEvent is one externally-injected energy delta, queued by
// Stimulus and drained at the top of the next frame. Injection stays off
// the hot path by never touching the graph outside RunFrame.
type stimulusEvent struct {
	NodeID string
	Amount float64
}

// Engine owns one agent's Graph, runtime controllers, and scheduler.
// Never shared across agents.
type Engine struct {
	cfg     *config.Config
	agentID string
	graph   *graph.Graph
	store   adapter.StorageAdapter
	emitter *events.Emitter
	log     *zap.SugaredLogger

	sched     *scheduler.Scheduler
	crit      *criticality.Controller
	tripwires *tripwire.Monitor
	hungerW   entity.HungerWeights

	goalEmbedding []float64

	frameID                uint64
	framesSinceWeightDecay int

	lastActiveCount         int
	lastTotalCount          int
	lastThresholdMultiplier float64
	lastRho                 float64
	lastSafetyState         string

	entityAffect map[string]*graph.Affect
	nodeTheta    map[string]float64
	entityTheta  map[string]float64

	strideUtilityCohort []float64

	lastWMEntities []string

	stimulusMu    sync.Mutex
	stimulusQueue []stimulusEvent

	safeOverrides *tripwire.Overrides
}

// New constructs an Engine around an already-loaded Graph. store may be
// nil if the caller never persists (e.g. tests).
func New(cfg *config.Config, agentID string, g *graph.Graph, store adapter.StorageAdapter, emitter *events.Emitter, log *zap.SugaredLogger, now time.Time) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		cfg:          cfg,
		agentID:      agentID,
		graph:        g,
		store:        store,
		emitter:      emitter,
		log:          log,
		sched:        scheduler.New(cfg, now),
		crit:         criticality.NewController(cfg, cfg.ActivationDecayBase, 1.0),
		tripwires:    tripwire.NewMonitor(cfg, log),
		hungerW:      entity.DefaultHungerWeights(),
		entityAffect:            map[string]*graph.Affect{},
		nodeTheta:               map[string]float64{},
		entityTheta:             map[string]float64{},
		lastThresholdMultiplier: 1.0,
	}
}

// Stimulus enqueues an external energy injection for the next frame;
// it does not wake a sleeping frame loop early.
func (e *Engine) Stimulus(nodeID string, amount float64) {
	e.sched.OnStimulus(time.Now())
	e.stimulusMu.Lock()
	e.stimulusQueue = append(e.stimulusQueue, stimulusEvent{NodeID: nodeID, Amount: amount})
	e.stimulusMu.Unlock()
}

// Run drives the frame loop until ctx is cancelled, sleeping between
// frames per the scheduler's decision. Cancellation is only honored
// between frames; a frame in progress always runs to completion.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		decision := e.runFrameGuarded(ctx, now)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(decision.DtUsed * float64(time.Second))):
		}
	}
}

// runFrameGuarded wraps RunFrame with panic recovery and a brief back-off,
// so one bad frame never takes down the loop.
func (e *Engine) runFrameGuarded(ctx context.Context, now time.Time) scheduler.Decision {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("frame panicked, backing off", "agent_id", e.agentID, "frame_id", e.frameID, "recover", r)
			time.Sleep(100 * time.Millisecond)
		}
	}()
	return e.RunFrame(ctx, now)
}

// RunFrame executes exactly the ten ordered pipeline steps once, emitting
// criticality.state, stride.exec*, decay.tick, subentity.flip*,
// subentity.lifecycle*, wm.emit, and tick_frame.v1 along the way.
// Increments the frame counter last.
func (e *Engine) RunFrame(ctx context.Context, now time.Time) scheduler.Decision {
	start := time.Now()
	g := e.graph

	totalActiveEnergy, meanArousal := e.activationAndArousalSnapshot()
	decision := e.effectiveDtCap(e.sched.Tick(now, totalActiveEnergy, meanArousal))
	dt := decision.DtUsed

	// 1. refresh_affect
	e.refreshAffect()

	// 2. refresh_frontier
	stimulusRecipients := e.drainStimulus()
	e.refreshThresholds()
	frontier := diffusion.ComputeFrontier(g, e.nodeTheta, stimulusRecipients)

	// 3. criticality_control
	critResult := e.runCriticalityControl(frontier)
	rho := critResult.Rho
	e.lastRho = rho
	e.lastSafetyState = string(critResult.SafetyState)

	// 4 & 5 share one staged-delta ledger, committed together at step 6.
	// Commit-before-decay is the only hard ordering guarantee: boundary
	// and within-entity strides both stage into the same ledger first.
	staged := diffusion.StagedDeltas{}
	var dissipated float64
	var stridesExecuted int

	boundaryStride := e.chooseBoundaries(frontier, dt, staged, &dissipated)
	if boundaryStride {
		stridesExecuted++
	}
	stridesExecuted += e.withinEntityStrides(frontier, dt, staged, &dissipated)

	// 6. apply_staged_deltas
	commit := diffusion.Commit(g, e.cfg, staged, dissipated)
	if e.tripwires.CheckConservation(now, commit.SumDelta+dissipated) {
		e.log.Warnw("conservation tripwire", "frame_id", e.frameID, "sum_delta", commit.SumDelta)
	}

	// 7. apply_activation_decay
	decayDelta := e.crit.Delta()
	decayResult := decay.Tick(g, e.cfg, dt, &decayDelta, decay.Options{})
	var weightNodes, weightLinks int
	e.framesSinceWeightDecay++
	if e.framesSinceWeightDecay >= weightDecayEveryFrames {
		e.framesSinceWeightDecay = 0
		weightNodes, weightLinks = decay.WeightDecay(g, e.cfg, dt*weightDecayEveryFrames)
	}
	e.emit(events.TypeDecayTick, decayResult.ToEvent(0, weightNodes, weightLinks))

	// 8. update_entity_activations
	activeCount, totalCount := e.updateEntityActivations(critResult.ThresholdMultiplier)
	e.lastActiveCount, e.lastTotalCount = activeCount, totalCount
	e.lastThresholdMultiplier = critResult.ThresholdMultiplier

	// 9. wm_select_and_emit
	wmPayload, tokensUsed := e.wmSelectAndEmit()
	_ = tokensUsed

	// 10. emit tick_frame.v1
	tickPayload := e.buildTickFrame(frontier, stridesExecuted, rho, now.Sub(start))
	observabilityOK := true
	e.emit(events.TypeTickFrame, tickPayload)
	if e.tripwires.CheckObservability(now, observabilityOK) {
		e.log.Warnw("observability tripwire", "frame_id", e.frameID)
	}

	activeFraction := 0.0
	if tickPayload.NodesTotal > 0 {
		activeFraction = float64(tickPayload.NodesActive) / float64(tickPayload.NodesTotal)
	}
	e.tripwires.CheckFrontier(now, activeFraction)
	e.tripwires.CheckCriticalityBand(now, rho)
	e.evaluateSafeMode(now)

	_ = wmPayload
	e.frameID++
	return decision
}

func (e *Engine) drainStimulus() map[string]struct{} {
	e.stimulusMu.Lock()
	queue := e.stimulusQueue
	e.stimulusQueue = nil
	e.stimulusMu.Unlock()

	recipients := make(map[string]struct{}, len(queue))
	for _, s := range queue {
		if n, ok := e.graph.GetNode(s.NodeID); ok {
			n.E += s.Amount
			recipients[s.NodeID] = struct{}{}
		}
	}
	return recipients
}

// refreshAffect computes each active entity's member-weighted mean affect,
// the ambient emotional context used by the threshold reduction and the
// diffusion emotion gates this frame. Pipeline step 1.
func (e *Engine) refreshAffect() {
	e.entityAffect = map[string]*graph.Affect{}
	for _, ent := range e.graph.AllEntities() {
		if !ent.Active {
			continue
		}
		norm := entity.NormalizedMembership(ent)
		var valence, arousal, weightSum float64
		for nodeID, w := range norm {
			n, ok := e.graph.GetNode(nodeID)
			if !ok || n.Affect == nil {
				continue
			}
			valence += w * n.Affect.Valence
			arousal += w * n.Affect.Arousal
			weightSum += w
		}
		if weightSum > 0 {
			e.entityAffect[ent.ID] = &graph.Affect{Valence: valence / weightSum, Arousal: arousal / weightSum}
		}
	}
}

// refreshThresholds recomputes each node's θ from last frame's
// active/total counts and the controller's live threshold multiplier.
// Pipeline step 2, deliberately one frame lagged — the same lag the
// controller's own δ carries into decay.
func (e *Engine) refreshThresholds() {
	dominantEntityAffect := e.dominantActiveEntityAffect()
	for _, n := range e.graph.AllNodes() {
		theta := threshold.Theta(e.cfg, e.lastActiveCount, e.lastTotalCount, n.Affect, dominantEntityAffect, e.lastThresholdMultiplier)
		n.Theta = theta
		e.nodeTheta[n.ID] = theta
	}
}

func (e *Engine) dominantActiveEntityAffect() *graph.Affect {
	var best *graph.Entity
	for _, ent := range e.graph.AllEntities() {
		if !ent.Active {
			continue
		}
		if best == nil || ent.EnergyRuntime > best.EnergyRuntime {
			best = ent
		}
	}
	if best == nil {
		return nil
	}
	return e.entityAffect[best.ID]
}

// runCriticalityControl estimates ρ — the proxy every frame, or a
// power-iteration refinement every Nth frame — folds it into the
// controller's P-step, and emits criticality.state. Pipeline step 3.
func (e *Engine) runCriticalityControl(frontier diffusion.Frontier) criticality.StepResult {
	rho := criticality.Proxy(e.graph, frontier.Active)
	if e.crit.ShouldRunPowerIteration() {
		nodeIDs := make([]string, 0, len(frontier.Active))
		for id := range frontier.Active {
			nodeIDs = append(nodeIDs, id)
		}
		if len(nodeIDs) > 0 {
			rho = criticality.PowerIteration(e.graph, nodeIDs, e.crit.Alpha(), e.crit.Delta(), 20)
		}
	}
	result := e.crit.Step(rho)
	e.emit(events.TypeCriticalityState, events.CriticalityStatePayload{
		Rho:                 events.RhoBreakdown{Global: result.Rho, ProxyBranching: result.Rho, VarWindow: result.OscillationIndex},
		SafetyState:         string(result.SafetyState),
		Delta:               events.BeforeAfter{Before: result.DeltaBefore, After: result.DeltaAfter},
		Alpha:               events.BeforeAfter{Before: result.AlphaBefore, After: result.AlphaAfter},
		ControllerOutput:    result.DeltaAfter - result.DeltaBefore,
		OscillationIndex:    result.OscillationIndex,
		ThresholdMultiplier: result.ThresholdMultiplier,
	})
	return result
}

// chooseBoundaries runs the optional between-entity selection, pipeline
// step 4: picks the dominant active entity, scores candidate entities
// by the five hungers, and — if two-scale traversal is enabled and a
// candidate exists — stages one boundary stride between the endpoint
// pair.
func (e *Engine) chooseBoundaries(frontier diffusion.Frontier, dt float64, staged diffusion.StagedDeltas, dissipated *float64) bool {
	if !e.cfg.TwoScaleEnabled {
		return false
	}
	g := e.graph

	var current *graph.Entity
	for _, ent := range g.AllEntities() {
		if ent.Active && (current == nil || ent.EnergyRuntime > current.EnergyRuntime) {
			current = ent
		}
	}
	if current == nil {
		return false
	}

	var candidates []*graph.Entity
	for _, ent := range g.AllEntities() {
		if ent.ID != current.ID {
			candidates = append(candidates, ent)
		}
	}
	if len(candidates) == 0 {
		return false
	}

	scores := make([]entity.HungerScore, 0, len(candidates))
	for _, cand := range candidates {
		relatesEase := e.relatesToEase(current.ID, cand.ID)
		scores = append(scores, entity.ScoreCandidate(e.hungerW, current, cand, e.goalEmbedding, relatesEase))
	}
	bestIdx := entity.ArgMax(scores)
	next, ok := g.GetEntity(scores[bestIdx].EntityID)
	if !ok {
		return false
	}

	sourceID, targetID, ok := entity.BoundaryEndpoints(g, current, next, e.nodeTheta)
	if !ok {
		return false
	}
	source, ok := g.GetNode(sourceID)
	if !ok {
		return false
	}

	link, found := e.findOrRelatesToLink(current.ID, next.ID)
	if !found {
		return false
	}
	cost := diffusion.LinkCost(e.cfg, g, link, current.ID, e.goalEmbedding, e.effectiveAffect(e.entityAffect[current.ID]))
	// Stride moves energy node-to-node, so the boundary stride runs over a
	// transient source→target link carrying the RELATES_TO weight.
	boundaryLink := &graph.Link{
		ID: link.ID, SourceID: sourceID, SourceKind: graph.EndpointNode,
		TargetID: targetID, TargetKind: graph.EndpointNode,
		LinkType: graph.LinkRelatesTo, LogWeight: link.LogWeight,
	}
	_, ok = diffusion.Stride(e.cfg, g, source, boundaryLink, cost, e.effectiveAlpha(), dt, staged, dissipated)
	if !ok {
		return false
	}

	target, _ := g.GetNode(targetID)
	semanticDistance := 1.0
	if source.Embedding != nil && target != nil && target.Embedding != nil {
		semanticDistance = 1 - graph.CosineSimilarity(source.Embedding, target.Embedding)
	}
	entity.BoundaryLearn(link, e.cfg.LearningRateBase, staged[targetID], semanticDistance, e.cfg.TraceEMAAlpha, e.cfg.WeightCeiling)
	return true
}

// relatesToEase returns exp(log_weight) of an existing RELATES_TO link
// from→to, not normalized across candidates, or 0 if none exists yet. It
// never creates the link.
func (e *Engine) relatesToEase(fromEntity, toEntity string) float64 {
	for _, l := range e.graph.GetLinksByType(graph.LinkRelatesTo) {
		if l.SourceID == fromEntity && l.TargetID == toEntity {
			return graph.Ease(l.LogWeight)
		}
	}
	return 0
}

func (e *Engine) findOrRelatesToLink(fromEntity, toEntity string) (*graph.Link, bool) {
	for _, l := range e.graph.GetLinksByType(graph.LinkRelatesTo) {
		if l.SourceID == fromEntity && l.TargetID == toEntity {
			return l, true
		}
	}
	id := fromEntity + "-relates-" + toEntity
	newLink := &graph.Link{
		ID: id, SourceID: fromEntity, SourceKind: graph.EndpointEntity,
		TargetID: toEntity, TargetKind: graph.EndpointEntity,
		LinkType: graph.LinkRelatesTo, LogWeight: 0,
	}
	if err := e.graph.AddLink(newLink); err != nil {
		return nil, false
	}
	return newLink, true
}

// withinEntityStrides selects, scores, and stages ΔE for every active
// node's best outgoing link, strengthening the chosen link at stride
// time. Pipeline step 5. Returns the count of strides actually executed.
func (e *Engine) withinEntityStrides(frontier diffusion.Frontier, dt float64, staged diffusion.StagedDeltas, dissipated *float64) int {
	g := e.graph
	executed := 0
	wmHeadroom := e.wmHeadroom()

	for id := range frontier.Active {
		source, ok := g.GetNode(id)
		if !ok {
			continue
		}
		outLinks := g.OutgoingLinks(id)
		if len(outLinks) == 0 {
			continue
		}

		entityID, affect := e.entityContextFor(id)
		_, topK := e.resolveTopK(len(outLinks), wmHeadroom)
		if topK == 0 {
			continue
		}
		pruned := diffusion.Prune(g, outLinks, topK)
		best, cost := diffusion.SelectBestLink(e.cfg, g, pruned, entityID, e.goalEmbedding, e.effectiveAffect(affect))
		if best == nil {
			continue
		}

		target, ok := g.GetNode(best.TargetID)
		if !ok {
			continue
		}
		targetWasActive := threshold.IsActive(target.E, target.Theta)

		result, ok := diffusion.Stride(e.cfg, g, source, best, cost, e.effectiveAlpha(), dt, staged, dissipated)
		if !ok {
			continue
		}
		executed++

		update := e.strengthenLink(result, source, target, targetWasActive)
		e.emit(events.TypeStrideExec, strideToEvent(result, update))
	}
	return executed
}

func (e *Engine) entityContextFor(nodeID string) (entityID string, affect *graph.Affect) {
	for _, ent := range e.graph.AllEntities() {
		if !ent.Active {
			continue
		}
		if _, isMember := ent.Members[nodeID]; isMember {
			return ent.ID, e.entityAffect[ent.ID]
		}
	}
	return "", nil
}

func (e *Engine) wmHeadroom() float64 {
	used := 0
	for _, ent := range e.lastWMEntities {
		if entRef, ok := e.graph.GetEntity(ent); ok {
			used += workingmemory.TokenCost(entRef)
		}
	}
	if e.cfg.BudgetTokens == 0 {
		return 1.0
	}
	headroom := 1.0 - float64(used)/float64(e.cfg.BudgetTokens)
	return graph.Clamp(headroom, 0, 1)
}

// effectiveAlpha returns the criticality controller's α, cut to the safe
// -mode override multiplier whenever safe mode is active. Safe mode takes
// precedence over any other α adjustment.
func (e *Engine) effectiveAlpha() float64 {
	alpha := e.crit.Alpha()
	if e.safeOverrides != nil {
		alpha *= e.safeOverrides.AlphaMultiplier
	}
	return alpha
}

// effectiveAffect suppresses the emotion-gate input while safe mode's
// DisableEnrichments override is active, without touching the shared
// config's EmotionGatesEnabled flag (cfg may be shared across agents).
func (e *Engine) effectiveAffect(affect *graph.Affect) *graph.Affect {
	if e.safeOverrides != nil && e.safeOverrides.DisableEnrichments {
		return nil
	}
	return affect
}

// resolveTopK runs the normal outdegree/WM-pressure/task-mode fanout
// resolution, unless safe mode's ForceSelectiveFanout override is active,
// in which case it pins the strategy to selective regardless of outdegree.
func (e *Engine) resolveTopK(d int, wmHeadroom float64) (diffusion.Strategy, int) {
	if e.safeOverrides != nil && e.safeOverrides.ForceSelectiveFanout {
		topK := diffusion.ApplyWMPressure(e.cfg, e.cfg.SelectiveTopK, wmHeadroom)
		if topK > d {
			topK = d
		}
		return diffusion.StrategySelective, topK
	}
	return diffusion.ResolveTopK(e.cfg, d, wmHeadroom, diffusion.TaskBalanced)
}

// effectiveDtCap applies safe mode's DT_CAP override on top of the
// scheduler's own decision, taking the tighter of the two.
func (e *Engine) effectiveDtCap(decision scheduler.Decision) scheduler.Decision {
	if e.safeOverrides == nil || decision.DtUsed <= e.safeOverrides.DTCapS {
		return decision
	}
	decision.DtUsed = e.safeOverrides.DTCapS
	decision.WasCapped = true
	return decision
}

func strideToEvent(r diffusion.StrideResult, update strengthen.Update) events.StrideExecPayload {
	return events.StrideExecPayload{
		SrcNode: r.SourceID, DstNode: r.TargetID, LinkID: r.Link.ID,
		Phi: update.Phi, Ease: r.Cost.Ease, EaseCost: r.Cost.EaseCost, GoalAffinity: r.Cost.GoalAffinity,
		ResMult: r.Cost.ResMult, ResScore: r.Cost.ResScore, CompMult: r.Cost.CompMult,
		EmotionMult: r.Cost.EmotionMult, BaseCost: r.Cost.BaseCost, TotalCost: r.Cost.TotalCost,
		Reason: string(update.Reason),
		DeltaE: r.DeltaE, Stickiness: r.Stickiness, RetainedDeltaE: r.RetainedDeltaE, Chosen: true,
		Tier: string(update.Tier), TierScale: update.TierScale, StrideUtilityZScore: update.ZPhi,
	}
}

// evaluateSafeMode checks the rolling tripwire-violation count and
// transitions safe mode in/out. Entry stores the override table in
// e.safeOverrides, consulted by effectiveAlpha/effectiveAffect/resolveTopK
// /effectiveDtCap starting the following frame (transitions are evaluated
// at the end of RunFrame, so the next frame is the first to see them).
func (e *Engine) evaluateSafeMode(now time.Time) {
	transition := e.tripwires.Evaluate(now, tripwire.KindConservation)
	if transition.Entered {
		overrides := tripwire.SafeModeOverrides(e.cfg)
		e.safeOverrides = &overrides
		e.emit(events.TypeSafeModeEnter, events.SafeModePayload{
			Reason: transition.Reason, Tripwire: string(transition.Tripwire),
			OverridesApplied: []string{"alpha_multiplier", "dt_cap", "disable_enrichments", "force_selective_fanout", "sample_rate_1.0"},
			Timestamp: now,
		})
	}
	if transition.Exited {
		e.safeOverrides = nil
		e.emit(events.TypeSafeModeExit, events.SafeModePayload{Reason: transition.Reason, Timestamp: now})
	}
}

func (e *Engine) emit(t events.Type, payload interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(events.Envelope{
		V: 1, AgentID: e.agentID, FrameID: e.frameID, TMs: time.Now().UnixMilli(),
		Type: t, Payload: payload,
	})
}

// FrameID returns the number of frames completed so far.
func (e *Engine) FrameID() uint64 { return e.frameID }

// Rho returns the criticality estimate from the most recently completed frame.
func (e *Engine) Rho() float64 { return e.lastRho }

// SafetyState returns the criticality safety-state label from the most
// recently completed frame ("subcritical" | "critical" | "supercritical").
func (e *Engine) SafetyState() string { return e.lastSafetyState }

// ActivationCounts returns the active/total node counts from the most
// recently completed frame.
func (e *Engine) ActivationCounts() (active, total int) {
	return e.lastActiveCount, e.lastTotalCount
}

// AgentID returns the agent this engine animates.
func (e *Engine) AgentID() string { return e.agentID }

func (e *Engine) activationAndArousalSnapshot() (totalActiveEnergy, meanArousal float64) {
	var arousalSum float64
	var arousalCount int
	for _, n := range e.graph.AllNodes() {
		if threshold.IsActive(n.E, n.Theta) {
			totalActiveEnergy += n.E
			if n.Affect != nil {
				arousalSum += n.Affect.Magnitude()
				arousalCount++
			}
		}
	}
	if arousalCount > 0 {
		meanArousal = arousalSum / float64(arousalCount)
	}
	return totalActiveEnergy, meanArousal
}
