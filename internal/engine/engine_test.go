package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/diffusion"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
	"github.com/EchoCog/echocore/internal/scheduler"
	"github.com/EchoCog/echocore/internal/strengthen"
	"github.com/EchoCog/echocore/internal/tripwire"
)

// buildFixtureGraph assembles a small graph with two entities, a handful of
// nodes, and association links, enough to push every step of the pipeline
// through a live path at least once.
func buildFixtureGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()

	nodes := []*graph.Node{
		{ID: "n1", NodeType: graph.NodeTypeConcept, Name: "alpha", E: 0.9, Affect: &graph.Affect{Valence: 0.2, Arousal: 0.6}},
		{ID: "n2", NodeType: graph.NodeTypeConcept, Name: "beta", E: 0.1, Affect: &graph.Affect{Valence: -0.1, Arousal: 0.3}},
		{ID: "n3", NodeType: graph.NodeTypeMemory, Name: "gamma", E: 0.05, Affect: &graph.Affect{Valence: 0.0, Arousal: 0.1}},
		{ID: "n4", NodeType: graph.NodeTypeGoal, Name: "delta", E: 0.02},
	}
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}

	links := []*graph.Link{
		{ID: "l-n1-n2", SourceID: "n1", SourceKind: graph.EndpointNode, TargetID: "n2", TargetKind: graph.EndpointNode, LinkType: graph.LinkAssociation, LogWeight: 0.5},
		{ID: "l-n1-n3", SourceID: "n1", SourceKind: graph.EndpointNode, TargetID: "n3", TargetKind: graph.EndpointNode, LinkType: graph.LinkAssociation, LogWeight: 0.1},
		{ID: "l-n2-n4", SourceID: "n2", SourceKind: graph.EndpointNode, TargetID: "n4", TargetKind: graph.EndpointNode, LinkType: graph.LinkAssociation, LogWeight: 0.2},
	}
	for _, l := range links {
		require.NoError(t, g.AddLink(l))
	}

	entA := &graph.Entity{
		ID: "entity_fn_a", Name: "Entity A", Kind: graph.EntityFunctional,
		Members:        map[string]float64{"n1": 1.0, "n2": 0.6},
		StabilityState: graph.StabilityCandidate,
	}
	entB := &graph.Entity{
		ID: "entity_fn_b", Name: "Entity B", Kind: graph.EntityFunctional,
		Members:        map[string]float64{"n3": 1.0, "n4": 0.4},
		StabilityState: graph.StabilityCandidate,
	}
	require.NoError(t, g.AddEntity(entA))
	require.NoError(t, g.AddEntity(entB))

	return g
}

// recordingSink collects every envelope it receives under a mutex, since
// the emitter dispatches from its own drain goroutine.
type recordingSink struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (r *recordingSink) Handle(e events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, e)
}

func (r *recordingSink) snapshot() []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *events.Emitter, *recordingSink) {
	t.Helper()
	cfg := config.Defaults()
	g := buildFixtureGraph(t)
	emitter := events.NewEmitter(context.Background(), nil, 64, 1.0)
	require.NoError(t, emitter.Start())
	t.Cleanup(emitter.Stop)

	sink := &recordingSink{}
	emitter.Subscribe(sink)

	e := New(cfg, "agent-test", g, nil, emitter, nil, time.Now())
	return e, emitter, sink
}

func TestRunFrameEmitsTickFrame(t *testing.T) {
	e, _, sink := newTestEngine(t)
	e.RunFrame(context.Background(), time.Now())

	require.Eventually(t, func() bool {
		for _, env := range sink.snapshot() {
			if env.Type == events.TypeTickFrame {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "expected tick_frame.v1 to be emitted every frame")

	for _, env := range sink.snapshot() {
		if env.Type == events.TypeTickFrame {
			payload, ok := env.Payload.(events.TickFramePayload)
			require.True(t, ok)
			require.Equal(t, 4, payload.NodesTotal)
			require.GreaterOrEqual(t, payload.NodesActive, 0)
			require.LessOrEqual(t, payload.NodesActive, payload.NodesTotal)
		}
	}
}

func TestRunFrameIncrementsFrameID(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.EqualValues(t, 0, e.frameID)
	e.RunFrame(context.Background(), time.Now())
	require.EqualValues(t, 1, e.frameID)
	e.RunFrame(context.Background(), time.Now())
	require.EqualValues(t, 2, e.frameID)
}

func TestRunFrameRepeatedNeverPanics(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NotPanics(t, func() {
		for i := 0; i < 25; i++ {
			e.RunFrame(context.Background(), time.Now())
		}
	})
}

func TestStimulusQueuesAndDrains(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.Empty(t, e.stimulusQueue)

	e.Stimulus("n2", 0.5)
	require.Len(t, e.stimulusQueue, 1)

	e.RunFrame(context.Background(), time.Now())
	require.Empty(t, e.stimulusQueue, "RunFrame must drain the stimulus queue every frame")
}

func TestRunFrameGuardedRecoversFromPanic(t *testing.T) {
	e, _, _ := newTestEngine(t)
	// Force a panic by corrupting graph state the pipeline dereferences.
	e.graph = nil

	require.NotPanics(t, func() {
		e.runFrameGuarded(context.Background(), time.Now())
	})
}

func TestConservationHoldsUnderQuiescentGraph(t *testing.T) {
	e, _, sink := newTestEngine(t)
	// Drain all energy so no strides can fire and no dissipation accumulates.
	for _, n := range e.graph.AllNodes() {
		n.E = 0
	}

	for i := 0; i < 10; i++ {
		e.RunFrame(context.Background(), time.Now())
	}

	time.Sleep(20 * time.Millisecond)
	for _, env := range sink.snapshot() {
		require.NotEqual(t, events.TypeSafeModeEnter, env.Type,
			"a quiescent zero-energy graph should never trip conservation into safe mode")
	}
}

func TestWithinEntityStridesRequiresOutgoingLinks(t *testing.T) {
	e, _, _ := newTestEngine(t)
	staged := diffusion.StagedDeltas{}
	var dissipated float64

	frontier := diffusion.Frontier{Active: map[string]struct{}{"n4": {}}}
	executed := e.withinEntityStrides(frontier, 1.0, staged, &dissipated)
	require.Equal(t, 0, executed, "n4 has no outgoing links, so no stride should execute")
}

func TestRunMultipleFramesDriveEntityTowardActivation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	n1, ok := e.graph.GetNode("n1")
	require.True(t, ok)
	n1.E = 5.0 // pin a high-energy source so entity_fn_a should eventually read active

	for i := 0; i < 5; i++ {
		e.RunFrame(context.Background(), time.Now())
	}

	entA, ok := e.graph.GetEntity("entity_fn_a")
	require.True(t, ok)
	require.GreaterOrEqual(t, entA.EnergyRuntime, 0.0)
}

func TestEffectiveAlphaUnaffectedOutsideSafeMode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.Nil(t, e.safeOverrides)
	require.Equal(t, e.crit.Alpha(), e.effectiveAlpha())
}

func TestEffectiveAlphaCutToThirtyPercentInSafeMode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	overrides := tripwire.SafeModeOverrides(e.cfg)
	e.safeOverrides = &overrides

	require.InDelta(t, e.crit.Alpha()*0.3, e.effectiveAlpha(), 1e-9)
}

func TestEffectiveAffectSuppressedInSafeMode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	affect := &graph.Affect{Valence: 0.5, Arousal: 0.5}
	require.Same(t, affect, e.effectiveAffect(affect))

	overrides := tripwire.SafeModeOverrides(e.cfg)
	e.safeOverrides = &overrides
	require.Nil(t, e.effectiveAffect(affect))
}

func TestResolveTopKForcesSelectiveInSafeMode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	overrides := tripwire.SafeModeOverrides(e.cfg)
	e.safeOverrides = &overrides

	strategy, topK := e.resolveTopK(10, 1.0)
	require.Equal(t, diffusion.StrategySelective, strategy)
	require.LessOrEqual(t, topK, e.cfg.SelectiveTopK)
}

func TestEffectiveDtCapPinsToOneSecondInSafeMode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	overrides := tripwire.SafeModeOverrides(e.cfg)
	e.safeOverrides = &overrides

	decision := e.effectiveDtCap(scheduler.Decision{DtUsed: 5.0})
	require.Equal(t, 1.0, decision.DtUsed)
	require.True(t, decision.WasCapped)
}

func TestEffectiveDtCapLeavesTighterSchedulerDecisionAlone(t *testing.T) {
	e, _, _ := newTestEngine(t)
	overrides := tripwire.SafeModeOverrides(e.cfg)
	e.safeOverrides = &overrides

	decision := e.effectiveDtCap(scheduler.Decision{DtUsed: 0.2})
	require.Equal(t, 0.2, decision.DtUsed)
	require.False(t, decision.WasCapped)
}

func TestStrengthenLinkClassifiesStrongOnPostStrideCoActivation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	link := &graph.Link{ID: "l-test", LogWeight: 0.1}
	source := &graph.Node{ID: "src", Theta: 1.0}
	target := &graph.Node{ID: "dst", Theta: 1.0}

	result := diffusion.StrideResult{
		SourceID: "src", TargetID: "dst", Link: link,
		DeltaE: 0.1, RetainedDeltaE: 1.5,
		SourceEBefore: 2.0, // post-stride 2.0-0.1=1.9, above theta 1.0: source stays active
		TargetEBefore: 0.0, // post-stride 0.0+1.5=1.5, above theta 1.0: target newly active
	}

	update := e.strengthenLink(result, source, target, false)
	require.Equal(t, strengthen.TierStrong, update.Tier)
	require.Equal(t, strengthen.ReasonCoActivation, update.Reason)
}

func TestStrengthenLinkClassifiesMediumOnPostStrideCausalFlip(t *testing.T) {
	e, _, _ := newTestEngine(t)
	link := &graph.Link{ID: "l-test", LogWeight: 0.1}
	source := &graph.Node{ID: "src", Theta: 5.0}
	target := &graph.Node{ID: "dst", Theta: 1.0}

	result := diffusion.StrideResult{
		SourceID: "src", TargetID: "dst", Link: link,
		DeltaE: 0.1, RetainedDeltaE: 1.5,
		SourceEBefore: 2.0, // post-stride 2.0-0.1=1.9, below theta 5.0: source inactive
		TargetEBefore: 0.0, // post-stride 0.0+1.5=1.5, above theta 1.0: target newly active
	}

	update := e.strengthenLink(result, source, target, false)
	require.Equal(t, strengthen.TierMedium, update.Tier)
	require.Equal(t, strengthen.ReasonCausal, update.Reason)
}

func TestStrideToEventCarriesTierAndUtility(t *testing.T) {
	link := &graph.Link{ID: "l-test"}
	result := diffusion.StrideResult{
		SourceID: "src", TargetID: "dst", Link: link,
		DeltaE: 0.2, RetainedDeltaE: 0.2,
	}
	update := strengthen.Update{
		Tier: strengthen.TierStrong, Reason: strengthen.ReasonCoActivation,
		TierScale: 1.0, Phi: 0.4, ZPhi: 1.2,
	}

	payload := strideToEvent(result, update)
	require.Equal(t, "STRONG", payload.Tier)
	require.Equal(t, "co_activation", payload.Reason)
	require.Equal(t, 1.0, payload.TierScale)
	require.Equal(t, 0.4, payload.Phi)
	require.Equal(t, 1.2, payload.StrideUtilityZScore)
}
