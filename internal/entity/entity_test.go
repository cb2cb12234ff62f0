package entity

import (
	"testing"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraphWithEntity(t *testing.T) (*graph.Graph, *graph.Entity) {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "n1", E: 0.8}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "n2", E: 0.2}))
	require.NoError(t, g.AddEntity(&graph.Entity{ID: "e1", Members: map[string]float64{"n1": 2.0, "n2": 1.0}}))
	ent, _ := g.GetEntity("e1")
	return g, ent
}

func TestNormalizedMembershipSumsToOne(t *testing.T) {
	_, ent := buildGraphWithEntity(t)
	norm := NormalizedMembership(ent)
	assert.InDelta(t, 1.0, norm["n1"]+norm["n2"], 1e-9)
	assert.InDelta(t, 2.0/3.0, norm["n1"], 1e-9)
}

func TestEnergyFormula(t *testing.T) {
	g, ent := buildGraphWithEntity(t)
	theta := map[string]float64{"n1": 0.1, "n2": 0.5}
	// n1: m=2/3, max(0, 0.8-0.1)=0.7 -> 0.4667
	// n2: m=1/3, max(0, 0.2-0.5)=0 -> 0
	e := Energy(g, ent, theta)
	assert.InDelta(t, (2.0/3.0)*0.7, e, 1e-9)
}

func TestComputeCohort(t *testing.T) {
	c := ComputeCohort([]float64{1, 2, 3, 4, 5})
	assert.InDelta(t, 3.0, c.Mean, 1e-9)
	assert.Greater(t, c.Std, 0.0)
}

func TestDetectFlipActivatesAboveUpperBand(t *testing.T) {
	ent := &graph.Entity{}
	nowActive, flip := DetectFlip(ent, 1.2, 1.0, false)
	assert.True(t, nowActive)
	assert.Equal(t, FlipActivate, flip)
	assert.Equal(t, 1, ent.ActivateStreak)
}

func TestDetectFlipHysteresisPreventsChatter(t *testing.T) {
	ent := &graph.Entity{}
	// energy between lower (0.9) and upper (1.1) bands shouldn't flip.
	nowActive, flip := DetectFlip(ent, 1.0, 1.0, false)
	assert.False(t, nowActive)
	assert.Equal(t, FlipDirection(""), flip)
}

func TestDetectFlipDeactivatesBelowLowerBand(t *testing.T) {
	ent := &graph.Entity{}
	nowActive, flip := DetectFlip(ent, 0.5, 1.0, true)
	assert.False(t, nowActive)
	assert.Equal(t, FlipDeactivate, flip)
}

func TestActivationLevelBuckets(t *testing.T) {
	assert.Equal(t, graph.LevelDominant, ActivationLevel(2.5, 1.0))
	assert.Equal(t, graph.LevelStrong, ActivationLevel(1.3, 1.0))
	assert.Equal(t, graph.LevelModerate, ActivationLevel(1.0, 1.0))
	assert.Equal(t, graph.LevelWeak, ActivationLevel(0.5, 1.0))
	assert.Equal(t, graph.LevelAbsent, ActivationLevel(0.1, 1.0))
}

func TestAdvanceLifecyclePromotesCandidateToProvisional(t *testing.T) {
	cfg := config.Defaults()
	ent := &graph.Entity{StabilityState: graph.StabilityCandidate}
	for i := 0; i < sustainedFramesForPromotion; i++ {
		UpdateQuality(ent, cfg, true, 1.0, 1.0, 1.0, 1.0)
	}
	var result LifecycleResult
	for i := 0; i < sustainedFramesForPromotion+1; i++ {
		result = AdvanceLifecycle(ent)
		if result.Fired {
			break
		}
	}
	assert.True(t, result.Fired)
	assert.Equal(t, graph.StabilityProvisional, result.NewState)
	assert.Equal(t, TriggerPromotion, result.Trigger)
}

func TestAdvanceLifecycleMarksForDissolutionOnSustainedLowQuality(t *testing.T) {
	ent := &graph.Entity{StabilityState: graph.StabilityProvisional}
	var result LifecycleResult
	for i := 0; i < sustainedFramesForDemotion+1; i++ {
		result = AdvanceLifecycle(ent)
		if result.Fired {
			break
		}
	}
	assert.True(t, ent.MarkedForDissolution)
	assert.Equal(t, TriggerDissolution, result.Trigger)
}

func TestScoreCandidateWeightedSum(t *testing.T) {
	w := DefaultHungerWeights()
	current := &graph.Entity{CentroidEmbedding: []float64{1, 0}}
	candidate := &graph.Entity{CentroidEmbedding: []float64{0, 1}, Members: map[string]float64{"a": 1.0}}
	score := ScoreCandidate(w, current, candidate, nil, 0.5)
	assert.Greater(t, score.Total, 0.0)
}

func TestSoftmaxSumsToOne(t *testing.T) {
	weights := Softmax([]float64{1, 2, 3}, 1.0)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestArgMaxPicksHighest(t *testing.T) {
	scores := []HungerScore{{EntityID: "a", Total: 0.1}, {EntityID: "b", Total: 0.9}}
	assert.Equal(t, 1, ArgMax(scores))
}

func TestBoundaryEndpointsPicksMaxEnergySource(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "hi", E: 0.9}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "lo", E: 0.1}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "target", E: 0.1}))
	current := &graph.Entity{Members: map[string]float64{"hi": 1.0, "lo": 1.0}}
	next := &graph.Entity{Members: map[string]float64{"target": 1.0}}

	src, tgt, ok := BoundaryEndpoints(g, current, next, map[string]float64{"target": 0.8})
	assert.True(t, ok)
	assert.Equal(t, "hi", src)
	assert.Equal(t, "target", tgt)
}

func TestBoundaryLearnUpdatesLinkState(t *testing.T) {
	link := &graph.Link{LogWeight: 0.0}
	BoundaryLearn(link, 0.1, 1.0, 0.5, 0.2, 2.0)
	assert.InDelta(t, 0.1, link.LogWeight, 1e-9)
	assert.Equal(t, 1, link.BoundaryStrideCount)
	assert.InDelta(t, 0.1, link.SemanticDistance, 1e-9)
}
