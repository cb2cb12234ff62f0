package criticality

import (
	"testing"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, n int) *graph.Graph {
	t.Helper()
	g := graph.New()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		ids[i] = id
		require.NoError(t, g.AddNode(&graph.Node{ID: id, NodeType: graph.NodeTypeConcept, E: 1.0}))
	}
	for i := 0; i < n-1; i++ {
		require.NoError(t, g.AddLink(&graph.Link{
			ID: ids[i] + "-" + ids[i+1], SourceID: ids[i], SourceKind: graph.EndpointNode,
			TargetID: ids[i+1], TargetKind: graph.EndpointNode, LinkType: graph.LinkAssociation,
		}))
	}
	return g
}

func TestProxyFullyActiveChainReturnsOne(t *testing.T) {
	g := buildChain(t, 3)
	active := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	assert.Equal(t, 1.0, Proxy(g, active))
}

func TestProxyRatio(t *testing.T) {
	g := buildChain(t, 3)
	// only b,c active: b has one incoming (from a, not active-filtered by
	// Proxy's inActive count, which counts all incoming links regardless of
	// source activity) and one outgoing to c (active).
	active := map[string]struct{}{"b": {}, "c": {}}
	got := Proxy(g, active)
	assert.Greater(t, got, 0.0)
}

func TestPowerIterationEmptyGraph(t *testing.T) {
	g := graph.New()
	rho := PowerIteration(g, nil, 1.0, 1.0, 20)
	assert.Equal(t, 1.0, rho)
}

func TestPowerIterationDisconnectedNodesZero(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "lonely", NodeType: graph.NodeTypeConcept}))
	rho := PowerIteration(g, []string{"lonely"}, 1.0, 1.0, 20)
	assert.Equal(t, 0.0, rho)
}

func TestClassifyBands(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, Subcritical, Classify(cfg, 0.5))
	assert.Equal(t, Critical, Classify(cfg, 1.0))
	assert.Equal(t, Supercritical, Classify(cfg, 1.5))
}

func TestStepClampsDeltaWithinBounds(t *testing.T) {
	cfg := config.Defaults()
	c := NewController(cfg, cfg.ActivationDecayBase, 1.0)

	for i := 0; i < 50; i++ {
		res := c.Step(2.0)
		assert.GreaterOrEqual(t, res.DeltaAfter, cfg.ActivationDecayMin)
		assert.LessOrEqual(t, res.DeltaAfter, cfg.ActivationDecayMax)
	}
}

func TestStepSupercriticalRaisesThresholdMultiplier(t *testing.T) {
	cfg := config.Defaults()
	c := NewController(cfg, cfg.ActivationDecayBase, 1.0)
	res := c.Step(1.5)
	assert.Equal(t, Supercritical, res.SafetyState)
	assert.Greater(t, res.ThresholdMultiplier, 1.0)
}

func TestShouldRunPowerIterationPeriodic(t *testing.T) {
	cfg := config.Defaults()
	c := NewController(cfg, cfg.ActivationDecayBase, 1.0)

	fired := 0
	for i := 0; i < 40; i++ {
		if c.ShouldRunPowerIteration() {
			fired++
		}
	}
	assert.Equal(t, 2, fired)
}
