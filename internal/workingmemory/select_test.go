package workingmemory

import (
	"testing"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCostCapsMemberCount(t *testing.T) {
	small := &graph.Entity{Members: map[string]float64{"a": 1}}
	big := &graph.Entity{Members: map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1, "f": 1, "g": 1}}
	assert.Equal(t, 60, TokenCost(small))
	assert.Equal(t, 100, TokenCost(big)) // capped at 5 members
}

func TestCandidatesColdStartFallback(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddEntity(&graph.Entity{ID: "e1", Active: false}))
	require.NoError(t, g.AddEntity(&graph.Entity{ID: "e2", Active: false}))
	energy := map[string]float64{"e1": 0.1, "e2": 0.9}

	cands := Candidates(g, energy)
	require.Len(t, cands, 2)
	assert.Equal(t, "e2", cands[0].ID)
}

func TestCandidatesPrefersActiveOverFallback(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddEntity(&graph.Entity{ID: "e1", Active: true}))
	require.NoError(t, g.AddEntity(&graph.Entity{ID: "e2", Active: false}))

	cands := Candidates(g, nil)
	require.Len(t, cands, 1)
	assert.Equal(t, "e1", cands[0].ID)
}

func TestSelectRespectsBudget(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddEntity(&graph.Entity{ID: "e1", Active: true, Members: map[string]float64{"a": 1}}))
	require.NoError(t, g.AddEntity(&graph.Entity{ID: "e2", Active: true, Members: map[string]float64{"a": 1}}))
	energy := map[string]float64{"e1": 1.0, "e2": 1.0}

	selected, tokensUsed := Select(g, energy, 60)
	assert.Len(t, selected, 1)
	assert.LessOrEqual(t, tokensUsed, 60)
}

func TestSelectCapsAtSevenEntities(t *testing.T) {
	g := graph.New()
	energy := map[string]float64{}
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		require.NoError(t, g.AddEntity(&graph.Entity{ID: id, Active: true}))
		energy[id] = 1.0
	}
	selected, _ := Select(g, energy, 10000)
	assert.LessOrEqual(t, len(selected), 7)
}

func TestTopMembersSortedByEnergyDescending(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "lo", E: 0.1}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "hi", E: 0.9}))
	ent := &graph.Entity{Members: map[string]float64{"lo": 1, "hi": 1}}

	top := TopMembers(g, ent)
	require.Len(t, top, 2)
	assert.Equal(t, "hi", top[0])
}

func TestBuildEventShape(t *testing.T) {
	cfg := config.Defaults()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "n1", E: 0.5}))
	ent := &graph.Entity{ID: "e1", Members: map[string]float64{"n1": 1}}
	require.NoError(t, g.AddEntity(ent))

	payload := BuildEvent(g, cfg, []*graph.Entity{ent}, 60)
	assert.Equal(t, "entity_first", payload.Mode)
	assert.Equal(t, []string{"e1"}, payload.SelectedEntities)
	assert.Equal(t, 60, payload.TokenBudgetUsed)
	assert.Contains(t, payload.SelectedNodes, "n1")
}
