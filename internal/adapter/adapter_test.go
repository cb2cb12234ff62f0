package adapter

import (
	"testing"

	"github.com/EchoCog/echocore/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnergyValueV1ExtractsFirstValue(t *testing.T) {
	v1 := map[string]float64{"my_entity": 0.42}
	assert.Equal(t, 0.42, ParseEnergyValue(v1))
}

func TestParseEnergyValueV2UsesDefaultKey(t *testing.T) {
	v2 := map[string]float64{"default": 0.7, "other": 0.1}
	assert.Equal(t, 0.7, ParseEnergyValue(v2))
}

func TestParseEnergyValueEmptyReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, ParseEnergyValue(nil))
}

func TestMatchKeywordsSeedsBelongsTo(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "n1", Name: "Morning Routine", Description: "a daily habit"}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "n2", Name: "Unrelated", Description: "nothing here"}))

	seeds := []FunctionalEntitySeed{
		{ID: "habits", Name: "Habits", Kind: "functional", Keywords: []string{"routine", "habit"}},
	}
	require.NoError(t, MatchKeywords(g, seeds))

	ent, ok := g.GetEntity("habits")
	require.True(t, ok)
	_, hasN1 := ent.Members["n1"]
	_, hasN2 := ent.Members["n2"]
	assert.True(t, hasN1)
	assert.False(t, hasN2)
}
