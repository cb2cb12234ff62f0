package threshold

import (
	"testing"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
	"github.com/stretchr/testify/assert"
)

func TestBaseScalesWithActiveFraction(t *testing.T) {
	cfg := config.Defaults()

	none := Base(cfg, 0, 100)
	half := Base(cfg, 50, 100)
	all := Base(cfg, 100, 100)

	assert.Equal(t, cfg.BaseThreshold, none)
	assert.Greater(t, half, none)
	assert.Greater(t, all, half)
}

func TestAffectReductionNeverRaisesThreshold(t *testing.T) {
	cfg := config.Defaults()
	a := &graph.Affect{Valence: 0.8, Arousal: 0.8}
	emo := &graph.Affect{Valence: 0.8, Arousal: 0.8}

	h := AffectReduction(cfg, a, emo)
	assert.GreaterOrEqual(t, h, 0.0)
	assert.LessOrEqual(t, h, cfg.AffectiveThresholdLambdaFactor)
}

func TestAffectReductionZeroWithoutVectors(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, 0.0, AffectReduction(cfg, nil, nil))
}

func TestThetaAppliesControllerMultiplierLast(t *testing.T) {
	cfg := config.Defaults()
	theta := Theta(cfg, 10, 100, nil, nil, 1.5)
	base := Base(cfg, 10, 100)
	assert.InDelta(t, base*1.5, theta, 1e-9)
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(1.0, 1.0))
	assert.True(t, IsActive(1.1, 1.0))
	assert.False(t, IsActive(0.9, 1.0))
}
