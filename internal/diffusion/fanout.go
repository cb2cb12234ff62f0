package diffusion

import (
	"sort"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/graph"
)

// Strategy is the fanout regime chosen purely from local outdegree.
type Strategy string

const (
	StrategySelective  Strategy = "SELECTIVE"
	StrategyBalanced   Strategy = "BALANCED"
	StrategyExhaustive Strategy = "EXHAUSTIVE"
)

// TaskMode gates the optional task-adaptive fanout override.
type TaskMode string

const (
	TaskFocused    TaskMode = "focused"
	TaskBalanced   TaskMode = "balanced"
	TaskDivergent  TaskMode = "divergent"
	TaskMethodical TaskMode = "methodical"
)

// ChooseStrategy classifies outdegree d into a fanout regime and its base
// top_k.
func ChooseStrategy(cfg *config.Config, d int) (Strategy, int) {
	switch {
	case d > cfg.FanoutHigh:
		return StrategySelective, cfg.SelectiveTopK
	case d >= cfg.FanoutLow:
		return StrategyBalanced, (d + 1) / 2
	default:
		return StrategyExhaustive, d
	}
}

// ApplyWMPressure reduces top_k when working-memory headroom is tight
//: `top_k ← max(MIN_TOPK, 0.6·top_k)` when headroom < 0.2.
func ApplyWMPressure(cfg *config.Config, topK int, wmHeadroom float64) int {
	if wmHeadroom >= cfg.WMPressureThreshold {
		return topK
	}
	reduced := int(0.6 * float64(topK))
	if reduced < cfg.MinTopK {
		reduced = cfg.MinTopK
	}
	return reduced
}

// ApplyTaskMode applies the task-adaptive override when enabled.
// d is the outdegree: the ceiling for divergent and the value methodical
// returns; focused caps at 2 regardless of d.
func ApplyTaskMode(cfg *config.Config, topK int, d int, mode TaskMode) int {
	if !cfg.FanoutTaskModeEnabled {
		return topK
	}
	switch mode {
	case TaskFocused:
		if topK > 2 {
			return 2
		}
		return topK
	case TaskDivergent:
		scaled := int(1.5 * float64(topK))
		if scaled > d {
			scaled = d
		}
		return scaled
	case TaskMethodical:
		return d
	default: // balanced — structure default
		return topK
	}
}

// Prune picks the top_k candidates by raw log_weight (the quick heuristic
// pass, ) before the full LinkCost scoring runs on the reduced set.
func Prune(g *graph.Graph, candidates []*graph.Link, topK int) []*graph.Link {
	if topK >= len(candidates) {
		return candidates
	}
	sorted := make([]*graph.Link, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LogWeight > sorted[j].LogWeight
	})
	return sorted[:topK]
}

// ResolveTopK runs the full fanout pipeline: strategy by outdegree, WM
// pressure reduction, task-mode override, returning the final top_k and
// the strategy label for diagnostics.
func ResolveTopK(cfg *config.Config, d int, wmHeadroom float64, mode TaskMode) (Strategy, int) {
	strategy, topK := ChooseStrategy(cfg, d)
	topK = ApplyWMPressure(cfg, topK, wmHeadroom)
	topK = ApplyTaskMode(cfg, topK, d, mode)
	if topK > d {
		topK = d
	}
	if topK < 0 {
		topK = 0
	}
	return strategy, topK
}
