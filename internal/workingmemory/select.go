// Package workingmemory implements entity-first working-memory
// selection: candidate gathering (with a cold-start fallback), per-entity
// scoring (energy-per-token plus a diversity bonus), greedy selection
// under a token budget, and the wm.emit event construction. The
// greedy-under-budget shape is grounded on core/echobeats/phase_manager.go's
// phase-budget allocation (walk candidates by score, accept while the
// running total stays under a cap), generalized from echobeat phases to
// working-memory token budget.
package workingmemory

import (
	"sort"

	"github.com/EchoCog/echocore/internal/config"
	"github.com/EchoCog/echocore/internal/events"
	"github.com/EchoCog/echocore/internal/graph"
)

const (
	maxSelectedEntities = 7
	topMembersPerEntity = 5
	baseTokenCost       = 50
	perMemberTokenCost  = 10
	maxMembersForCost   = 5
)

// Candidates returns the active entities, or — if none are active — the
// top 7 entities by energy as a cold-start fallback.
func Candidates(g *graph.Graph, entityEnergy map[string]float64) []*graph.Entity {
	var active []*graph.Entity
	for _, e := range g.AllEntities() {
		if e.Active {
			active = append(active, e)
		}
	}
	if len(active) > 0 {
		return active
	}

	all := g.AllEntities()
	sort.Slice(all, func(i, j int) bool {
		return entityEnergy[all[i].ID] > entityEnergy[all[j].ID]
	})
	if len(all) > maxSelectedEntities {
		all = all[:maxSelectedEntities]
	}
	return all
}

// TokenCost estimates the token cost of including an entity:
// `50 + 10 · min(5, member_count)`.
func TokenCost(ent *graph.Entity) int {
	n := len(ent.Members)
	if n > maxMembersForCost {
		n = maxMembersForCost
	}
	return baseTokenCost + perMemberTokenCost*n
}

// scoredCandidate pairs an entity with its running score for greedy
// selection.
type scoredCandidate struct {
	entity *graph.Entity
	energy float64
	cost   int
	score  float64
}

// Select runs the full greedy selection: score every candidate by
// energy-per-token plus a diversity bonus against already-selected
// centroids, then greedily accept under budgetTokens up to 7 entities.
// Returns the selected entities in acceptance order and the tokens used.
func Select(g *graph.Graph, entityEnergy map[string]float64, budgetTokens int) ([]*graph.Entity, int) {
	pool := Candidates(g, entityEnergy)
	if len(pool) == 0 {
		return nil, 0
	}

	remainingCost := make([]scoredCandidate, len(pool))
	for i, ent := range pool {
		remainingCost[i] = scoredCandidate{entity: ent, energy: entityEnergy[ent.ID], cost: TokenCost(ent)}
	}

	var selected []*graph.Entity
	var selectedCentroids [][]float64
	tokensUsed := 0

	for len(selected) < maxSelectedEntities && len(remainingCost) > 0 {
		bestIdx := -1
		bestScore := -1.0
		for i, c := range remainingCost {
			diversity := diversityBonus(c.entity.CentroidEmbedding, selectedCentroids)
			score := c.energy/float64(c.cost) + diversity
			remainingCost[i].score = score
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		chosen := remainingCost[bestIdx]
		if tokensUsed+chosen.cost > budgetTokens {
			remainingCost = append(remainingCost[:bestIdx], remainingCost[bestIdx+1:]...)
			continue
		}
		selected = append(selected, chosen.entity)
		selectedCentroids = append(selectedCentroids, chosen.entity.CentroidEmbedding)
		tokensUsed += chosen.cost
		remainingCost = append(remainingCost[:bestIdx], remainingCost[bestIdx+1:]...)
	}

	return selected, tokensUsed
}

// diversityBonus is `0.5 · (1 − max_cos_sim_to_already_selected_centroid)`.
// A candidate with no embedding, or the first pick, gets full
// bonus (0.5) since there is nothing to compare against yet.
func diversityBonus(centroid []float64, selected [][]float64) float64 {
	if centroid == nil || len(selected) == 0 {
		return 0.5
	}
	maxSim := -1.0
	for _, s := range selected {
		if s == nil {
			continue
		}
		sim := graph.CosineSimilarity(centroid, s)
		if sim > maxSim {
			maxSim = sim
		}
	}
	return 0.5 * (1 - maxSim)
}

// TopMembers returns up to 5 member node ids sorted by descending energy.
func TopMembers(g *graph.Graph, ent *graph.Entity) []string {
	type scored struct {
		id string
		e  float64
	}
	members := make([]scored, 0, len(ent.Members))
	for id := range ent.Members {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		members = append(members, scored{id, n.E})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].e > members[j].e })
	if len(members) > topMembersPerEntity {
		members = members[:topMembersPerEntity]
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.id
	}
	return ids
}

// BuildEvent constructs the wm.emit payload from a Select result.
func BuildEvent(g *graph.Graph, cfg *config.Config, selected []*graph.Entity, tokensUsed int) events.WMEmitPayload {
	payload := events.WMEmitPayload{
		Mode:            "entity_first",
		TokenBudgetUsed: tokensUsed,
	}
	var allNodes []string
	for _, ent := range selected {
		payload.SelectedEntities = append(payload.SelectedEntities, ent.ID)
		payload.EntityTokenShares = append(payload.EntityTokenShares, events.EntityTokenShare{
			ID: ent.ID, Tokens: TokenCost(ent),
		})
		allNodes = append(allNodes, TopMembers(g, ent)...)
	}
	payload.SelectedNodes = allNodes
	return payload
}
