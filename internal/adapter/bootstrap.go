package adapter

import (
	"strings"

	"github.com/EchoCog/echocore/internal/graph"
)

// MatchKeywords seeds BELONGS_TO(node→entity) links for every node whose
// name or description contains one of seed.Keywords, with an initial
// log_weight proportional to how many keywords matched. No normalization
// happens here: the graph records each membership as
// clamp(exp(log_weight), 0, 1), and entity.NormalizedMembership normalizes
// memberships over the entity when they are read.
func MatchKeywords(g *graph.Graph, seeds []FunctionalEntitySeed) error {
	for _, seed := range seeds {
		ent, ok := g.GetEntity(seed.ID)
		if !ok {
			ent = &graph.Entity{
				ID: seed.ID, Name: seed.Name, Kind: graph.EntityFunctional,
				Members: map[string]float64{},
			}
			if err := g.AddEntity(ent); err != nil {
				return err
			}
		}

		for _, n := range g.AllNodes() {
			haystack := strings.ToLower(n.Name + " " + n.Description)
			matches := 0
			for _, kw := range seed.Keywords {
				if strings.Contains(haystack, strings.ToLower(kw)) {
					matches++
				}
			}
			if matches == 0 {
				continue
			}
			weight := float64(matches) / float64(len(seed.Keywords))
			linkID := seed.ID + "-belongs-" + n.ID
			if _, exists := g.GetLink(linkID); exists {
				continue
			}
			if err := g.AddLink(&graph.Link{
				ID: linkID, SourceID: n.ID, SourceKind: graph.EndpointNode,
				TargetID: ent.ID, TargetKind: graph.EndpointEntity,
				LinkType: graph.LinkBelongsTo, LogWeight: weight,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
