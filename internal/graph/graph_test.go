package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetNode(t *testing.T) {
	g := New()
	n := &Node{ID: "n1", NodeType: NodeTypeConcept, Name: "test"}

	require.NoError(t, g.AddNode(n))

	got, ok := g.GetNode("n1")
	require.True(t, ok)
	assert.Equal(t, "test", got.Name)
}

func TestAddNodeDuplicateRejected(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{ID: "n1", NodeType: NodeTypeConcept}))

	err := g.AddNode(&Node{ID: "n1", NodeType: NodeTypeConcept})
	assert.Error(t, err)
}

func TestAddLinkMissingEndpointErrors(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{ID: "n1", NodeType: NodeTypeConcept}))

	err := g.AddLink(&Link{ID: "l1", SourceID: "n1", SourceKind: EndpointNode, TargetID: "missing", TargetKind: EndpointNode, LinkType: LinkAssociation})
	assert.Error(t, err)
}

func TestAddLinkDuplicateOnLoadTolerated(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{ID: "n1", NodeType: NodeTypeConcept}))
	require.NoError(t, g.AddNode(&Node{ID: "n2", NodeType: NodeTypeConcept}))

	l := &Link{ID: "l1", SourceID: "n1", SourceKind: EndpointNode, TargetID: "n2", TargetKind: EndpointNode, LinkType: LinkAssociation}
	require.NoError(t, g.AddLink(l))
	// Loading the same link id a second time must be a no-op, not an error.
	require.NoError(t, g.AddLink(l))

	assert.Len(t, g.OutgoingLinks("n1"), 1)
}

func TestRemoveNodeCascadesLinks(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{ID: "n1", NodeType: NodeTypeConcept}))
	require.NoError(t, g.AddNode(&Node{ID: "n2", NodeType: NodeTypeConcept}))
	require.NoError(t, g.AddLink(&Link{ID: "l1", SourceID: "n1", SourceKind: EndpointNode, TargetID: "n2", TargetKind: EndpointNode, LinkType: LinkAssociation}))

	require.NoError(t, g.RemoveNode("n1"))

	_, ok := g.GetLink("l1")
	assert.False(t, ok, "incident link must be cascaded away")
}

func TestRemoveEntityDropsBelongsTo(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{ID: "n1", NodeType: NodeTypeConcept}))
	require.NoError(t, g.AddEntity(&Entity{ID: "entity_fn_1", Kind: EntityFunctional}))
	require.NoError(t, g.AddLink(&Link{ID: "bt1", SourceID: "n1", SourceKind: EndpointNode, TargetID: "entity_fn_1", TargetKind: EndpointEntity, LinkType: LinkBelongsTo, LogWeight: 0}))

	ent, _ := g.GetEntity("entity_fn_1")
	assert.Contains(t, ent.Members, "n1")

	require.NoError(t, g.RemoveEntity("entity_fn_1"))
	_, ok := g.GetLink("bt1")
	assert.False(t, ok)
}

func TestGetNodesByType(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{ID: "n1", NodeType: NodeTypeConcept}))
	require.NoError(t, g.AddNode(&Node{ID: "n2", NodeType: NodeTypeTask}))

	concepts := g.GetNodesByType(NodeTypeConcept)
	assert.Len(t, concepts, 1)
}
