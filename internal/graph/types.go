// Package graph implements the in-memory weighted directed graph container
// that the engine animates each frame: nodes, links, and subentities with
// bidirectional adjacency. The container only performs mutation — add,
// remove, get. All dynamics (decay, diffusion, activation) live in sibling
// packages that operate on a *Graph by reference.
package graph

import "time"

// Scope classifies who a node/link/entity belongs to.
type Scope string

const (
	ScopePersonal       Scope = "personal"
	ScopeOrganizational Scope = "organizational"
	ScopeEcosystem      Scope = "ecosystem"
)

// NodeType enumerates the node kinds the decay and fanout tables key off of.
type NodeType string

const (
	NodeTypeConcept NodeType = "Concept"
	NodeTypeMemory  NodeType = "Memory"
	NodeTypeTask    NodeType = "Task"
	NodeTypeGoal    NodeType = "Goal"
	NodeTypePerson  NodeType = "Person"
	NodeTypeEvent   NodeType = "Event"
)

// LinkType enumerates link kinds. RELATES_TO links are entity-to-entity and
// are only ever created by boundary strides; BELONGS_TO links are
// node-to-entity memberships created at bootstrap and refined by learning.
type LinkType string

const (
	LinkAssociation LinkType = "ASSOCIATION"
	LinkCausal      LinkType = "CAUSAL"
	LinkTemporal    LinkType = "TEMPORAL"
	LinkBelongsTo   LinkType = "BELONGS_TO"
	LinkRelatesTo   LinkType = "RELATES_TO"
)

// EntityKind distinguishes bootstrap provenance. The bootstrap hooks use
// each seed's id as given and add no entity_fn_/entity_sem_ prefix.
type EntityKind string

const (
	EntityFunctional EntityKind = "functional"
	EntitySemantic   EntityKind = "semantic"
)

// StabilityState is an entity's lifecycle stage.
type StabilityState string

const (
	StabilityCandidate   StabilityState = "candidate"
	StabilityProvisional StabilityState = "provisional"
	StabilityMature      StabilityState = "mature"
)

// ActivationLevel buckets an entity's runtime energy relative to its threshold.
type ActivationLevel string

const (
	LevelDominant ActivationLevel = "dominant"
	LevelStrong   ActivationLevel = "strong"
	LevelModerate ActivationLevel = "moderate"
	LevelWeak     ActivationLevel = "weak"
	LevelAbsent   ActivationLevel = "absent"
)

// Affect is the minimal 2-D [valence, arousal] vector carried by nodes and
// entities for the emotion gates and the arousal-driven scheduler
// factor.
type Affect struct {
	Valence float64
	Arousal float64
}

// Magnitude returns ||A||.
func (a Affect) Magnitude() float64 {
	return magnitude(a.Valence, a.Arousal)
}

// Bitemporal carries the bitemporal fields the external store uses; the
// runtime treats them strictly read-only.
type Bitemporal struct {
	ValidAt      time.Time
	InvalidateAt *time.Time
	CreatedAt    time.Time
	ExpiredAt    *time.Time
}

// OverlayMap is the sparse per-entity log-weight delta shared by Node and
// Link: effective weight for entity E is Base + Overlays[E].
type OverlayMap map[string]float64

// Get returns the overlay for an entity, defaulting to 0.
func (o OverlayMap) Get(entityID string) float64 {
	if o == nil {
		return 0
	}
	return o[entityID]
}

// Node is a single graph vertex. Exactly one logical activation energy lives
// here — never per-entity.
type Node struct {
	ID          string
	VID         string
	NodeType    NodeType
	Scope       Scope
	Name        string
	Description string
	Embedding   []float64

	E     float64 // activation energy, E >= 0
	Theta float64 // adaptive activation threshold

	LogWeight        float64
	LogWeightOverlay OverlayMap

	EMATraceSeats      float64
	EMAWMPresence      float64
	EMAFormationQuality float64
	LastUpdateTime     time.Time

	Affect        *Affect
	Consolidated  bool

	Bitemporal Bitemporal

	// Adjacency, rebuilt by the Graph on load/mutation — never serialized.
	OutgoingLinks []string
	IncomingLinks []string
}

// EffectiveLogWeight returns LogWeight plus the overlay for entityID (or the
// bare global weight if entityID is "").
func (n *Node) EffectiveLogWeight(entityID string) float64 {
	if entityID == "" {
		return n.LogWeight
	}
	return n.LogWeight + n.LogWeightOverlay.Get(entityID)
}

// EndpointKind tags which table a Link endpoint resolves against, since Go
// has no duck-typed Node-or-Entity union.
type EndpointKind string

const (
	EndpointNode   EndpointKind = "node"
	EndpointEntity EndpointKind = "entity"
)

// Link is a directed, weighted edge. Links never hold activation energy;
// they only transport ΔE during a stride.
type Link struct {
	ID        string
	VID       string
	SourceID  string
	SourceKind EndpointKind
	TargetID  string
	TargetKind EndpointKind
	LinkType  LinkType
	Subentity string // creator entity id, if any

	LogWeight        float64
	LogWeightOverlay OverlayMap

	EMATraceSeats       float64
	EMAPhi              float64
	EMAFormationQuality float64
	PrecedenceCount     int

	EmotionVector *Affect // transport-only, never stored energy

	Bitemporal Bitemporal

	BoundaryStrideCount int
	SemanticDistance    float64
}

// EffectiveLogWeight mirrors Node.EffectiveLogWeight.
func (l *Link) EffectiveLogWeight(entityID string) float64 {
	if entityID == "" {
		return l.LogWeight
	}
	return l.LogWeight + l.LogWeightOverlay.Get(entityID)
}

// Membership pairs a node with its BELONGS_TO weight into an entity.
type Membership struct {
	NodeID string
	Weight float64 // raw weight before normalization
}

// Entity (subentity) is a weighted neighborhood of nodes. Its energy is
// always derived from members — never stored durably.
type Entity struct {
	ID     string
	Name   string
	Kind   EntityKind
	Color  string
	CentroidEmbedding []float64

	Members map[string]float64 // node id -> raw BELONGS_TO weight

	EMAActive           float64
	CoherenceEMA        float64
	EMAWMPresence       float64
	EMATraceSeats       float64
	EMAFormationQuality float64

	StabilityState      StabilityState
	ActivateStreak      int
	DeactivateStreak    int
	FramesSinceCreation int
	MarkedForDissolution bool

	TaskProgressRate      float64
	EnergyEfficiency      float64
	IdentityFlipCount     int
	PreviousDominantID    string

	CoherencePersistence      float64
	PrevAffectForCoherence    *Affect
	PatternEffectiveness      map[string]float64
	RuminationFramesConsecutive int

	// Runtime-derived, recomputed every frame — never persisted mid-frame.
	EnergyRuntime           float64
	ThresholdRuntime        float64
	ActivationLevelRuntime  ActivationLevel
	Active                  bool
}

// QualityScore is the geometric mean of the five quality EMAs.
func (e *Entity) QualityScore() float64 {
	vals := []float64{
		clampUnit(e.EMAActive),
		clampUnit(e.CoherenceEMA),
		clampUnit(e.EMAWMPresence),
		clampUnit(e.EMATraceSeats),
		clampUnit(e.EMAFormationQuality),
	}
	product := 1.0
	for _, v := range vals {
		if v <= 0 {
			return 0
		}
		product *= v
	}
	return geoMeanPow(product, len(vals))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
