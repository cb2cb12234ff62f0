// Package events defines the typed per-frame event schema the engine emits
// for external visualizers and the Emitter that buffers, samples, and
// dispatches them. The Emitter has global subscribers only, a bounded
// history ring and panic-guarded dispatch; when its queue is full the new
// event is dropped.
package events

import "time"

// Type is the event taxonomy key.
type Type string

const (
	TypeTickFrame           Type = "tick_frame.v1"
	TypeCriticalityState    Type = "criticality.state"
	TypeDecayTick           Type = "decay.tick"
	TypeSubentityFlip       Type = "subentity.flip"
	TypeSubentityLifecycle  Type = "subentity.lifecycle"
	TypeNodeFlip            Type = "node.flip"
	TypeLinkFlowSummary     Type = "link.flow.summary"
	TypeWMEmit              Type = "wm.emit"
	TypeStrideExec          Type = "stride.exec"
	TypeWeightsUpdatedTrace Type = "weights.updated.trace"
	TypeSafeModeEnter       Type = "safe_mode.enter"
	TypeSafeModeExit        Type = "safe_mode.exit"
)

// Envelope carries every event. Every event carries v, frame_id, and t_ms;
// consumers order the stream by (agent_id, frame_id).
type Envelope struct {
	V       int         `json:"v"`
	AgentID string      `json:"agent_id"`
	FrameID uint64      `json:"frame_id"`
	TMs     int64       `json:"t_ms"`
	Type    Type        `json:"type"`
	Payload interface{} `json:"payload"`
}

// EntityData is the per-entity aggregate carried on the tick_frame.v1
// heartbeat.
type EntityData struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Kind             string  `json:"kind"`
	Color            string  `json:"color,omitempty"`
	Energy           float64 `json:"energy"`
	Theta            float64 `json:"theta"`
	Active           bool    `json:"active"`
	MembersCount     int     `json:"members_count"`
	Coherence        float64 `json:"coherence"`
	EmotionValence   float64 `json:"emotion_valence,omitempty"`
	EmotionArousal   float64 `json:"emotion_arousal,omitempty"`
	EmotionMagnitude float64 `json:"emotion_magnitude,omitempty"`
}

// TickFramePayload is the observability heartbeat — mandatory every frame,
// the only event whose absence is itself a tripwire condition.
type TickFramePayload struct {
	Entities        []EntityData `json:"entities"`
	NodesActive     int          `json:"nodes_active"`
	NodesTotal      int          `json:"nodes_total"`
	StridesExecuted int          `json:"strides_executed"`
	StrideBudget    int          `json:"stride_budget"`
	Rho             float64      `json:"rho"`
	Coherence       float64      `json:"coherence"`
	TickDurationMs  float64      `json:"tick_duration_ms"`
}

type RhoBreakdown struct {
	Global          float64 `json:"global"`
	ProxyBranching  float64 `json:"proxy_branching"`
	VarWindow       float64 `json:"var_window"`
}

type BeforeAfter struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// CriticalityStatePayload mirrors the controller's per-frame output.
type CriticalityStatePayload struct {
	Rho                RhoBreakdown `json:"rho"`
	SafetyState        string       `json:"safety_state"`
	Delta              BeforeAfter  `json:"delta"`
	Alpha              BeforeAfter  `json:"alpha"`
	ControllerOutput   float64      `json:"controller_output"`
	OscillationIndex   float64      `json:"oscillation_index"`
	ThresholdMultiplier float64     `json:"threshold_multiplier"`
}

type EnergyBeforeAfterLost struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Lost   float64 `json:"lost"`
}

type WeightDecayCounts struct {
	Nodes int `json:"nodes"`
	Links int `json:"links"`
}

// DecayTickPayload mirrors one frame's decay pass.
type DecayTickPayload struct {
	DeltaE              float64               `json:"delta_E"`
	DeltaW              float64               `json:"delta_W"`
	NodesDecayed        int                   `json:"nodes_decayed"`
	Energy              EnergyBeforeAfterLost `json:"energy"`
	WeightDecay         WeightDecayCounts     `json:"weight_decay"`
	HalfLivesActivation map[string]float64    `json:"half_lives_activation,omitempty"`
	AUCActivation       float64               `json:"auc_activation"`
}

// SubentityFlipPayload mirrors one entity's activation flip.
type SubentityFlipPayload struct {
	EntityID        string  `json:"entity_id"`
	FlipDirection   string  `json:"flip_direction"` // "activate" | "deactivate"
	Energy          float64 `json:"energy"`
	Threshold       float64 `json:"threshold"`
	ActivationLevel string  `json:"activation_level"`
	MemberCount     int     `json:"member_count"`
	ActiveMembers   int     `json:"active_members"`
}

// SubentityLifecyclePayload mirrors one entity's lifecycle transition.
type SubentityLifecyclePayload struct {
	EntityID     string  `json:"entity_id"`
	OldState     string  `json:"old_state"`
	NewState     string  `json:"new_state"`
	QualityScore float64 `json:"quality_score"`
	Trigger      string  `json:"trigger"` // promotion | demotion | dissolution
	Reason       string  `json:"reason"`
}

// NodeFlipPayload mirrors one node's activation flip.
type NodeFlipPayload struct {
	Node  string  `json:"node"`
	EPre  float64 `json:"E_pre"`
	EPost float64 `json:"E_post"`
	Theta float64 `json:"Theta"`
}

type LinkFlow struct {
	LinkID    string   `json:"link_id"`
	Count     int      `json:"count"`
	EntityIDs []string `json:"entity_ids"`
}

// LinkFlowSummaryPayload mirrors a batch of link traversal counts.
type LinkFlowSummaryPayload struct {
	Flows []LinkFlow `json:"flows"`
}

type EntityTokenShare struct {
	ID     string `json:"id"`
	Tokens int    `json:"tokens"`
}

// WMEmitPayload mirrors one frame's working-memory selection.
type WMEmitPayload struct {
	Mode             string             `json:"mode"`
	SelectedEntities []string           `json:"selected_entities"`
	EntityTokenShares []EntityTokenShare `json:"entity_token_shares"`
	SelectedNodes    []string           `json:"selected_nodes"`
	TokenBudgetUsed  int                `json:"token_budget_used"`
}

// StrideExecPayload mirrors one executed stride's cost breakdown and energy transfer.
type StrideExecPayload struct {
	SrcNode            string  `json:"src_node"`
	DstNode            string  `json:"dst_node"`
	LinkID             string  `json:"link_id"`
	Phi                float64 `json:"phi"`
	Ease               float64 `json:"ease"`
	EaseCost           float64 `json:"ease_cost"`
	GoalAffinity       float64 `json:"goal_affinity"`
	ResMult            float64 `json:"res_mult"`
	ResScore           float64 `json:"res_score"`
	CompMult           float64 `json:"comp_mult"`
	EmotionMult        float64 `json:"emotion_mult"`
	BaseCost           float64 `json:"base_cost"`
	TotalCost          float64 `json:"total_cost"`
	Reason             string  `json:"reason"`
	DeltaE             float64 `json:"delta_E"`
	Stickiness         float64 `json:"stickiness"`
	RetainedDeltaE     float64 `json:"retained_delta_E"`
	Chosen             bool    `json:"chosen"`
	Tier               string  `json:"tier,omitempty"`
	TierScale          float64 `json:"tier_scale,omitempty"`
	StrideUtilityZScore float64 `json:"stride_utility_zscore,omitempty"`
}

type LocalOverlay struct {
	Entity          string  `json:"entity"`
	Delta           float64 `json:"delta"`
	OverlayAfter    float64 `json:"overlay_after"`
	MembershipWeight float64 `json:"membership_weight"`
}

type TraceSignals struct {
	ZRein float64 `json:"z_rein"`
	ZForm float64 `json:"z_form"`
}

type TraceUpdate struct {
	ItemID          string         `json:"item_id"`
	Type            string         `json:"type"`
	LogWeightBefore float64        `json:"log_weight_before"`
	LogWeightAfter  float64        `json:"log_weight_after"`
	Signals         TraceSignals   `json:"signals"`
	Eta             float64        `json:"eta"`
	LocalOverlays   []LocalOverlay `json:"local_overlays"`
}

// WeightsUpdatedTracePayload mirrors one batch of TRACE-driven weight updates.
type WeightsUpdatedTracePayload struct {
	Source  string        `json:"source"`
	Updates []TraceUpdate `json:"updates"`
}

// SafeModePayload mirrors one safe-mode entry or exit transition.
type SafeModePayload struct {
	Reason           string    `json:"reason"`
	Tripwire         string    `json:"tripwire"`
	OverridesApplied []string  `json:"overrides_applied"`
	DurationS        float64   `json:"duration_s,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
