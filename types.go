package loaf

import "time"

// Public API types. These are standalone structs with no internal package
// imports — safe to use from outside the module. Conversion helpers live in
// loaf.go because that is the only file that sees both sides of the
// boundary.

// Role is an actor's governance role.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleFounder Role = "founder"
	RoleAdmin   Role = "admin"
	RoleCouncil Role = "council"
	RoleMember  Role = "member"
	RoleSystem  Role = "system"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Verified bool     `json:"verified"`
	Scopes   []string `json:"scopes,omitempty"`
}

// Claim is one assertion inside a DTU.
type Claim struct {
	Type         string   `json:"type"`
	Text         string   `json:"text"`
	EvidenceTier string   `json:"evidence_tier,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

// Provenance records where a DTU came from. Incomplete provenance
// quarantines the DTU at creation.
type Provenance struct {
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// DTU is the public view of a discrete thought unit.
type DTU struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Tags           []string  `json:"tags,omitempty"`
	Claims         []Claim   `json:"claims,omitempty"`
	DomainType     string    `json:"domain_type"`
	EpistemicClass string    `json:"epistemic_class"`
	Lane           string    `json:"lane"`
	Status         string    `json:"status"`
	CreatorID      string    `json:"creator_id"`
	Confidence     float64   `json:"confidence"`
	ContentHash    string    `json:"content_hash,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest describes a DTU write. Scope defaults to LOCAL; anything
// above LOCAL must satisfy the HARD validation contract.
type CreateRequest struct {
	Title          string      `json:"title"`
	Tags           []string    `json:"tags,omitempty"`
	Claims         []Claim     `json:"claims,omitempty"`
	DomainType     string      `json:"domain_type,omitempty"`
	EpistemicClass string      `json:"epistemic_class,omitempty"`
	Parents        []string    `json:"parents,omitempty"`
	Provenance     *Provenance `json:"provenance,omitempty"`
	Scope          string      `json:"scope,omitempty"`
}

// RetrieveResult is the read-surface response.
type RetrieveResult struct {
	OK      bool  `json:"ok"`
	Results []DTU `json:"results"`
	Total   int   `json:"total"`
}

// Submission is the public view of a sealed lane-ascension request.
type Submission struct {
	ID          string    `json:"id"`
	DTUID       string    `json:"dtu_id"`
	TargetScope string    `json:"target_scope"`
	Status      string    `json:"status"`
	PayloadHash string    `json:"payload_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Event is one entry of the cognition log.
type Event struct {
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	ActorID string         `json:"actor_id,omitempty"`
	TS      time.Time      `json:"ts"`
}

// EventFilter selects events from the log. Zero values are ignored.
type EventFilter struct {
	Type    string `json:"type,omitempty"`
	Since   int64  `json:"since,omitempty"`
	Until   int64  `json:"until,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// ReplayDecision is one deterministic outcome produced during replay.
type ReplayDecision struct {
	Seq       int64   `json:"seq"`
	EventType string  `json:"event_type"`
	Action    string  `json:"action"`
	Weight    float64 `json:"weight"`
}

// ReplayStream is the full decision stream for one replay run.
type ReplayStream struct {
	Seed         string           `json:"seed"`
	ModelVersion string           `json:"model_version"`
	Decisions    []ReplayDecision `json:"decisions"`
}

// Signals is the observed activity the drift detectors read.
type Signals struct {
	DomainCounts      map[string]int     `json:"domain_counts,omitempty"`
	TransferSourced   int                `json:"transfer_sourced"`
	TotalLearning     int                `json:"total_learning"`
	EconomicDecisions int                `json:"economic_decisions"`
	TotalDecisions    int                `json:"total_decisions"`
	AttentionWeights  map[string]float64 `json:"attention_weights,omitempty"`
}

// Alert is one drift detector verdict.
type Alert struct {
	Detected  bool    `json:"detected"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Type      string  `json:"type"`
	Detail    string  `json:"detail,omitempty"`
}

// Hardening is what one reported failure generated: a regression test, a
// must-severity constraint, and an automated guardrail.
type Hardening struct {
	TestID       string `json:"test_id"`
	ConstraintID string `json:"constraint_id"`
	GuardrailID  string `json:"guardrail_id"`
}

// Vote is one council vote on a constitution amendment.
type Vote struct {
	ActorID string `json:"actor_id"`
	Approve bool   `json:"approve"`
	Abstain bool   `json:"abstain,omitempty"`
}

// Change is one timeline state difference.
type Change struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"` // added, removed, updated
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// AutogenReport summarizes one self-generation run.
type AutogenReport struct {
	Intent      string   `json:"intent"`
	DTUID       string   `json:"dtu_id,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Aborted     bool     `json:"aborted"`
	AbortReason string   `json:"abort_reason,omitempty"`
	Trace       []string `json:"trace"`
}

// Stats is a point-in-time summary of the substrate.
type Stats struct {
	Version string `json:"version"`
	Seed    string `json:"seed"`
	DTUs    int    `json:"dtus"`
	Links   int    `json:"links"`
	Events  int    `json:"events"`
	Cursor  int64  `json:"cursor"`
}
