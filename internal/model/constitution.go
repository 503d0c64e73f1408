package model

import "time"

// VoteChoice is a council member's position on an amendment.
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
	VoteAbstain VoteChoice = "abstain"
)

// Vote is a single council vote on a rule change.
type Vote struct {
	ActorID string     `json:"actor_id"`
	Choice  VoteChoice `json:"choice"`
	CastAt  time.Time  `json:"cast_at"`
}

// ConstitutionRule is a first-class governed artifact. The rule text is
// amended by appending to the amendment log, never edited in place.
type ConstitutionRule struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Version    int        `json:"version"`
	Provenance Provenance `json:"provenance"`
	Votes      []Vote     `json:"votes,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Amendment is one append-only entry in the constitution's amendment log.
type Amendment struct {
	ID       string    `json:"id"`
	RuleID   string    `json:"rule_id"`
	ActorID  string    `json:"actor_id"`
	PrevText string    `json:"prev_text"`
	NewText  string    `json:"new_text"`
	Version  int       `json:"version"`
	Revert   bool      `json:"revert,omitempty"`
	Votes    []Vote    `json:"votes"`
	At       time.Time `json:"at"`
}
