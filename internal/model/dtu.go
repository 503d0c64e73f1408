// Package model defines the core entities of the cognition substrate:
// discrete thought units (DTUs), claims, links, submissions, constitution
// rules, and the typed event vocabulary of the cognition bus.
package model

import (
	"time"
)

// Scope is the lane a DTU lives in. Set at creation and immutable on the
// DTU — scope ascension creates a new DTU via a Submission.
type Scope string

const (
	ScopeLocal       Scope = "LOCAL"
	ScopeGlobal      Scope = "GLOBAL"
	ScopeMarketplace Scope = "MARKETPLACE"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal, ScopeMarketplace:
		return true
	}
	return false
}

// Status is the lifecycle state of a DTU.
type Status string

const (
	StatusDraft                  Status = "DRAFT"
	StatusProposed               Status = "PROPOSED"
	StatusVerified               Status = "VERIFIED"
	StatusVerifiedInterpretation Status = "VERIFIED_INTERPRETATION"
	StatusDisputed               Status = "DISPUTED"
	StatusQuarantined            Status = "QUARANTINED"
	StatusSameAs                 Status = "SAME_AS"
)

// ClaimType separates factual claims from interpretive ones. Factual claims
// carry sources; interpretive claims do not.
type ClaimType string

const (
	ClaimFact           ClaimType = "FACT"
	ClaimInterpretation ClaimType = "INTERPRETATION"
	ClaimModelOutput    ClaimType = "MODEL_OUTPUT"
	ClaimReception      ClaimType = "RECEPTION"
	ClaimHypothesis     ClaimType = "HYPOTHESIS"
)

// Interpretive reports whether the claim type belongs to the interpretive
// lane. Interpretive claims can never carry a PROVEN evidence tier.
func (t ClaimType) Interpretive() bool {
	switch t {
	case ClaimInterpretation, ClaimReception, ClaimModelOutput:
		return true
	}
	return false
}

// EvidenceTier ranks how well a claim is backed.
type EvidenceTier string

const (
	TierUnsourced    EvidenceTier = "UNSOURCED"
	TierSupported    EvidenceTier = "SUPPORTED"
	TierCorroborated EvidenceTier = "CORROBORATED"
	TierProven       EvidenceTier = "PROVEN"
)

// EpistemicClass categorizes the kind of knowledge a DTU expresses.
type EpistemicClass string

const (
	ClassEmpirical    EpistemicClass = "EMPIRICAL"
	ClassInterpretive EpistemicClass = "INTERPRETIVE"
	ClassFormal       EpistemicClass = "FORMAL"
)

// Origin tags how a DTU entered the lattice.
type Origin string

const (
	OriginHuman   Origin = "HUMAN"
	OriginAutogen Origin = "AUTOGEN"
	OriginImport  Origin = "IMPORT"
)

// Claim is a single assertion inside a DTU.
type Claim struct {
	Type         ClaimType    `json:"type"`
	Text         string       `json:"text"`
	EvidenceTier EvidenceTier `json:"evidence_tier"`
	Sources      []string     `json:"sources,omitempty"`
}

// Provenance records where a DTU came from. A DTU with no provenance is
// quarantined at creation and stays quarantined until provenance is supplied.
type Provenance struct {
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Complete reports whether the provenance record carries enough to release
// a quarantine.
func (p *Provenance) Complete() bool {
	return p != nil && p.SourceType != "" && p.SourceID != "" && !p.CreatedAt.IsZero()
}

// Lineage tracks ancestry. Parents are ordered; depth counts generations
// from a root DTU. The ancestor relation must stay acyclic.
type Lineage struct {
	Parents []string `json:"parents,omitempty"`
	Depth   int      `json:"depth"`
	Origin  Origin   `json:"origin"`
}

// Scores holds the three recomputable confidence dimensions, all in [0,1].
type Scores struct {
	Structural float64 `json:"credibility_structural"`
	Factual    float64 `json:"confidence_factual"`
	Overall    float64 `json:"confidence_overall"`
}

// DTU is a discrete thought unit — the core knowledge entity.
type DTU struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	CreatorID string    `json:"creator_id"`

	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
	// Claims are ordered; order participates in the content hash.
	Claims []Claim `json:"claims,omitempty"`

	DomainType     string         `json:"domain_type"`
	EpistemicClass EpistemicClass `json:"epistemic_class"`

	Lineage Lineage `json:"lineage"`
	Scores  Scores  `json:"scores"`

	Status Status `json:"status"`
	// SameAsID is set only when Status is SAME_AS.
	SameAsID string `json:"same_as_id,omitempty"`

	Lane Scope `json:"lane"`

	// Rights fields, filled by the rights engine at creation.
	ContentHash       string `json:"content_hash,omitempty"`
	LicenseType       string `json:"license_type,omitempty"`
	OriginFingerprint string `json:"origin_fingerprint,omitempty"`

	Provenance *Provenance `json:"provenance,omitempty"`

	// Meta is an opaque bag: pipeline traces, shaping flags, unknown
	// federation fields. Preserved losslessly on round trips.
	Meta map[string]any `json:"meta,omitempty"`
}

// Clone returns a deep copy of the DTU. Slices and maps are duplicated so
// mutations of the copy never alias the original.
func (d *DTU) Clone() *DTU {
	if d == nil {
		return nil
	}
	c := *d
	c.Tags = append([]string(nil), d.Tags...)
	c.Claims = make([]Claim, len(d.Claims))
	for i, cl := range d.Claims {
		cl.Sources = append([]string(nil), cl.Sources...)
		c.Claims[i] = cl
	}
	c.Lineage.Parents = append([]string(nil), d.Lineage.Parents...)
	if d.Provenance != nil {
		p := *d.Provenance
		c.Provenance = &p
	}
	if d.Meta != nil {
		c.Meta = make(map[string]any, len(d.Meta))
		for k, v := range d.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// Actor identifies who is performing a mutating call.
type Actor struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Verified bool     `json:"verified"`
	Scopes   []string `json:"scopes,omitempty"`
}

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

// HasScope reports whether the actor's scope list covers the domain:
// a wildcard, the domain itself, or the domain root (segment before the
// first dot).
func (a *Actor) HasScope(domain string) bool {
	if a == nil {
		return false
	}
	root := domain
	for i := 0; i < len(domain); i++ {
		if domain[i] == '.' {
			root = domain[:i]
			break
		}
	}
	for _, s := range a.Scopes {
		if s == "*" || s == domain || s == root {
			return true
		}
	}
	return false
}
