// Package rights implements content hashing, lane-scoped license
// resolution, derivative-rights enforcement, and proof-of-origin records.
package rights

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/loaf-ai/loaf/internal/model"
)

// ErrLicenseIncomplete means a custom license is missing one of its five
// boolean terms.
var ErrLicenseIncomplete = errors.New("rights: custom license must set all five terms")

// ErrDerivativeDenied means a lineage parent's license forbids derivatives.
var ErrDerivativeDenied = errors.New("rights: parent license does not allow derivatives")

// LicenseType names a license preset.
type LicenseType string

const (
	LicensePersonal        LicenseType = "PERSONAL"
	LicenseAttributionOpen LicenseType = "ATTRIBUTION_OPEN"
	LicenseCustom          LicenseType = "CUSTOM"
)

// License carries the five usage terms plus an optional royalty share.
type License struct {
	Type                LicenseType `json:"type"`
	AttributionRequired bool        `json:"attribution_required"`
	DerivativesAllowed  bool        `json:"derivatives_allowed"`
	CommercialAllowed   bool        `json:"commercial_allowed"`
	RedistributionOK    bool        `json:"redistribution_ok"`
	RoyaltyBearing      bool        `json:"royalty_bearing"`
	RoyaltyPct          float64     `json:"royalty_pct,omitempty"`
}

// Presets.
func personalLicense() License {
	return License{Type: LicensePersonal}
}

func attributionOpenLicense() License {
	return License{
		Type:                LicenseAttributionOpen,
		AttributionRequired: true,
		DerivativesAllowed:  true,
		CommercialAllowed:   true,
		RedistributionOK:    true,
	}
}

// ResolveLicense returns the license for a DTU in a lane. Local defaults to
// PERSONAL, Global to ATTRIBUTION_OPEN. Marketplace has no default: the
// explicit license must be present, and absent one the resolution falls
// back to PERSONAL, which a marketplace write gate rejects upstream.
func ResolveLicense(scope model.Scope, explicit *License) (License, error) {
	if explicit != nil {
		// Custom licenses are completeness-checked by ValidateCustom
		// before they reach resolution.
		return *explicit, nil
	}
	switch scope {
	case model.ScopeLocal:
		return personalLicense(), nil
	case model.ScopeGlobal:
		return attributionOpenLicense(), nil
	case model.ScopeMarketplace:
		return personalLicense(), fmt.Errorf("rights: marketplace requires an explicit license")
	default:
		return personalLicense(), nil
	}
}

// CustomTerms is the wire form of a custom license where every term must be
// stated, not defaulted.
type CustomTerms struct {
	AttributionRequired *bool   `json:"attribution_required"`
	DerivativesAllowed  *bool   `json:"derivatives_allowed"`
	CommercialAllowed   *bool   `json:"commercial_allowed"`
	RedistributionOK    *bool   `json:"redistribution_ok"`
	RoyaltyBearing      *bool   `json:"royalty_bearing"`
	RoyaltyPct          float64 `json:"royalty_pct,omitempty"`
}

// ValidateCustom checks that all five boolean terms are present and builds
// the License.
func ValidateCustom(t CustomTerms) (License, error) {
	if t.AttributionRequired == nil || t.DerivativesAllowed == nil ||
		t.CommercialAllowed == nil || t.RedistributionOK == nil || t.RoyaltyBearing == nil {
		return License{}, ErrLicenseIncomplete
	}
	return License{
		Type:                LicenseCustom,
		AttributionRequired: *t.AttributionRequired,
		DerivativesAllowed:  *t.DerivativesAllowed,
		CommercialAllowed:   *t.CommercialAllowed,
		RedistributionOK:    *t.RedistributionOK,
		RoyaltyBearing:      *t.RoyaltyBearing,
		RoyaltyPct:          t.RoyaltyPct,
	}, nil
}

// hashPayload is the canonical content identity of a DTU. Field order does
// not matter: the JCS transform sorts keys before hashing.
type hashPayload struct {
	Title          string   `json:"title"`
	DomainType     string   `json:"domainType"`
	EpistemicClass string   `json:"epistemicClass"`
	Tags           []string `json:"tags"`
	Claims         []string `json:"claims"`
	CreatorID      string   `json:"creatorId"`
}

// ContentHash computes the versioned content hash of a DTU: "v1:" plus the
// hex SHA-256 of the RFC 8785 canonical form of the identity payload. Tags
// are sorted; claims keep their order.
func ContentHash(d *model.DTU) (string, error) {
	tags := append([]string(nil), d.Tags...)
	sort.Strings(tags)
	claims := make([]string, len(d.Claims))
	for i, c := range d.Claims {
		claims[i] = c.Text
	}
	p := hashPayload{
		Title:          d.Title,
		DomainType:     d.DomainType,
		EpistemicClass: string(d.EpistemicClass),
		Tags:           tags,
		Claims:         claims,
		CreatorID:      d.CreatorID,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("rights: marshal hash payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("rights: canonicalize hash payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "v1:" + hex.EncodeToString(sum[:]), nil
}

// Action is a usage action checked by CanUse.
type Action string

const (
	ActionView         Action = "VIEW"
	ActionCite         Action = "CITE"
	ActionDerive       Action = "DERIVE"
	ActionListOnMarket Action = "LIST_ON_MARKET"
)

// OriginProof is recorded once at artifact creation and never updated.
type OriginProof struct {
	ArtifactID        string    `json:"artifact_id"`
	CreatorID         string    `json:"creator_id"`
	ContentHash       string    `json:"content_hash"`
	OriginFingerprint string    `json:"origin_fingerprint"`
	TS                time.Time `json:"ts"`
}

// Engine resolves usage rights and keeps origin proofs and transfer grants.
type Engine struct {
	mu       sync.RWMutex
	proofs   map[string]OriginProof     // artifact id -> proof
	grants   map[string]map[string]bool // artifact id -> actor id -> granted
	licenses map[string]License         // artifact id -> resolved license
}

// NewEngine returns an empty rights engine.
func NewEngine() *Engine {
	return &Engine{
		proofs:   make(map[string]OriginProof),
		grants:   make(map[string]map[string]bool),
		licenses: make(map[string]License),
	}
}

// RecordOrigin computes the content hash and stores the proof of origin for
// an artifact. Repeat calls for the same artifact keep the first proof.
func (e *Engine) RecordOrigin(d *model.DTU, now time.Time) (OriginProof, error) {
	hash, err := ContentHash(d)
	if err != nil {
		return OriginProof{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.proofs[d.ID]; ok {
		return p, nil
	}
	p := OriginProof{
		ArtifactID:        d.ID,
		CreatorID:         d.CreatorID,
		ContentHash:       hash,
		OriginFingerprint: d.OriginFingerprint,
		TS:                now,
	}
	e.proofs[d.ID] = p
	return p, nil
}

// Proof returns the stored proof of origin.
func (e *Engine) Proof(artifactID string) (OriginProof, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.proofs[artifactID]
	return p, ok
}

// VerifyOriginIntegrity recomputes the artifact's content hash and compares
// against the recorded proof. A mismatch signals tampering.
func (e *Engine) VerifyOriginIntegrity(d *model.DTU) (bool, error) {
	e.mu.RLock()
	p, ok := e.proofs[d.ID]
	e.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("rights: no origin proof for %s", d.ID)
	}
	hash, err := ContentHash(d)
	if err != nil {
		return false, err
	}
	return hash == p.ContentHash, nil
}

// SetLicense records the resolved license for an artifact.
func (e *Engine) SetLicense(artifactID string, lic License) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.licenses[artifactID] = lic
}

// LicenseFor returns the license for an artifact, or the resolved lane
// default when none was set.
func (e *Engine) LicenseFor(d *model.DTU) License {
	e.mu.RLock()
	lic, ok := e.licenses[d.ID]
	e.mu.RUnlock()
	if ok {
		return lic
	}
	resolved, _ := ResolveLicense(d.Lane, nil)
	return resolved
}

// Grant records an explicit transfer-grant from the owner to another actor.
func (e *Engine) Grant(artifactID, actorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants[artifactID] == nil {
		e.grants[artifactID] = make(map[string]bool)
	}
	e.grants[artifactID][actorID] = true
}

// HasGrant reports whether an actor holds an explicit transfer-grant.
func (e *Engine) HasGrant(artifactID, actorID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grants[artifactID][actorID]
}

// CanUse decides whether an actor may perform an action on an artifact.
func (e *Engine) CanUse(actor *model.Actor, d *model.DTU, action Action) bool {
	if actor == nil {
		return false
	}
	if actor.ID == d.CreatorID {
		return true
	}
	lic := e.LicenseFor(d)
	switch action {
	case ActionView:
		if d.Lane == model.ScopeLocal {
			return e.HasGrant(d.ID, actor.ID)
		}
		return true
	case ActionCite:
		return d.Lane != model.ScopeLocal || e.HasGrant(d.ID, actor.ID)
	case ActionDerive:
		return lic.DerivativesAllowed
	case ActionListOnMarket:
		return e.HasGrant(d.ID, actor.ID)
	default:
		return false
	}
}

// CheckDerivativeRights enforces lineage rights at creation time: every
// parent the creator does not own must carry a license allowing
// derivatives.
func (e *Engine) CheckDerivativeRights(creatorID string, parents []*model.DTU) error {
	for _, p := range parents {
		if p.CreatorID == creatorID {
			continue
		}
		if !e.LicenseFor(p).DerivativesAllowed {
			return fmt.Errorf("%w: parent %s", ErrDerivativeDenied, p.ID)
		}
	}
	return nil
}
