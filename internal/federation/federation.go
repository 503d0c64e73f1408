// Package federation moves artifacts between instances. Exports travel as
// hashed envelopes with provenance, evidence, dispute history, license,
// and reputation; imports always land sandboxed and earn trust through an
// explicit privileged promotion.
package federation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/rights"
)

// EnvelopeVersion is the wire version accepted by this implementation.
const EnvelopeVersion = "loaf-federation-v1"

// ErrBadEnvelope covers malformed or wrong-version envelopes.
var ErrBadEnvelope = errors.New("federation: invalid envelope")

// ErrHashMismatch means the artifact does not match its recorded hash.
var ErrHashMismatch = errors.New("federation: artifact hash mismatch")

// ErrNotPrivileged rejects trust promotion from ordinary actors.
var ErrNotPrivileged = errors.New("federation: trust promotion requires a privileged actor")

// TrustState tracks an import's standing.
type TrustState string

const (
	TrustSandboxed TrustState = "sandboxed"
	TrustTrusted   TrustState = "trusted"
)

// EnvelopeLicense is the license block of an envelope.
type EnvelopeLicense struct {
	Type        string  `json:"type"`
	RoyaltyPct  float64 `json:"royaltyPct"`
	Attribution bool    `json:"attribution"`
	Terms       string  `json:"terms,omitempty"`
}

// Envelope is the federation wire format.
type Envelope struct {
	Version        string            `json:"version"`
	ExportedAt     time.Time         `json:"exportedAt"`
	Artifact       *model.DTU        `json:"artifact"`
	ArtifactHash   string            `json:"artifactHash"`
	Provenance     *model.Provenance `json:"provenance,omitempty"`
	Evidence       []string          `json:"evidence,omitempty"`
	DisputeHistory []model.Link      `json:"disputeHistory,omitempty"`
	License        EnvelopeLicense   `json:"license"`
	Reputation     float64           `json:"reputation"`
}

// Import is a sandboxed landed envelope.
type Import struct {
	ID         string     `json:"id"`
	Envelope   Envelope   `json:"envelope"`
	Trust      TrustState `json:"trust"`
	ImportedAt time.Time  `json:"imported_at"`
}

// Exchange exports and imports envelopes against the local atlas.
type Exchange struct {
	atlas  *atlas.Store
	rights *rights.Engine
	bus    *bus.Bus
	clock  *idclock.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	imports map[string]*Import
}

// NewExchange wires a federation exchange.
func NewExchange(a *atlas.Store, re *rights.Engine, b *bus.Bus, clock *idclock.Clock, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchange{
		atlas:   a,
		rights:  re,
		bus:     b,
		clock:   clock,
		logger:  logger,
		imports: make(map[string]*Import),
	}
}

// Export packs a DTU into a hashed envelope.
func (e *Exchange) Export(dtuID string, reputation float64) (Envelope, error) {
	d, ok := e.atlas.Get(dtuID)
	if !ok {
		return Envelope{}, atlas.ErrNotFound
	}
	hash, err := artifactHash(d)
	if err != nil {
		return Envelope{}, err
	}

	var evidence []string
	for _, c := range d.Claims {
		evidence = append(evidence, c.Sources...)
	}
	var disputes []model.Link
	for _, l := range e.atlas.Links(d.ID) {
		if l.Type == model.LinkContradicts {
			disputes = append(disputes, l)
		}
	}

	lic := e.rights.LicenseFor(d)
	env := Envelope{
		Version:        EnvelopeVersion,
		ExportedAt:     e.clock.Now(),
		Artifact:       d,
		ArtifactHash:   hash,
		Provenance:     d.Provenance,
		Evidence:       evidence,
		DisputeHistory: disputes,
		License: EnvelopeLicense{
			Type:        string(lic.Type),
			RoyaltyPct:  lic.RoyaltyPct,
			Attribution: lic.AttributionRequired,
		},
		Reputation: reputation,
	}

	e.bus.Emit(model.EventFederationExported, map[string]any{
		"dtu_id": d.ID,
		"hash":   hash,
	}, model.EventMeta{})
	return env, nil
}

// ImportEnvelope verifies and lands an envelope. Verification passing does
// not earn trust: every import starts sandboxed.
func (e *Exchange) ImportEnvelope(env Envelope) (*Import, error) {
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: version %q", ErrBadEnvelope, env.Version)
	}
	if env.Artifact == nil {
		return nil, fmt.Errorf("%w: missing artifact", ErrBadEnvelope)
	}
	hash, err := artifactHash(env.Artifact)
	if err != nil {
		return nil, err
	}
	if hash != env.ArtifactHash {
		return nil, ErrHashMismatch
	}

	artifact := env.Artifact.Clone()
	artifact.Lane = model.ScopeLocal
	artifact.Status = model.StatusQuarantined
	artifact.Lineage.Origin = model.OriginImport
	if artifact.Meta == nil {
		artifact.Meta = make(map[string]any)
	}
	artifact.Meta["federated"] = true
	// Imported artifacts stay quarantined until trusted regardless of the
	// provenance they arrived with.
	stored := e.atlas.Put(artifact)

	imp := &Import{
		ID:         e.clock.MintID(),
		Envelope:   env,
		Trust:      TrustSandboxed,
		ImportedAt: e.clock.Now(),
	}
	e.mu.Lock()
	e.imports[imp.ID] = imp
	e.mu.Unlock()

	e.bus.Emit(model.EventSandboxCreated, map[string]any{
		"import_id": imp.ID,
		"dtu_id":    stored.ID,
	}, model.EventMeta{})
	e.bus.Emit(model.EventFederationImported, map[string]any{
		"import_id": imp.ID,
		"dtu_id":    stored.ID,
		"trust":     string(TrustSandboxed),
	}, model.EventMeta{})
	return imp, nil
}

// Import looks up a landed import.
func (e *Exchange) Import(id string) (*Import, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	imp, ok := e.imports[id]
	return imp, ok
}

// privilegedRoles may promote imports to trusted.
var privilegedRoles = map[model.Role]bool{
	model.RoleOwner:   true,
	model.RoleFounder: true,
	model.RoleAdmin:   true,
	model.RoleCouncil: true,
}

// Promote moves an import from sandboxed to trusted and releases the
// quarantined artifact back into draft.
func (e *Exchange) Promote(importID string, actor *model.Actor) error {
	if actor == nil || !privilegedRoles[actor.Role] {
		return ErrNotPrivileged
	}
	e.mu.Lock()
	imp, ok := e.imports[importID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("federation: import %s not found", importID)
	}
	imp.Trust = TrustTrusted
	e.mu.Unlock()

	artifact := imp.Envelope.Artifact
	if artifact.Provenance.Complete() {
		if err := e.atlas.ReleaseQuarantine(artifact.ID, *artifact.Provenance); err != nil {
			e.logger.Warn("trusted import stays quarantined", "dtu_id", artifact.ID, "error", err)
		}
	}
	e.logger.Info("import trusted", "import_id", importID, "actor", actor.ID)
	return nil
}

// artifactHash canonicalizes the artifact's content identity.
func artifactHash(d *model.DTU) (string, error) {
	claims := make([]string, len(d.Claims))
	for i, c := range d.Claims {
		claims[i] = c.Text
	}
	raw, err := json.Marshal(map[string]any{
		"id":     d.ID,
		"title":  d.Title,
		"tags":   d.Tags,
		"claims": claims,
	})
	if err != nil {
		return "", fmt.Errorf("federation: marshal artifact: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("federation: canonicalize artifact: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
