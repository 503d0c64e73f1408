package scope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/governance"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
)

// ErrSealed is returned on any attempt to mutate a sealed submission
// payload.
var ErrSealed = errors.New("scope: submission payload is sealed")

// ErrBadTarget rejects illegal lane ascensions.
var ErrBadTarget = errors.New("scope: invalid submission target")

// SubmissionStatus is the only mutable part of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionApproved SubmissionStatus = "APPROVED"
	SubmissionRejected SubmissionStatus = "REJECTED"
)

// Submission is a sealed request to promote a DTU into a higher lane. The
// payload is deep-copied at creation and read-only afterwards: Payload
// returns fresh copies and there is no mutating accessor.
type Submission struct {
	ID                 string           `json:"id"`
	DTUID              string           `json:"dtu_id"`
	TargetScope        model.Scope      `json:"target_scope"`
	PayloadHash        string           `json:"payload_hash"`
	SourceSnapshotHash string           `json:"source_snapshot_hash"`
	CreatedAt          time.Time        `json:"created_at"`
	ActorID            string           `json:"actor_id"`

	mu      sync.RWMutex
	status  SubmissionStatus
	payload map[string]any
}

// Status returns the current submission status.
func (s *Submission) Status() SubmissionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Payload returns a deep copy of the sealed payload.
func (s *Submission) Payload() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.payload)
}

// MutatePayload always fails: sealed payloads are immutable on every path.
func (s *Submission) MutatePayload(func(map[string]any)) error {
	return ErrSealed
}

// Router creates and resolves submissions.
type Router struct {
	atlas  *atlas.Store
	gate   *governance.Gate
	clock  *idclock.Clock
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Submission
}

// NewRouter wires a submission router.
func NewRouter(a *atlas.Store, gate *governance.Gate, clock *idclock.Clock, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		atlas:  a,
		gate:   gate,
		clock:  clock,
		logger: logger,
		subs:   make(map[string]*Submission),
	}
}

// CreateSubmission seals a promotion request. Lane rules: Local targets
// Global; Marketplace can only be targeted from Global, never directly
// from Local.
func (r *Router) CreateSubmission(dtuID string, target model.Scope, actor *model.Actor) (*Submission, error) {
	d, ok := r.atlas.Get(dtuID)
	if !ok {
		return nil, atlas.ErrNotFound
	}
	switch target {
	case model.ScopeGlobal:
		if d.Lane != model.ScopeLocal {
			return nil, fmt.Errorf("%w: global submissions come from local, not %s", ErrBadTarget, d.Lane)
		}
	case model.ScopeMarketplace:
		if d.Lane != model.ScopeGlobal {
			return nil, fmt.Errorf("%w: marketplace submissions come from global, not %s", ErrBadTarget, d.Lane)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadTarget, target)
	}

	payload := snapshotPayload(d)
	hash, err := hashPayload(payload)
	if err != nil {
		return nil, err
	}
	snapHash, err := hashPayload(map[string]any{"id": d.ID, "status": string(d.Status), "contentHash": d.ContentHash})
	if err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:                 r.clock.MintID(),
		DTUID:              dtuID,
		TargetScope:        target,
		PayloadHash:        hash,
		SourceSnapshotHash: snapHash,
		CreatedAt:          r.clock.Now(),
		status:             SubmissionPending,
		payload:            deepCopy(payload),
	}
	if actor != nil {
		sub.ActorID = actor.ID
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()
	return sub, nil
}

// Submission looks up a submission by id.
func (r *Router) Submission(id string) (*Submission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return s, ok
}

// Resolve flips a pending submission's status. Only the status field ever
// changes, and only through this council-gated path.
func (r *Router) Resolve(id string, approve bool, actor *model.Actor) error {
	check := r.gate.Check(actor, "canon.promote", "resolve_submission", governance.CheckOptions{})
	if !check.Allowed {
		return fmt.Errorf("%w: %s", ErrDenied, check.Reason)
	}
	r.mu.RLock()
	sub, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scope: submission %s not found", id)
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.status != SubmissionPending {
		return fmt.Errorf("scope: submission %s already %s", id, sub.status)
	}
	if approve {
		sub.status = SubmissionApproved
	} else {
		sub.status = SubmissionRejected
	}
	return nil
}

// SubmissionRecord is the serializable form of a submission, including the
// sealed payload and the mutable status.
type SubmissionRecord struct {
	ID                 string           `json:"id"`
	DTUID              string           `json:"dtu_id"`
	TargetScope        model.Scope      `json:"target_scope"`
	PayloadHash        string           `json:"payload_hash"`
	SourceSnapshotHash string           `json:"source_snapshot_hash"`
	CreatedAt          time.Time        `json:"created_at"`
	ActorID            string           `json:"actor_id"`
	Status             SubmissionStatus `json:"status"`
	Payload            map[string]any   `json:"payload"`
}

// Export returns every submission in serializable form, oldest first.
func (r *Router) Export() []SubmissionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SubmissionRecord, 0, len(r.subs))
	for _, s := range r.subs {
		s.mu.RLock()
		out = append(out, SubmissionRecord{
			ID:                 s.ID,
			DTUID:              s.DTUID,
			TargetScope:        s.TargetScope,
			PayloadHash:        s.PayloadHash,
			SourceSnapshotHash: s.SourceSnapshotHash,
			CreatedAt:          s.CreatedAt,
			ActorID:            s.ActorID,
			Status:             s.status,
			Payload:            deepCopy(s.payload),
		})
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RestoreState reinstalls submissions from snapshot records.
func (r *Router) RestoreState(recs []SubmissionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.subs[rec.ID] = &Submission{
			ID:                 rec.ID,
			DTUID:              rec.DTUID,
			TargetScope:        rec.TargetScope,
			PayloadHash:        rec.PayloadHash,
			SourceSnapshotHash: rec.SourceSnapshotHash,
			CreatedAt:          rec.CreatedAt,
			ActorID:            rec.ActorID,
			status:             rec.Status,
			payload:            deepCopy(rec.Payload),
		}
	}
}

// snapshotPayload extracts the promotable content of a DTU.
func snapshotPayload(d *model.DTU) map[string]any {
	claims := make([]any, len(d.Claims))
	for i, c := range d.Claims {
		claims[i] = map[string]any{
			"type":         string(c.Type),
			"text":         c.Text,
			"evidenceTier": string(c.EvidenceTier),
			"sources":      append([]string(nil), c.Sources...),
		}
	}
	return map[string]any{
		"title":          d.Title,
		"tags":           append([]string(nil), d.Tags...),
		"domainType":     d.DomainType,
		"epistemicClass": string(d.EpistemicClass),
		"claims":         claims,
		"creatorId":      d.CreatorID,
	}
}

// hashPayload canonicalizes and hashes a payload map.
func hashPayload(payload map[string]any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("scope: marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("scope: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "v1:" + hex.EncodeToString(sum[:]), nil
}

// deepCopy clones a payload through JSON, which also strips any shared
// references the caller might still hold.
func deepCopy(m map[string]any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
