// Package atlas is the DTU store: lane-sharded persistence, scoring,
// links, the status state machine, and the auto-promote gate.
package atlas

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/shard"
)

// ErrNotFound is returned when a DTU id resolves to nothing.
var ErrNotFound = errors.New("atlas: dtu not found")

// ErrStatusMismatch is the CAS failure: the supplied expected status does
// not match the current one.
var ErrStatusMismatch = errors.New("atlas: expected status does not match current")

// Store holds DTUs sharded by lane, plus the link graph. DTUs handed out
// are deep copies, and stored copies are never mutated in place: every
// update clones under the partition lock and swaps the clone in, so reads
// may copy a fetched pointer without holding any lock.
type Store struct {
	clock  *idclock.Clock
	bus    *bus.Bus
	logger *slog.Logger

	dtus *shard.Store[*model.DTU]

	linkMu sync.RWMutex
	links  []*model.Link
	byFrom map[string][]*model.Link
	byTo   map[string][]*model.Link

	dirtyMu sync.Mutex
	dirty   map[model.Scope]map[string]bool
}

// NewStore creates an empty atlas.
func NewStore(clock *idclock.Clock, b *bus.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		clock:  clock,
		bus:    b,
		logger: logger,
		dtus: shard.New(func(d *model.DTU) string {
			return string(d.Lane)
		}),
		byFrom: make(map[string][]*model.Link),
		byTo:   make(map[string][]*model.Link),
		dirty:  make(map[model.Scope]map[string]bool),
	}
}

func (s *Store) emit(eventType string, payload map[string]any, actorID string) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(eventType, payload, model.EventMeta{ActorID: actorID})
}

// Put inserts or replaces a DTU, scoring it and quarantining on missing
// provenance. The stored value is a deep copy of the argument.
func (s *Store) Put(d *model.DTU) *model.DTU {
	c := d.Clone()
	if c.ID == "" {
		c.ID = s.clock.MintID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	c.Scores = Score(c)

	if c.Provenance == nil || !c.Provenance.Complete() {
		c.Status = model.StatusQuarantined
		s.emit(model.EventQuarantineAdded, map[string]any{
			"dtu_id": c.ID,
			"reason": "missing_provenance",
		}, c.CreatorID)
	} else {
		s.emit(model.EventProvenanceValidated, map[string]any{
			"dtu_id": c.ID,
		}, c.CreatorID)
	}

	s.dtus.Put(c.ID, c)
	s.markDirty(c.Lane, c.ID)
	return c.Clone()
}

// Get returns a copy of the DTU, scanning lanes when lane is empty.
func (s *Store) Get(id string, lane ...model.Scope) (*model.DTU, bool) {
	var d *model.DTU
	var ok bool
	if len(lane) > 0 {
		d, ok = s.dtus.GetIn(string(lane[0]), id)
	} else {
		d, ok = s.dtus.Get(id)
	}
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// InLane returns copies of every DTU in a lane matching filter.
func (s *Store) InLane(lane model.Scope, filter func(*model.DTU) bool, limit int) []*model.DTU {
	raw := s.dtus.QueryShard(string(lane), filter, limit)
	out := make([]*model.DTU, len(raw))
	for i, d := range raw {
		out[i] = d.Clone()
	}
	return out
}

// All returns copies of every DTU.
func (s *Store) All() []*model.DTU {
	raw := s.dtus.All()
	out := make([]*model.DTU, len(raw))
	for i, d := range raw {
		out[i] = d.Clone()
	}
	return out
}

// Size returns the number of stored DTUs.
func (s *Store) Size() int { return s.dtus.TotalSize() }

// Rescore recomputes and stores a DTU's scores, returning the new values.
func (s *Store) Rescore(id string) (model.Scores, error) {
	var scores model.Scores
	ok := s.dtus.Update(id, func(d *model.DTU) *model.DTU {
		c := d.Clone()
		c.Scores = Score(c)
		scores = c.Scores
		return c
	})
	if !ok {
		return model.Scores{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return scores, nil
}

// Transition is the outcome of a status change.
type Transition struct {
	OK   bool
	Noop bool
	From model.Status
	To   model.Status
}

// SetStatus moves a DTU to a new status. When expected is supplied it must
// match the current status or the operation rejects; the check and the
// write happen under one partition lock, so concurrent transitions from
// the same expected status admit exactly one winner. Transitioning to the
// current status is an idempotent no-op.
func (s *Store) SetStatus(id string, to model.Status, expected ...model.Status) (Transition, error) {
	var tr Transition
	var casErr error
	var lane model.Scope
	found := s.dtus.Update(id, func(d *model.DTU) *model.DTU {
		if len(expected) > 0 && expected[0] != d.Status {
			tr = Transition{From: d.Status, To: to}
			casErr = fmt.Errorf("%w: have %s, expected %s", ErrStatusMismatch, d.Status, expected[0])
			return d
		}
		if d.Status == to {
			tr = Transition{OK: true, Noop: true, From: d.Status, To: to}
			return d
		}
		c := d.Clone()
		tr = Transition{OK: true, From: c.Status, To: to}
		c.Status = to
		lane = c.Lane
		return c
	})
	if !found {
		return Transition{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if casErr != nil {
		return tr, casErr
	}
	if !tr.Noop {
		s.markDirty(lane, id)
	}
	return tr, nil
}

// MarkSameAs collapses a DTU into a canonical duplicate.
func (s *Store) MarkSameAs(id, canonicalID string) error {
	ok := s.dtus.Update(id, func(d *model.DTU) *model.DTU {
		c := d.Clone()
		c.Status = model.StatusSameAs
		c.SameAsID = canonicalID
		return c
	})
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ReleaseQuarantine lifts a quarantine by supplying complete provenance.
func (s *Store) ReleaseQuarantine(id string, prov model.Provenance) error {
	if !prov.Complete() {
		return fmt.Errorf("atlas: release requires complete provenance")
	}
	var stateErr error
	ok := s.dtus.Update(id, func(d *model.DTU) *model.DTU {
		if d.Status != model.StatusQuarantined {
			stateErr = fmt.Errorf("atlas: %s is not quarantined", id)
			return d
		}
		c := d.Clone()
		c.Provenance = &prov
		c.Status = model.StatusDraft
		c.Scores = Score(c)
		return c
	})
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if stateErr != nil {
		return stateErr
	}
	s.emit(model.EventQuarantineReleased, map[string]any{"dtu_id": id}, "")
	return nil
}

// AddLink inserts a directed edge. A HIGH NUMERIC contradiction against a
// VERIFIED target auto-disputes exactly one side: the lower-confidence one.
func (s *Store) AddLink(l model.Link) (model.Link, error) {
	from, ok := s.dtus.Get(l.FromID)
	if !ok {
		return model.Link{}, fmt.Errorf("%w: %s", ErrNotFound, l.FromID)
	}
	to, ok := s.dtus.Get(l.ToID)
	if !ok {
		return model.Link{}, fmt.Errorf("%w: %s", ErrNotFound, l.ToID)
	}
	if l.ID == "" {
		l.ID = s.clock.MintID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.clock.Now()
	}

	s.linkMu.Lock()
	cp := l
	s.links = append(s.links, &cp)
	s.byFrom[l.FromID] = append(s.byFrom[l.FromID], &cp)
	s.byTo[l.ToID] = append(s.byTo[l.ToID], &cp)
	s.linkMu.Unlock()

	if l.Type == model.LinkContradicts &&
		l.Severity == model.SeverityHigh &&
		l.ContradictionType == model.ContradictionNumeric &&
		(to.Status == model.StatusVerified || to.Status == model.StatusVerifiedInterpretation) {
		disputed := from
		if from.Scores.Overall > to.Scores.Overall {
			disputed = to
		}
		if _, err := s.SetStatus(disputed.ID, model.StatusDisputed); err == nil {
			s.emit(model.EventDisputeOpened, map[string]any{
				"dtu_id":  disputed.ID,
				"link_id": l.ID,
				"reason":  "high_numeric_contradiction",
			}, "")
			s.logger.Info("auto-disputed on contradiction",
				"dtu_id", disputed.ID, "link_id", l.ID)
		}
	}
	return l, nil
}

// AllLinks returns copies of every edge in insertion order.
func (s *Store) AllLinks() []model.Link {
	s.linkMu.RLock()
	defer s.linkMu.RUnlock()
	return copyLinks(s.links)
}

// LinksFrom returns copies of the outgoing edges of a DTU.
func (s *Store) LinksFrom(id string) []model.Link {
	s.linkMu.RLock()
	defer s.linkMu.RUnlock()
	return copyLinks(s.byFrom[id])
}

// LinksTo returns copies of the incoming edges of a DTU.
func (s *Store) LinksTo(id string) []model.Link {
	s.linkMu.RLock()
	defer s.linkMu.RUnlock()
	return copyLinks(s.byTo[id])
}

// Links returns every edge touching a DTU.
func (s *Store) Links(id string) []model.Link {
	return append(s.LinksFrom(id), s.LinksTo(id)...)
}

func copyLinks(in []*model.Link) []model.Link {
	out := make([]model.Link, len(in))
	for i, l := range in {
		out[i] = *l
	}
	return out
}

// HasLineageCycle walks ancestor edges from the candidate's parents and
// reports whether the candidate is reachable from itself.
func (s *Store) HasLineageCycle(d *model.DTU) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), d.Lineage.Parents...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == d.ID {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if parent, ok := s.dtus.Get(id); ok {
			stack = append(stack, parent.Lineage.Parents...)
		}
	}
	return false
}

// markDirty flags a DTU for the next heartbeat rescore of its lane.
func (s *Store) markDirty(lane model.Scope, id string) {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	if s.dirty[lane] == nil {
		s.dirty[lane] = make(map[string]bool)
	}
	s.dirty[lane][id] = true
}

// TakeDirty drains and returns the dirty set for a lane.
func (s *Store) TakeDirty(lane model.Scope) []string {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	ids := make([]string, 0, len(s.dirty[lane]))
	for id := range s.dirty[lane] {
		ids = append(ids, id)
	}
	delete(s.dirty, lane)
	return ids
}

// Touch updates a stored DTU through fn, rescoring afterwards. fn runs on
// a copy under the partition lock; the copy then replaces the stored
// value, so concurrent readers only ever see a fully-applied update.
func (s *Store) Touch(id string, fn func(*model.DTU)) error {
	var lane model.Scope
	ok := s.dtus.Update(id, func(d *model.DTU) *model.DTU {
		c := d.Clone()
		fn(c)
		c.Scores = Score(c)
		lane = c.Lane
		return c
	})
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.markDirty(lane, id)
	return nil
}

// Now exposes the store clock for callers that stamp their own records.
func (s *Store) Now() time.Time { return s.clock.Now() }

// Export returns the lane-sharded DTU map and the link list for snapshots.
func (s *Store) Export() (map[string]map[string]*model.DTU, []model.Link) {
	return s.dtus.Export(), s.AllLinks()
}

// RestoreState reinstalls store contents from a snapshot. Link indexes are
// rebuilt; no events are emitted.
func (s *Store) RestoreState(dtus map[string]map[string]*model.DTU, links []model.Link) {
	s.dtus.Import(dtus)
	s.linkMu.Lock()
	s.links = nil
	s.byFrom = make(map[string][]*model.Link)
	s.byTo = make(map[string][]*model.Link)
	for i := range links {
		cp := links[i]
		s.links = append(s.links, &cp)
		s.byFrom[cp.FromID] = append(s.byFrom[cp.FromID], &cp)
		s.byTo[cp.ToID] = append(s.byTo[cp.ToID], &cp)
	}
	s.linkMu.Unlock()
}
