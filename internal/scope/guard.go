// Package scope routes writes between lanes. Every mutation enters through
// the WriteGuard; lane ascension never mutates a DTU in place but goes
// through a sealed Submission.
package scope

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/governance"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/rights"
)

// Op is a guarded write operation.
type Op string

const (
	OpCreate  Op = "CREATE"
	OpUpdate  Op = "UPDATE"
	OpLink    Op = "LINK"
	OpPromote Op = "PROMOTE"
)

// ErrValidation covers payload shape failures.
var ErrValidation = errors.New("scope: payload validation failed")

// ErrDenied covers governance denials.
var ErrDenied = errors.New("scope: write denied")

// hardSchema is the HARD validation contract for Global and Marketplace
// writes. Local writes get the tolerant SOFT path instead.
const hardSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "domainType", "epistemicClass", "claims"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "domainType": {"type": "string", "minLength": 1},
    "epistemicClass": {"enum": ["EMPIRICAL", "INTERPRETIVE", "FORMAL"]},
    "claims": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type", "text"],
        "properties": {
          "type": {"enum": ["FACT", "INTERPRETATION", "MODEL_OUTPUT", "RECEPTION", "HYPOTHESIS"]},
          "text": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// WriteContext carries the scope and actor of a write.
type WriteContext struct {
	Scope model.Scope
	Actor *model.Actor
}

// ApplyResult is the write-surface response.
type ApplyResult struct {
	OK         bool
	DTU        *model.DTU
	Submission *Submission
	Err        error
}

// Guard is the single write entry point.
type Guard struct {
	atlas  *atlas.Store
	gate   *governance.Gate
	rights *rights.Engine
	bus    *bus.Bus
	clock  *idclock.Clock
	logger *slog.Logger

	hard *jsonschema.Schema

	router *Router
}

// NewGuard wires the guard to its collaborators. The HARD schema compiles
// at construction; a compile failure is a programming error.
func NewGuard(a *atlas.Store, gate *governance.Gate, re *rights.Engine, b *bus.Bus, clock *idclock.Clock, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://loaf.schemas.local/dtu-write.schema.json"
	if err := c.AddResource(url, strings.NewReader(hardSchema)); err != nil {
		panic(fmt.Sprintf("scope: load hard schema: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("scope: compile hard schema: %v", err))
	}
	g := &Guard{
		atlas:  a,
		gate:   gate,
		rights: re,
		bus:    b,
		clock:  clock,
		logger: logger,
		hard:   compiled,
	}
	g.router = NewRouter(a, gate, clock, logger)
	return g
}

// Router exposes the submission router sharing this guard's wiring.
func (g *Guard) Router() *Router { return g.router }

// Apply validates, admits, and executes a write. Partial work is discarded
// before any event is emitted, so a failed apply leaves no trace.
func (g *Guard) Apply(op Op, payload map[string]any, wc WriteContext) ApplyResult {
	check := g.gate.MandatoryMutationGate(wc.Actor, domainFor(op), string(op), governance.CheckOptions{})
	if !check.Allowed {
		return ApplyResult{Err: fmt.Errorf("%w: %s", ErrDenied, check.Reason)}
	}
	g.bus.Emit(model.EventGateChecked, map[string]any{
		"domain":  domainFor(op),
		"action":  string(op),
		"allowed": true,
	}, model.EventMeta{ActorID: actorID(wc)})

	if err := g.validate(payload, wc.Scope); err != nil {
		return ApplyResult{Err: err}
	}

	switch op {
	case OpCreate:
		return g.create(payload, wc)
	case OpUpdate:
		return g.update(payload, wc)
	case OpLink:
		return g.link(payload, wc)
	case OpPromote:
		return g.promote(payload, wc)
	default:
		return ApplyResult{Err: fmt.Errorf("%w: unknown op %q", ErrValidation, op)}
	}
}

func domainFor(op Op) string {
	if op == OpPromote {
		return "canon.promote"
	}
	return "world.write"
}

// validate runs SOFT validation for Local writes and HARD for the rest.
func (g *Guard) validate(payload map[string]any, scope model.Scope) error {
	if scope == model.ScopeLocal {
		// SOFT: only a title is demanded; missing domainType, epistemicClass,
		// and loose claim shapes are tolerated.
		if s, _ := payload["title"].(string); strings.TrimSpace(s) == "" {
			if _, isLink := payload["fromId"]; !isLink {
				return fmt.Errorf("%w: title required", ErrValidation)
			}
		}
		return nil
	}
	if _, isLink := payload["fromId"]; isLink {
		return nil
	}
	if _, isPromo := payload["dtuId"]; isPromo {
		return nil
	}
	if err := g.hard.Validate(normalize(payload)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// normalize round-trips the payload through JSON so schema validation sees
// plain maps and slices regardless of how the caller built it.
func normalize(payload map[string]any) any {
	raw, err := json.Marshal(payload)
	if err != nil {
		return payload
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return payload
	}
	return out
}

func (g *Guard) create(payload map[string]any, wc WriteContext) ApplyResult {
	d, err := decodeDTU(payload)
	if err != nil {
		return ApplyResult{Err: err}
	}
	d.Lane = wc.Scope
	if wc.Actor != nil && d.CreatorID == "" {
		d.CreatorID = wc.Actor.ID
	}

	// Lineage rights and shape come first so nothing partial is stored.
	if len(d.Lineage.Parents) > 0 {
		parents := make([]*model.DTU, 0, len(d.Lineage.Parents))
		for _, pid := range d.Lineage.Parents {
			p, ok := g.atlas.Get(pid)
			if !ok {
				return ApplyResult{Err: fmt.Errorf("%w: unknown parent %s", ErrValidation, pid)}
			}
			parents = append(parents, p)
		}
		if err := g.rights.CheckDerivativeRights(d.CreatorID, parents); err != nil {
			return ApplyResult{Err: err}
		}
	}

	stored := g.atlas.Put(d)

	// An ancestor cycle quarantines the candidate rather than keeping it
	// writable.
	if g.atlas.HasLineageCycle(stored) {
		_, _ = g.atlas.SetStatus(stored.ID, model.StatusQuarantined)
		stored.Status = model.StatusQuarantined
		return ApplyResult{DTU: stored, Err: fmt.Errorf("%w: lineage cycle", ErrValidation)}
	}

	hash, err := rights.ContentHash(stored)
	if err == nil {
		_ = g.atlas.Touch(stored.ID, func(m *model.DTU) { m.ContentHash = hash })
		stored.ContentHash = hash
	}
	if _, err := g.rights.RecordOrigin(stored, g.clock.Now()); err != nil {
		g.logger.Warn("origin proof not recorded", "dtu_id", stored.ID, "error", err)
	}

	g.bus.Emit(model.EventEpisodeRecorded, map[string]any{
		"dtu_id": stored.ID,
		"lane":   string(stored.Lane),
		"op":     string(OpCreate),
	}, model.EventMeta{ActorID: d.CreatorID})

	return ApplyResult{OK: true, DTU: stored}
}

func (g *Guard) update(payload map[string]any, wc WriteContext) ApplyResult {
	id, _ := payload["id"].(string)
	if id == "" {
		return ApplyResult{Err: fmt.Errorf("%w: update requires id", ErrValidation)}
	}
	existing, ok := g.atlas.Get(id)
	if !ok {
		return ApplyResult{Err: atlas.ErrNotFound}
	}
	if existing.Lane != wc.Scope {
		return ApplyResult{Err: fmt.Errorf("%w: lane %s dtu updated through %s scope", ErrValidation, existing.Lane, wc.Scope)}
	}
	incoming, err := decodeDTU(payload)
	if err != nil {
		return ApplyResult{Err: err}
	}
	err = g.atlas.Touch(id, func(m *model.DTU) {
		if incoming.Title != "" {
			m.Title = incoming.Title
		}
		if incoming.Tags != nil {
			m.Tags = incoming.Tags
		}
		if incoming.Claims != nil {
			m.Claims = incoming.Claims
		}
		if incoming.DomainType != "" {
			m.DomainType = incoming.DomainType
		}
		if incoming.EpistemicClass != "" {
			m.EpistemicClass = incoming.EpistemicClass
		}
	})
	if err != nil {
		return ApplyResult{Err: err}
	}
	updated, _ := g.atlas.Get(id)
	g.bus.Emit(model.EventWorldUpdateProposed, map[string]any{
		"dtu_id": id,
		"op":     string(OpUpdate),
	}, model.EventMeta{ActorID: actorID(wc)})
	return ApplyResult{OK: true, DTU: updated}
}

func (g *Guard) link(payload map[string]any, wc WriteContext) ApplyResult {
	l := model.Link{
		Type:     model.LinkType(str(payload, "type")),
		FromID:   str(payload, "fromId"),
		ToID:     str(payload, "toId"),
		Severity: model.Severity(str(payload, "severity")),
	}
	if ct := str(payload, "contradictionType"); ct != "" {
		l.ContradictionType = model.ContradictionType(ct)
	}
	if l.FromID == "" || l.ToID == "" || l.Type == "" {
		return ApplyResult{Err: fmt.Errorf("%w: link requires fromId, toId, type", ErrValidation)}
	}
	added, err := g.atlas.AddLink(l)
	if err != nil {
		return ApplyResult{Err: err}
	}
	g.bus.Emit(model.EventCausalityUpdated, map[string]any{
		"link_id": added.ID,
		"type":    string(added.Type),
	}, model.EventMeta{ActorID: actorID(wc)})
	return ApplyResult{OK: true}
}

func (g *Guard) promote(payload map[string]any, wc WriteContext) ApplyResult {
	id := str(payload, "dtuId")
	if id == "" {
		return ApplyResult{Err: fmt.Errorf("%w: promote requires dtuId", ErrValidation)}
	}
	d, ok := g.atlas.Get(id)
	if !ok {
		return ApplyResult{Err: atlas.ErrNotFound}
	}

	res := g.atlas.AutoPromoteGate(d, wc.Scope)
	if !res.Pass {
		if res.SameAsID != "" {
			if err := g.atlas.MarkSameAs(id, res.SameAsID); err != nil {
				return ApplyResult{Err: err}
			}
		}
		return ApplyResult{Err: fmt.Errorf("%w: auto-promote gate failed", ErrDenied)}
	}
	if _, err := g.atlas.SetStatus(id, res.Label, model.StatusProposed); err != nil {
		return ApplyResult{Err: err}
	}
	promoted, _ := g.atlas.Get(id)
	g.bus.Emit(model.EventNormativeApplied, map[string]any{
		"dtu_id": id,
		"label":  string(res.Label),
	}, model.EventMeta{ActorID: actorID(wc)})
	return ApplyResult{OK: true, DTU: promoted}
}

// decodeDTU maps a loose payload onto a DTU via JSON.
func decodeDTU(payload map[string]any) (*model.DTU, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var wire struct {
		ID             string   `json:"id"`
		Title          string   `json:"title"`
		Tags           []string `json:"tags"`
		DomainType     string   `json:"domainType"`
		EpistemicClass string   `json:"epistemicClass"`
		CreatorID      string   `json:"creatorId"`
		Claims         []struct {
			Type         string   `json:"type"`
			Text         string   `json:"text"`
			EvidenceTier string   `json:"evidenceTier"`
			Sources      []string `json:"sources"`
		} `json:"claims"`
		Lineage struct {
			Parents []string `json:"parents"`
			Depth   int      `json:"depth"`
			Origin  string   `json:"origin"`
		} `json:"lineage"`
		Provenance *model.Provenance `json:"provenance"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	d := &model.DTU{
		ID:             wire.ID,
		Title:          wire.Title,
		Tags:           wire.Tags,
		DomainType:     wire.DomainType,
		EpistemicClass: model.EpistemicClass(wire.EpistemicClass),
		CreatorID:      wire.CreatorID,
		Provenance:     wire.Provenance,
	}
	for _, c := range wire.Claims {
		claim := model.Claim{
			Type:         model.ClaimType(c.Type),
			Text:         c.Text,
			EvidenceTier: model.EvidenceTier(c.EvidenceTier),
			Sources:      c.Sources,
		}
		if claim.EvidenceTier == "" {
			claim.EvidenceTier = model.TierUnsourced
		}
		d.Claims = append(d.Claims, claim)
	}
	d.Lineage = model.Lineage{
		Parents: wire.Lineage.Parents,
		Depth:   wire.Lineage.Depth,
		Origin:  model.Origin(wire.Lineage.Origin),
	}
	if d.Lineage.Origin == "" {
		d.Lineage.Origin = model.OriginHuman
	}
	return d, nil
}

func str(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func actorID(wc WriteContext) string {
	if wc.Actor == nil {
		return ""
	}
	return wc.Actor.ID
}
