package autogen

import (
	"context"
	"log/slog"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
)

// WriteMode decides how a finished candidate lands.
type WriteMode string

const (
	// WriteShadow stores the candidate as an unpromotable draft that needs a
	// council vote and a human push.
	WriteShadow WriteMode = "shadow"
	// WriteRegular stores the candidate as a normal proposed DTU.
	WriteRegular WriteMode = "regular"
)

// RunResult is the full trace of one generation run.
type RunResult struct {
	Target      Target         `json:"target"`
	Candidate   *Candidate     `json:"candidate,omitempty"`
	Critic      CriticReport   `json:"critic"`
	Patch       *PatchProposal `json:"patch,omitempty"`
	Mode        WriteMode      `json:"mode,omitempty"`
	DTUID       string         `json:"dtu_id,omitempty"`
	Trace       []string       `json:"trace"`
	Aborted     bool           `json:"aborted"`
	AbortReason string         `json:"abort_reason,omitempty"`
}

// Pipeline runs staged self-generation against the lattice.
type Pipeline struct {
	atlas  *atlas.Store
	bus    *bus.Bus
	clock  *idclock.Clock
	llm    LLMClient
	logger *slog.Logger

	recent *hashRing
}

// New wires a pipeline. llm may be nil; the shaping stage then no-ops.
func New(a *atlas.Store, b *bus.Bus, clock *idclock.Clock, llm LLMClient, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		atlas:  a,
		bus:    b,
		clock:  clock,
		llm:    llm,
		logger: logger,
		recent: newHashRing(),
	}
}

// Run executes the staged pipeline once. Any stage may abort the run;
// aborts are recorded in the result, not returned as errors.
func (p *Pipeline) Run(ctx context.Context, variant Variant) RunResult {
	res := RunResult{Trace: []string{}}

	res.Target = p.SelectTarget(variant)
	res.Trace = append(res.Trace, "target:"+string(res.Target.Intent))
	if res.Target.Reason == "empty_lattice" {
		res.Aborted = true
		res.AbortReason = "empty_lattice"
		return res
	}

	pack := p.BuildPack(res.Target)
	res.Trace = append(res.Trace, "pack_built")

	cand, err := p.Build(res.Target, pack)
	if err != nil {
		res.Aborted = true
		res.AbortReason = "empty_pack"
		return res
	}
	res.Candidate = cand

	res.Critic = Critique(cand, pack)
	res.Trace = append(res.Trace, "critiqued")

	Synthesize(cand, res.Critic)
	res.Trace = append(res.Trace, "synthesized")

	p.ShapeWithLLM(ctx, cand, pack, &res.Trace)

	novel, patch, err := p.CheckNovelty(cand)
	if err != nil {
		res.Aborted = true
		res.AbortReason = "novelty_hash_failed"
		return res
	}
	if !novel {
		res.Aborted = true
		res.AbortReason = "duplicate_generation"
		return res
	}
	if patch != nil {
		res.Patch = patch
		res.Trace = append(res.Trace, "patch_proposal")
		return res
	}

	res.Mode = p.writePolicy(res.Target, res.Critic)
	res.DTUID = p.commit(cand, res.Mode)
	res.Trace = append(res.Trace, "written:"+string(res.Mode))

	p.bus.Emit(model.EventSkillCompiled, map[string]any{
		"dtu_id": res.DTUID,
		"intent": string(res.Target.Intent),
		"mode":   string(res.Mode),
	}, model.EventMeta{})
	return res
}

// writePolicy defaults to shadow. Only a clean fill_gaps run writes
// directly; critical critic issues always force shadow.
func (p *Pipeline) writePolicy(target Target, report CriticReport) WriteMode {
	if report.HasCritical() {
		return WriteShadow
	}
	if target.Intent == IntentFillGaps {
		return WriteRegular
	}
	return WriteShadow
}

// commit persists the candidate into the local lane with autogen lineage.
func (p *Pipeline) commit(cand *Candidate, mode WriteMode) string {
	parents := supportUnion(cand)
	d := &model.DTU{
		Title:      cand.Title,
		Tags:       cand.Tags,
		Lane:       model.ScopeLocal,
		CreatorID:  "autogen",
		DomainType: "synthesis",
		Lineage: model.Lineage{
			Parents: parents,
			Depth:   1,
			Origin:  model.OriginAutogen,
		},
		Provenance: &model.Provenance{
			SourceType: "autogen",
			SourceID:   p.clock.MintID(),
			Confidence: 0.5,
			CreatedAt:  p.clock.Now(),
		},
		Meta: map[string]any{},
	}
	for k, v := range cand.Meta {
		d.Meta[k] = v
	}
	d.Meta["summary"] = cand.Summary
	if mode == WriteShadow {
		d.Meta["shadow"] = true
	}
	for _, c := range cand.Claims {
		claim := model.Claim{Text: c.Text}
		switch c.Class {
		case ClassFact:
			claim.Type = model.ClaimModelOutput
			claim.EvidenceTier = model.TierSupported
			claim.Sources = append([]string(nil), c.Support...)
		case ClassInference:
			claim.Type = model.ClaimInterpretation
			claim.EvidenceTier = model.TierSupported
		default:
			claim.Type = model.ClaimHypothesis
			claim.EvidenceTier = model.TierUnsourced
		}
		d.Claims = append(d.Claims, claim)
	}
	stored := p.atlas.Put(d)
	if mode == WriteRegular {
		if _, err := p.atlas.SetStatus(stored.ID, model.StatusProposed, model.StatusDraft); err != nil {
			p.logger.Warn("autogen candidate not proposed", "dtu_id", stored.ID, "error", err)
		}
	}
	return stored.ID
}

func supportUnion(cand *Candidate) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cand.Claims {
		for _, id := range c.Support {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
