package autogen

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func newPipeline(t *testing.T, llm LLMClient) (*Pipeline, *atlas.Store) {
	t.Helper()
	clock := idclock.New()
	b := bus.New(clock, 1000, nil)
	a := atlas.NewStore(clock, b, nil)
	return New(a, b, clock, llm, nil), a
}

func seedDTU(a *atlas.Store, id, title string, tags []string, claims []model.Claim) *model.DTU {
	return a.Put(&model.DTU{
		ID:             id,
		Title:          title,
		Tags:           tags,
		DomainType:     "engineering",
		EpistemicClass: model.ClassEmpirical,
		Lane:           model.ScopeLocal,
		CreatorID:      "alice",
		Claims:         claims,
		Provenance:     &model.Provenance{SourceType: "session", SourceID: "s1", Confidence: 0.8, CreatedAt: time.Unix(1000, 0)},
	})
}

func factClaim(text, source string) model.Claim {
	return model.Claim{Type: model.ClaimFact, Text: text, EvidenceTier: model.TierCorroborated, Sources: []string{source}}
}

func TestSelectTarget_EmptyLattice(t *testing.T) {
	p, _ := newPipeline(t, nil)
	target := p.SelectTarget(VariantNone)
	assert.Equal(t, IntentFillGaps, target.Intent)
	assert.Zero(t, target.Score)
	assert.Equal(t, "empty_lattice", target.Reason)
}

func TestSelectTarget_GapDensityWins(t *testing.T) {
	p, a := newPipeline(t, nil)
	for i := 0; i < 3; i++ {
		seedDTU(a, fmt.Sprintf("thin%d", i), fmt.Sprintf("thin note %d", i), nil,
			[]model.Claim{{Type: model.ClaimHypothesis, Text: "sparse", EvidenceTier: model.TierUnsourced}})
	}
	target := p.SelectTarget(VariantNone)
	assert.Equal(t, IntentFillGaps, target.Intent)
	assert.Equal(t, "gap_density", target.Reason)
}

func TestSelectTarget_VariantBias(t *testing.T) {
	p, a := newPipeline(t, nil)
	seedDTU(a, "d1", "a well sourced unit", nil, []model.Claim{factClaim("fact one", "src-1"), factClaim("fact two", "src-2")})

	plain := p.SelectTarget(VariantNone)
	biased := p.SelectTarget(VariantSynth)
	assert.NotEqual(t, IntentCompressClusters, plain.Intent)
	assert.Equal(t, IntentCompressClusters, biased.Intent)
	assert.Contains(t, biased.Reason, "variant_bias")
}

func TestBuildPack_CitationsAndConflicts(t *testing.T) {
	p, a := newPipeline(t, nil)
	seedDTU(a, "d1", "thermal ceiling study", []string{"thermal"}, []model.Claim{factClaim("throttles at 85 c", "bench-1")})
	seedDTU(a, "d2", "fan curve study", []string{"acoustics"}, []model.Claim{factClaim("fan tops at 80 percent", "bench-2")})
	_, err := a.AddLink(model.Link{FromID: "d1", ToID: "d2", Type: model.LinkContradicts, Severity: model.SeverityMedium})
	require.NoError(t, err)

	pack := p.BuildPack(Target{Intent: IntentFillGaps})
	assert.Len(t, pack.Core, 2)
	assert.ElementsMatch(t, []string{"bench-1", "bench-2"}, pack.Citations)
	require.Len(t, pack.ConflictPairs, 1)
	assert.Equal(t, [2]string{"d1", "d2"}, pack.ConflictPairs[0])
}

func TestBuildPack_WeakTailTrimsToCoreMinimum(t *testing.T) {
	p, a := newPipeline(t, nil)
	for i := 0; i < packCoreMin; i++ {
		seedDTU(a, fmt.Sprintf("s%d", i), fmt.Sprintf("well sourced study %d", i), []string{"thermal", "hardware"},
			[]model.Claim{factClaim("first fact", "bench-1"), factClaim("second fact", "bench-2"), factClaim("third fact", "bench-3")})
	}
	for i := 0; i < 5; i++ {
		seedDTU(a, fmt.Sprintf("w%d", i), fmt.Sprintf("speculative aside %d", i), nil,
			[]model.Claim{{Type: model.ClaimHypothesis, Text: "unsure", EvidenceTier: model.TierUnsourced}})
	}

	pack := p.BuildPack(Target{Intent: IntentResolveConflicts})
	assert.Len(t, pack.Core, packCoreMin, "weak entries drop once the core minimum is met")
	assert.Len(t, pack.Peripheral, 5)
	for _, d := range pack.Peripheral {
		assert.Contains(t, d.ID, "w")
	}
}

func TestBuild_EmptyPackAborts(t *testing.T) {
	p, _ := newPipeline(t, nil)
	_, err := p.Build(Target{Intent: IntentFillGaps}, Pack{})
	assert.ErrorIs(t, err, ErrEmptyPack)
}

func TestBuild_ClassifiesClaims(t *testing.T) {
	p, a := newPipeline(t, nil)
	d := seedDTU(a, "d1", "mixed evidence unit", []string{"thermal", "hardware"}, []model.Claim{
		factClaim("sourced fact", "bench-1"),
		{Type: model.ClaimInterpretation, Text: "an interpretation", EvidenceTier: model.TierSupported},
		{Type: model.ClaimFact, Text: "unsourced fact", EvidenceTier: model.TierUnsourced},
	})

	cand, err := p.Build(Target{Intent: IntentFillGaps}, Pack{Core: []*model.DTU{d}})
	require.NoError(t, err)
	require.Len(t, cand.Claims, 3)
	assert.Equal(t, ClassFact, cand.Claims[0].Class)
	assert.Equal(t, ClassInference, cand.Claims[1].Class)
	assert.Equal(t, ClassHypothesis, cand.Claims[2].Class)
	assert.LessOrEqual(t, cand.Claims[2].Confidence, hypothesisCeiling)
	for _, c := range cand.Claims {
		assert.Equal(t, []string{"d1"}, c.Support)
		assert.GreaterOrEqual(t, c.Confidence, confidenceFloor)
	}
	assert.Contains(t, cand.Tags, "thermal")
}

func TestCritique(t *testing.T) {
	clean := &Candidate{Claims: []CandidateClaim{
		{Text: "the enclosure is thermally limited", Class: ClassFact, Support: []string{"d1"}},
		{Text: "throttling begins at 85 c", Class: ClassFact, Support: []string{"d1"}},
	}}
	r := Critique(clean, Pack{})
	assert.False(t, r.NeedsEscalation)
	for _, i := range r.Issues {
		assert.NotEqual(t, SeverityCritical, i.Severity)
	}

	// No support anywhere is critical.
	bare := &Candidate{Claims: []CandidateClaim{{Text: "unsupported", Class: ClassFact}}}
	r = Critique(bare, Pack{})
	assert.True(t, r.NeedsEscalation)
	assert.True(t, hasIssue(r, "no_evidence_links"))
	assert.True(t, hasIssue(r, "no_definitions"))

	// Hypothesis-heavy candidates are unpublishable.
	hypo := &Candidate{Claims: []CandidateClaim{
		{Text: "maybe a", Class: ClassHypothesis, Support: []string{"d"}},
		{Text: "maybe b", Class: ClassHypothesis, Support: []string{"d"}},
		{Text: "maybe c", Class: ClassHypothesis, Support: []string{"d"}},
		{Text: "one solid thing is known", Class: ClassFact, Support: []string{"d"}},
	}}
	r = Critique(hypo, Pack{})
	assert.True(t, hasIssue(r, "mostly_hypothetical"))

	// Unacknowledged conflicts warn.
	r = Critique(clean, Pack{ConflictPairs: [][2]string{{"a", "b"}}})
	assert.True(t, hasIssue(r, "conflicts_not_acknowledged"))
	ack := &Candidate{
		Summary: "acknowledges the open dispute between a and b",
		Claims:  clean.Claims,
	}
	r = Critique(ack, Pack{ConflictPairs: [][2]string{{"a", "b"}}})
	assert.False(t, hasIssue(r, "conflicts_not_acknowledged"))

	// Internal contradictions are critical.
	inconsistent := &Candidate{Claims: []CandidateClaim{
		{Text: "the cache layer is shared across nodes", Class: ClassFact, Support: []string{"d"}},
		{Text: "the cache layer is not shared across nodes", Class: ClassFact, Support: []string{"d"}},
	}}
	r = Critique(inconsistent, Pack{})
	assert.True(t, hasIssue(r, "internal_inconsistency"))
	assert.True(t, r.NeedsEscalation)
}

func hasIssue(r CriticReport, name string) bool {
	for _, i := range r.Issues {
		if i.Name == name {
			return true
		}
	}
	return false
}

func TestSynthesize_DedupesAndTraces(t *testing.T) {
	cand := &Candidate{Claims: []CandidateClaim{
		{Text: "Throttling begins at 85 c", Class: ClassFact},
		{Text: "throttling begins at 85 c ", Class: ClassFact},
		{Text: "fans are loud", Class: ClassInference},
	}}
	report := CriticReport{Issues: []Issue{{Name: "no_definitions", Severity: SeverityWarn}}}
	Synthesize(cand, report)
	assert.Len(t, cand.Claims, 2)
	assert.Equal(t, []string{"warn:no_definitions"}, cand.Meta["criticTrace"])
	assert.Contains(t, cand.Summary, "critic: 1 issues")
}

func TestShapeWithLLM(t *testing.T) {
	llm := &fakeLLM{response: `Here you go:
{"title": "shaped title", "claims": [
  {"text": "kept claim", "class": "fact", "support": ["d1"], "confidence": 0.9},
  {"text": "fabricated support", "class": "fact", "support": ["ghost"], "confidence": 0.9}
]}`}
	p, a := newPipeline(t, llm)
	d := seedDTU(a, "d1", "base unit", nil, []model.Claim{factClaim("base fact", "src")})

	cand := &Candidate{Title: "draft", Meta: map[string]any{}, Claims: []CandidateClaim{{Text: "base fact", Class: ClassFact, Support: []string{"d1"}}}}
	var trace []string
	p.ShapeWithLLM(context.Background(), cand, Pack{Core: []*model.DTU{d}}, &trace)

	assert.Equal(t, "shaped title", cand.Title)
	require.Len(t, cand.Claims, 2)
	assert.Equal(t, []string{"d1"}, cand.Claims[0].Support)
	assert.Equal(t, ClassFact, cand.Claims[0].Class)

	// Fully fabricated support downgrades the claim.
	assert.Empty(t, cand.Claims[1].Support)
	assert.Equal(t, ClassHypothesis, cand.Claims[1].Class)
	assert.LessOrEqual(t, cand.Claims[1].Confidence, hypothesisCeiling)

	assert.Equal(t, true, cand.Meta["ollamaShaped"])
	assert.Contains(t, trace, "llm_shaped")
}

func TestShapeWithLLM_FailuresAreNonFatal(t *testing.T) {
	p, a := newPipeline(t, &fakeLLM{err: errors.New("connection refused")})
	d := seedDTU(a, "d1", "base unit", nil, []model.Claim{factClaim("base fact", "src")})
	cand := &Candidate{Title: "draft", Meta: map[string]any{}}
	var trace []string
	p.ShapeWithLLM(context.Background(), cand, Pack{Core: []*model.DTU{d}}, &trace)
	assert.Equal(t, "draft", cand.Title, "candidate untouched on failure")
	require.Len(t, trace, 1)
	assert.Contains(t, trace[0], "llm_error")

	p2, _ := newPipeline(t, &fakeLLM{response: "not json at all"})
	trace = nil
	p2.ShapeWithLLM(context.Background(), cand, Pack{Core: []*model.DTU{d}}, &trace)
	assert.Contains(t, trace, "llm_unparseable")
}

func TestCheckNovelty(t *testing.T) {
	p, a := newPipeline(t, nil)
	existing := seedDTU(a, "d1", "thermal limits of the v2 enclosure", []string{"thermal", "hardware"},
		[]model.Claim{factClaim("throttling begins at 85 c", "bench-1")})
	_ = existing

	fresh := &Candidate{Title: "an unrelated synthesis", Tags: []string{"networking"},
		Claims: []CandidateClaim{{Text: "latency dominates throughput here"}}}
	ok, patch, err := p.CheckNovelty(fresh)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, patch)

	// The same payload again is a duplicate generation.
	ok, _, err = p.CheckNovelty(fresh)
	require.NoError(t, err)
	assert.False(t, ok)

	// A near-copy of an existing DTU becomes a patch proposal.
	near := &Candidate{
		Title: "thermal limits of the v2 enclosure",
		Tags:  []string{"thermal", "hardware"},
		Claims: []CandidateClaim{{Text: "throttling begins at 85 c"}},
	}
	ok, patch, err = p.CheckNovelty(near)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, patch)
	assert.Equal(t, "d1", patch.TargetID)
	assert.GreaterOrEqual(t, patch.Similarity, patchSimilarityThreshold)
}

func TestRun_EmptyLatticeAborts(t *testing.T) {
	p, _ := newPipeline(t, nil)
	res := p.Run(context.Background(), VariantNone)
	assert.True(t, res.Aborted)
	assert.Equal(t, "empty_lattice", res.AbortReason)
	assert.Equal(t, IntentFillGaps, res.Target.Intent)
}

func TestRun_FillGapsWritesRegular(t *testing.T) {
	p, a := newPipeline(t, nil)
	seedDTU(a, "d1", "thermal ceiling study", []string{"thermal"}, []model.Claim{factClaim("the limit is 85 c", "bench-1")})
	seedDTU(a, "d2", "fan curve study", []string{"acoustics"}, []model.Claim{factClaim("the fan curve is conservative", "bench-2")})

	res := p.Run(context.Background(), VariantNone)
	require.False(t, res.Aborted, "abort: %s", res.AbortReason)
	assert.Equal(t, IntentFillGaps, res.Target.Intent)
	assert.Equal(t, WriteRegular, res.Mode)
	require.NotEmpty(t, res.DTUID)

	stored, ok := a.Get(res.DTUID)
	require.True(t, ok)
	assert.Equal(t, model.StatusProposed, stored.Status)
	assert.Equal(t, model.OriginAutogen, stored.Lineage.Origin)
	assert.ElementsMatch(t, []string{"d1", "d2"}, stored.Lineage.Parents)
}

func TestRun_CriticalIssuesForceShadow(t *testing.T) {
	p, a := newPipeline(t, nil)
	// Unsourced-only lattice: everything becomes hypothesis, which the
	// critic escalates.
	seedDTU(a, "d1", "speculative note one", nil, []model.Claim{{Type: model.ClaimFact, Text: "maybe x", EvidenceTier: model.TierUnsourced}})
	seedDTU(a, "d2", "speculative note two", nil, []model.Claim{{Type: model.ClaimFact, Text: "maybe y", EvidenceTier: model.TierUnsourced}})

	res := p.Run(context.Background(), VariantNone)
	require.False(t, res.Aborted, "abort: %s", res.AbortReason)
	assert.True(t, res.Critic.NeedsEscalation)
	assert.Equal(t, WriteShadow, res.Mode)

	stored, ok := a.Get(res.DTUID)
	require.True(t, ok)
	assert.Equal(t, model.StatusDraft, stored.Status)
	assert.Equal(t, true, stored.Meta["shadow"])
}
