package loaf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loaf-ai/loaf/internal/persistence"
)

func owner() Actor {
	return Actor{ID: "host", Role: RoleOwner, Verified: true, Scopes: []string{"*"}}
}

func council() Actor {
	return Actor{ID: "council-1", Role: RoleCouncil, Scopes: []string{"*"}}
}

func newSubstrate(t *testing.T, opts ...Option) *Substrate {
	t.Helper()
	sub, err := New(opts...)
	require.NoError(t, err)
	return sub
}

func sourcedRequest(title string) CreateRequest {
	return CreateRequest{
		Title:          title,
		Tags:           []string{"physics"},
		DomainType:     "physics",
		EpistemicClass: "EMPIRICAL",
		Claims: []Claim{
			{Type: "FACT", Text: title + " holds at sea level", Sources: []string{"handbook-3"}},
		},
		Provenance: &Provenance{
			SourceType: "sensor",
			SourceID:   "array-9",
			Confidence: 0.9,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func TestCreateAndRetrieve(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	d, err := sub.Create(sourcedRequest("water boils at 100 C"), owner())
	require.NoError(t, err)
	assert.Equal(t, "LOCAL", d.Lane)
	assert.Equal(t, "DRAFT", d.Status)
	assert.NotEmpty(t, d.ContentHash)

	got, ok := sub.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, d.Title, got.Title)

	res := sub.Retrieve("boils", 10)
	require.True(t, res.OK)
	require.Len(t, res.Results, 1)
	assert.Equal(t, d.ID, res.Results[0].ID)

	// Writes leave a trail on the cognition log.
	evs := sub.Events(EventFilter{Type: "budget_consumed"})
	require.NotEmpty(t, evs)
	assert.Equal(t, "host", evs[0].ActorID)
}

func TestCreateWithoutProvenanceQuarantines(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	req := sourcedRequest("unsourced observation")
	req.Provenance = nil
	d, err := sub.Create(req, owner())
	require.NoError(t, err)
	assert.Equal(t, "QUARANTINED", d.Status)

	// Quarantined DTUs never surface through retrieval.
	res := sub.Retrieve("unsourced", 10)
	assert.Empty(t, res.Results)
}

func TestBudgetExhaustionDeniesWrites(t *testing.T) {
	// world.write costs 8 per charge; a limit of 10 admits exactly one.
	sub := newSubstrate(t, WithBudget(time.Minute, 10))
	defer func() { _ = sub.Shutdown(context.Background()) }()

	_, err := sub.Create(sourcedRequest("first write"), owner())
	require.NoError(t, err)

	_, err = sub.Create(sourcedRequest("second write"), owner())
	require.ErrorIs(t, err, ErrBudgetExceeded)

	// The denial itself is on the log.
	evs := sub.Events(EventFilter{Type: "budget_consumed"})
	require.Len(t, evs, 2)
	assert.Equal(t, false, evs[1].Payload["allowed"])
}

func TestUnprivilegedActorDenied(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	member := Actor{ID: "visitor", Role: RoleMember}
	_, err := sub.Create(sourcedRequest("forbidden write"), member)
	require.ErrorIs(t, err, ErrDenied)
}

func TestSubmissionLifecycle(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	d, err := sub.Create(sourcedRequest("promotable fact"), owner())
	require.NoError(t, err)

	created, err := sub.Submit(d.ID, "GLOBAL", owner())
	require.NoError(t, err)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, "GLOBAL", created.TargetScope)

	// Marketplace is never reachable straight from local.
	_, err = sub.Submit(d.ID, "MARKETPLACE", owner())
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, sub.ResolveSubmission(created.ID, true, council()))
	resolved, ok := sub.GetSubmission(created.ID)
	require.True(t, ok)
	assert.Equal(t, "APPROVED", resolved.Status)
}

func TestFederationRoundTrip(t *testing.T) {
	src := newSubstrate(t)
	defer func() { _ = src.Shutdown(context.Background()) }()
	dst := newSubstrate(t)
	defer func() { _ = dst.Shutdown(context.Background()) }()

	d, err := src.Create(sourcedRequest("portable insight"), owner())
	require.NoError(t, err)

	env, err := src.ExportEnvelope(d.ID, 0.75)
	require.NoError(t, err)

	importID, err := dst.ImportEnvelope(env)
	require.NoError(t, err)
	require.NotEmpty(t, importID)

	// Sandbox until a privileged promote.
	require.ErrorIs(t, dst.PromoteImport(importID, Actor{ID: "m", Role: RoleMember}), ErrDenied)
	require.NoError(t, dst.PromoteImport(importID, council()))
}

func TestReplayIsDeterministic(t *testing.T) {
	sub := newSubstrate(t, WithSeed("replay-check"))
	defer func() { _ = sub.Shutdown(context.Background()) }()

	for _, title := range []string{"alpha", "beta", "gamma"} {
		_, err := sub.Create(sourcedRequest(title+" observation"), owner())
		require.NoError(t, err)
	}

	a := sub.Replay(0, 0)
	b := sub.Replay(0, 0)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.Decisions)
	assert.Equal(t, "replay-check", a.Seed)
}

func TestTimelineOps(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	id := sub.CreateTimeline("reactor", map[string]any{"temp": 20.0})
	n, err := sub.CommitTimeline(id, map[string]any{"temp": 80.0, "mode": "heating"}, "warmup")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	changes, err := sub.TimelineDiff(id, 1, 2)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	forkID, err := sub.ForkTimeline(id, 1, "what-if")
	require.NoError(t, err)
	assert.NotEqual(t, id, forkID)

	sub.AddCausalEdge("temp", "mode", 1)
	raw, err := sub.Counterfactual(id, 1, map[string]any{"temp": 500.0}, "cf-seed")
	require.NoError(t, err)
	raw2, err := sub.Counterfactual(id, 1, map[string]any{"temp": 500.0}, "cf-seed")
	require.NoError(t, err)
	assert.Equal(t, raw, raw2)
}

func TestDriftDetection(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	alerts := sub.DetectDrift(Signals{
		DomainCounts: map[string]int{"physics": 95, "art": 5},
	})
	var fired bool
	for _, a := range alerts {
		if a.Type == "epistemic_monoculture" && a.Detected {
			fired = true
		}
	}
	assert.True(t, fired)

	h := sub.ReportFailure("monoculture", "physics dominated generation")
	assert.NotEmpty(t, h.TestID)
	assert.NotEmpty(t, h.ConstraintID)
	assert.NotEmpty(t, h.GuardrailID)
}

func TestGovernanceRules(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	ruleID, err := sub.CreateRule("no unsourced global claims", council())
	require.NoError(t, err)

	votes := []Vote{
		{ActorID: "a", Approve: true},
		{ActorID: "b", Approve: true},
		{ActorID: "c", Approve: true},
	}
	amendID, err := sub.AmendRule(ruleID, "no unsourced claims anywhere", votes, council())
	require.NoError(t, err)
	assert.NotEmpty(t, amendID)

	// Two votes cannot amend.
	_, err = sub.AmendRule(ruleID, "weaker text", votes[:2], council())
	require.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := persistence.NewMemory()

	src := newSubstrate(t, WithPersistenceStore(store), WithSeed("snap-seed"))
	d, err := src.Create(sourcedRequest("durable fact"), owner())
	require.NoError(t, err)
	created, err := src.Submit(d.ID, "GLOBAL", owner())
	require.NoError(t, err)
	cursor := src.Stats().Cursor
	require.NoError(t, src.SaveSnapshot(context.Background()))

	dst := newSubstrate(t, WithPersistenceStore(store))
	require.NoError(t, dst.LoadSnapshot(context.Background()))

	got, ok := dst.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, d.Title, got.Title)

	restoredSub, ok := dst.GetSubmission(created.ID)
	require.True(t, ok)
	assert.Equal(t, "PENDING", restoredSub.Status)

	assert.Equal(t, "snap-seed", dst.Stats().Seed)
	assert.GreaterOrEqual(t, dst.Stats().Cursor, cursor)
}

func TestSnapshotWithoutStore(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	require.ErrorIs(t, sub.SaveSnapshot(context.Background()), ErrNoPersistence)
	require.ErrorIs(t, sub.LoadSnapshot(context.Background()), ErrNoPersistence)
}

func TestSchedulerPassThrough(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	sub.ScheduleTask("t-low", 10, false)
	sub.ScheduleTask("t-high", 90, false)

	id, ok := sub.DequeueTask()
	require.True(t, ok)
	assert.Equal(t, "t-high", id)
	sub.CompleteTask(id)

	evs := sub.Events(EventFilter{Type: "thread_scheduled"})
	assert.Len(t, evs, 2)
}

func TestMCPServerWired(t *testing.T) {
	sub := newSubstrate(t)
	defer func() { _ = sub.Shutdown(context.Background()) }()

	assert.NotNil(t, sub.MCPServer())
}
