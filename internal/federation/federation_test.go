package federation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/rights"
)

func newExchange(t *testing.T) (*Exchange, *atlas.Store, *bus.Bus) {
	t.Helper()
	clock := idclock.New()
	b := bus.New(clock, 1000, nil)
	a := atlas.NewStore(clock, b, nil)
	return NewExchange(a, rights.NewEngine(), b, clock, nil), a, b
}

func seedDTU(id string) *model.DTU {
	return &model.DTU{
		ID:             id,
		Title:          "observed tidal resonance in the channel model",
		Tags:           []string{"ocean", "model"},
		DomainType:     "geophysics",
		EpistemicClass: model.ClassEmpirical,
		Lane:           model.ScopeGlobal,
		CreatorID:      "alice",
		Claims: []model.Claim{
			{Type: model.ClaimFact, Text: "resonance peaks at 12.4 h", EvidenceTier: model.TierCorroborated, Sources: []string{"gauge-7"}},
			{Type: model.ClaimInterpretation, Text: "the channel amplifies the semidiurnal band", EvidenceTier: model.TierSupported},
		},
		Provenance: &model.Provenance{
			SourceType: "session",
			SourceID:   "s1",
			Confidence: 0.9,
			CreatedAt:  time.Unix(1000, 0),
		},
	}
}

func TestExport_BuildsHashedEnvelope(t *testing.T) {
	ex, a, b := newExchange(t)
	a.Put(seedDTU("d1"))

	env, err := ex.Export("d1", 0.8)
	require.NoError(t, err)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.NotEmpty(t, env.ArtifactHash)
	assert.Equal(t, []string{"gauge-7"}, env.Evidence)
	assert.Equal(t, "ATTRIBUTION_OPEN", env.License.Type)
	assert.True(t, env.License.Attribution)
	assert.InDelta(t, 0.8, env.Reputation, 1e-9)

	events := b.Query(bus.Filter{Type: model.EventFederationExported})
	require.Len(t, events, 1)
	assert.Equal(t, "d1", events[0].Payload["dtu_id"])
}

func TestExport_UnknownDTU(t *testing.T) {
	ex, _, _ := newExchange(t)
	_, err := ex.Export("nope", 0)
	assert.ErrorIs(t, err, atlas.ErrNotFound)
}

func TestImport_RejectsBadVersionAndTamper(t *testing.T) {
	ex, a, _ := newExchange(t)
	a.Put(seedDTU("d1"))
	env, err := ex.Export("d1", 0.5)
	require.NoError(t, err)

	wrong := env
	wrong.Version = "loaf-federation-v0"
	_, err = ex.ImportEnvelope(wrong)
	assert.ErrorIs(t, err, ErrBadEnvelope)

	tampered := env
	tampered.Artifact = env.Artifact.Clone()
	tampered.Artifact.Title = "rewritten en route"
	_, err = ex.ImportEnvelope(tampered)
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestImport_AlwaysLandsSandboxed(t *testing.T) {
	src, a, _ := newExchange(t)
	a.Put(seedDTU("d1"))
	env, err := src.Export("d1", 0.5)
	require.NoError(t, err)

	dst, da, db := newExchange(t)
	imp, err := dst.ImportEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, TrustSandboxed, imp.Trust)

	// Verification passed, quarantine anyway.
	landed, ok := da.Get("d1")
	require.True(t, ok)
	assert.Equal(t, model.StatusQuarantined, landed.Status)
	assert.Equal(t, model.ScopeLocal, landed.Lane)
	assert.Equal(t, model.OriginImport, landed.Lineage.Origin)
	assert.Equal(t, true, landed.Meta["federated"])

	require.Len(t, db.Query(bus.Filter{Type: model.EventSandboxCreated}), 1)
	require.Len(t, db.Query(bus.Filter{Type: model.EventFederationImported}), 1)
}

func TestPromote_RequiresPrivilegedActor(t *testing.T) {
	src, a, _ := newExchange(t)
	a.Put(seedDTU("d1"))
	env, err := src.Export("d1", 0.5)
	require.NoError(t, err)

	dst, da, _ := newExchange(t)
	imp, err := dst.ImportEnvelope(env)
	require.NoError(t, err)

	err = dst.Promote(imp.ID, &model.Actor{ID: "bob", Role: model.RoleMember})
	assert.ErrorIs(t, err, ErrNotPrivileged)
	assert.ErrorIs(t, dst.Promote(imp.ID, nil), ErrNotPrivileged)

	err = dst.Promote(imp.ID, &model.Actor{ID: "root", Role: model.RoleCouncil})
	require.NoError(t, err)

	got, ok := dst.Import(imp.ID)
	require.True(t, ok)
	assert.Equal(t, TrustTrusted, got.Trust)

	landed, ok := da.Get("d1")
	require.True(t, ok)
	assert.Equal(t, model.StatusDraft, landed.Status, "trusted import leaves quarantine")
}
