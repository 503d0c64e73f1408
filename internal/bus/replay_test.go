package bus

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loaf-ai/loaf/internal/model"
)

func sampleEvents() []model.CognitionEvent {
	return []model.CognitionEvent{
		{Seq: 1, Type: model.EventEpisodeRecorded, Payload: map[string]any{"x": 1}},
		{Seq: 2, Type: model.EventCouncilVote, Payload: map[string]any{"v": "approve"}},
	}
}

func TestReplay_Deterministic(t *testing.T) {
	r := NewReplayEngine()
	first := r.Replay(sampleEvents(), "same", "m1")
	second := r.Replay(sampleEvents(), "same", "m1")
	assert.Equal(t, first.Decisions, second.Decisions)
}

func TestReplay_ModelVersionIsMetadataOnly(t *testing.T) {
	r := NewReplayEngine()
	a := r.Replay(sampleEvents(), "same", "m1")
	b := r.Replay(sampleEvents(), "same", "m2")
	assert.Equal(t, a.Decisions, b.Decisions, "model version must not influence decisions")
	assert.Equal(t, "m2", b.ModelVersion)
}

func TestReplay_SeedChangesStream(t *testing.T) {
	r := NewReplayEngine()
	events := make([]model.CognitionEvent, 20)
	for i := range events {
		events[i] = model.CognitionEvent{Seq: int64(i + 1), Type: model.EventEpisodeRecorded}
	}
	a := r.Replay(events, "seed-a", "m")
	b := r.Replay(events, "seed-b", "m")
	assert.NotEqual(t, a.Decisions, b.Decisions)
}

func TestReplay_DecisionPerEvent(t *testing.T) {
	r := NewReplayEngine()
	res := r.Replay(sampleEvents(), "s", "m")
	require.Len(t, res.Decisions, 2)
	assert.Equal(t, int64(1), res.Decisions[0].Seq)
	assert.Equal(t, model.EventEpisodeRecorded, res.Decisions[0].EventType)
	// Actions come from the per-type table.
	assert.Contains(t, actionTable[model.EventCouncilVote], res.Decisions[1].Action)
}

func TestReplay_UnknownTypeUsesDefaultActions(t *testing.T) {
	r := NewReplayEngine()
	res := r.Replay([]model.CognitionEvent{{Seq: 1, Type: "custom.oddity"}}, "s", "m")
	require.Len(t, res.Decisions, 1)
	assert.Contains(t, defaultActions, res.Decisions[0].Action)
}

func TestReplay_EmptyLog(t *testing.T) {
	r := NewReplayEngine()
	res := r.Replay(nil, "s", "m")
	assert.Empty(t, res.Decisions)
}

// Property: for any seed and any event count, replaying twice yields
// identical decision streams.
func TestReplay_DeterminismProperty(t *testing.T) {
	r := NewReplayEngine()
	properties := gopter.NewProperties(nil)

	properties.Property("replay is deterministic for any seed and log", prop.ForAll(
		func(seed string, n int) bool {
			events := make([]model.CognitionEvent, n)
			for i := range events {
				typ := model.EventEpisodeRecorded
				if i%3 == 1 {
					typ = model.EventDisputeOpened
				}
				events[i] = model.CognitionEvent{Seq: int64(i + 1), Type: typ, Payload: map[string]any{"i": i}}
			}
			a := r.Replay(events, seed, "m")
			b := r.Replay(events, seed, "m")
			if len(a.Decisions) != len(b.Decisions) {
				return false
			}
			for i := range a.Decisions {
				if a.Decisions[i] != b.Decisions[i] {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
