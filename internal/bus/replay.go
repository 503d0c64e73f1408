package bus

import (
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
)

// Decision is one deterministic outcome produced during replay.
type Decision struct {
	Seq       int64   `json:"seq"`
	EventType string  `json:"event_type"`
	Action    string  `json:"action"`
	Weight    float64 `json:"weight"`
}

// ReplayResult is the full decision stream for a replay run. ModelVersion
// is recorded for out-of-band diffing; it never participates in the
// computation.
type ReplayResult struct {
	Seed         string     `json:"seed"`
	ModelVersion string     `json:"model_version"`
	Decisions    []Decision `json:"decisions"`
}

// actionTable maps event types to their candidate actions. The per-event
// action is chosen by the seeded generator, so identical inputs always pick
// identically.
var actionTable = map[string][]string{
	model.EventDisputeOpened:       {"open_review", "escalate", "hold"},
	model.EventDisputeResolved:     {"close", "archive"},
	model.EventCouncilVote:         {"tally", "defer_tally"},
	model.EventEpisodeRecorded:     {"index", "summarize", "skip"},
	model.EventDriftDetected:       {"raise_guardrail", "open_inquiry"},
	model.EventQuarantineAdded:     {"notify", "schedule_review"},
	model.EventThreadScheduled:     {"admit", "queue"},
	model.EventFederationImported:  {"sandbox", "verify"},
	model.EventWorldUpdateProposed: {"stage", "reject_stage"},
}

var defaultActions = []string{"record", "defer", "inspect"}

// ReplayEngine reproduces decision streams from an event log and a seed.
type ReplayEngine struct{}

// NewReplayEngine creates a replay engine.
func NewReplayEngine() *ReplayEngine {
	return &ReplayEngine{}
}

// Replay derives one decision per event from (event type, payload, rng).
// Replaying identical events with an identical seed yields a structurally
// identical decision stream; wall-clock timestamps are ignored.
func (r *ReplayEngine) Replay(events []model.CognitionEvent, seed, modelVersion string) ReplayResult {
	rng := idclock.NewLCG(seed)
	out := ReplayResult{Seed: seed, ModelVersion: modelVersion}

	for _, ev := range events {
		actions := actionTable[ev.Type]
		if len(actions) == 0 {
			actions = defaultActions
		}
		// Payload size perturbs the stream so that two event sequences with
		// the same types but different payloads diverge deterministically.
		for i := 0; i < len(ev.Payload)%3; i++ {
			rng.Uint64()
		}
		d := Decision{
			Seq:       ev.Seq,
			EventType: ev.Type,
			Action:    actions[rng.Intn(len(actions))],
			Weight:    rng.Float64(),
		}
		out.Decisions = append(out.Decisions, d)
	}
	return out
}
