package model

import "time"

// Stable event type names on the cognition bus. An emitted type outside
// this set is accepted but stamped as unknown in its meta.
const (
	EventEpisodeRecorded     = "episode_recorded"
	EventTransferExtracted   = "transfer_extracted"
	EventWorldUpdateProposed = "world_update_proposed"
	EventDisputeOpened       = "dispute_opened"
	EventDisputeResolved     = "dispute_resolved"
	EventCouncilVote         = "council_vote"
	EventRewardIssued        = "reward_issued"
	EventThreadScheduled     = "thread_scheduled"
	EventThreadTerminated    = "thread_terminated"
	EventGateChecked         = "gate_checked"
	EventBudgetConsumed      = "budget_consumed"
	EventProvenanceValidated = "provenance_validated"
	EventQuarantineAdded     = "quarantine_added"
	EventQuarantineReleased  = "quarantine_released"
	EventContributionTracked = "contribution_tracked"
	EventReflectionAssessed  = "reflection_assessed"
	EventStrategyUpdated     = "strategy_updated"
	EventSkillCompiled       = "skill_compiled"
	EventSandboxCreated      = "sandbox_created"
	EventFederationExported  = "federation_exported"
	EventFederationImported  = "federation_imported"
	EventEpistemicClassified = "epistemic_classified"
	EventRealityCheck        = "reality_check"
	EventNormativeApplied    = "normative_applied"
	EventDriftDetected       = "drift_detected"
	EventTimelineForked      = "timeline_forked"
	EventCausalityUpdated    = "causality_updated"
)

// CustomEventPrefix marks caller-defined event types as known.
const CustomEventPrefix = "custom."

// KnownEventTypes is the closed set of stable topic names.
var KnownEventTypes = map[string]bool{
	EventEpisodeRecorded:     true,
	EventTransferExtracted:   true,
	EventWorldUpdateProposed: true,
	EventDisputeOpened:       true,
	EventDisputeResolved:     true,
	EventCouncilVote:         true,
	EventRewardIssued:        true,
	EventThreadScheduled:     true,
	EventThreadTerminated:    true,
	EventGateChecked:         true,
	EventBudgetConsumed:      true,
	EventProvenanceValidated: true,
	EventQuarantineAdded:     true,
	EventQuarantineReleased:  true,
	EventContributionTracked: true,
	EventReflectionAssessed:  true,
	EventStrategyUpdated:     true,
	EventSkillCompiled:       true,
	EventSandboxCreated:      true,
	EventFederationExported:  true,
	EventFederationImported:  true,
	EventEpistemicClassified: true,
	EventRealityCheck:        true,
	EventNormativeApplied:    true,
	EventDriftDetected:       true,
	EventTimelineForked:      true,
	EventCausalityUpdated:    true,
}

// EventMeta carries attribution for an event.
type EventMeta struct {
	ActorID   string `json:"actor_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Shard     string `json:"shard,omitempty"`
	// UnknownType is stamped when the event type is outside the stable set
	// and not custom-prefixed.
	UnknownType bool `json:"_unknownType,omitempty"`
}

// CognitionEvent is one entry in the append-only log. Seq is strictly
// monotone and is the only ordering key; TS is wall-clock and informational.
type CognitionEvent struct {
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	TS      time.Time      `json:"ts"`
	Meta    EventMeta      `json:"meta"`
}
