package stability

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
)

func TestDetectMonoculture(t *testing.T) {
	a := DetectMonoculture(Signals{DomainCounts: map[string]int{"physics": 7, "history": 2, "art": 1}})
	assert.True(t, a.Detected)
	assert.InDelta(t, 0.7, a.Score, 1e-9)
	assert.Contains(t, a.Detail, "physics")

	a = DetectMonoculture(Signals{DomainCounts: map[string]int{"physics": 5, "history": 5}})
	assert.False(t, a.Detected)

	a = DetectMonoculture(Signals{})
	assert.False(t, a.Detected, "empty lattice never drifts")
}

func TestDetectTransferOveruse(t *testing.T) {
	a := DetectTransferOveruse(Signals{TransferSourced: 6, TotalLearning: 10})
	assert.True(t, a.Detected)

	a = DetectTransferOveruse(Signals{TransferSourced: 5, TotalLearning: 10})
	assert.False(t, a.Detected)

	assert.False(t, DetectTransferOveruse(Signals{}).Detected)
}

func TestDetectEconomicBias(t *testing.T) {
	a := DetectEconomicBias(Signals{EconomicDecisions: 5, TotalDecisions: 10})
	assert.True(t, a.Detected)
	a = DetectEconomicBias(Signals{EconomicDecisions: 4, TotalDecisions: 10})
	assert.False(t, a.Detected)
}

func TestDetectAttentionCollapse(t *testing.T) {
	// Ten domains; the top two hold 90% of attention.
	w := map[string]float64{"a": 0.5, "b": 0.4}
	for i := 0; i < 8; i++ {
		w[fmt.Sprintf("rest%d", i)] = 0.0125
	}
	a := DetectAttentionCollapse(Signals{AttentionWeights: w})
	assert.True(t, a.Detected)
	assert.InDelta(t, 0.9, a.Score, 1e-9)

	flat := map[string]float64{}
	for i := 0; i < 10; i++ {
		flat[fmt.Sprintf("d%d", i)] = 0.1
	}
	a = DetectAttentionCollapse(Signals{AttentionWeights: flat})
	assert.False(t, a.Detected)

	assert.False(t, DetectAttentionCollapse(Signals{}).Detected)
}

func TestDetectAll_EmitsDriftEvents(t *testing.T) {
	clock := idclock.New()
	b := bus.New(clock, 100, nil)
	m := NewMonitor(b)

	alerts := m.DetectAll(Signals{
		DomainCounts:    map[string]int{"physics": 9, "art": 1},
		TransferSourced: 1, TotalLearning: 10,
	})
	require.Len(t, alerts, 4)

	events := b.Query(bus.Filter{Type: model.EventDriftDetected})
	require.Len(t, events, 1, "only the firing detector emits")
	assert.Equal(t, "epistemic_monoculture", events[0].Payload["type"])
}

func TestGenerateFromFailure(t *testing.T) {
	m := NewMonitor(nil)
	g := m.GenerateFromFailure(Failure{
		ID:        "f1",
		Kind:      "promotion_bypass",
		Detail:    "an uncited fact reached VERIFIED",
		Timestamp: time.Unix(1000, 0),
	})
	assert.Equal(t, "f1", g.Test.FailureID)
	assert.Equal(t, "must", g.Constraint.Severity)
	assert.Equal(t, "promotion_bypass", g.Guardrail.Trigger)

	assert.Len(t, m.Tests(), 1)
	assert.Len(t, m.Constraints(), 1)
	assert.Len(t, m.Guardrails(), 1)
}

func TestGeneratedRingsAreCapped(t *testing.T) {
	m := NewMonitor(nil)
	for i := 0; i < ringCap+50; i++ {
		m.GenerateFromFailure(Failure{ID: fmt.Sprintf("f%d", i), Kind: "overflow"})
	}
	tests := m.Tests()
	require.Len(t, tests, ringCap)
	assert.Equal(t, "f50", tests[0].FailureID, "oldest entries evicted first")
	assert.Len(t, m.Constraints(), ringCap)
	assert.Len(t, m.Guardrails(), ringCap)
}
