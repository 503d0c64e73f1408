// Package stability watches the lattice for drift: epistemic monoculture,
// transfer overuse, economic bias, and attention collapse. Real failures
// feed back into regression tests, constraints, and guardrails.
package stability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/model"
)

// Detector thresholds.
const (
	MonocultureThreshold       = 0.7
	TransferOveruseThreshold   = 0.6
	EconomicBiasThreshold      = 0.5
	AttentionCollapseThreshold = 0.8
)

// ringCap bounds each generated-artifact ring.
const ringCap = 200

// Alert is one detector verdict.
type Alert struct {
	Detected  bool    `json:"detected"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Type      string  `json:"type"`
	Detail    string  `json:"detail,omitempty"`
}

// Signals is the observed activity the detectors read. Callers accumulate
// these from the event stream or supply them directly.
type Signals struct {
	// DomainCounts is DTUs per domain.
	DomainCounts map[string]int
	// TransferSourced counts learning events sourced from transfer versus
	// Total learning events.
	TransferSourced int
	TotalLearning   int
	// EconomicDecisions counts reward-motivated decisions versus Total
	// decisions.
	EconomicDecisions int
	TotalDecisions    int
	// AttentionWeights is attention share per domain.
	AttentionWeights map[string]float64
}

// Failure is a structured incident supplied by a caller.
type Failure struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// RegressionTest is a generated reproduction of a failure.
type RegressionTest struct {
	ID        string `json:"id"`
	FailureID string `json:"failure_id"`
	Name      string `json:"name"`
	Spec      string `json:"spec"`
}

// Constraint is a generated must-severity rule.
type Constraint struct {
	ID        string `json:"id"`
	FailureID string `json:"failure_id"`
	Severity  string `json:"severity"`
	Text      string `json:"text"`
}

// Guardrail is a generated automated check.
type Guardrail struct {
	ID        string `json:"id"`
	FailureID string `json:"failure_id"`
	Trigger   string `json:"trigger"`
	Action    string `json:"action"`
}

// Generated bundles everything one failure produced.
type Generated struct {
	Test       RegressionTest `json:"test"`
	Constraint Constraint     `json:"constraint"`
	Guardrail  Guardrail      `json:"guardrail"`
}

// Monitor runs the detectors and keeps the generated-artifact rings.
type Monitor struct {
	bus *bus.Bus

	mu          sync.Mutex
	nextID      int
	tests       []RegressionTest
	constraints []Constraint
	guardrails  []Guardrail
}

// NewMonitor wires a monitor to the event bus. bus may be nil in tests.
func NewMonitor(b *bus.Bus) *Monitor {
	return &Monitor{bus: b}
}

// DetectAll runs every detector and emits drift events for firing ones.
func (m *Monitor) DetectAll(s Signals) []Alert {
	alerts := []Alert{
		DetectMonoculture(s),
		DetectTransferOveruse(s),
		DetectEconomicBias(s),
		DetectAttentionCollapse(s),
	}
	for _, a := range alerts {
		if a.Detected && m.bus != nil {
			m.bus.Emit(model.EventDriftDetected, map[string]any{
				"type":      a.Type,
				"score":     a.Score,
				"threshold": a.Threshold,
				"detail":    a.Detail,
			}, model.EventMeta{})
		}
	}
	return alerts
}

// DetectMonoculture fires when one domain holds too large a share of the
// lattice.
func DetectMonoculture(s Signals) Alert {
	a := Alert{Type: "epistemic_monoculture", Threshold: MonocultureThreshold}
	total := 0
	for _, n := range s.DomainCounts {
		total += n
	}
	if total == 0 {
		return a
	}
	var maxDomain string
	maxN := 0
	for d, n := range s.DomainCounts {
		if n > maxN || (n == maxN && d < maxDomain) {
			maxDomain, maxN = d, n
		}
	}
	a.Score = float64(maxN) / float64(total)
	a.Detected = a.Score >= a.Threshold
	a.Detail = fmt.Sprintf("domain %q holds %.0f%% of the lattice", maxDomain, a.Score*100)
	return a
}

// DetectTransferOveruse fires when too much learning is transfer-sourced.
func DetectTransferOveruse(s Signals) Alert {
	a := Alert{Type: "transfer_overuse", Threshold: TransferOveruseThreshold}
	if s.TotalLearning == 0 {
		return a
	}
	a.Score = float64(s.TransferSourced) / float64(s.TotalLearning)
	a.Detected = a.Score >= a.Threshold
	a.Detail = fmt.Sprintf("%d of %d learning events are transfer-sourced", s.TransferSourced, s.TotalLearning)
	return a
}

// DetectEconomicBias fires when reward-motivated decisions dominate.
func DetectEconomicBias(s Signals) Alert {
	a := Alert{Type: "economic_bias", Threshold: EconomicBiasThreshold}
	if s.TotalDecisions == 0 {
		return a
	}
	a.Score = float64(s.EconomicDecisions) / float64(s.TotalDecisions)
	a.Detected = a.Score >= a.Threshold
	a.Detail = fmt.Sprintf("%d of %d decisions are economically motivated", s.EconomicDecisions, s.TotalDecisions)
	return a
}

// DetectAttentionCollapse fires when the top fifth of domains consume
// nearly all attention weight.
func DetectAttentionCollapse(s Signals) Alert {
	a := Alert{Type: "attention_collapse", Threshold: AttentionCollapseThreshold}
	if len(s.AttentionWeights) == 0 {
		return a
	}
	weights := make([]float64, 0, len(s.AttentionWeights))
	var total float64
	for _, w := range s.AttentionWeights {
		weights = append(weights, w)
		total += w
	}
	if total == 0 {
		return a
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	topN := (len(weights) + 4) / 5 // ceil(20%)
	var top float64
	for _, w := range weights[:topN] {
		top += w
	}
	a.Score = top / total
	a.Detected = a.Score >= a.Threshold
	a.Detail = fmt.Sprintf("top %d of %d domains hold %.0f%% of attention", topN, len(weights), a.Score*100)
	return a
}

// GenerateFromFailure turns a real failure into one regression test, one
// must-severity constraint, and one automated guardrail. Each ring caps at
// 200 entries, oldest first out.
func (m *Monitor) GenerateFromFailure(f Failure) Generated {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	base := fmt.Sprintf("%s-%d", f.Kind, m.nextID)

	g := Generated{
		Test: RegressionTest{
			ID:        "test-" + base,
			FailureID: f.ID,
			Name:      "regression_" + f.Kind,
			Spec:      fmt.Sprintf("reproduce and assert absence of: %s", f.Detail),
		},
		Constraint: Constraint{
			ID:        "constraint-" + base,
			FailureID: f.ID,
			Severity:  "must",
			Text:      fmt.Sprintf("the system must not repeat %s (%s)", f.Kind, f.Detail),
		},
		Guardrail: Guardrail{
			ID:        "guardrail-" + base,
			FailureID: f.ID,
			Trigger:   f.Kind,
			Action:    "block_and_alert",
		},
	}

	m.tests = appendCapped(m.tests, g.Test)
	m.constraints = appendCapped(m.constraints, g.Constraint)
	m.guardrails = appendCapped(m.guardrails, g.Guardrail)
	return g
}

// Tests returns a copy of the regression-test ring.
func (m *Monitor) Tests() []RegressionTest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RegressionTest(nil), m.tests...)
}

// Constraints returns a copy of the constraint ring.
func (m *Monitor) Constraints() []Constraint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Constraint(nil), m.constraints...)
}

// Guardrails returns a copy of the guardrail ring.
func (m *Monitor) Guardrails() []Guardrail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Guardrail(nil), m.guardrails...)
}

func appendCapped[T any](ring []T, item T) []T {
	ring = append(ring, item)
	if len(ring) > ringCap {
		ring = ring[len(ring)-ringCap:]
	}
	return ring
}
