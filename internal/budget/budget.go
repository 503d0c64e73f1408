// Package budget provides the unified per-actor rate budget.
//
// Every admission-controlled path — writes, macro invocations, kernel ticks,
// autogen steps, background precompute — funnels through a single
// Consume(actor, domain, cost) entry point. Denials are immediate and carry
// the time until the actor's window resets; nothing ever blocks here.
package budget

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loaf-ai/loaf/internal/telemetry"
)

// Default window parameters.
const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 1000.0
)

// DefaultCosts is the domain→cost table used when Consume is called with a
// non-positive cost. Unlisted domains cost 1.
var DefaultCosts = map[string]float64{
	"http":               1,
	"macro":              5,
	"kernelTick":         2,
	"background":         3,
	"transfer":           10,
	"world.write":        8,
	"canon.promote":      15,
	"economy.distribute": 20,
}

// Charge is one recorded consumption inside a window.
type Charge struct {
	Domain string    `json:"domain"`
	Cost   float64   `json:"cost"`
	At     time.Time `json:"at"`
}

// Entry is the per-actor accumulator. Used never decreases within a window;
// it resets only when the window elapses.
type Entry struct {
	Used        float64   `json:"used"`
	WindowStart time.Time `json:"window_start"`
	Charges     []Charge  `json:"charges,omitempty"`
}

// Decision is the outcome of a Consume call.
type Decision struct {
	Allowed   bool          `json:"allowed"`
	Remaining float64       `json:"remaining"`
	Cost      float64       `json:"cost"`
	Reason    string        `json:"reason,omitempty"`
	ResetIn   time.Duration `json:"reset_in_ms,omitempty"`
}

// Consumer is the budget contract. Implementations must be safe for
// concurrent use. A distributed deployment can substitute a shared-store
// implementation; the in-process Budget is the default.
type Consumer interface {
	Consume(actorID, domain string, cost float64) Decision
}

// Budget is the in-memory windowed implementation.
type Budget struct {
	window   time.Duration
	limit    float64
	costs    map[string]float64
	consumed metric.Float64Counter

	mu      sync.Mutex
	entries map[string]*Entry

	// now is swappable for tests.
	now func() time.Time
}

// New creates a budget with the given window and limit; non-positive values
// fall back to the defaults. The cost table may be nil (DefaultCosts).
func New(window time.Duration, limit float64, costs map[string]float64) *Budget {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if costs == nil {
		costs = DefaultCosts
	}
	meter := telemetry.Meter("loaf/budget")
	consumed, _ := meter.Float64Counter("loaf.budget.consumed",
		metric.WithDescription("Budget units charged by domain"),
	)
	return &Budget{
		window:   window,
		limit:    limit,
		costs:    costs,
		consumed: consumed,
		entries:  make(map[string]*Entry),
		now:      time.Now,
	}
}

// Consume charges cost against the actor's window. A non-positive cost is
// looked up in the domain cost table. Overshoot denies with
// reason "budget_exceeded" and the remaining time to reset.
func (b *Budget) Consume(actorID, domain string, cost float64) Decision {
	if cost <= 0 {
		var ok bool
		if cost, ok = b.costs[domain]; !ok {
			cost = 1
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	e, ok := b.entries[actorID]
	if !ok || now.Sub(e.WindowStart) >= b.window {
		e = &Entry{WindowStart: now}
		b.entries[actorID] = e
	}

	if e.Used+cost > b.limit {
		return Decision{
			Allowed:   false,
			Remaining: b.limit - e.Used,
			Cost:      cost,
			Reason:    "budget_exceeded",
			ResetIn:   e.WindowStart.Add(b.window).Sub(now),
		}
	}

	e.Used += cost
	e.Charges = append(e.Charges, Charge{Domain: domain, Cost: cost, At: now})
	b.consumed.Add(context.Background(), cost,
		metric.WithAttributes(attribute.String("domain", domain)))
	return Decision{
		Allowed:   true,
		Remaining: b.limit - e.Used,
		Cost:      cost,
	}
}

// Used returns the actor's consumption in the current window. Zero when the
// window has elapsed or the actor is unknown.
func (b *Budget) Used(actorID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[actorID]
	if !ok || b.now().Sub(e.WindowStart) >= b.window {
		return 0
	}
	return e.Used
}

// SetNow overrides the time source. Test hook.
func (b *Budget) SetNow(now func() time.Time) { b.now = now }

// NoopConsumer permits everything at zero cost. Used when admission control
// is disabled.
type NoopConsumer struct{}

// Consume always allows.
func (NoopConsumer) Consume(string, string, float64) Decision {
	return Decision{Allowed: true}
}
