// Package bus implements the append-only cognition event log with typed and
// wildcard subscribers, plus the deterministic replay engine.
//
// The log is a bounded ring: when full, the oldest entries are dropped.
// Dropping never invalidates sequence numbers — seq is strictly monotone for
// the lifetime of the bus. Subscribers are dispatched synchronously in
// enqueue order; a panicking subscriber is isolated and never takes down the
// bus or its peers.
package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/telemetry"
)

// DefaultCapacity bounds the ring when no capacity is configured.
const DefaultCapacity = 100_000

type subscriber struct {
	id int64
	fn func(model.CognitionEvent)
}

// Bus is the append-only typed event log.
type Bus struct {
	clock   *idclock.Clock
	logger  *slog.Logger
	emitted metric.Int64Counter

	mu       sync.Mutex
	ring     []model.CognitionEvent
	head     int // index of the oldest entry
	count    int
	typed    map[string][]subscriber
	wildcard []subscriber
	subSeq   int64
}

// New creates a bus with the given ring capacity; non-positive means
// DefaultCapacity. The clock supplies sequence numbers and timestamps.
func New(clock *idclock.Clock, capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	meter := telemetry.Meter("loaf/bus")
	emitted, _ := meter.Int64Counter("loaf.bus.events",
		metric.WithDescription("Events appended to the cognition log"),
	)
	return &Bus{
		clock:   clock,
		logger:  logger,
		emitted: emitted,
		ring:    make([]model.CognitionEvent, capacity),
		typed:   make(map[string][]subscriber),
	}
}

// Emit appends an event and dispatches it to subscribers synchronously.
// Unknown types are accepted but stamped in meta. The returned event carries
// its assigned seq.
func (b *Bus) Emit(eventType string, payload map[string]any, meta model.EventMeta) model.CognitionEvent {
	if !model.KnownEventTypes[eventType] && !strings.HasPrefix(eventType, model.CustomEventPrefix) {
		meta.UnknownType = true
	}
	ev := model.CognitionEvent{
		Seq:     b.clock.Next(),
		Type:    eventType,
		Payload: payload,
		TS:      b.clock.Now(),
		Meta:    meta,
	}
	b.emitted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("type", eventType)))

	b.mu.Lock()
	if b.count == len(b.ring) {
		// Ring full: overwrite the oldest entry.
		b.head = (b.head + 1) % len(b.ring)
		b.count--
	}
	b.ring[(b.head+b.count)%len(b.ring)] = ev
	b.count++
	// Copy the subscriber lists so callbacks run outside the ring lock.
	typed := append([]subscriber(nil), b.typed[eventType]...)
	wild := append([]subscriber(nil), b.wildcard...)
	b.mu.Unlock()

	// Typed subscribers fire before wildcard subscribers.
	for _, s := range typed {
		b.dispatch(s, ev)
	}
	for _, s := range wild {
		b.dispatch(s, ev)
	}
	return ev
}

// dispatch runs one subscriber, swallowing panics. A failing subscriber
// must never affect the bus or other subscribers.
func (b *Bus) dispatch(s subscriber, ev model.CognitionEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: subscriber panicked", "event_type", ev.Type, "seq", ev.Seq, "panic", r)
		}
	}()
	s.fn(ev)
}

// Subscribe registers a callback for one event type, or for every event when
// eventType is "*". Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType string, fn func(model.CognitionEvent)) func() {
	if eventType == "*" {
		return b.SubscribeAll(fn)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subSeq++
	s := subscriber{id: b.subSeq, fn: fn}
	b.typed[eventType] = append(b.typed[eventType], s)
	return func() { b.removeTyped(eventType, s.id) }
}

// SubscribeAll registers a wildcard callback that receives every event after
// the typed subscribers for that event have run.
func (b *Bus) SubscribeAll(fn func(model.CognitionEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subSeq++
	s := subscriber{id: b.subSeq, fn: fn}
	b.wildcard = append(b.wildcard, s)
	id := s.id
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, w := range b.wildcard {
			if w.id == id {
				b.wildcard = append(b.wildcard[:i], b.wildcard[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) removeTyped(eventType string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.typed[eventType]
	for i, s := range subs {
		if s.id == id {
			b.typed[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Filter selects events from the log. Zero values are ignored.
type Filter struct {
	Type      string
	Since     int64 // inclusive lower bound on seq
	Until     int64 // inclusive upper bound on seq
	ActorID   string
	SessionID string
	Shard     string
	Limit     int
	Offset    int
}

// Query returns matching events in seq order. Evicted entries are simply
// absent from results.
func (b *Bus) Query(f Filter) []model.CognitionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.CognitionEvent
	skipped := 0
	for i := 0; i < b.count; i++ {
		ev := b.ring[(b.head+i)%len(b.ring)]
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		if f.Since > 0 && ev.Seq < f.Since {
			continue
		}
		if f.Until > 0 && ev.Seq > f.Until {
			continue
		}
		if f.ActorID != "" && ev.Meta.ActorID != f.ActorID {
			continue
		}
		if f.SessionID != "" && ev.Meta.SessionID != f.SessionID {
			continue
		}
		if f.Shard != "" && ev.Meta.Shard != f.Shard {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Snapshot returns the retained events with fromSeq <= seq <= toSeq.
// A non-positive toSeq means "to the end of the log".
func (b *Bus) Snapshot(fromSeq, toSeq int64) []model.CognitionEvent {
	if toSeq <= 0 {
		toSeq = 1<<63 - 1
	}
	return b.Query(Filter{Since: fromSeq, Until: toSeq})
}

// Len returns the number of retained events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cursor returns the last assigned sequence number.
func (b *Bus) Cursor() int64 {
	return b.clock.Cursor()
}
