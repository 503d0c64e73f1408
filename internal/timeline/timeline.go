// Package timeline keeps versioned state timelines with forks, diffs, a
// causal edge graph, and deterministic counterfactual replay.
package timeline

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
)

// ErrNotFound is returned for unknown timelines or versions.
var ErrNotFound = errors.New("timeline: not found")

// State is one version's key-value snapshot.
type State map[string]any

// Clone deep-copies the top level. Values are treated as immutable.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Version is an immutable snapshot within a timeline.
type Version struct {
	Number int       `json:"number"`
	State  State     `json:"state"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// Timeline is an ordered run of versions, optionally forked from another.
type Timeline struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
	ForkPoint int    `json:"fork_point,omitempty"`

	versions []Version
}

// Head returns the latest version.
func (t *Timeline) Head() Version {
	return t.versions[len(t.versions)-1]
}

// Versions returns a copy of the version list.
func (t *Timeline) Versions() []Version {
	return append([]Version(nil), t.versions...)
}

// ChangeKind classifies one key's difference between two versions.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeUpdated ChangeKind = "updated"
)

// Change is one key's difference.
type Change struct {
	Key    string     `json:"key"`
	Kind   ChangeKind `json:"kind"`
	Before any        `json:"before,omitempty"`
	After  any        `json:"after,omitempty"`
}

// Edge is a directed causal dependency: Effect depends on Cause.
type Edge struct {
	Cause  string  `json:"cause"`
	Effect string  `json:"effect"`
	Weight float64 `json:"weight"`
}

// Chronicle owns the timelines and the causal graph.
type Chronicle struct {
	clock  *idclock.Clock
	bus    *bus.Bus
	logger *slog.Logger

	mu        sync.RWMutex
	timelines map[string]*Timeline
	edges     map[string][]Edge // keyed by effect
}

// NewChronicle wires an empty chronicle.
func NewChronicle(clock *idclock.Clock, b *bus.Bus, logger *slog.Logger) *Chronicle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chronicle{
		clock:     clock,
		bus:       b,
		logger:    logger,
		timelines: make(map[string]*Timeline),
		edges:     make(map[string][]Edge),
	}
}

// Create opens a timeline at version 1.
func (c *Chronicle) Create(name string, initial State) *Timeline {
	t := &Timeline{
		ID:   c.clock.MintID(),
		Name: name,
		versions: []Version{{
			Number: 1,
			State:  initial.Clone(),
			At:     c.clock.Now(),
		}},
	}
	c.mu.Lock()
	c.timelines[t.ID] = t
	c.mu.Unlock()
	return t
}

// Commit appends a new version with the given full state.
func (c *Chronicle) Commit(timelineID string, state State, note string) (Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timelines[timelineID]
	if !ok {
		return Version{}, fmt.Errorf("%w: timeline %s", ErrNotFound, timelineID)
	}
	v := Version{
		Number: t.Head().Number + 1,
		State:  state.Clone(),
		Note:   note,
		At:     c.clock.Now(),
	}
	t.versions = append(t.versions, v)
	return v, nil
}

// Get looks up a timeline.
func (c *Chronicle) Get(timelineID string) (*Timeline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.timelines[timelineID]
	return t, ok
}

// Fork copies a timeline's history up to atVersion into a new timeline.
func (c *Chronicle) Fork(timelineID string, atVersion int, name string) (*Timeline, error) {
	c.mu.Lock()
	src, ok := c.timelines[timelineID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: timeline %s", ErrNotFound, timelineID)
	}
	idx := versionIndex(src, atVersion)
	if idx < 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: timeline %s version %d", ErrNotFound, timelineID, atVersion)
	}
	fork := &Timeline{
		ID:        c.clock.MintID(),
		Name:      name,
		ParentID:  src.ID,
		ForkPoint: atVersion,
		versions:  append([]Version(nil), src.versions[:idx+1]...),
	}
	c.timelines[fork.ID] = fork
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Emit(model.EventTimelineForked, map[string]any{
			"timeline_id": fork.ID,
			"parent_id":   src.ID,
			"fork_point":  atVersion,
		}, model.EventMeta{})
	}
	return fork, nil
}

// Diff reports key-level changes from version a to version b.
func (c *Chronicle) Diff(timelineID string, a, b int) ([]Change, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.timelines[timelineID]
	if !ok {
		return nil, fmt.Errorf("%w: timeline %s", ErrNotFound, timelineID)
	}
	ia, ib := versionIndex(t, a), versionIndex(t, b)
	if ia < 0 || ib < 0 {
		return nil, fmt.Errorf("%w: timeline %s versions %d..%d", ErrNotFound, timelineID, a, b)
	}
	return diffStates(t.versions[ia].State, t.versions[ib].State), nil
}

// AddEdge records a causal dependency and announces the graph change.
func (c *Chronicle) AddEdge(cause, effect string, weight float64) {
	c.mu.Lock()
	c.edges[effect] = append(c.edges[effect], Edge{Cause: cause, Effect: effect, Weight: weight})
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Emit(model.EventCausalityUpdated, map[string]any{
			"cause":  cause,
			"effect": effect,
			"weight": weight,
		}, model.EventMeta{})
	}
}

// Causes returns the direct causes of a key.
func (c *Chronicle) Causes(effect string) []Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Edge(nil), c.edges[effect]...)
}

// DependsOn reports whether effect transitively depends on cause.
func (c *Chronicle) DependsOn(effect, cause string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dependsOnLocked(effect, cause, map[string]bool{})
}

func (c *Chronicle) dependsOnLocked(effect, cause string, seen map[string]bool) bool {
	if seen[effect] {
		return false
	}
	seen[effect] = true
	for _, e := range c.edges[effect] {
		if e.Cause == cause || c.dependsOnLocked(e.Cause, cause, seen) {
			return true
		}
	}
	return false
}

func versionIndex(t *Timeline, number int) int {
	for i, v := range t.versions {
		if v.Number == number {
			return i
		}
	}
	return -1
}

func diffStates(a, b State) []Change {
	keys := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []Change
	for _, k := range sorted {
		av, aok := a[k]
		bv, bok := b[k]
		switch {
		case !aok:
			out = append(out, Change{Key: k, Kind: ChangeAdded, After: bv})
		case !bok:
			out = append(out, Change{Key: k, Kind: ChangeRemoved, Before: av})
		case !reflect.DeepEqual(av, bv):
			out = append(out, Change{Key: k, Kind: ChangeUpdated, Before: av, After: bv})
		}
	}
	return out
}
