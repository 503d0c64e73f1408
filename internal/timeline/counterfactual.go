package timeline

import (
	"fmt"
	"sort"

	"github.com/loaf-ai/loaf/internal/idclock"
)

// Decision records how one baseline change was treated during replay.
type Decision struct {
	Version int    `json:"version"`
	Key     string `json:"key"`
	Action  string `json:"action"` // carried | recomputed | overridden
}

// CFResult is the outcome of one counterfactual run.
type CFResult struct {
	Seed      string     `json:"seed"`
	Injected  State      `json:"injected"`
	Final     State      `json:"final"`
	Baseline  State      `json:"baseline"`
	Diverged  []Change   `json:"diverged"`
	Decisions []Decision `json:"decisions"`
}

// Counterfactual replays a timeline from atVersion with injection applied.
// Baseline changes to keys causally downstream of an injected key are
// recomputed with the seeded generator; everything else carries over
// unchanged. Identical inputs yield identical results.
func (c *Chronicle) Counterfactual(timelineID string, atVersion int, injection State, seed string) (CFResult, error) {
	c.mu.RLock()
	t, ok := c.timelines[timelineID]
	if !ok {
		c.mu.RUnlock()
		return CFResult{}, fmt.Errorf("%w: timeline %s", ErrNotFound, timelineID)
	}
	idx := versionIndex(t, atVersion)
	if idx < 0 {
		c.mu.RUnlock()
		return CFResult{}, fmt.Errorf("%w: timeline %s version %d", ErrNotFound, timelineID, atVersion)
	}
	versions := append([]Version(nil), t.versions...)
	c.mu.RUnlock()

	rng := idclock.NewLCG(seed)
	cf := versions[idx].State.Clone()
	injected := make([]string, 0, len(injection))
	for k, v := range injection {
		cf[k] = v
		injected = append(injected, k)
	}
	sort.Strings(injected)

	res := CFResult{Seed: seed, Injected: injection.Clone()}
	for i := idx + 1; i < len(versions); i++ {
		delta := diffStates(versions[i-1].State, versions[i].State)
		for _, ch := range delta {
			d := Decision{Version: versions[i].Number, Key: ch.Key}
			switch {
			case ch.Kind == ChangeRemoved:
				delete(cf, ch.Key)
				d.Action = "carried"
			case c.downstreamOfAny(ch.Key, injected):
				cf[ch.Key] = perturb(ch.After, rng)
				d.Action = "recomputed"
			default:
				cf[ch.Key] = ch.After
				d.Action = "carried"
			}
			res.Decisions = append(res.Decisions, d)
		}
	}

	res.Final = cf
	res.Baseline = versions[len(versions)-1].State.Clone()
	res.Diverged = diffStates(res.Baseline, res.Final)
	return res, nil
}

func (c *Chronicle) downstreamOfAny(key string, causes []string) bool {
	for _, cause := range causes {
		if c.DependsOn(key, cause) {
			return true
		}
	}
	return false
}

// perturb derives a counterfactual value from the baseline one. Numeric
// values scale by a seeded factor in [0.5, 1.5); anything else flips
// between baseline and a marked variant.
func perturb(baseline any, rng *idclock.LCG) any {
	factor := 0.5 + rng.Float64()
	switch v := baseline.(type) {
	case float64:
		return v * factor
	case int:
		return int(float64(v) * factor)
	case int64:
		return int64(float64(v) * factor)
	default:
		if rng.Intn(2) == 0 {
			return baseline
		}
		return fmt.Sprintf("%v (diverged)", baseline)
	}
}
