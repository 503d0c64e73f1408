package governance

// The constitution's physical constants. These are compile-time fixed and
// reachable only through the accessor functions below, which return copies.
// No in-process actor can mutate them; amendments apply to the rules table,
// never to these values.

type constitutionConstants struct {
	dims         map[string]float64
	bounds       map[string][2]float64
	decay        map[string]float64
	conservation map[string]float64
	momentum     float64
}

var frozen = constitutionConstants{
	dims: map[string]float64{
		"attention":  1.0,
		"confidence": 1.0,
		"novelty":    1.0,
		"energy":     1.0,
	},
	bounds: map[string][2]float64{
		"confidence": {0, 1},
		"credibility": {0, 1},
		"priority":    {0, 10},
		"royalty_pct": {0, 100},
	},
	decay: map[string]float64{
		"hard_kernel": 0.0,
		"soft_belief": 0.01,
		"speculative": 0.05,
	},
	conservation: map[string]float64{
		"attention_total": 1.0,
		"budget_window":   60,
	},
	momentum: 0.9,
}

// Dims returns a copy of the dimensional base weights.
func Dims() map[string]float64 { return copyMap(frozen.dims) }

// Bounds returns a copy of the [min,max] bounds per governed quantity.
func Bounds() map[string][2]float64 {
	out := make(map[string][2]float64, len(frozen.bounds))
	for k, v := range frozen.bounds {
		out[k] = v
	}
	return out
}

// Decay returns a copy of the per-layer decay rates (per minute).
func Decay() map[string]float64 { return copyMap(frozen.decay) }

// Conservation returns a copy of the conserved-quantity table.
func Conservation() map[string]float64 { return copyMap(frozen.conservation) }

// Momentum returns the momentum constant.
func Momentum() float64 { return frozen.momentum }

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
