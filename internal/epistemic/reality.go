package epistemic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// allowedUnits is the unit allow-list: SI base units, common derived units,
// and anything carrying the "custom:" prefix.
var allowedUnits = map[string]bool{
	// SI base.
	"m": true, "kg": true, "s": true, "a": true, "k": true, "mol": true, "cd": true,
	// Common derived.
	"n": true, "j": true, "w": true, "pa": true, "hz": true, "c": true, "v": true,
	"ohm": true, "f": true, "t": true, "lm": true, "lx": true,
	// Everyday compounds kept as single tokens.
	"m/s": true, "m/s2": true, "m/s²": true, "km/h": true, "kg/m3": true, "kg/m³": true,
	"g": true, "km": true, "cm": true, "mm": true, "ms": true, "min": true, "h": true,
}

// ValidUnit reports whether a unit token is on the allow-list or custom.
func ValidUnit(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" {
		return false
	}
	if strings.HasPrefix(u, "custom:") && len(u) > len("custom:") {
		return true
	}
	return allowedUnits[u]
}

// CombineUnits applies dimensional rules to a binary operation. Addition and
// subtraction require identical units; multiplication and division combine
// symbolically.
func CombineUnits(op, a, b string) (string, error) {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	switch op {
	case "add", "subtract":
		if a != b {
			return "", fmt.Errorf("epistemic: %s requires identical units, got %q and %q", op, a, b)
		}
		return a, nil
	case "multiply":
		return a + "*" + b, nil
	case "divide":
		return a + "/" + b, nil
	default:
		return "", fmt.Errorf("epistemic: unknown operation %q", op)
	}
}

// Violation is one reality-check failure.
type Violation struct {
	Kind   string `json:"kind"` // unknown_unit | dimensional_mismatch | contradictory_bounds
	Detail string `json:"detail"`
}

// RealityResult is the outcome of a reality check. Any violation blocks
// promotion; a hard-kernel contradiction found by the caller additionally
// opens a dispute.
type RealityResult struct {
	Violations      []Violation `json:"violations,omitempty"`
	BlockPromotion  bool        `json:"block_promotion"`
	AutoOpenDispute bool        `json:"auto_open_dispute"`
}

// quantityRe matches "<number> <unit>" pairs, e.g. "9.8 m/s²" or "42 custom:widgets".
var quantityRe = regexp.MustCompile(`(?i)(-?\d+(?:[.,]\d+)?)\s*([a-zµμ°][a-z0-9/²³:_-]*)`)

// boundRe matches simple variable bounds like "x > 5" or "mass <= 3".
var boundRe = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*(<=|>=|<|>)\s*(-?\d+(?:\.\d+)?)`)

// arithmeticRe matches "<n> <unit> (+|-) <n> <unit>" expressions.
var arithmeticRe = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*([a-z][a-z0-9/²³]*)\s*([+-])\s*(-?\d+(?:\.\d+)?)\s*([a-z][a-z0-9/²³]*)`)

// unitStopwords are quantity-looking tokens that are prose, not units.
var unitStopwords = map[string]bool{
	"and": true, "or": true, "the": true, "of": true, "to": true, "is": true,
	"at": true, "in": true, "per": true, "was": true, "are": true, "by": true,
	"times": true, "items": true, "things": true, "percent": true, "x": true,
}

// RealityCheck scans claim texts for unit tokens, arithmetic with mixed
// units, and contradictory bounds on the same variable.
func RealityCheck(texts []string) RealityResult {
	var res RealityResult

	type bound struct {
		op    string
		value float64
	}
	bounds := make(map[string][]bound)

	for _, text := range texts {
		for _, m := range arithmeticRe.FindAllStringSubmatch(text, -1) {
			op := "add"
			if m[3] == "-" {
				op = "subtract"
			}
			if !ValidUnit(m[2]) || !ValidUnit(m[5]) {
				continue // reported by the unit scan below
			}
			if _, err := CombineUnits(op, m[2], m[5]); err != nil {
				res.Violations = append(res.Violations, Violation{
					Kind:   "dimensional_mismatch",
					Detail: fmt.Sprintf("%s of %q and %q", op, m[2], m[5]),
				})
			}
		}

		for _, m := range quantityRe.FindAllStringSubmatch(text, -1) {
			unit := strings.ToLower(m[2])
			if unitStopwords[unit] {
				continue
			}
			if !ValidUnit(unit) {
				res.Violations = append(res.Violations, Violation{
					Kind:   "unknown_unit",
					Detail: fmt.Sprintf("unit %q in %q", m[2], strings.TrimSpace(m[0])),
				})
			}
		}

		for _, m := range boundRe.FindAllStringSubmatch(text, -1) {
			v, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				continue
			}
			name := strings.ToLower(m[1])
			bounds[name] = append(bounds[name], bound{op: m[2], value: v})
		}
	}

	// Contradictory bounds: a lower bound above an upper bound on the same
	// variable.
	for name, bs := range bounds {
		lower, upper := -1e308, 1e308
		for _, b := range bs {
			switch b.op {
			case ">", ">=":
				if b.value > lower {
					lower = b.value
				}
			case "<", "<=":
				if b.value < upper {
					upper = b.value
				}
			}
		}
		if lower > upper {
			res.Violations = append(res.Violations, Violation{
				Kind:   "contradictory_bounds",
				Detail: fmt.Sprintf("variable %q bounded below by %v and above by %v", name, lower, upper),
			})
		}
	}

	res.BlockPromotion = len(res.Violations) > 0
	return res
}
