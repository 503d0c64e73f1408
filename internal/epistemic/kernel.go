// Package epistemic implements the three-layer belief kernel: layer
// classification, per-layer confidence decay, the contradiction-intolerant
// hard kernel, and the reality check (units, dimensions, bounds).
//
// Everything here is deterministic. Promotion gating must replay
// identically, so no LLM sits in this path.
package epistemic

import (
	"math"
	"strings"
	"time"
)

// Layer is an epistemic stratum.
type Layer string

const (
	HardKernel  Layer = "HARD_KERNEL"
	SoftBelief  Layer = "SOFT_BELIEF"
	Speculative Layer = "SPECULATIVE"
)

// Params are a layer's decay and gating parameters.
type Params struct {
	// DecayPerMin is the exponential decay rate applied per minute.
	DecayPerMin float64
	// Tolerance is the contradiction tolerance; the hard kernel tolerates none.
	Tolerance float64
	// PromotionThreshold is the minimum confidence to promote into the layer.
	PromotionThreshold float64
}

// LayerParams returns the fixed parameters per layer.
func LayerParams(l Layer) Params {
	switch l {
	case HardKernel:
		return Params{DecayPerMin: 0, Tolerance: 0, PromotionThreshold: 0.95}
	case SoftBelief:
		return Params{DecayPerMin: 0.01, Tolerance: 0.3, PromotionThreshold: 0.6}
	default:
		return Params{DecayPerMin: 0.05, Tolerance: 0.8, PromotionThreshold: 0.3}
	}
}

// Textual markers. Hard markers indicate invariant formal content;
// speculative markers indicate hypothesis language.
var hardMarkers = []string{"axiom", "theorem", "law of", "∀", "∃", "⇒", "≡", "q.e.d"}

var speculativeMarkers = []string{"hypothesis", "perhaps", "might", "may be", "speculat", "conjecture", "possibly"}

var hardTags = map[string]bool{"axiom": true, "theorem": true, "invariant": true, "formal": true}

var speculativeTags = map[string]bool{"hypothesis": true, "speculation": true, "idea": true}

// Classify assigns a layer from textual markers, tags, and a confidence
// floor. Hard classification needs both a hard marker (or tag) and
// confidence at the hard promotion threshold; speculative markers pull the
// item down regardless of confidence.
func Classify(text string, tags []string, confidence float64) Layer {
	lower := strings.ToLower(text)

	for _, m := range speculativeMarkers {
		if strings.Contains(lower, m) {
			return Speculative
		}
	}
	for _, tag := range tags {
		if speculativeTags[strings.ToLower(tag)] {
			return Speculative
		}
	}

	hard := false
	for _, m := range hardMarkers {
		if strings.Contains(lower, m) {
			hard = true
			break
		}
	}
	if !hard {
		for _, tag := range tags {
			if hardTags[strings.ToLower(tag)] {
				hard = true
				break
			}
		}
	}
	if hard && confidence >= LayerParams(HardKernel).PromotionThreshold {
		return HardKernel
	}

	if confidence >= LayerParams(SoftBelief).PromotionThreshold {
		return SoftBelief
	}
	return Speculative
}

// Decay applies exponential decay to a confidence value for the time the
// item has gone unrefreshed: confidence * e^(-rate * minutes).
func Decay(confidence float64, layer Layer, elapsed time.Duration) float64 {
	rate := LayerParams(layer).DecayPerMin
	if rate == 0 || elapsed <= 0 {
		return confidence
	}
	return confidence * math.Exp(-rate*elapsed.Minutes())
}

// Item is a belief held by the kernel.
type Item struct {
	ID          string
	Text        string
	Tags        []string
	Confidence  float64
	Layer       Layer
	RefreshedAt time.Time
}

// IsHardKernel reports whether the item sits in the contradiction-free core:
// hard layer membership and confidence >= 0.8.
func (i Item) IsHardKernel() bool {
	return i.Layer == HardKernel && i.Confidence >= 0.8
}

// PromotionCheck is the verdict on promoting a candidate into a layer.
type PromotionCheck struct {
	OK              bool
	Layer           Layer
	BlockedBy       string // ID of the hard-kernel item contradicting the candidate
	Reason          string
	AutoOpenDispute bool
}

// CheckPromotion gates a candidate against the target layer's threshold and,
// for any layer, against the hard kernel: a contradiction with an existing
// hard-kernel item blocks promotion outright and opens a dispute.
func CheckPromotion(candidate Item, target Layer, kernel []Item) PromotionCheck {
	p := LayerParams(target)
	if candidate.Confidence < p.PromotionThreshold {
		return PromotionCheck{
			OK:     false,
			Layer:  target,
			Reason: "below_promotion_threshold",
		}
	}
	for _, held := range kernel {
		if !held.IsHardKernel() || held.ID == candidate.ID {
			continue
		}
		if Contradicts(candidate.Text, held.Text) {
			return PromotionCheck{
				OK:              false,
				Layer:           target,
				BlockedBy:       held.ID,
				Reason:          "hard_kernel_contradiction",
				AutoOpenDispute: true,
			}
		}
	}
	return PromotionCheck{OK: true, Layer: target}
}
