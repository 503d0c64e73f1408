package epistemic

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, HardKernel, Classify("Axiom: identity holds for all elements", nil, 0.99))
	assert.Equal(t, HardKernel, Classify("confirmed result", []string{"theorem"}, 0.97))

	// Hard markers without hard confidence stay soft.
	assert.Equal(t, SoftBelief, Classify("the law of large numbers applies here", nil, 0.7))

	// Speculative language wins regardless of confidence.
	assert.Equal(t, Speculative, Classify("this might be an axiom", nil, 0.99))
	assert.Equal(t, Speculative, Classify("strong claim", []string{"hypothesis"}, 0.95))

	assert.Equal(t, SoftBelief, Classify("users prefer the new layout", nil, 0.65))
	assert.Equal(t, Speculative, Classify("users prefer the new layout", nil, 0.4))
}

func TestDecay(t *testing.T) {
	// Hard kernel never decays.
	assert.Equal(t, 0.9, Decay(0.9, HardKernel, 24*time.Hour))

	// Soft belief: e^(-0.01 * 10) after ten minutes.
	got := Decay(1.0, SoftBelief, 10*time.Minute)
	assert.InDelta(t, math.Exp(-0.1), got, 1e-9)

	// Speculative decays faster than soft.
	assert.Less(t, Decay(1.0, Speculative, time.Hour), Decay(1.0, SoftBelief, time.Hour))

	// Zero or negative elapsed is a no-op.
	assert.Equal(t, 0.5, Decay(0.5, Speculative, 0))
	assert.Equal(t, 0.5, Decay(0.5, Speculative, -time.Minute))
}

func TestIsHardKernel(t *testing.T) {
	assert.True(t, Item{Layer: HardKernel, Confidence: 0.85}.IsHardKernel())
	assert.False(t, Item{Layer: HardKernel, Confidence: 0.7}.IsHardKernel())
	assert.False(t, Item{Layer: SoftBelief, Confidence: 0.99}.IsHardKernel())
}

func TestCheckPromotion_Threshold(t *testing.T) {
	res := CheckPromotion(Item{ID: "x", Confidence: 0.5}, SoftBelief, nil)
	assert.False(t, res.OK)
	assert.Equal(t, "below_promotion_threshold", res.Reason)

	res = CheckPromotion(Item{ID: "x", Confidence: 0.7}, SoftBelief, nil)
	assert.True(t, res.OK)
}

func TestCheckPromotion_HardKernelContradiction(t *testing.T) {
	kernel := []Item{
		{ID: "held", Text: "water boils at standard pressure", Layer: HardKernel, Confidence: 0.95},
		{ID: "weak", Text: "water never boils at standard pressure", Layer: HardKernel, Confidence: 0.5}, // below hard floor, ignored
	}
	cand := Item{ID: "cand", Text: "water does not boil at standard pressure", Confidence: 0.9}

	res := CheckPromotion(cand, SoftBelief, kernel)
	assert.False(t, res.OK)
	assert.Equal(t, "hard_kernel_contradiction", res.Reason)
	assert.Equal(t, "held", res.BlockedBy)
	assert.True(t, res.AutoOpenDispute)
}

func TestCheckPromotion_SelfIsSkipped(t *testing.T) {
	kernel := []Item{{ID: "cand", Text: "gravity is not optional", Layer: HardKernel, Confidence: 0.95}}
	cand := Item{ID: "cand", Text: "gravity is optional", Confidence: 0.9}
	res := CheckPromotion(cand, SoftBelief, kernel)
	assert.True(t, res.OK)
}

func TestCheckPromotion_UnrelatedSubjects(t *testing.T) {
	kernel := []Item{{ID: "held", Text: "photons carry no rest mass", Layer: HardKernel, Confidence: 0.95}}
	cand := Item{ID: "cand", Text: "the quarterly report ships friday", Confidence: 0.9}
	res := CheckPromotion(cand, SoftBelief, kernel)
	assert.True(t, res.OK, "claims about different subjects never contradict")
}
