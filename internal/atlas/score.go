package atlas

import (
	"strings"

	"github.com/loaf-ai/loaf/internal/model"
)

// Score computes the three credibility scores for a DTU.
//
// Structural factors:
//   - Title substantive (>10 chars): 0.15
//   - Domain type present: 0.10
//   - Epistemic class present: 0.10
//   - Claims present (>=3): up to 0.20
//   - All claims typed: 0.10
//   - Tags present (>=2): up to 0.10
//   - Complete provenance: 0.20
//   - Lineage recorded: 0.05
//
// Factual confidence is the mean evidence-tier weight across claims.
// Overall blends the two, nudged by provenance confidence when present.
func Score(d *model.DTU) model.Scores {
	return model.Scores{
		Structural: structuralScore(d),
		Factual:    factualScore(d),
		Overall:    overallScore(d),
	}
}

func structuralScore(d *model.DTU) float64 {
	var score float64

	// Factor 1: Title is substantive.
	titleLen := len(strings.TrimSpace(d.Title))
	switch {
	case titleLen > 10:
		score += 0.15
	case titleLen > 3:
		score += 0.10
	}

	// Factor 2: Epistemic framing present.
	if strings.TrimSpace(d.DomainType) != "" {
		score += 0.10
	}
	if d.EpistemicClass != "" {
		score += 0.10
	}

	// Factor 3: Claims present.
	switch {
	case len(d.Claims) >= 3:
		score += 0.20
	case len(d.Claims) >= 1:
		score += 0.10
	}

	// Factor 4: Every claim carries a type.
	if len(d.Claims) > 0 {
		typed := true
		for _, c := range d.Claims {
			if c.Type == "" {
				typed = false
				break
			}
		}
		if typed {
			score += 0.10
		}
	}

	// Factor 5: Tags present.
	switch {
	case len(d.Tags) >= 2:
		score += 0.10
	case len(d.Tags) >= 1:
		score += 0.05
	}

	// Factor 6: Provenance is complete.
	if d.Provenance != nil && d.Provenance.Complete() {
		score += 0.20
	}

	// Factor 7: Lineage recorded.
	if len(d.Lineage.Parents) >= 1 {
		score += 0.05
	}

	return clamp01(score)
}

// tierWeights map evidence tiers to confidence contributions.
var tierWeights = map[model.EvidenceTier]float64{
	model.TierProven:       1.0,
	model.TierCorroborated: 0.85,
	model.TierSupported:    0.60,
	model.TierUnsourced:    0.20,
}

func factualScore(d *model.DTU) float64 {
	if len(d.Claims) == 0 {
		return 0
	}
	var sum float64
	for _, c := range d.Claims {
		w, ok := tierWeights[c.EvidenceTier]
		if !ok {
			w = tierWeights[model.TierUnsourced]
		}
		// An uncited FACT claim contributes at most the unsourced weight
		// whatever its declared tier.
		if c.Type == model.ClaimFact && len(c.Sources) == 0 {
			w = tierWeights[model.TierUnsourced]
		}
		sum += w
	}
	return clamp01(sum / float64(len(d.Claims)))
}

func overallScore(d *model.DTU) float64 {
	base := (structuralScore(d) + factualScore(d)) / 2
	if d.Provenance != nil && d.Provenance.Confidence > 0 {
		base = 0.8*base + 0.2*clamp01(d.Provenance.Confidence)
	}
	return clamp01(base)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
