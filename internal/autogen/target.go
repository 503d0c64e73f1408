// Package autogen is the staged self-generation pipeline: target
// selection, retrieval, building, critique, synthesis, optional LLM
// shaping, novelty filtering, and the shadow-first write policy.
package autogen

import (
	"github.com/loaf-ai/loaf/internal/model"
)

// Intent is a generation goal chosen from lattice signals.
type Intent string

const (
	IntentFillGaps         Intent = "fill_gaps"
	IntentResolveConflicts Intent = "resolve_conflicts"
	IntentCompressClusters Intent = "compress_clusters"
	IntentExtractPatterns  Intent = "extract_patterns"
	IntentElevateHighUsage Intent = "elevate_high_usage"
)

// Variant biases target selection toward a flavor of generation.
type Variant string

const (
	VariantNone      Variant = ""
	VariantDream     Variant = "dream"
	VariantSynth     Variant = "synth"
	VariantEvolution Variant = "evolution"
)

// variantBias is the fixed score boost a variant grants its preferred
// intent.
const variantBias = 30

var variantPreference = map[Variant]Intent{
	VariantDream:     IntentExtractPatterns,
	VariantSynth:     IntentCompressClusters,
	VariantEvolution: IntentElevateHighUsage,
}

// Target is the chosen intent with its winning score and the signal that
// produced it.
type Target struct {
	Intent Intent  `json:"intent"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// SelectTarget scores the five candidate intents from lattice signals and
// returns the strongest. An empty lattice always yields fill_gaps at zero.
func (p *Pipeline) SelectTarget(variant Variant) Target {
	dtus := p.atlas.All()
	if len(dtus) == 0 {
		return Target{Intent: IntentFillGaps, Score: 0, Reason: "empty_lattice"}
	}

	gaps := 0
	tagClusters := make(map[string]int)
	fanIn := make(map[string]int)
	for _, d := range dtus {
		if len(d.Claims) < 2 {
			gaps++
		}
		for _, c := range d.Claims {
			if c.Type == model.ClaimFact && len(c.Sources) == 0 {
				gaps++
				break
			}
		}
		for _, t := range d.Tags {
			tagClusters[t]++
		}
		for _, parent := range d.Lineage.Parents {
			fanIn[parent]++
		}
	}

	conflicts := 0
	usage := make(map[string]int)
	for _, l := range p.atlas.AllLinks() {
		switch l.Type {
		case model.LinkContradicts:
			conflicts++
		case model.LinkSupports, model.LinkDerivedFrom:
			usage[l.ToID]++
		}
	}

	largestCluster := 0
	for _, n := range tagClusters {
		if n > largestCluster {
			largestCluster = n
		}
	}
	maxFanIn := 0
	for _, n := range fanIn {
		if n > maxFanIn {
			maxFanIn = n
		}
	}
	maxUsage := 0
	for _, n := range usage {
		if n > maxUsage {
			maxUsage = n
		}
	}

	scores := map[Intent]float64{
		IntentFillGaps:         float64(gaps * 10),
		IntentResolveConflicts: float64(conflicts * 20),
		IntentCompressClusters: float64(largestCluster * 5),
		IntentExtractPatterns:  float64(maxFanIn * 8),
		IntentElevateHighUsage: float64(maxUsage * 8),
	}
	reasons := map[Intent]string{
		IntentFillGaps:         "gap_density",
		IntentResolveConflicts: "conflict_pairs",
		IntentCompressClusters: "tag_cluster_size",
		IntentExtractPatterns:  "lineage_fan_in",
		IntentElevateHighUsage: "citation_usage",
	}
	if preferred, ok := variantPreference[variant]; ok {
		scores[preferred] += variantBias
		reasons[preferred] = reasons[preferred] + "+variant_bias"
	}

	// Stable tie-break in declaration order.
	order := []Intent{IntentFillGaps, IntentResolveConflicts, IntentCompressClusters, IntentExtractPatterns, IntentElevateHighUsage}
	best := order[0]
	for _, in := range order[1:] {
		if scores[in] > scores[best] {
			best = in
		}
	}
	return Target{Intent: best, Score: scores[best], Reason: reasons[best]}
}
