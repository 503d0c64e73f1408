package autogen

import (
	"sort"

	"github.com/loaf-ai/loaf/internal/model"
)

// Pack size bounds for the core selection. Below packScoreFloor a DTU is
// too weak for the core, unless dropping it would leave fewer than
// packCoreMin entries.
const (
	packCoreMin    = 10
	packCoreMax    = 30
	packScoreFloor = 0.6
)

// Pack is the retrieval context a generation run works from.
type Pack struct {
	Core          []*model.DTU `json:"core"`
	Peripheral    []*model.DTU `json:"peripheral"`
	Citations     []string     `json:"citations"`
	ConflictPairs [][2]string  `json:"conflict_pairs"`
}

// BuildPack selects core DTUs by intent affinity and overall confidence,
// pulls in their cited peers as peripheral references, and collects
// conflict pairs touching the core.
func (p *Pipeline) BuildPack(target Target) Pack {
	dtus := p.atlas.All()
	var usable []*model.DTU
	for _, d := range dtus {
		if d.Status == model.StatusQuarantined || d.Status == model.StatusSameAs {
			continue
		}
		usable = append(usable, d)
	}
	if len(usable) == 0 {
		return Pack{}
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return p.packScore(usable[i], target) > p.packScore(usable[j], target)
	})

	coreN := len(usable)
	if coreN > packCoreMax {
		coreN = packCoreMax
	}
	// Trim the weak tail into the peripheral set; a sparse atlas keeps
	// everything so the builder is never starved of material.
	for coreN > packCoreMin && p.packScore(usable[coreN-1], target) < packScoreFloor {
		coreN--
	}
	core := usable[:coreN]
	coreIDs := make(map[string]bool, len(core))
	for _, d := range core {
		coreIDs[d.ID] = true
	}

	var pack Pack
	pack.Core = core
	if len(usable) > coreN {
		pack.Peripheral = usable[coreN:]
	}

	// Citations: sources named by core claims.
	seen := make(map[string]bool)
	for _, d := range core {
		for _, c := range d.Claims {
			for _, src := range c.Sources {
				if !seen[src] {
					seen[src] = true
					pack.Citations = append(pack.Citations, src)
				}
			}
		}
	}

	for _, l := range p.atlas.AllLinks() {
		if l.Type != model.LinkContradicts {
			continue
		}
		if coreIDs[l.FromID] || coreIDs[l.ToID] {
			pack.ConflictPairs = append(pack.ConflictPairs, [2]string{l.FromID, l.ToID})
		}
	}
	return pack
}

// packScore ranks a DTU for inclusion given the run's intent.
func (p *Pipeline) packScore(d *model.DTU, target Target) float64 {
	score := d.Scores.Overall
	switch target.Intent {
	case IntentFillGaps:
		// Thin DTUs are exactly the material gap-filling needs.
		if len(d.Claims) < 2 {
			score += 0.5
		}
	case IntentResolveConflicts:
		for _, l := range p.atlas.Links(d.ID) {
			if l.Type == model.LinkContradicts {
				score += 0.5
				break
			}
		}
	case IntentCompressClusters:
		score += 0.05 * float64(len(d.Tags))
	case IntentExtractPatterns:
		score += 0.1 * float64(len(d.Lineage.Parents))
	case IntentElevateHighUsage:
		for _, l := range p.atlas.LinksTo(d.ID) {
			if l.Type == model.LinkSupports || l.Type == model.LinkDerivedFrom {
				score += 0.2
			}
		}
	}
	return score
}
