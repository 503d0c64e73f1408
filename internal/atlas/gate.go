package atlas

import (
	"fmt"

	"github.com/loaf-ai/loaf/internal/model"
)

// Gate thresholds.
const (
	structuralMinGlobal      = 0.80
	structuralMinMarketplace = 0.60
	factualMin               = 0.80
	dedupeFailThreshold      = 0.85
	dedupeSameAsThreshold    = 0.90
)

// GateCheck is one named check in the ordered auto-promote list.
type GateCheck struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
}

// GateResult is the full gate verdict. Label is the status the candidate
// would receive on pass; SameAsID is set when dedupe found a near-exact
// duplicate to collapse into.
type GateResult struct {
	Pass     bool         `json:"pass"`
	Checks   []GateCheck  `json:"checks"`
	Label    model.Status `json:"label,omitempty"`
	SameAsID string       `json:"same_as_id,omitempty"`
}

// AutoPromoteGate runs the ordered promotion checks for a candidate against
// a target lane. The first failing check fails the gate; later checks still
// run so the caller sees the full picture.
func (s *Store) AutoPromoteGate(d *model.DTU, target model.Scope) GateResult {
	res := GateResult{Pass: true, Label: model.StatusVerified}

	add := func(name string, pass bool, detail string) {
		res.Checks = append(res.Checks, GateCheck{Name: name, Pass: pass, Detail: detail})
		if !pass {
			res.Pass = false
		}
	}

	// 1. Every FACT claim cites at least one source. Local writes skip this.
	if target == model.ScopeGlobal {
		pass, detail := true, ""
		for i, c := range d.Claims {
			if c.Type == model.ClaimFact && len(c.Sources) == 0 {
				pass = false
				detail = fmt.Sprintf("claim %d is an uncited fact", i)
				break
			}
		}
		add("no_uncited_facts", pass, detail)
	}

	// 2. Structural credibility threshold by lane.
	structMin := structuralMinGlobal
	if target == model.ScopeMarketplace {
		structMin = structuralMinMarketplace
	}
	add("structural_score", d.Scores.Structural >= structMin,
		fmt.Sprintf("%.2f vs %.2f", d.Scores.Structural, structMin))

	// 3. Factual confidence threshold.
	add("factual_confidence", d.Scores.Factual >= factualMin,
		fmt.Sprintf("%.2f vs %.2f", d.Scores.Factual, factualMin))

	// 4. No HIGH contradiction edge to a higher-confidence VERIFIED peer.
	contradicted, peer := s.highContradictionWithStrongerPeer(d)
	add("no_contradictions", !contradicted, peer)

	// 5. Lineage stays a DAG.
	add("no_lineage_cycle", !s.HasLineageCycle(d), "")

	// 6. Dedupe against the target lane.
	best, bestID := s.bestMatch(d, target)
	switch {
	case best >= dedupeSameAsThreshold:
		add("dedupe", false, fmt.Sprintf("near-duplicate of %s (%.2f)", bestID, best))
		res.SameAsID = bestID
	case best >= dedupeFailThreshold:
		add("dedupe", false, fmt.Sprintf("too similar to %s (%.2f)", bestID, best))
	default:
		add("dedupe", true, "")
	}

	// 7. Claim/lane consistency: verified facts must be sourced; interpretive
	// claims never reach PROVEN.
	pass, detail := true, ""
	for i, c := range d.Claims {
		if c.Type == model.ClaimFact && c.EvidenceTier == model.TierUnsourced && target != model.ScopeLocal {
			pass = false
			detail = fmt.Sprintf("claim %d: unsourced fact cannot verify", i)
			break
		}
		if c.Type.Interpretive() && c.EvidenceTier == model.TierProven {
			pass = false
			detail = fmt.Sprintf("claim %d: %s claims cannot be PROVEN", i, c.Type)
			break
		}
	}
	add("claim_lane_consistency", pass, detail)

	// 8. Interpretive candidates earn the interpretation label, never VERIFIED.
	if d.EpistemicClass == model.ClassInterpretive {
		res.Label = model.StatusVerifiedInterpretation
	}
	if !res.Pass {
		res.Label = ""
	}
	return res
}

func (s *Store) highContradictionWithStrongerPeer(d *model.DTU) (bool, string) {
	for _, l := range s.Links(d.ID) {
		if l.Type != model.LinkContradicts || l.Severity != model.SeverityHigh {
			continue
		}
		peerID := l.ToID
		if peerID == d.ID {
			peerID = l.FromID
		}
		peer, ok := s.dtus.Get(peerID)
		if !ok {
			continue
		}
		verified := peer.Status == model.StatusVerified || peer.Status == model.StatusVerifiedInterpretation
		if verified && peer.Scores.Overall > d.Scores.Overall {
			return true, peerID
		}
	}
	return false, ""
}

// bestMatch scans the target lane for the most similar existing DTU.
func (s *Store) bestMatch(d *model.DTU, lane model.Scope) (float64, string) {
	var best float64
	var bestID string
	claims := claimTexts(d)
	for _, other := range s.dtus.QueryShard(string(lane), nil, 0) {
		if other.ID == d.ID || other.Status == model.StatusSameAs {
			continue
		}
		sim := Similarity(d.Title, d.Tags, claims, other.Title, other.Tags, claimTexts(other))
		if sim > best {
			best = sim
			bestID = other.ID
		}
	}
	return best, bestID
}

func claimTexts(d *model.DTU) []string {
	out := make([]string, len(d.Claims))
	for i, c := range d.Claims {
		out[i] = c.Text
	}
	return out
}
