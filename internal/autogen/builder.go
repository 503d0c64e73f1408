package autogen

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyPack aborts a run whose retrieval stage found nothing to build
// from.
var ErrEmptyPack = errors.New("autogen: empty retrieval pack")

// ClaimClass grades a generated claim's epistemic strength.
type ClaimClass string

const (
	ClassFact       ClaimClass = "fact"
	ClassInference  ClaimClass = "inference"
	ClassHypothesis ClaimClass = "hypothesis"
)

// confidenceFloor is the minimum confidence a built claim carries.
const confidenceFloor = 0.2

// hypothesisCeiling caps the confidence of downgraded claims.
const hypothesisCeiling = 0.4

// CandidateClaim is one generated claim with its supporting DTU ids.
type CandidateClaim struct {
	Text       string     `json:"text"`
	Class      ClaimClass `json:"class"`
	Support    []string   `json:"support"`
	Confidence float64    `json:"confidence"`
}

// Candidate is the DTU-shaped output of a generation run before it is
// written anywhere.
type Candidate struct {
	Title   string           `json:"title"`
	Tags    []string         `json:"tags"`
	Claims  []CandidateClaim `json:"claims"`
	Summary string           `json:"summary"`
	Meta    map[string]any   `json:"meta"`
}

// Build merges the pack's core content into a candidate. Claims inherit
// support from the DTUs they came from; sourced facts stay facts,
// unsourced material becomes inference or hypothesis.
func (p *Pipeline) Build(target Target, pack Pack) (*Candidate, error) {
	if len(pack.Core) == 0 {
		return nil, ErrEmptyPack
	}

	cand := &Candidate{
		Title: fmt.Sprintf("%s synthesis across %d units", strings.ReplaceAll(string(target.Intent), "_", " "), len(pack.Core)),
		Meta: map[string]any{
			"intent": string(target.Intent),
		},
	}

	tagCount := make(map[string]int)
	for _, d := range pack.Core {
		for _, t := range d.Tags {
			tagCount[t]++
		}
		for _, c := range d.Claims {
			cc := CandidateClaim{
				Text:    c.Text,
				Support: []string{d.ID},
			}
			switch {
			case len(c.Sources) > 0:
				cc.Class = ClassFact
				cc.Confidence = clamp(d.Scores.Factual, confidenceFloor, 1)
			case c.Type.Interpretive():
				cc.Class = ClassInference
				cc.Confidence = clamp(d.Scores.Overall*0.8, confidenceFloor, 1)
			default:
				cc.Class = ClassHypothesis
				cc.Confidence = clamp(d.Scores.Overall*0.5, confidenceFloor, hypothesisCeiling)
			}
			cand.Claims = append(cand.Claims, cc)
		}
	}

	// Carry the densest shared tags.
	type tagFreq struct {
		tag string
		n   int
	}
	freqs := make([]tagFreq, 0, len(tagCount))
	for t, n := range tagCount {
		freqs = append(freqs, tagFreq{t, n})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].n != freqs[j].n {
			return freqs[i].n > freqs[j].n
		}
		return freqs[i].tag < freqs[j].tag
	})
	for i, f := range freqs {
		if i >= 5 {
			break
		}
		cand.Tags = append(cand.Tags, f.tag)
	}
	return cand, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
