package autogen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// LLMClient shapes a drafted candidate. Implementations wrap whatever model
// endpoint is configured; a nil client skips the stage entirely.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// shape is the JSON contract an LLM response must satisfy.
type shape struct {
	Title  string `json:"title"`
	Claims []struct {
		Text       string   `json:"text"`
		Class      string   `json:"class"`
		Support    []string `json:"support"`
		Confidence float64  `json:"confidence"`
	} `json:"claims"`
}

// ShapeWithLLM asks the client to rewrite the candidate and applies the
// result only when it parses and its support ids stay inside the allowed
// set. Invalid support ids are stripped; a claim left with no valid support
// is downgraded to a low-confidence hypothesis. Every failure is recorded
// in the trace and none is fatal.
func (p *Pipeline) ShapeWithLLM(ctx context.Context, cand *Candidate, pack Pack, trace *[]string) {
	if p.llm == nil {
		return
	}

	allowed := make(map[string]bool, len(pack.Core))
	var ids []string
	for _, d := range pack.Core {
		allowed[d.ID] = true
		ids = append(ids, d.ID)
	}

	prompt := buildShapePrompt(cand, ids)
	resp, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		*trace = append(*trace, "llm_error:"+err.Error())
		return
	}

	var s shape
	if err := json.Unmarshal([]byte(extractJSON(resp)), &s); err != nil {
		*trace = append(*trace, "llm_unparseable")
		return
	}
	if s.Title == "" || len(s.Claims) == 0 {
		*trace = append(*trace, "llm_empty_shape")
		return
	}

	shaped := make([]CandidateClaim, 0, len(s.Claims))
	for _, c := range s.Claims {
		var valid []string
		for _, id := range c.Support {
			if allowed[id] {
				valid = append(valid, id)
			}
		}
		cc := CandidateClaim{
			Text:       c.Text,
			Class:      ClaimClass(c.Class),
			Support:    valid,
			Confidence: clamp(c.Confidence, confidenceFloor, 1),
		}
		switch cc.Class {
		case ClassFact, ClassInference, ClassHypothesis:
		default:
			cc.Class = ClassInference
		}
		if len(c.Support) > 0 && len(valid) == 0 {
			// The model cited only sources it was never given.
			cc.Class = ClassHypothesis
			cc.Confidence = clamp(cc.Confidence, confidenceFloor, hypothesisCeiling)
		}
		shaped = append(shaped, cc)
	}

	cand.Title = s.Title
	cand.Claims = shaped
	cand.Meta["ollamaShaped"] = true
	*trace = append(*trace, "llm_shaped")
}

func buildShapePrompt(cand *Candidate, allowedIDs []string) string {
	var b strings.Builder
	b.WriteString("Rewrite the draft below into a tighter knowledge unit.\n")
	b.WriteString("Respond with JSON only: {\"title\": string, \"claims\": [{\"text\", \"class\", \"support\", \"confidence\"}]}.\n")
	b.WriteString("class is one of fact, inference, hypothesis.\n")
	fmt.Fprintf(&b, "support may only reference these ids: %s\n\n", strings.Join(allowedIDs, ", "))
	fmt.Fprintf(&b, "Draft title: %s\n", cand.Title)
	for i, c := range cand.Claims {
		fmt.Fprintf(&b, "Claim %d [%s]: %s (support: %s)\n", i, c.Class, c.Text, strings.Join(c.Support, ","))
	}
	return b.String()
}

// extractJSON pulls the outermost JSON object out of a response that may
// wrap it in prose or code fences.
func extractJSON(resp string) string {
	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start < 0 || end <= start {
		return resp
	}
	return resp[start : end+1]
}
