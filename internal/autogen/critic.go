package autogen

import (
	"fmt"
	"strings"

	"github.com/loaf-ai/loaf/internal/epistemic"
)

// Issue severities.
const (
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// mostlyHypotheticalShare is the hypothesis fraction above which a
// candidate is unpublishable.
const mostlyHypotheticalShare = 0.7

// Issue is one critic finding.
type Issue struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// CriticReport is the rule-based review of a candidate.
type CriticReport struct {
	Issues          []Issue `json:"issues"`
	NeedsEscalation bool    `json:"needs_escalation"`
}

// HasCritical reports whether any issue is critical.
func (r CriticReport) HasCritical() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// definitionMarkers suggest at least one claim actually defines something.
var definitionMarkers = []string{" is ", " are ", " means ", " defined as ", " refers to "}

// conflictMarkers acknowledge known disagreements.
var conflictMarkers = []string{"conflict", "contradict", "dispute", "disagree"}

// Critique runs the rule-based checks against a candidate in the context
// of its pack.
func Critique(cand *Candidate, pack Pack) CriticReport {
	var r CriticReport
	add := func(name, severity, detail string) {
		r.Issues = append(r.Issues, Issue{Name: name, Severity: severity, Detail: detail})
		if severity == SeverityCritical {
			r.NeedsEscalation = true
		}
	}

	defined := false
	for _, c := range cand.Claims {
		lower := strings.ToLower(c.Text)
		for _, m := range definitionMarkers {
			if strings.Contains(lower, m) {
				defined = true
				break
			}
		}
	}
	if !defined {
		add("no_definitions", SeverityWarn, "no claim defines its terms")
	}

	supported := false
	for _, c := range cand.Claims {
		if len(c.Support) > 0 {
			supported = true
			break
		}
	}
	if !supported {
		add("no_evidence_links", SeverityCritical, "no claim carries support")
	}

	if len(cand.Claims) > 0 {
		hyp := 0
		for _, c := range cand.Claims {
			if c.Class == ClassHypothesis {
				hyp++
			}
		}
		share := float64(hyp) / float64(len(cand.Claims))
		if share > mostlyHypotheticalShare {
			add("mostly_hypothetical", SeverityCritical,
				fmt.Sprintf("%.0f%% of claims are hypotheses", share*100))
		}
	}

	if len(pack.ConflictPairs) > 0 {
		acknowledged := false
		body := strings.ToLower(cand.Title + " " + cand.Summary)
		for _, c := range cand.Claims {
			body += " " + strings.ToLower(c.Text)
		}
		for _, m := range conflictMarkers {
			if strings.Contains(body, m) {
				acknowledged = true
				break
			}
		}
		if !acknowledged {
			add("conflicts_not_acknowledged", SeverityWarn,
				fmt.Sprintf("%d known conflict pairs go unmentioned", len(pack.ConflictPairs)))
		}
	}

	for i := 0; i < len(cand.Claims); i++ {
		for j := i + 1; j < len(cand.Claims); j++ {
			if epistemic.Contradicts(cand.Claims[i].Text, cand.Claims[j].Text) {
				add("internal_inconsistency", SeverityCritical,
					fmt.Sprintf("claims %d and %d contradict", i, j))
				return r
			}
		}
	}
	return r
}

// Synthesize deduplicates claims, records the critic trace in meta, and
// appends a critic summary bullet to the human-readable summary.
func Synthesize(cand *Candidate, report CriticReport) {
	seen := make(map[string]bool)
	var deduped []CandidateClaim
	for _, c := range cand.Claims {
		key := strings.ToLower(strings.TrimSpace(c.Text))
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, c)
	}
	cand.Claims = deduped

	if cand.Meta == nil {
		cand.Meta = make(map[string]any)
	}
	trace := make([]string, 0, len(report.Issues))
	for _, i := range report.Issues {
		trace = append(trace, i.Severity+":"+i.Name)
	}
	cand.Meta["criticTrace"] = trace

	bullet := fmt.Sprintf("- critic: %d issues, escalation=%t", len(report.Issues), report.NeedsEscalation)
	if cand.Summary != "" {
		cand.Summary += "\n"
	}
	cand.Summary += bullet
}
