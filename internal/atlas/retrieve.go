package atlas

import (
	"sort"
	"strings"

	"github.com/loaf-ai/loaf/internal/model"
)

// RetrieveMode selects which lanes a query touches.
type RetrieveMode string

const (
	RetrieveLocal           RetrieveMode = "LOCAL"
	RetrieveGlobal          RetrieveMode = "GLOBAL"
	RetrieveLocalThenGlobal RetrieveMode = "LOCAL_THEN_GLOBAL"
	RetrieveMarketplace     RetrieveMode = "MARKETPLACE"
)

// RetrieveResult is the read-surface response.
type RetrieveResult struct {
	OK      bool         `json:"ok"`
	Results []*model.DTU `json:"results"`
	Total   int          `json:"total"`
}

// Retrieve returns DTUs matching a free-text query, ordered by overall
// confidence descending then recency. Quarantined and collapsed duplicates
// never surface.
func (s *Store) Retrieve(mode RetrieveMode, query string, limit int) RetrieveResult {
	var lanes []model.Scope
	switch mode {
	case RetrieveLocal:
		lanes = []model.Scope{model.ScopeLocal}
	case RetrieveGlobal:
		lanes = []model.Scope{model.ScopeGlobal}
	case RetrieveLocalThenGlobal:
		lanes = []model.Scope{model.ScopeLocal, model.ScopeGlobal}
	case RetrieveMarketplace:
		lanes = []model.Scope{model.ScopeMarketplace}
	default:
		return RetrieveResult{}
	}

	terms := queryTerms(query)
	var matched []*model.DTU
	for _, lane := range lanes {
		for _, d := range s.dtus.QueryShard(string(lane), nil, 0) {
			if d.Status == model.StatusQuarantined || d.Status == model.StatusSameAs {
				continue
			}
			if !matches(d, terms) {
				continue
			}
			matched = append(matched, d.Clone())
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Scores.Overall != matched[j].Scores.Overall {
			return matched[i].Scores.Overall > matched[j].Scores.Overall
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return RetrieveResult{OK: true, Results: matched, Total: total}
}

func queryTerms(query string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// matches requires every query term to appear in the title, tags, or claim
// text. An empty query matches everything.
func matches(d *model.DTU, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(d.Title))
	for _, t := range d.Tags {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(t))
	}
	for _, c := range d.Claims {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(c.Text))
	}
	haystack := b.String()
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
