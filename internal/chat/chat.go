// Package chat adapts the lattice for conversational retrieval. The read
// path never mutates anything; writing requires the explicit escalation
// calls, which go through the ordinary write guard.
package chat

import (
	"log/slog"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/scope"
)

// Meta describes the retrieval contract the caller is under.
type Meta struct {
	Mode              string `json:"mode"`
	ValidationLevel   string `json:"validationLevel"`
	ContradictionGate string `json:"contradictionGate"`
	Total             int    `json:"total"`
}

// ContextItem is one retrieved unit shaped for conversation.
type ContextItem struct {
	DTUID           string   `json:"dtuId"`
	Title           string   `json:"title"`
	Claims          []string `json:"claims"`
	Tags            []string `json:"tags,omitempty"`
	SourceScope     string   `json:"sourceScope"` // local | global
	ScopeLabel      string   `json:"scopeLabel"`
	ConfidenceBadge string   `json:"confidenceBadge,omitempty"` // global items only
}

// Response is the read-surface payload.
type Response struct {
	OK      bool          `json:"ok"`
	Context []ContextItem `json:"context"`
	Meta    Meta          `json:"meta"`
}

// Adapter bridges chat to the lattice.
type Adapter struct {
	atlas  *atlas.Store
	guard  *scope.Guard
	logger *slog.Logger
}

// New wires a chat adapter.
func New(a *atlas.Store, guard *scope.Guard, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{atlas: a, guard: guard, logger: logger}
}

// Retrieve answers a query from local then global lanes. It performs no
// writes, no promotions, and no submissions.
func (ad *Adapter) Retrieve(query string, limit int) Response {
	res := ad.atlas.Retrieve(atlas.RetrieveLocalThenGlobal, query, limit)

	items := make([]ContextItem, 0, len(res.Results))
	for _, d := range res.Results {
		item := ContextItem{
			DTUID: d.ID,
			Title: d.Title,
			Tags:  d.Tags,
		}
		for _, c := range d.Claims {
			item.Claims = append(item.Claims, c.Text)
		}
		if d.Lane == model.ScopeGlobal {
			item.SourceScope = "global"
			item.ScopeLabel = "from the shared canon"
			item.ConfidenceBadge = badge(d.Scores.Overall)
		} else {
			item.SourceScope = "local"
			item.ScopeLabel = "from your local lattice"
		}
		items = append(items, item)
	}

	return Response{
		OK:      res.OK,
		Context: items,
		Meta: Meta{
			Mode:              "chat",
			ValidationLevel:   "OFF",
			ContradictionGate: "OFF",
			Total:             res.Total,
		},
	}
}

// badge maps overall confidence to a reader-facing label.
func badge(overall float64) string {
	switch {
	case overall >= 0.8:
		return "high"
	case overall >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// SaveAsDTU escalates a chat exchange into a Local DTU through the write
// guard. The caller invokes this explicitly; retrieval never does.
func (ad *Adapter) SaveAsDTU(payload map[string]any, actor *model.Actor) scope.ApplyResult {
	return ad.guard.Apply(scope.OpCreate, payload, scope.WriteContext{
		Scope: model.ScopeLocal,
		Actor: actor,
	})
}

// PublishToGlobal creates a Local DTU and a pending Global submission for
// it. The DTU itself stays Local; promotion happens through governance.
func (ad *Adapter) PublishToGlobal(payload map[string]any, actor *model.Actor) (scope.ApplyResult, *scope.Submission, error) {
	res := ad.SaveAsDTU(payload, actor)
	if res.Err != nil {
		return res, nil, res.Err
	}
	sub, err := ad.guard.Router().CreateSubmission(res.DTU.ID, model.ScopeGlobal, actor)
	if err != nil {
		return res, nil, err
	}
	return res, sub, nil
}
