package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/loaf-ai/loaf/internal/atlas"
	"github.com/loaf-ai/loaf/internal/bus"
	"github.com/loaf-ai/loaf/internal/chat"
	"github.com/loaf-ai/loaf/internal/governance"
	"github.com/loaf-ai/loaf/internal/idclock"
	"github.com/loaf-ai/loaf/internal/model"
	"github.com/loaf-ai/loaf/internal/rights"
	"github.com/loaf-ai/loaf/internal/scope"
)

func newServer(t *testing.T) (*Server, *atlas.Store) {
	t.Helper()
	clock := idclock.New()
	b := bus.New(clock, 1000, nil)
	a := atlas.NewStore(clock, b, nil)
	gate := governance.NewGate(clock, nil)
	guard := scope.NewGuard(a, gate, rights.NewEngine(), b, clock, nil)
	adapter := chat.New(a, guard, nil)
	actor := &model.Actor{ID: "host", Role: model.RoleAdmin, Scopes: []string{"*"}}
	return New(adapter, actor, nil, "test"), a
}

// toolRequest builds a CallToolRequest with the given arguments.
func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleRetrieve(t *testing.T) {
	s, a := newServer(t)
	a.Put(&model.DTU{
		ID:             "d1",
		Title:          "salt intrusion in the lower aquifer",
		Tags:           []string{"hydrology"},
		DomainType:     "geology",
		EpistemicClass: model.ClassEmpirical,
		Lane:           model.ScopeLocal,
		CreatorID:      "alice",
		Claims: []model.Claim{
			{Type: model.ClaimFact, Text: "chloride exceeds 250 mg per liter", EvidenceTier: model.TierCorroborated, Sources: []string{"well-12"}},
		},
		Provenance: &model.Provenance{
			SourceType: "session", SourceID: "s1", Confidence: 0.9, CreatedAt: time.Unix(1000, 0),
		},
	})

	res, err := s.handleRetrieve(context.Background(), toolRequest("loaf_retrieve", map[string]any{
		"query": "salt intrusion",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var resp chat.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.True(t, resp.OK)
	require.Len(t, resp.Context, 1)
	assert.Equal(t, "d1", resp.Context[0].DTUID)
	assert.Equal(t, "chat", resp.Meta.Mode)
}

func TestHandleRetrieve_MissingQuery(t *testing.T) {
	s, _ := newServer(t)
	res, err := s.handleRetrieve(context.Background(), toolRequest("loaf_retrieve", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func saveArgs() map[string]any {
	return map[string]any{
		"title":           "chat takeaway on aquifer salinity",
		"domain_type":     "geology",
		"epistemic_class": "EMPIRICAL",
		"claims":          `[{"type":"FACT","text":"chloride exceeds 250 mg per liter","evidenceTier":"CORROBORATED","sources":["well-12"]}]`,
		"tags":            `["hydrology"]`,
		"source_id":       "conv-4",
	}
}

func TestHandleSave(t *testing.T) {
	s, a := newServer(t)
	res, err := s.handleSave(context.Background(), toolRequest("loaf_save_as_dtu", saveArgs()))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var out struct {
		DTUID  string `json:"dtu_id"`
		Lane   string `json:"lane"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "LOCAL", out.Lane)
	assert.Equal(t, "DRAFT", out.Status)

	d, ok := a.Get(out.DTUID)
	require.True(t, ok)
	assert.Equal(t, []string{"hydrology"}, d.Tags)
}

func TestHandleSave_BadClaims(t *testing.T) {
	s, _ := newServer(t)
	args := saveArgs()
	args["claims"] = "not json"
	res, err := s.handleSave(context.Background(), toolRequest("loaf_save_as_dtu", args))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandlePublish(t *testing.T) {
	s, _ := newServer(t)
	res, err := s.handlePublish(context.Background(), toolRequest("loaf_publish_to_global", saveArgs()))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var out struct {
		DTUID            string `json:"dtu_id"`
		Lane             string `json:"lane"`
		SubmissionID     string `json:"submission_id"`
		SubmissionStatus string `json:"submission_status"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "LOCAL", out.Lane, "the source DTU stays local")
	assert.NotEmpty(t, out.SubmissionID)
	assert.Equal(t, "PENDING", out.SubmissionStatus)
}
