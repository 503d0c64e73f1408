// Package mcp exposes the chat adapter over the Model Context Protocol,
// so MCP-compatible agents can read from the lattice and explicitly
// escalate conversation content into it.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/loaf-ai/loaf/internal/chat"
	"github.com/loaf-ai/loaf/internal/model"
)

// Server wraps the MCP server around the chat adapter.
type Server struct {
	mcpServer *mcpserver.MCPServer
	adapter   *chat.Adapter
	actor     *model.Actor
	logger    *slog.Logger
}

// New creates a configured MCP server. The actor is the host identity all
// escalation writes run under.
func New(adapter *chat.Adapter, actor *model.Actor, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		adapter: adapter,
		actor:   actor,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"loaf",
		version,
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// loaf_retrieve — read-only lattice lookup.
	s.mcpServer.AddTool(
		mcplib.NewTool("loaf_retrieve",
			mcplib.WithDescription(`Retrieve knowledge from the lattice for conversational use.

Read-only: nothing is created, promoted, or submitted. Results come from
your local lattice first, then the shared canon; canon items carry a
confidence badge. To persist something from the conversation, use
loaf_save_as_dtu or loaf_publish_to_global explicitly.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("Free-text query; all terms must match title, tags, or claims"),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleRetrieve,
	)

	// loaf_save_as_dtu — escalate conversation content into a Local DTU.
	s.mcpServer.AddTool(
		mcplib.NewTool("loaf_save_as_dtu",
			mcplib.WithDescription(`Save conversation content as a Local DTU.

WHEN TO USE: after the conversation produced a durable insight worth
keeping. The DTU stays in your local lattice; use loaf_publish_to_global
if it should be proposed for the shared canon instead.

Claims are a JSON array: [{"type":"FACT","text":"...","evidenceTier":
"CORROBORATED","sources":["..."]}]. Missing provenance quarantines the
DTU until it is supplied.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("title",
				mcplib.Description("Short descriptive title"),
				mcplib.Required(),
			),
			mcplib.WithString("domain_type",
				mcplib.Description("Knowledge domain, e.g. engineering, geophysics"),
				mcplib.Required(),
			),
			mcplib.WithString("epistemic_class",
				mcplib.Description("EMPIRICAL, INTERPRETIVE, or FORMAL"),
				mcplib.Required(),
			),
			mcplib.WithString("claims",
				mcplib.Description("JSON array of claims"),
				mcplib.Required(),
			),
			mcplib.WithString("tags",
				mcplib.Description("Optional JSON array of tag strings"),
			),
			mcplib.WithString("source_id",
				mcplib.Description("Provenance source id, e.g. a conversation id"),
			),
		),
		s.handleSave,
	)

	// loaf_publish_to_global — Local DTU plus a pending canon submission.
	s.mcpServer.AddTool(
		mcplib.NewTool("loaf_publish_to_global",
			mcplib.WithDescription(`Save conversation content as a Local DTU and open a PENDING
submission proposing it for the shared canon.

The DTU itself stays Local; promotion happens only after governance
resolves the submission. Arguments are identical to loaf_save_as_dtu.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("title", mcplib.Description("Short descriptive title"), mcplib.Required()),
			mcplib.WithString("domain_type", mcplib.Description("Knowledge domain"), mcplib.Required()),
			mcplib.WithString("epistemic_class", mcplib.Description("EMPIRICAL, INTERPRETIVE, or FORMAL"), mcplib.Required()),
			mcplib.WithString("claims", mcplib.Description("JSON array of claims"), mcplib.Required()),
			mcplib.WithString("tags", mcplib.Description("Optional JSON array of tag strings")),
			mcplib.WithString("source_id", mcplib.Description("Provenance source id")),
		),
		s.handlePublish,
	)
}

func (s *Server) handleRetrieve(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	limit := request.GetInt("limit", 10)

	resp := s.adapter.Retrieve(query, limit)
	resultData, _ := json.MarshalIndent(resp, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleSave(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	payload, errMsg := s.escalationPayload(request)
	if errMsg != "" {
		return errorResult(errMsg), nil
	}

	res := s.adapter.SaveAsDTU(payload, s.actor)
	if res.Err != nil {
		return errorResult(fmt.Sprintf("save failed: %v", res.Err)), nil
	}
	resultData, _ := json.Marshal(map[string]any{
		"dtu_id": res.DTU.ID,
		"lane":   string(res.DTU.Lane),
		"status": string(res.DTU.Status),
	})
	return textResult(string(resultData)), nil
}

func (s *Server) handlePublish(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	payload, errMsg := s.escalationPayload(request)
	if errMsg != "" {
		return errorResult(errMsg), nil
	}

	res, sub, err := s.adapter.PublishToGlobal(payload, s.actor)
	if err != nil {
		return errorResult(fmt.Sprintf("publish failed: %v", err)), nil
	}
	resultData, _ := json.Marshal(map[string]any{
		"dtu_id":            res.DTU.ID,
		"lane":              string(res.DTU.Lane),
		"submission_id":     sub.ID,
		"submission_status": string(sub.Status()),
	})
	return textResult(string(resultData)), nil
}

// escalationPayload builds the write-guard payload from tool arguments.
func (s *Server) escalationPayload(request mcplib.CallToolRequest) (map[string]any, string) {
	title := request.GetString("title", "")
	domainType := request.GetString("domain_type", "")
	class := request.GetString("epistemic_class", "")
	claimsJSON := request.GetString("claims", "")
	if title == "" || domainType == "" || class == "" || claimsJSON == "" {
		return nil, "title, domain_type, epistemic_class, and claims are required"
	}

	var claims []any
	if err := json.Unmarshal([]byte(claimsJSON), &claims); err != nil {
		return nil, fmt.Sprintf("claims must be a JSON array: %v", err)
	}

	payload := map[string]any{
		"title":          title,
		"domainType":     domainType,
		"epistemicClass": class,
		"claims":         claims,
	}
	if tagsJSON := request.GetString("tags", ""); tagsJSON != "" {
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, fmt.Sprintf("tags must be a JSON array of strings: %v", err)
		}
		payload["tags"] = tags
	}
	if sourceID := request.GetString("source_id", ""); sourceID != "" {
		payload["provenance"] = map[string]any{
			"source_type": "chat",
			"source_id":   sourceID,
			"confidence":  0.7,
			"created_at":  time.Now().UTC().Format(time.RFC3339),
		}
	}
	return payload, ""
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}
