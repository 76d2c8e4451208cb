package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sessionmind/memory-mcp/internal/models"
	"github.com/sessionmind/memory-mcp/internal/session"
)

// MemoryTools holds references needed by unstructured memory tool handlers.
type MemoryTools struct {
	Session *session.Manager
}

// --- Input types ---

type StoreMemoryInput struct {
	Content  string            `json:"content" jsonschema:"Memory text to store"`
	Tags     []string          `json:"tags,omitempty" jsonschema:"Optional tags"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"Optional key/value metadata"`
}

type SearchMemoryInput struct {
	Query     string  `json:"query" jsonschema:"Text to search for"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"Minimum similarity (0-1); default from server config"`
	Limit     int     `json:"limit,omitempty" jsonschema:"Maximum results to return (default 10)"`
}

// --- Handlers ---

func (t *MemoryTools) StoreMemory(ctx context.Context, _ *mcp.CallToolRequest, input StoreMemoryInput) (*mcp.CallToolResult, any, error) {
	if input.Content == "" {
		return toolError("Memory content is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	rec, degraded, err := eng.StoreMemory(ctx, input.Content, t.Session.Current(), input.Tags, input.Metadata)
	if err != nil {
		return toolError("Failed to store memory: %v", err), nil, nil
	}

	return toolJSON(map[string]any{
		"memory":             rec,
		"embedding_degraded": degraded,
	})
}

func (t *MemoryTools) SearchMemory(ctx context.Context, _ *mcp.CallToolRequest, input SearchMemoryInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("Query is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	results, textFallback, err := eng.SearchMemory(ctx, input.Query, input.Threshold, input.Limit)
	if err != nil {
		return toolError("Failed to search memory: %v", err), nil, nil
	}
	if results == nil {
		results = []models.ScoredMemory{}
	}

	return toolJSON(map[string]any{
		"results":       results,
		"text_fallback": textFallback,
	})
}
