package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sessionmind/memory-mcp/internal/graph"
	"github.com/sessionmind/memory-mcp/internal/models"
	"github.com/sessionmind/memory-mcp/internal/session"
	"github.com/sessionmind/memory-mcp/internal/storage"
)

// DiscoveryTools holds references needed by relationship discovery tool
// handlers.
type DiscoveryTools struct {
	Session *session.Manager
}

// --- Input types ---

type DiscoverTransitiveInput struct {
	MaxDepth      int    `json:"max_depth,omitempty" jsonschema:"Longest chain to follow (default 2)"`
	MinConfidence string `json:"min_confidence,omitempty" jsonschema:"Weakest chain confidence to accept: low, medium, or high (default medium)"`
	Limit         int    `json:"limit,omitempty" jsonschema:"Maximum relations to create in one run (0 = unlimited)"`
}

type ExtractPatternsInput struct {
	EntityName string `json:"entity_name" jsonschema:"Entity whose observations to scan for relationship patterns"`
}

// --- Handlers ---

func (t *DiscoveryTools) DiscoverTransitive(ctx context.Context, _ *mcp.CallToolRequest, input DiscoverTransitiveInput) (*mcp.CallToolResult, any, error) {
	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	minConf := models.Confidence(input.MinConfidence)
	if input.MinConfidence != "" && !minConf.Valid() {
		return toolError("Invalid min_confidence %q (use low, medium, or high)", input.MinConfidence), nil, nil
	}

	result, err := eng.DiscoverTransitive(ctx, graph.DiscoverOptions{
		MaxDepth:      input.MaxDepth,
		MinConfidence: minConf,
		Limit:         input.Limit,
	})
	if err != nil {
		return toolError("Transitive discovery failed: %v", err), nil, nil
	}

	return toolJSON(result)
}

func (t *DiscoveryTools) ExtractPatterns(ctx context.Context, _ *mcp.CallToolRequest, input ExtractPatternsInput) (*mcp.CallToolResult, any, error) {
	if input.EntityName == "" {
		return toolError("Entity name is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	discovered, err := eng.ExtractPatternRelations(ctx, input.EntityName)
	if err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			return toolError("Entity %q not found", input.EntityName), nil, nil
		}
		return toolError("Pattern extraction failed: %v", err), nil, nil
	}
	if discovered == nil {
		return toolJSON(map[string]any{"relations": []any{}})
	}

	return toolJSON(map[string]any{"relations": discovered})
}

func (t *DiscoveryTools) MemoryStats(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	stats, cacheStats, err := eng.Stats()
	if err != nil {
		return toolError("Failed to compute stats: %v", err), nil, nil
	}

	return toolJSON(map[string]any{
		"graph":           stats,
		"embedding_cache": cacheStats,
	})
}
