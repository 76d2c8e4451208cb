package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sessionmind/memory-mcp/internal/models"
	"github.com/sessionmind/memory-mcp/internal/session"
	"github.com/sessionmind/memory-mcp/internal/storage"
)

// KnowledgeTools holds references needed by knowledge graph tool handlers.
// All handlers operate on the session's current project.
type KnowledgeTools struct {
	Session *session.Manager
}

// --- Input types ---

type EntityInput struct {
	Name         string   `json:"name" jsonschema:"Entity name"`
	EntityType   string   `json:"entity_type" jsonschema:"Entity type (e.g. project, library, service, concept, test)"`
	Observations []string `json:"observations,omitempty" jsonschema:"Initial observations about the entity"`
}

type CreateEntitiesInput struct {
	Entities     []EntityInput `json:"entities" jsonschema:"Entities to create"`
	AutoDiscover bool          `json:"auto_discover,omitempty" jsonschema:"Automatically discover relationships for each created entity"`
}

type AddObservationsInput struct {
	EntityName   string   `json:"entity_name" jsonschema:"Name of the entity to extend"`
	Observations []string `json:"observations" jsonschema:"Observations to append"`
}

type RelationInput struct {
	From         string `json:"from" jsonschema:"Source entity name"`
	To           string `json:"to" jsonschema:"Target entity name"`
	RelationType string `json:"relation_type" jsonschema:"Relation type (e.g. uses, depends_on, extends)"`
	Confidence   string `json:"confidence,omitempty" jsonschema:"Confidence: low, medium, or high (default high for manual relations)"`
}

type CreateRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Relations to create"`
}

type FindSimilarInput struct {
	Query     string  `json:"query" jsonschema:"Entity name or free text to find similar entities for"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"Minimum similarity (0-1); default from server config"`
	Limit     int     `json:"limit,omitempty" jsonschema:"Maximum results to return"`
}

type OpenNodesInput struct {
	Names []string `json:"names" jsonschema:"Entity names to open"`
}

type DeleteEntitiesInput struct {
	Names []string `json:"names" jsonschema:"Entity names to delete"`
}

type DeleteObservationsInput struct {
	EntityName   string   `json:"entity_name" jsonschema:"Entity whose observations to delete"`
	Observations []string `json:"observations" jsonschema:"Exact observation texts to delete"`
}

type DeleteRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Relations to delete, matched by from, to, and relation_type"`
}

// --- Handlers ---

func (t *KnowledgeTools) CreateEntities(ctx context.Context, _ *mcp.CallToolRequest, input CreateEntitiesInput) (*mcp.CallToolResult, any, error) {
	if len(input.Entities) == 0 {
		return toolError("At least one entity is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	type createdEntity struct {
		models.Entity
		Discovered      []any    `json:"discovered_relations,omitempty"`
		DiscoveryErrors []string `json:"discovery_errors,omitempty"`
		Degraded        bool     `json:"embedding_degraded,omitempty"`
	}

	var out []createdEntity
	for _, in := range input.Entities {
		if in.Name == "" || in.EntityType == "" {
			return toolError("Entity name and entity_type are required"), nil, nil
		}
		result, err := eng.CreateEntity(ctx, in.Name, in.EntityType, in.Observations, input.AutoDiscover)
		if err != nil {
			return toolError("Failed to create entity %q: %v", in.Name, err), nil, nil
		}
		ce := createdEntity{Entity: *result.Entity, Degraded: result.Degraded, DiscoveryErrors: result.Errors}
		for _, d := range result.Discovered {
			ce.Discovered = append(ce.Discovered, d)
		}
		out = append(out, ce)
	}

	return toolJSON(out)
}

func (t *KnowledgeTools) AddObservations(ctx context.Context, _ *mcp.CallToolRequest, input AddObservationsInput) (*mcp.CallToolResult, any, error) {
	if input.EntityName == "" || len(input.Observations) == 0 {
		return toolError("Entity name and at least one observation are required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	added, err := eng.AddObservations(ctx, input.EntityName, input.Observations)
	if err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			return toolError("Entity %q not found", input.EntityName), nil, nil
		}
		return toolError("Failed to add observations: %v", err), nil, nil
	}

	return toolJSON(added)
}

func (t *KnowledgeTools) CreateRelations(_ context.Context, _ *mcp.CallToolRequest, input CreateRelationsInput) (*mcp.CallToolResult, any, error) {
	if len(input.Relations) == 0 {
		return toolError("At least one relation is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	store := eng.Store()

	type relationResult struct {
		From         string            `json:"from"`
		To           string            `json:"to"`
		RelationType string            `json:"relation_type"`
		Confidence   models.Confidence `json:"confidence"`
		Status       string            `json:"status"`
	}

	var out []relationResult
	for _, in := range input.Relations {
		from, err := store.GetEntityByName(in.From)
		if err != nil {
			return toolError("Entity %q not found", in.From), nil, nil
		}
		to, err := store.GetEntityByName(in.To)
		if err != nil {
			return toolError("Entity %q not found", in.To), nil, nil
		}

		conf := models.Confidence(in.Confidence)
		if conf == "" {
			conf = models.ConfidenceHigh
		}
		if !conf.Valid() {
			return toolError("Invalid confidence %q (use low, medium, or high)", in.Confidence), nil, nil
		}

		rel, created, err := store.CreateRelation(from.ID, to.ID, in.RelationType, conf, models.ManualProperties())
		if err != nil {
			return toolError("Failed to create relation %s -> %s: %v", in.From, in.To, err), nil, nil
		}

		status := "created"
		if !created {
			status = "existed"
		}
		out = append(out, relationResult{
			From:         in.From,
			To:           in.To,
			RelationType: rel.RelationType,
			Confidence:   rel.Confidence,
			Status:       status,
		})
	}

	return toolJSON(out)
}

func (t *KnowledgeTools) FindSimilar(ctx context.Context, _ *mcp.CallToolRequest, input FindSimilarInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("Query is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	results, textFallback, err := eng.FindSimilar(ctx, input.Query, input.Threshold, input.Limit)
	if err != nil {
		return toolError("Failed to find similar entities: %v", err), nil, nil
	}
	if results == nil {
		results = []models.ScoredEntity{}
	}

	return toolJSON(map[string]any{
		"results":       results,
		"text_fallback": textFallback,
	})
}

func (t *KnowledgeTools) OpenNodes(_ context.Context, _ *mcp.CallToolRequest, input OpenNodesInput) (*mcp.CallToolResult, any, error) {
	if len(input.Names) == 0 {
		return toolError("At least one entity name is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	entities, err := eng.Store().GetEntities(input.Names)
	if err != nil {
		return toolError("Failed to open nodes: %v", err), nil, nil
	}
	if entities == nil {
		entities = []models.Entity{}
	}

	type node struct {
		models.Entity
		Relations []models.Relation `json:"relations"`
	}
	var out []node
	for _, e := range entities {
		rels, err := eng.Store().ListRelations(e.ID, "both")
		if err != nil {
			return toolError("Failed to load relations for %q: %v", e.Name, err), nil, nil
		}
		out = append(out, node{Entity: e, Relations: rels})
	}

	return toolJSON(out)
}

func (t *KnowledgeTools) ReadGraph(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	g, err := eng.Store().ReadGraph()
	if err != nil {
		return toolError("Failed to read graph: %v", err), nil, nil
	}

	return toolJSON(g)
}

func (t *KnowledgeTools) DeleteEntities(_ context.Context, _ *mcp.CallToolRequest, input DeleteEntitiesInput) (*mcp.CallToolResult, any, error) {
	if len(input.Names) == 0 {
		return toolError("At least one entity name is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	count, err := eng.Store().DeleteEntities(input.Names)
	if err != nil {
		return toolError("Failed to delete entities: %v", err), nil, nil
	}

	return toolText(fmt.Sprintf("Deleted %d entities (with their observations and relations).", count)), nil, nil
}

func (t *KnowledgeTools) DeleteObservations(_ context.Context, _ *mcp.CallToolRequest, input DeleteObservationsInput) (*mcp.CallToolResult, any, error) {
	if input.EntityName == "" || len(input.Observations) == 0 {
		return toolError("Entity name and at least one observation are required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	count, err := eng.Store().DeleteObservations(input.EntityName, input.Observations)
	if err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			return toolError("Entity %q not found", input.EntityName), nil, nil
		}
		return toolError("Failed to delete observations: %v", err), nil, nil
	}

	return toolText(fmt.Sprintf("Deleted %d observations from %q.", count, input.EntityName)), nil, nil
}

func (t *KnowledgeTools) DeleteRelations(_ context.Context, _ *mcp.CallToolRequest, input DeleteRelationsInput) (*mcp.CallToolResult, any, error) {
	if len(input.Relations) == 0 {
		return toolError("At least one relation is required"), nil, nil
	}

	eng, err := t.Session.Engine()
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	keys := make([]storage.RelationKey, 0, len(input.Relations))
	for _, in := range input.Relations {
		keys = append(keys, storage.RelationKey{From: in.From, To: in.To, RelationType: in.RelationType})
	}

	count, err := eng.Store().DeleteRelations(keys)
	if err != nil {
		return toolError("Failed to delete relations: %v", err), nil, nil
	}

	return toolText(fmt.Sprintf("Deleted %d relations.", count)), nil, nil
}
