// Package engine ties the embedding service, the graph store, and the
// inference logic into the operations the MCP tools expose. Every write
// path degrades gracefully when embeddings are unavailable: the record is
// still persisted, and search falls back to keyword matching.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sessionmind/memory-mcp/internal/embedding"
	"github.com/sessionmind/memory-mcp/internal/graph"
	"github.com/sessionmind/memory-mcp/internal/models"
	"github.com/sessionmind/memory-mcp/internal/storage"
)

// DefaultSimilarityThreshold is the cutoff for treating two entities as
// related during auto-discovery and for find_similar queries.
const DefaultSimilarityThreshold = 0.70

// Engine runs semantic operations against one project's graph.
type Engine struct {
	store     *storage.GraphStore
	embedder  *embedding.Service
	threshold float64
	discover  *graph.Discoverer
}

// New builds an engine over a project store. threshold <= 0 selects the
// default.
func New(store *storage.GraphStore, embedder *embedding.Service, threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Engine{
		store:     store,
		embedder:  embedder,
		threshold: threshold,
		discover:  graph.NewDiscoverer(store),
	}
}

// Store exposes the underlying graph store for operations the engine does
// not mediate (reads, deletes, manual relations).
func (e *Engine) Store() *storage.GraphStore {
	return e.store
}

// DiscoveredRelation reports one relation created by auto-discovery.
type DiscoveredRelation struct {
	From         string            `json:"from"`
	To           string            `json:"to"`
	RelationType string            `json:"relation_type"`
	Confidence   models.Confidence `json:"confidence"`
	Method       string            `json:"discovery_method"`
	Similarity   float64           `json:"similarity,omitempty"`
}

// CreateEntityResult is the outcome of one entity creation, including any
// relations auto-discovery produced. Discovery is best-effort: its failures
// land in Errors, never in the call's error return.
type CreateEntityResult struct {
	Entity     *models.Entity
	Discovered []DiscoveredRelation
	Errors     []string
	// Degraded is true when the embedding service was unavailable and the
	// entity was stored without a vector.
	Degraded bool
}

// CreateEntity persists an entity, embeds its name and observations, and
// optionally runs pattern and semantic discovery against the existing
// graph. Embedding failure never fails the creation.
func (e *Engine) CreateEntity(ctx context.Context, name, entityType string, observations []string, autoDiscover bool) (*CreateEntityResult, error) {
	vec, err := e.embedEntityText(ctx, name, observations)
	degraded := err != nil

	entity, err := e.store.CreateEntity(name, entityType, observations, vec)
	if err != nil {
		return nil, err
	}

	result := &CreateEntityResult{Entity: entity, Degraded: degraded}
	if !autoDiscover {
		return result, nil
	}

	// Discovery is best-effort; the entity itself is committed.
	e.autoDiscover(ctx, entity, result)
	for _, msg := range result.Errors {
		log.Printf("[engine] auto-discover for %q: %s", name, msg)
	}
	return result, nil
}

// autoDiscover runs the pattern pass and then the semantic pass for a
// freshly created entity, accumulating relations and failures on result.
// Relations already created by the pattern pass are not duplicated by the
// semantic pass; the store's triple uniqueness takes care of exact repeats
// and Infer produces a different type for the semantic tier anyway.
func (e *Engine) autoDiscover(ctx context.Context, entity *models.Entity, result *CreateEntityResult) {
	candidates, err := e.store.AllEntities()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load candidates: %v", err))
		return
	}

	for _, m := range graph.ExtractPatternRelations(entity, candidates) {
		props := models.PatternProperties([]string{m.Evidence})
		_, created, err := e.store.CreateRelation(entity.ID, m.TargetID, m.RelationType, models.ConfidenceHigh, props)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("pattern relation to %q: %v", m.TargetName, err))
			continue
		}
		if created {
			result.Discovered = append(result.Discovered, DiscoveredRelation{
				From:         entity.Name,
				To:           m.TargetName,
				RelationType: m.RelationType,
				Confidence:   models.ConfidenceHigh,
				Method:       models.DiscoveryPattern,
			})
		}
	}

	if len(entity.Embedding) == 0 {
		return
	}

	similar, _, err := e.store.FindSimilar(entity.Embedding, e.threshold, 0, entity.ID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("similarity search: %v", err))
		return
	}

	obsTexts := entity.ObservationTexts()
	for _, s := range similar {
		inf := graph.Infer(entity, &s.Entity, s.Similarity, obsTexts)

		var props models.RelationProperties
		if len(inf.Evidence) > 0 {
			props = models.PatternProperties(inf.Evidence)
		} else {
			props = models.SemanticProperties(s.Similarity)
		}

		_, created, err := e.store.CreateRelation(entity.ID, s.ID, inf.RelationType, inf.Confidence, props)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("semantic relation to %q: %v", s.Name, err))
			continue
		}
		if created {
			result.Discovered = append(result.Discovered, DiscoveredRelation{
				From:         entity.Name,
				To:           s.Name,
				RelationType: inf.RelationType,
				Confidence:   inf.Confidence,
				Method:       props.DiscoveryMethod,
				Similarity:   s.Similarity,
			})
		}
	}
}

// AddObservations appends observations and refreshes the entity's embedding
// from the combined text. Re-embedding is best-effort.
func (e *Engine) AddObservations(ctx context.Context, entityName string, contents []string) ([]models.Observation, error) {
	added, err := e.store.AddObservations(entityName, contents)
	if err != nil {
		return nil, err
	}

	entity, err := e.store.GetEntityByName(entityName)
	if err != nil {
		return added, nil
	}
	vec, err := e.embedEntityText(ctx, entity.Name, entity.ObservationTexts())
	if err != nil {
		log.Printf("[engine] re-embed %q: %v", entityName, err)
		return added, nil
	}
	if err := e.store.UpdateEntityEmbedding(entity.ID, vec); err != nil {
		log.Printf("[engine] update embedding %q: %v", entityName, err)
	}
	return added, nil
}

// FindSimilar resolves the query to a vector and ranks entities against it.
// The query may be an existing entity name (its stored vector is used) or
// free text (embedded on the fly). When no vector can be produced, or no
// stored entity carries a comparable embedding, results come from keyword
// search with similarity 0.0.
func (e *Engine) FindSimilar(ctx context.Context, query string, threshold float64, limit int) ([]models.ScoredEntity, bool, error) {
	if threshold <= 0 {
		threshold = e.threshold
	}

	var vec []float32
	var excludeID string
	if entity, err := e.store.GetEntityByName(query); err == nil && len(entity.Embedding) > 0 {
		vec = entity.Embedding
		excludeID = entity.ID
	} else {
		v, err := e.embedder.Embed(ctx, query)
		if err == nil {
			vec = v
		} else if !errors.Is(err, embedding.ErrUnavailable) {
			return nil, false, err
		}
	}

	if vec != nil {
		scored, comparable, err := e.store.FindSimilar(vec, threshold, limit, excludeID)
		if err != nil {
			return nil, false, err
		}
		if comparable > 0 {
			return scored, false, nil
		}
	}

	results, err := e.store.SearchEntitiesText(query, limit)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

// StoreMemory embeds and persists one memory record, degrading to a
// vector-less record when the embedding service is unavailable.
func (e *Engine) StoreMemory(ctx context.Context, content, project string, tags []string, metadata map[string]string) (*models.MemoryRecord, bool, error) {
	vec, err := e.embedder.Embed(ctx, content)
	degraded := false
	if err != nil {
		if !errors.Is(err, embedding.ErrUnavailable) {
			return nil, false, err
		}
		degraded = true
		vec = nil
	}
	rec, err := e.store.StoreMemory(content, project, tags, metadata, vec)
	if err != nil {
		return nil, false, err
	}
	return rec, degraded, nil
}

// SearchMemory ranks memories semantically, falling back to keyword search
// when the query cannot be embedded or no stored memory has a vector.
func (e *Engine) SearchMemory(ctx context.Context, query string, threshold float64, limit int) ([]models.ScoredMemory, bool, error) {
	if threshold <= 0 {
		threshold = e.threshold
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err == nil {
		scored, comparable, err := e.store.SearchMemories(vec, threshold, limit)
		if err != nil {
			return nil, false, err
		}
		if comparable > 0 {
			return scored, false, nil
		}
	} else if !errors.Is(err, embedding.ErrUnavailable) {
		return nil, false, err
	}

	results, err := e.store.SearchMemoriesText(query, limit)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

// ExtractPatternRelations runs the pattern pass for an existing entity and
// persists what it finds.
func (e *Engine) ExtractPatternRelations(ctx context.Context, entityName string) ([]DiscoveredRelation, error) {
	entity, err := e.store.GetEntityByName(entityName)
	if err != nil {
		return nil, err
	}
	candidates, err := e.store.AllEntities()
	if err != nil {
		return nil, err
	}

	var discovered []DiscoveredRelation
	for _, m := range graph.ExtractPatternRelations(entity, candidates) {
		props := models.PatternProperties([]string{m.Evidence})
		_, created, err := e.store.CreateRelation(entity.ID, m.TargetID, m.RelationType, models.ConfidenceHigh, props)
		if err != nil {
			return discovered, fmt.Errorf("create relation %s -> %s: %w", entity.Name, m.TargetName, err)
		}
		if created {
			discovered = append(discovered, DiscoveredRelation{
				From:         entity.Name,
				To:           m.TargetName,
				RelationType: m.RelationType,
				Confidence:   models.ConfidenceHigh,
				Method:       models.DiscoveryPattern,
			})
		}
	}
	return discovered, nil
}

// DiscoverTransitive materializes relations implied by existing chains.
func (e *Engine) DiscoverTransitive(ctx context.Context, opts graph.DiscoverOptions) (*models.DiscoveryResult, error) {
	return e.discover.Discover(ctx, opts)
}

// Stats returns graph counts plus the embedding service's cache counters.
func (e *Engine) Stats() (*models.GraphStats, embedding.Stats, error) {
	stats, err := e.store.Stats()
	if err != nil {
		return nil, embedding.Stats{}, err
	}
	return stats, e.embedder.Stats(), nil
}

// embedEntityText embeds an entity's name joined with its observation
// texts, the same composition used for similarity comparison later.
func (e *Engine) embedEntityText(ctx context.Context, name string, observations []string) ([]float32, error) {
	text := name
	if len(observations) > 0 {
		text += " " + strings.Join(observations, " ")
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			log.Printf("[engine] embedding unavailable for %q, storing without vector", name)
			return nil, err
		}
		return nil, err
	}
	return vec, nil
}
