package models

// Project represents a project entry in the meta database.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DBPath      string `json:"db_path"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Confidence is the ordered strength label attached to a relation:
// low < medium < high.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank returns the position of c in the low < medium < high order.
// Unknown values rank below low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	}
	return 0
}

// Valid reports whether c is one of the three known confidence labels.
func (c Confidence) Valid() bool {
	return c.Rank() > 0
}

// MinConfidence returns the weaker of a and b.
func MinConfidence(a, b Confidence) Confidence {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

// Discovery methods recorded in relation properties.
const (
	DiscoveryManual     = "manual"
	DiscoverySemantic   = "semantic"
	DiscoveryPattern    = "pattern"
	DiscoveryTransitive = "transitive"
)

// RelationProperties is the structured metadata attached to a relation.
// The fields form a closed variant keyed by DiscoveryMethod: Similarity is
// set for semantic discovery, Evidence for pattern discovery, and
// ChainLength/Transitive for transitive discovery. Use the constructors
// below rather than filling the struct by hand.
type RelationProperties struct {
	DiscoveryMethod string   `json:"discovery_method"`
	Similarity      *float64 `json:"similarity,omitempty"`
	Evidence        []string `json:"evidence,omitempty"`
	ChainLength     int      `json:"chain_length,omitempty"`
	Transitive      bool     `json:"transitive,omitempty"`
}

// ManualProperties marks a relation as explicitly stated by the caller.
func ManualProperties() RelationProperties {
	return RelationProperties{DiscoveryMethod: DiscoveryManual}
}

// SemanticProperties marks a relation as discovered via embedding similarity.
func SemanticProperties(similarity float64) RelationProperties {
	return RelationProperties{DiscoveryMethod: DiscoverySemantic, Similarity: &similarity}
}

// PatternProperties marks a relation as discovered via verb-pattern
// extraction, carrying the matched observation texts as evidence.
func PatternProperties(evidence []string) RelationProperties {
	return RelationProperties{DiscoveryMethod: DiscoveryPattern, Evidence: evidence}
}

// TransitiveProperties marks a relation as inferred from a multi-hop chain.
func TransitiveProperties(chainLength int) RelationProperties {
	return RelationProperties{
		DiscoveryMethod: DiscoveryTransitive,
		ChainLength:     chainLength,
		Transitive:      true,
	}
}

// Entity represents a named node in the knowledge graph. Name and type are
// immutable after creation; observations are append-only and the embedding
// is refreshed whenever observations are added.
type Entity struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	EntityType   string        `json:"entity_type"`
	Observations []Observation `json:"observations,omitempty"`
	Embedding    []float32     `json:"-"`
	CreatedAt    string        `json:"created_at"`
	UpdatedAt    string        `json:"updated_at"`
}

// ObservationTexts returns the plain observation contents in insertion order.
func (e *Entity) ObservationTexts() []string {
	texts := make([]string, len(e.Observations))
	for i, o := range e.Observations {
		texts[i] = o.Content
	}
	return texts
}

// Observation represents a free-text fact attached to an entity.
type Observation struct {
	ID        string `json:"id"`
	EntityID  string `json:"entity_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Relation represents a directed, typed, confidence-scored edge between two
// entities. The (from, to, type) triple is unique; creating a duplicate is a
// no-op, not an error.
type Relation struct {
	ID           string             `json:"id"`
	FromEntityID string             `json:"from_entity_id"`
	ToEntityID   string             `json:"to_entity_id"`
	RelationType string             `json:"relation_type"`
	Confidence   Confidence         `json:"confidence"`
	Properties   RelationProperties `json:"properties"`
	CreatedAt    string             `json:"created_at"`
}

// MemoryRecord is an unstructured memory (reflection or conversation note)
// with an independent lifecycle from the entity graph.
type MemoryRecord struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"-"`
	Project   string            `json:"project,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// ScoredEntity pairs an entity with its similarity to a query. Fallback
// text-search results carry Similarity 0.0 and are ranked by recency.
type ScoredEntity struct {
	Entity
	Similarity float64 `json:"similarity"`
}

// ScoredMemory pairs a memory record with its similarity to a query.
type ScoredMemory struct {
	MemoryRecord
	Similarity float64 `json:"similarity"`
}

// KnowledgeGraph represents the full graph for a project.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// DiscoveryResult summarizes one transitive discovery run.
type DiscoveryResult struct {
	Created           int `json:"created"`
	Skipped           int `json:"skipped"`
	DuplicatesAvoided int `json:"duplicates_avoided"`
}

// GraphStats is the operator-visibility summary returned by the stats tool.
type GraphStats struct {
	Entities          int                `json:"entities"`
	Relations         int                `json:"relations"`
	Memories          int                `json:"memories"`
	ByConfidence      map[Confidence]int `json:"by_confidence"`
	ByDiscoveryMethod map[string]int     `json:"by_discovery_method"`
}
