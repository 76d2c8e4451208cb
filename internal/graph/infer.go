package graph

import (
	"github.com/sessionmind/memory-mcp/internal/models"
)

// Similarity thresholds for the semantic inference tier.
const (
	VerySimilarThreshold = 0.85
	SimilarThreshold     = 0.75
)

// Inference is the outcome of inferring a relationship between two entities.
type Inference struct {
	RelationType string
	Confidence   models.Confidence
	Evidence     []string
}

// typePairs maps (from type, to type) to a relation type for the structural
// inference tier.
var typePairs = map[[2]string]string{
	{"project", "library"}: RelUses,
	{"library", "project"}: RelUsedBy,
	{"project", "service"}: RelConnectsTo,
	{"service", "project"}: RelUsedBy,
	{"service", "library"}: RelUses,
	{"project", "module"}:  RelContains,
	{"module", "project"}:  RelPartOf,
	{"library", "library"}: RelIntegratesWith,
}

// Infer decides the relationship type and confidence between two entities
// using three tiers in priority order. An explicit verb pattern in the
// source entity's observations wins with high confidence. Failing that,
// embedding similarity maps to very_similar_to (high) or similar_to
// (medium). Failing that, the entity-type pair is consulted, and the final
// fallback is related_to at low confidence.
func Infer(from, to *models.Entity, similarity float64, fromObservations []string) Inference {
	for _, obs := range fromObservations {
		if relType, ok := MatchPattern(obs, to.Name); ok {
			return Inference{
				RelationType: relType,
				Confidence:   models.ConfidenceHigh,
				Evidence:     []string{obs},
			}
		}
	}

	if similarity >= VerySimilarThreshold {
		return Inference{RelationType: RelVerySimilarTo, Confidence: models.ConfidenceHigh}
	}
	if similarity >= SimilarThreshold {
		return Inference{RelationType: RelSimilarTo, Confidence: models.ConfidenceMedium}
	}

	if relType, ok := typePairs[[2]string{from.EntityType, to.EntityType}]; ok {
		return Inference{RelationType: relType, Confidence: models.ConfidenceMedium}
	}
	if from.EntityType == "test" {
		return Inference{RelationType: RelTests, Confidence: models.ConfidenceMedium}
	}
	if to.EntityType == "test" {
		return Inference{RelationType: RelTestedBy, Confidence: models.ConfidenceMedium}
	}
	if from.EntityType == "concept" {
		return Inference{RelationType: RelAppliesTo, Confidence: models.ConfidenceMedium}
	}

	return Inference{RelationType: RelRelatedTo, Confidence: models.ConfidenceLow}
}
