package storage

import (
	"testing"

	"github.com/sessionmind/memory-mcp/internal/embedding"
)

func TestVectorEncodeDecode(t *testing.T) {
	vec := []float32{0.0, -1.5, 3.14159, 1e-8}
	decoded := decodeVector(encodeVector(vec))
	if len(decoded) != len(vec) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], vec[i])
		}
	}

	if encodeVector(nil) != nil {
		t.Error("nil vector should encode as nil")
	}
	if decodeVector(nil) != nil {
		t.Error("nil blob should decode as nil")
	}
	if decodeVector([]byte{1, 2, 3}) != nil {
		t.Error("malformed blob should decode as nil")
	}
}

func TestFindSimilar(t *testing.T) {
	g := tempGraph(t)

	// Orthogonalish vectors with known similarities to the query.
	query := embedding.Normalize([]float32{1, 0, 0, 0})
	near := embedding.Normalize([]float32{1, 0.1, 0, 0})  // ~0.995
	mid := embedding.Normalize([]float32{1, 1, 0, 0})     // ~0.707
	far := embedding.Normalize([]float32{0, 0, 1, 0})     // 0.0

	if _, err := g.CreateEntity("near", "concept", nil, near); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateEntity("mid", "concept", nil, mid); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateEntity("far", "concept", nil, far); err != nil {
		t.Fatal(err)
	}
	// An entity with no embedding is skipped and not counted as comparable.
	mustCreateEntity(t, g, "vectorless", "concept")

	results, comparable, err := g.FindSimilar(query, 0.5, 0, "")
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if comparable != 3 {
		t.Errorf("comparable = %d, want 3", comparable)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (far is below threshold)", len(results))
	}
	if results[0].Name != "near" || results[1].Name != "mid" {
		t.Errorf("order = %s, %s; want near, mid", results[0].Name, results[1].Name)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Error("results should be ordered by similarity descending")
	}

	// Limit caps the result set.
	results, _, err = g.FindSimilar(query, 0.5, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "near" {
		t.Errorf("limited results = %+v, want just near", results)
	}

	// Exclusion drops the named entity even when it matches perfectly.
	nearEntity, _ := g.GetEntityByName("near")
	results, _, err = g.FindSimilar(query, 0.5, 0, nearEntity.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.ID == nearEntity.ID {
			t.Error("excluded entity appeared in results")
		}
	}
}

func TestFindSimilarNoComparableRows(t *testing.T) {
	g := tempGraph(t)
	mustCreateEntity(t, g, "vectorless", "concept", "some text")

	results, comparable, err := g.FindSimilar([]float32{1, 0, 0, 0}, 0.5, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if comparable != 0 {
		t.Errorf("comparable = %d, want 0", comparable)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestSearchEntitiesText(t *testing.T) {
	g := tempGraph(t)
	mustCreateEntity(t, g, "session-buddy", "project", "manages development sessions")
	mustCreateEntity(t, g, "FastMCP", "library", "a tool registration framework")
	mustCreateEntity(t, g, "unrelated", "concept", "nothing in common")

	// Match on entity name.
	results, err := g.SearchEntitiesText("FastMCP", 0)
	if err != nil {
		t.Fatalf("SearchEntitiesText: %v", err)
	}
	if len(results) != 1 || results[0].Name != "FastMCP" {
		t.Errorf("name match = %+v, want FastMCP", results)
	}
	if results[0].Similarity != 0.0 {
		t.Errorf("text result similarity = %v, want 0.0", results[0].Similarity)
	}

	// Match on observation content.
	results, err = g.SearchEntitiesText("development sessions", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "session-buddy" {
		t.Errorf("observation match = %+v, want session-buddy", results)
	}

	// Queries with FTS operators are treated as plain keywords.
	if _, err := g.SearchEntitiesText(`"quoted" AND (weird)`, 0); err != nil {
		t.Errorf("operator-laden query should not error: %v", err)
	}
}
