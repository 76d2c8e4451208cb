package storage

import (
	"testing"

	"github.com/sessionmind/memory-mcp/internal/embedding"
)

func TestStoreAndSearchMemories(t *testing.T) {
	g := tempGraph(t)

	query := embedding.Normalize([]float32{1, 0, 0, 0})
	close1 := embedding.Normalize([]float32{1, 0.05, 0, 0})
	distant := embedding.Normalize([]float32{0, 1, 0, 0})

	rec, err := g.StoreMemory("prefers table-driven tests", "proj", []string{"testing"}, map[string]string{"source": "review"}, close1)
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt == "" {
		t.Error("stored memory should have ID and timestamp")
	}
	if _, err := g.StoreMemory("likes neovim", "proj", nil, nil, distant); err != nil {
		t.Fatal(err)
	}

	results, comparable, err := g.SearchMemories(query, 0.7, 10)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if comparable != 2 {
		t.Errorf("comparable = %d, want 2", comparable)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Content != "prefers table-driven tests" {
		t.Errorf("top result = %q", results[0].Content)
	}
	if len(results[0].Tags) != 1 || results[0].Tags[0] != "testing" {
		t.Errorf("tags = %+v, want [testing]", results[0].Tags)
	}
	if results[0].Metadata["source"] != "review" {
		t.Errorf("metadata = %+v", results[0].Metadata)
	}
}

func TestSearchMemoriesNoVectors(t *testing.T) {
	g := tempGraph(t)

	// Stored while the embedding service was degraded.
	if _, err := g.StoreMemory("vectorless note", "proj", nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	_, comparable, err := g.SearchMemories([]float32{1, 0}, 0.5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if comparable != 0 {
		t.Errorf("comparable = %d, want 0 (caller should fall back to text search)", comparable)
	}
}

func TestSearchMemoriesText(t *testing.T) {
	g := tempGraph(t)

	g.StoreMemory("the deploy script lives in scripts/release.sh", "proj", nil, nil, nil)
	g.StoreMemory("retro notes from sprint 12", "proj", nil, nil, nil)

	results, err := g.SearchMemoriesText("deploy script", 10)
	if err != nil {
		t.Fatalf("SearchMemoriesText: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Similarity != 0.0 {
		t.Errorf("text result similarity = %v, want 0.0", results[0].Similarity)
	}

	results, err = g.SearchMemoriesText("nothing matches this", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}
