package engine

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/sessionmind/memory-mcp/internal/embedding"
	"github.com/sessionmind/memory-mcp/internal/graph"
	"github.com/sessionmind/memory-mcp/internal/models"
	"github.com/sessionmind/memory-mcp/internal/storage"
)

// failingBackend always errors, simulating a dead embedding provider.
type failingBackend struct{}

func (failingBackend) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}
func (failingBackend) Dimensions() int { return 4 }

// fixedBackend returns preset vectors per text so similarity outcomes are
// controlled exactly.
type fixedBackend struct {
	vectors map[string][]float32
	def     []float32
}

func (b *fixedBackend) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := b.vectors[text]; ok {
		return vec, nil
	}
	return b.def, nil
}
func (b *fixedBackend) Dimensions() int { return 4 }

func tempStore(t *testing.T) *storage.GraphStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "memory-engine-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	meta, err := storage.OpenMeta(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })

	proj, err := meta.CreateProject("test", "")
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.OpenGraph(meta.ProjectDBPath(proj))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, backend embedding.Backend) *Engine {
	t.Helper()
	svc, err := embedding.NewService(backend, embedding.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)
	return New(tempStore(t), svc, 0)
}

func TestCreateEntityWithEmbedding(t *testing.T) {
	eng := newTestEngine(t, embedding.NewMockBackend(8))

	result, err := eng.CreateEntity(context.Background(), "session-buddy", "project", []string{"a dev tool"}, false)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if result.Degraded {
		t.Error("healthy backend should not degrade")
	}

	stored, err := eng.Store().GetEntityByName("session-buddy")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Embedding) != 8 {
		t.Errorf("stored embedding length = %d, want 8", len(stored.Embedding))
	}
}

func TestCreateEntityDegradesWithoutEmbeddings(t *testing.T) {
	eng := newTestEngine(t, failingBackend{})

	result, err := eng.CreateEntity(context.Background(), "offline-entity", "concept", []string{"still stored"}, false)
	if err != nil {
		t.Fatalf("CreateEntity should survive embedding failure: %v", err)
	}
	if !result.Degraded {
		t.Error("Degraded should be true when the backend fails")
	}

	stored, err := eng.Store().GetEntityByName("offline-entity")
	if err != nil {
		t.Fatalf("entity should be persisted anyway: %v", err)
	}
	if len(stored.Embedding) != 0 {
		t.Error("degraded entity should have no embedding")
	}
	if len(stored.Observations) != 1 {
		t.Errorf("observations = %d, want 1", len(stored.Observations))
	}
}

func TestAutoDiscoverPatternRelation(t *testing.T) {
	eng := newTestEngine(t, embedding.NewMockBackend(8))
	ctx := context.Background()

	if _, err := eng.CreateEntity(ctx, "FastMCP", "library", []string{"a tool framework"}, false); err != nil {
		t.Fatal(err)
	}

	result, err := eng.CreateEntity(ctx, "session-buddy", "project",
		[]string{"session-buddy uses FastMCP for tool registration"}, true)
	if err != nil {
		t.Fatal(err)
	}

	var found *DiscoveredRelation
	for i := range result.Discovered {
		if result.Discovered[i].To == "FastMCP" && result.Discovered[i].Method == models.DiscoveryPattern {
			found = &result.Discovered[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a pattern-discovered relation to FastMCP, got %+v", result.Discovered)
	}
	if found.RelationType != "uses" {
		t.Errorf("type = %q, want uses", found.RelationType)
	}
	if found.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", found.Confidence)
	}

	// The persisted relation carries the observation as evidence.
	from, _ := eng.Store().GetEntityByName("session-buddy")
	rels, _ := eng.Store().ListRelations(from.ID, "out")
	var rel *models.Relation
	for i := range rels {
		if rels[i].RelationType == "uses" {
			rel = &rels[i]
		}
	}
	if rel == nil {
		t.Fatal("uses relation not persisted")
	}
	if len(rel.Properties.Evidence) != 1 {
		t.Errorf("evidence = %+v, want one observation", rel.Properties.Evidence)
	}
}

func TestAutoDiscoverSemanticRelation(t *testing.T) {
	// Two entities whose embeddings are nearly identical.
	vecA := embedding.Normalize([]float32{1, 0.01, 0, 0})
	vecB := embedding.Normalize([]float32{1, 0, 0.01, 0})
	backend := &fixedBackend{
		vectors: map[string][]float32{
			"auth-service handles login": vecA,
			"auth-svc handles signin":    vecB,
		},
		def: embedding.Normalize([]float32{0, 0, 0, 1}),
	}
	eng := newTestEngine(t, backend)
	ctx := context.Background()

	if _, err := eng.CreateEntity(ctx, "auth-service", "thing", []string{"handles login"}, false); err != nil {
		t.Fatal(err)
	}

	// The engine embeds "name obs...", so register that exact composition.
	result, err := eng.CreateEntity(ctx, "auth-svc", "thing", []string{"handles signin"}, true)
	if err != nil {
		t.Fatal(err)
	}

	var found *DiscoveredRelation
	for i := range result.Discovered {
		if result.Discovered[i].To == "auth-service" {
			found = &result.Discovered[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a semantic relation to auth-service, got %+v", result.Discovered)
	}
	if found.RelationType != "very_similar_to" {
		t.Errorf("type = %q, want very_similar_to", found.RelationType)
	}
	if found.Method != models.DiscoverySemantic {
		t.Errorf("method = %q, want semantic", found.Method)
	}
	if found.Similarity < 0.85 {
		t.Errorf("similarity = %v, want >= 0.85", found.Similarity)
	}
}

func TestFindSimilarTextFallback(t *testing.T) {
	eng := newTestEngine(t, failingBackend{})
	ctx := context.Background()

	// Entities stored without vectors while degraded.
	if _, err := eng.CreateEntity(ctx, "session-buddy", "project", []string{"manages development sessions"}, false); err != nil {
		t.Fatal(err)
	}

	results, textFallback, err := eng.FindSimilar(ctx, "development sessions", 0, 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if !textFallback {
		t.Error("expected text fallback with a dead backend")
	}
	if len(results) != 1 || results[0].Name != "session-buddy" {
		t.Fatalf("results = %+v, want session-buddy", results)
	}
	if results[0].Similarity != 0.0 {
		t.Errorf("fallback similarity = %v, want 0.0", results[0].Similarity)
	}
}

func TestFindSimilarByEntityName(t *testing.T) {
	vecA := embedding.Normalize([]float32{1, 0, 0, 0})
	vecB := embedding.Normalize([]float32{1, 0.1, 0, 0})
	backend := &fixedBackend{
		vectors: map[string][]float32{
			"alpha": vecA,
			"beta":  vecB,
		},
		def: embedding.Normalize([]float32{0, 0, 1, 0}),
	}
	eng := newTestEngine(t, backend)
	ctx := context.Background()

	if _, err := eng.CreateEntity(ctx, "alpha", "concept", nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CreateEntity(ctx, "beta", "concept", nil, false); err != nil {
		t.Fatal(err)
	}

	// Querying by entity name uses the stored vector and excludes itself.
	results, textFallback, err := eng.FindSimilar(ctx, "alpha", 0.9, 10)
	if err != nil {
		t.Fatal(err)
	}
	if textFallback {
		t.Error("should not fall back when vectors exist")
	}
	if len(results) != 1 || results[0].Name != "beta" {
		t.Fatalf("results = %+v, want just beta", results)
	}
}

func TestStoreAndSearchMemoryDegraded(t *testing.T) {
	eng := newTestEngine(t, failingBackend{})
	ctx := context.Background()

	rec, degraded, err := eng.StoreMemory(ctx, "the deploy script lives in scripts/", "proj", nil, nil)
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if !degraded {
		t.Error("expected degraded storage")
	}
	if rec.ID == "" {
		t.Error("memory should be persisted anyway")
	}

	results, textFallback, err := eng.SearchMemory(ctx, "deploy script", 0, 10)
	if err != nil {
		t.Fatalf("SearchMemory: %v", err)
	}
	if !textFallback {
		t.Error("expected text fallback")
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
}

func TestAddObservationsRefreshesEmbedding(t *testing.T) {
	vec1 := embedding.Normalize([]float32{1, 0, 0, 0})
	vec2 := embedding.Normalize([]float32{0, 1, 0, 0})
	backend := &fixedBackend{
		vectors: map[string][]float32{
			"thing first":        vec1,
			"thing first second": vec2,
		},
		def: embedding.Normalize([]float32{0, 0, 0, 1}),
	}
	eng := newTestEngine(t, backend)
	ctx := context.Background()

	if _, err := eng.CreateEntity(ctx, "thing", "concept", []string{"first"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddObservations(ctx, "thing", []string{"second"}); err != nil {
		t.Fatal(err)
	}

	stored, _ := eng.Store().GetEntityByName("thing")
	if stored.Embedding[1] != vec2[1] {
		t.Errorf("embedding not refreshed: %v", stored.Embedding)
	}
}

func TestDiscoverTransitiveEndToEnd(t *testing.T) {
	eng := newTestEngine(t, embedding.NewMockBackend(8))
	ctx := context.Background()
	store := eng.Store()

	a, _ := store.CreateEntity("A", "project", nil, nil)
	b, _ := store.CreateEntity("B", "library", nil, nil)
	c, _ := store.CreateEntity("C", "library", nil, nil)

	store.CreateRelation(a.ID, b.ID, "uses", models.ConfidenceHigh, models.ManualProperties())
	store.CreateRelation(b.ID, c.ID, "extends", models.ConfidenceMedium, models.ManualProperties())

	result, err := eng.DiscoverTransitive(ctx, graph.DiscoverOptions{})
	if err != nil {
		t.Fatalf("DiscoverTransitive: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("Created = %d, want 1", result.Created)
	}

	rels, _ := store.ListRelations(a.ID, "out")
	var transitive *models.Relation
	for i := range rels {
		if rels[i].Properties.DiscoveryMethod == models.DiscoveryTransitive {
			transitive = &rels[i]
		}
	}
	if transitive == nil {
		t.Fatal("transitive relation not persisted")
	}
	if transitive.ToEntityID != c.ID || transitive.RelationType != "uses" || transitive.Confidence != models.ConfidenceMedium {
		t.Errorf("transitive relation = %+v, want A uses C at medium", transitive)
	}

	// Second run creates nothing.
	again, err := eng.DiscoverTransitive(ctx, graph.DiscoverOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Created != 0 {
		t.Errorf("second run Created = %d, want 0", again.Created)
	}
}
