package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockBackend generates deterministic embeddings from a hash of the input
// text. Identical texts always produce identical vectors, distinct texts
// produce near-orthogonal ones. It is the default backend when no real
// model is configured, and the workhorse of the test suite.
type MockBackend struct {
	dimensions int
}

// NewMockBackend creates a mock backend with the given dimensionality.
// Zero or negative dims default to 384 (all-MiniLM-L6-v2 sized).
func NewMockBackend(dims int) *MockBackend {
	if dims <= 0 {
		dims = 384
	}
	return &MockBackend{dimensions: dims}
}

// Embed creates a deterministic unit vector seeded by the text's hash.
func (m *MockBackend) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimensions)
	for i := range vec {
		// LCG over the hash keeps the output stable across runs.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return Normalize(vec), nil
}

// Dimensions returns the embedding size.
func (m *MockBackend) Dimensions() int {
	return m.dimensions
}
