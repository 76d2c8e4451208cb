// Package embedding turns text into fixed-length vectors. A Service wraps a
// swappable Backend with an LRU cache and a bounded worker pool so vector
// generation never blocks request handling beyond a single cache-miss wait.
package embedding

import "context"

// Backend converts text to vector embeddings. Implementations must be safe
// for concurrent use; the Service limits concurrency to its worker pool size.
type Backend interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
