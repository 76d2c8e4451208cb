package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend generates embeddings through the OpenAI embeddings API (or
// any API-compatible endpoint via BaseURL).
type OpenAIBackend struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIBackend creates a backend for the given model. An empty model
// defaults to text-embedding-3-small at 384 dimensions so vectors stay
// interchangeable with the local backends.
func NewOpenAIBackend(apiKey, model, baseURL string, dims int) *OpenAIBackend {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if dims <= 0 {
		dims = 384
	}
	return &OpenAIBackend{
		client:     openai.NewClientWithConfig(config),
		model:      openai.EmbeddingModel(model),
		dimensions: dims,
	}
}

// Embed requests a single embedding for text.
func (b *OpenAIBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      b.model,
		Dimensions: b.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the configured vector size.
func (b *OpenAIBackend) Dimensions() int {
	return b.dimensions
}
