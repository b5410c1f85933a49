package rag

import (
	"context"

	"github.com/aulalabs/aula-api/pkg/llm"
)

// OllamaEmbedder computes embeddings through the resolved inference endpoint
// using a fixed sentence-embedding model.
type OllamaEmbedder struct {
	client *llm.OllamaClient
	model  string
}

// NewOllamaEmbedder binds an embedding model to the shared gateway client.
func NewOllamaEmbedder(client *llm.OllamaClient, model string) *OllamaEmbedder {
	if model == "" {
		model = "all-minilm"
	}
	return &OllamaEmbedder{client: client, model: model}
}

// Embed returns the embedding vector for the text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, e.model, text)
}
