package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// Index is the external contract of the vector store: add embedded chunks,
// query by embedding with a mandatory metadata filter.
type Index interface {
	Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []map[string]any) error
	Query(ctx context.Context, embedding []float32, n int, where map[string]any) ([]string, error)
}

// ChromaIndex talks to a Chroma server over its REST API.
type ChromaIndex struct {
	baseURL      string
	collectionID string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewChromaIndex connects to the server and resolves (or creates) the named
// collection. Connectivity failure here is fatal for the caller: the knowledge
// base must not silently degrade.
func NewChromaIndex(ctx context.Context, baseURL, collection string, logger zerolog.Logger) (*ChromaIndex, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chroma url must not be empty")
	}

	index := &ChromaIndex{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "chroma_index").Logger(),
	}

	payload := map[string]any{"name": collection, "get_or_create": true}
	var created struct {
		ID string `json:"id"`
	}
	if err := index.post(ctx, "/api/v1/collections", payload, &created); err != nil {
		return nil, fmt.Errorf("connect to chroma: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("chroma returned no collection id")
	}

	index.collectionID = created.ID
	return index, nil
}

// Add stores embedded chunks with their metadata.
func (c *ChromaIndex) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []map[string]any) error {
	payload := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}

	path := fmt.Sprintf("/api/v1/collections/%s/add", c.collectionID)
	if err := c.post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("chroma add: %w", err)
	}
	return nil
}

// Query runs a similarity search restricted by the where filter and returns
// the matching chunk texts.
func (c *ChromaIndex) Query(ctx context.Context, embedding []float32, n int, where map[string]any) ([]string, error) {
	payload := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        n,
		"where":            where,
	}

	var decoded struct {
		Documents [][]string `json:"documents"`
	}

	path := fmt.Sprintf("/api/v1/collections/%s/query", c.collectionID)
	if err := c.post(ctx, path, payload, &decoded); err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}

	if len(decoded.Documents) == 0 {
		return []string{}, nil
	}
	return decoded.Documents[0], nil
}

func (c *ChromaIndex) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
