package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	chunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "rag",
		Name:      "chunks_indexed_total",
		Help:      "Number of document chunks embedded and indexed",
	})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "rag",
		Name:      "queries_total",
		Help:      "Number of similarity searches served",
	}, []string{"outcome"})
)

// ErrEmptyDocument indicates extraction produced no text; empty documents are
// never indexed.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// Embedder computes one vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IngestResult summarises a completed ingestion.
type IngestResult struct {
	ChunkCount   int
	EmbeddingRef string
}

// Service is the retrieval pipeline: chunk, embed, index, search. Each
// ingestion stage fails with a distinct error so callers can tell which stage
// broke.
type Service struct {
	chunker    Chunker
	embedder   Embedder
	index      Index
	collection string
	logger     zerolog.Logger
}

// NewService wires the retrieval pipeline.
func NewService(chunker Chunker, embedder Embedder, index Index, collection string, logger zerolog.Logger) *Service {
	return &Service{
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		collection: collection,
		logger:     logger.With().Str("component", "rag_service").Logger(),
	}
}

// Ingest splits, embeds, and indexes the extracted document text under the
// activity's scope.
func (s *Service) Ingest(ctx context.Context, activityID, filename, text string) (IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return IngestResult{}, ErrEmptyDocument
	}

	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return IngestResult{}, fmt.Errorf("split document: no chunks produced")
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	metadatas := make([]map[string]any, len(chunks))

	for i, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return IngestResult{}, fmt.Errorf("embed chunk %d of %q: %w", i, filename, err)
		}
		ids[i] = uuid.NewString()
		embeddings[i] = embedding
		metadatas[i] = map[string]any{
			"activity_id": activityID,
			"filename":    filename,
			"chunk_index": i,
		}
	}

	if err := s.index.Add(ctx, ids, embeddings, chunks, metadatas); err != nil {
		return IngestResult{}, fmt.Errorf("index document %q: %w", filename, err)
	}

	chunksIndexed.Add(float64(len(chunks)))
	s.logger.Info().Str("activity_id", activityID).Str("filename", filename).Int("chunks", len(chunks)).Msg("document indexed")

	return IngestResult{ChunkCount: len(chunks), EmbeddingRef: s.collection}, nil
}

// Query embeds the text and returns the top-k chunks for the activity. The
// activity filter is mandatory; chunks never leak across activities. An empty
// slice means no relevant material exists.
func (s *Service) Query(ctx context.Context, activityID, text string, k int) ([]string, error) {
	if k <= 0 {
		k = 3
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	documents, err := s.index.Query(ctx, embedding, k, map[string]any{"activity_id": activityID})
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search index: %w", err)
	}

	queriesTotal.WithLabelValues("ok").Inc()
	if documents == nil {
		documents = []string{}
	}
	return documents, nil
}
