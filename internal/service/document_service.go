package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/pkg/pdfext"
	"github.com/aulalabs/aula-api/pkg/rag"
)

// DocumentService ingests course documents into the retrieval pipeline.
type DocumentService interface {
	Upload(ctx context.Context, activityID, filename string, data []byte) (dto.DocumentResponse, error)
	List(ctx context.Context, activityID string) ([]dto.DocumentResponse, error)
}

// ErrUnsupportedDocument indicates the upload is not a PDF.
var ErrUnsupportedDocument = errors.New("only PDF documents are supported")

// ErrEmptyDocument indicates the PDF contained no extractable text.
var ErrEmptyDocument = errors.New("document contains no extractable text")

const previewLimit = 5000

// FileUploader archives the raw document bytes in external storage.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

type documentService struct {
	documents repository.DocumentRepository
	retriever *rag.Service
	uploader  FileUploader
	logger    zerolog.Logger
}

// NewDocumentService constructs the document service. uploader may be nil when
// archival is not configured.
func NewDocumentService(documentRepo repository.DocumentRepository, retriever *rag.Service, uploader FileUploader, logger zerolog.Logger) DocumentService {
	return &documentService{
		documents: documentRepo,
		retriever: retriever,
		uploader:  uploader,
		logger:    logger.With().Str("component", "document_service").Logger(),
	}
}

// Upload validates, extracts, archives, and indexes one document. Every stage
// except archival surfaces its own error: silently skipping a broken document
// would corrupt the knowledge base.
func (s *documentService) Upload(ctx context.Context, activityID, filename string, data []byte) (dto.DocumentResponse, error) {
	if !mimetype.Detect(data).Is("application/pdf") {
		return dto.DocumentResponse{}, ErrUnsupportedDocument
	}

	text, err := pdfext.Extract(data)
	if err != nil {
		if errors.Is(err, pdfext.ErrNoText) {
			return dto.DocumentResponse{}, ErrEmptyDocument
		}
		return dto.DocumentResponse{}, fmt.Errorf("failed to extract document text: %w", err)
	}

	// Archival is best effort: losing the raw file copy must not block ingestion.
	archiveURL := ""
	if s.uploader != nil {
		archiveURL, err = s.uploader.Upload(ctx, filename, bytes.NewReader(data))
		if err != nil {
			s.logger.Warn().Err(err).Str("filename", filename).Msg("document archival failed")
			archiveURL = ""
		}
	}

	result, err := s.retriever.Ingest(ctx, activityID, filename, text)
	if err != nil {
		return dto.DocumentResponse{}, fmt.Errorf("failed to index document: %w", err)
	}

	document := models.ActivityDocument{
		ActivityID:   activityID,
		Filename:     filename,
		Preview:      preview(text),
		EmbeddingRef: result.EmbeddingRef,
		ArchiveURL:   archiveURL,
		ChunkCount:   result.ChunkCount,
	}
	if err := s.documents.Save(ctx, &document); err != nil {
		return dto.DocumentResponse{}, err
	}

	s.logger.Info().
		Str("activity_id", activityID).
		Str("filename", filename).
		Int("chunks", result.ChunkCount).
		Msg("document ingested")

	return dto.NewDocumentResponse(document), nil
}

func (s *documentService) List(ctx context.Context, activityID string) ([]dto.DocumentResponse, error) {
	documents, err := s.documents.FindByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.DocumentResponse, 0, len(documents))
	for _, document := range documents {
		responses = append(responses, dto.NewDocumentResponse(document))
	}
	return responses, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit])
}
