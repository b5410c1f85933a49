package dto

import (
	"time"

	"github.com/aulalabs/aula-api/internal/models"
)

// DocumentResponse represents an ingested course document to API consumers.
type DocumentResponse struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activity_id"`
	Filename   string    `json:"filename"`
	Preview    string    `json:"preview"`
	ChunkCount int       `json:"chunk_count"`
	ArchiveURL string    `json:"archive_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDocumentResponse builds a response DTO from a model.
func NewDocumentResponse(document models.ActivityDocument) DocumentResponse {
	return DocumentResponse{
		ID:         document.ID,
		ActivityID: document.ActivityID,
		Filename:   document.Filename,
		Preview:    document.Preview,
		ChunkCount: document.ChunkCount,
		ArchiveURL: document.ArchiveURL,
		CreatedAt:  document.CreatedAt,
	}
}

// ChatRequest asks a question about the documents of one activity.
type ChatRequest struct {
	Query string `json:"query" validate:"required,min=1"`
}

// ChatResponse carries the grounded answer.
type ChatResponse struct {
	Response string `json:"response"`
}
