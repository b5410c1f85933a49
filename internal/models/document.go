package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityDocument is the relational record for an ingested course document.
// The chunked content lives in the vector index; this row keeps a preview and
// a pointer to where the embeddings were stored.
type ActivityDocument struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID   string    `gorm:"size:64;not null;index" json:"activity_id"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	Preview      string    `gorm:"type:text" json:"preview"`
	EmbeddingRef string    `gorm:"size:128" json:"embedding_ref"`
	ArchiveURL   string    `gorm:"size:512" json:"archive_url"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (d *ActivityDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
