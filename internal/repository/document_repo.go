package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/models"
)

// DocumentRepository persists activity document records.
type DocumentRepository interface {
	Save(ctx context.Context, document *models.ActivityDocument) error
	FindByActivity(ctx context.Context, activityID string) ([]models.ActivityDocument, error)
}

// NewDocumentRepository constructs a document repository.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

type documentRepository struct {
	db *gorm.DB
}

func (r *documentRepository) Save(ctx context.Context, document *models.ActivityDocument) error {
	return r.db.WithContext(ctx).Save(document).Error
}

func (r *documentRepository) FindByActivity(ctx context.Context, activityID string) ([]models.ActivityDocument, error) {
	var documents []models.ActivityDocument
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("created_at ASC").
		Find(&documents).Error
	return documents, err
}
