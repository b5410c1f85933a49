package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/models"
)

// SubmissionRepository exposes persistence helpers for the submission aggregate.
type SubmissionRepository interface {
	Save(ctx context.Context, submission *models.Submission) error
	FindByActivityAndStudent(ctx context.Context, activityID, studentID string) (models.Submission, error)
	GetByID(ctx context.Context, id string) (models.Submission, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Save(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) FindByActivityAndStudent(ctx context.Context, activityID, studentID string) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Attempts", func(db *gorm.DB) *gorm.DB {
			return db.Order("exercise_attempts.created_at ASC")
		}).
		Where("activity_id = ? AND student_id = ?", activityID, studentID).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Attempts", func(db *gorm.DB) *gorm.DB {
			return db.Order("exercise_attempts.created_at ASC")
		}).
		First(&submission, "id = ?", id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}
