package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/models"
)

// ExerciseRepository exposes read and create helpers for exercises.
type ExerciseRepository interface {
	GetByID(ctx context.Context, id string) (models.Exercise, error)
	ListByActivity(ctx context.Context, activityID string) ([]models.Exercise, error)
	Create(ctx context.Context, exercise *models.Exercise) error
}

// NewExerciseRepository constructs an exercise repository.
func NewExerciseRepository(db *gorm.DB) ExerciseRepository {
	return &exerciseRepository{db: db}
}

type exerciseRepository struct {
	db *gorm.DB
}

func (r *exerciseRepository) GetByID(ctx context.Context, id string) (models.Exercise, error) {
	var exercise models.Exercise
	if err := r.db.WithContext(ctx).First(&exercise, "id = ?", id).Error; err != nil {
		return models.Exercise{}, err
	}
	return exercise, nil
}

func (r *exerciseRepository) ListByActivity(ctx context.Context, activityID string) ([]models.Exercise, error) {
	var exercises []models.Exercise
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("created_at ASC").
		Find(&exercises).Error
	return exercises, err
}

func (r *exerciseRepository) Create(ctx context.Context, exercise *models.Exercise) error {
	return r.db.WithContext(ctx).Create(exercise).Error
}
