package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/models"
)

// RiskReportRepository persists behavioural risk reports.
type RiskReportRepository interface {
	// Replace removes any existing report for the submission and stores the new
	// one in the same transaction. Last write wins, keyed by submission id.
	Replace(ctx context.Context, report *models.RiskReport) error
	FindBySubmission(ctx context.Context, submissionID string) (models.RiskReport, error)
}

// NewRiskReportRepository constructs a risk report repository.
func NewRiskReportRepository(db *gorm.DB) RiskReportRepository {
	return &riskReportRepository{db: db}
}

type riskReportRepository struct {
	db *gorm.DB
}

func (r *riskReportRepository) Replace(ctx context.Context, report *models.RiskReport) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", report.SubmissionID).
			Delete(&models.RiskReport{}).Error; err != nil {
			return err
		}
		return tx.Create(report).Error
	})
}

func (r *riskReportRepository) FindBySubmission(ctx context.Context, submissionID string) (models.RiskReport, error) {
	var report models.RiskReport
	err := r.db.WithContext(ctx).
		First(&report, "submission_id = ?", submissionID).Error
	if err != nil {
		return models.RiskReport{}, err
	}
	return report, nil
}
