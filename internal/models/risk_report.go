package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Risk levels reported by the analyzer.
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// RiskReport is the behavioural risk assessment computed in the background for
// a graded submission. Exactly one current row exists per submission; a new
// analysis replaces the previous one.
type RiskReport struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID    string         `gorm:"type:uuid;not null;uniqueIndex" json:"submission_id"`
	Score           float64        `gorm:"not null" json:"risk_score"`
	Level           string         `gorm:"size:16;not null" json:"risk_level"`
	Diagnosis       string         `gorm:"type:text" json:"diagnosis"`
	Evidence        datatypes.JSON `json:"evidence"`
	TeacherAdvice   string         `gorm:"type:text" json:"teacher_advice"`
	PositiveAspects datatypes.JSON `json:"positive_aspects"`
	Fallback        bool           `json:"fallback"`
	CreatedAt       time.Time      `json:"created_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (r *RiskReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
