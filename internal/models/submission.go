package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission status values. Transitions only move forward:
// pending -> submitted -> graded.
const (
	SubmissionStatusPending   = "pending"
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusGraded    = "graded"
)

// Submission aggregates one student's attempts for one activity. At most one
// row exists per (activity, student) pair.
type Submission struct {
	ID          string            `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID  string            `gorm:"size:64;not null;uniqueIndex:idx_submission_activity_student" json:"activity_id"`
	StudentID   string            `gorm:"size:64;not null;uniqueIndex:idx_submission_activity_student" json:"student_id"`
	Status      string            `gorm:"size:16;not null;default:pending" json:"status"`
	Score       *float64          `json:"score,omitempty"`
	Attempts    []ExerciseAttempt `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"attempts"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// AddAttempt appends an attempt to the aggregate. Attempts are append-only;
// nothing is ever removed or rewritten.
func (s *Submission) AddAttempt(attempt ExerciseAttempt) {
	s.Attempts = append(s.Attempts, attempt)
}

// MarkSubmitted advances a pending submission. Graded submissions stay graded.
func (s *Submission) MarkSubmitted(now time.Time) {
	if s.Status != SubmissionStatusPending {
		return
	}
	s.Status = SubmissionStatusSubmitted
	s.SubmittedAt = &now
}

// Grade records the final score and moves the submission to its terminal state.
func (s *Submission) Grade(score float64, now time.Time) {
	s.Score = &score
	s.Status = SubmissionStatusGraded
	if s.SubmittedAt == nil {
		s.SubmittedAt = &now
	}
}

// IsGraded reports whether the submission reached its terminal state.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// ExerciseAttempt records one run or audited entry for an exercise. Immutable
// once created; later audits append superseding entries instead of editing.
type ExerciseAttempt struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID string    `gorm:"type:uuid;not null;index" json:"submission_id"`
	ExerciseID   string    `gorm:"size:64;not null" json:"exercise_id"`
	Code         string    `gorm:"type:text" json:"code"`
	ExitCode     int       `json:"exit_code"`
	Stdout       string    `gorm:"type:text" json:"stdout"`
	Stderr       string    `gorm:"type:text" json:"stderr"`
	ExecError    string    `gorm:"type:text" json:"exec_error"`
	Passed       bool      `json:"passed"`
	Grade        *float64  `json:"grade,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (a *ExerciseAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
