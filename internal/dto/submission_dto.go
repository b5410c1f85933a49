package dto

import (
	"encoding/json"
	"time"

	"github.com/aulalabs/aula-api/internal/models"
)

// SubmitSolutionRequest represents the payload for running or submitting code.
// AllExerciseCodes is only read when IsFinalSubmission is true and maps
// exercise id to the student's code for that exercise.
type SubmitSolutionRequest struct {
	SessionID         string            `json:"session_id"`
	StudentID         string            `json:"student_id" validate:"required"`
	ActivityID        string            `json:"activity_id" validate:"required"`
	ExerciseID        string            `json:"exercise_id"`
	Code              string            `json:"code"`
	Language          string            `json:"language" validate:"required"`
	IsFinalSubmission bool              `json:"is_final_submission"`
	AllExerciseCodes  map[string]string `json:"all_exercise_codes"`
}

// ExecutionResponse mirrors the sandbox outcome for API consumers.
type ExecutionResponse struct {
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// SubmitSolutionResponse is returned for both solo runs and final submissions.
// Execution is present only for solo runs.
type SubmitSolutionResponse struct {
	Grade     int                `json:"grade"`
	Feedback  string             `json:"feedback"`
	Passed    bool               `json:"passed"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
	Details   map[string]any     `json:"details"`
}

// RiskReportResponse represents a stored risk report to API consumers.
type RiskReportResponse struct {
	SubmissionID    string    `json:"submission_id"`
	RiskScore       float64   `json:"risk_score"`
	RiskLevel       string    `json:"risk_level"`
	Diagnosis       string    `json:"diagnosis"`
	Evidence        []string  `json:"evidence"`
	TeacherAdvice   string    `json:"teacher_advice"`
	PositiveAspects []string  `json:"positive_aspects"`
	Fallback        bool      `json:"fallback"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewRiskReportResponse builds a response DTO from a model.
func NewRiskReportResponse(report models.RiskReport) RiskReportResponse {
	response := RiskReportResponse{
		SubmissionID:    report.SubmissionID,
		RiskScore:       report.Score,
		RiskLevel:       report.Level,
		Diagnosis:       report.Diagnosis,
		TeacherAdvice:   report.TeacherAdvice,
		Fallback:        report.Fallback,
		CreatedAt:       report.CreatedAt,
		Evidence:        []string{},
		PositiveAspects: []string{},
	}

	// Stored as JSON columns; a decode failure leaves the empty slice.
	_ = json.Unmarshal(report.Evidence, &response.Evidence)
	_ = json.Unmarshal(report.PositiveAspects, &response.PositiveAspects)

	return response
}
