package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/database"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/pkg/llm"
)

// SubjectRiskCompleted carries risk completion events for interested consumers
// (dashboards, notification fan-out).
const SubjectRiskCompleted = "aula.risk.completed"

const riskTaskBudget = 90 * time.Second

// RiskScheduler builds background tasks that analyze a graded submission and
// persist the resulting risk report. Each task opens its own database session
// so it never borrows the scheduling request's transaction.
type RiskScheduler struct {
	db       *gorm.DB
	analyzer *llm.RiskAnalyzer
	nc       *nats.Conn
	logger   zerolog.Logger
}

// NewRiskScheduler constructs a scheduler. nc may be nil when messaging is
// disabled; events are then skipped.
func NewRiskScheduler(db *gorm.DB, analyzer *llm.RiskAnalyzer, nc *nats.Conn, logger zerolog.Logger) *RiskScheduler {
	return &RiskScheduler{
		db:       db,
		analyzer: analyzer,
		nc:       nc,
		logger:   logger.With().Str("component", "risk_scheduler").Logger(),
	}
}

// TaskFor returns the pool task that analyzes one submission.
func (s *RiskScheduler) TaskFor(submissionID string) Task {
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, riskTaskBudget)
		defer cancel()
		s.run(ctx, submissionID)
	}
}

func (s *RiskScheduler) run(ctx context.Context, submissionID string) {
	logger := s.logger.With().Str("submission_id", submissionID).Logger()
	session := database.NewSession(s.db)

	submissions := repository.NewSubmissionRepository(session)
	sessions := repository.NewSessionRepository(session)
	reports := repository.NewRiskReportRepository(session)

	submission, err := submissions.GetByID(ctx, submissionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load submission for risk analysis")
		return
	}

	input := llm.RiskInput{
		StudentName:   submission.StudentID,
		ActivityTitle: submission.ActivityID,
		Code:          latestCode(submission.Attempts),
	}
	if submission.Score != nil {
		input.Grade = *submission.Score
	}

	var activity models.Activity
	if err := session.WithContext(ctx).First(&activity, "id = ?", submission.ActivityID).Error; err == nil {
		input.ActivityTitle = activity.Title
	}

	history, err := sessions.HistoryForStudent(ctx, submission.ActivityID, submission.StudentID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load chat history, analyzing without it")
	}
	input.ChatHistory = toChatTurns(history)

	analysis := s.analyzer.Analyze(ctx, input)

	evidence, _ := json.Marshal(analysis.Evidence)
	positives, _ := json.Marshal(analysis.PositiveAspects)

	report := models.RiskReport{
		SubmissionID:    submission.ID,
		Score:           analysis.Score,
		Level:           analysis.Level,
		Diagnosis:       analysis.Diagnosis,
		Evidence:        evidence,
		TeacherAdvice:   analysis.TeacherAdvice,
		PositiveAspects: positives,
		Fallback:        analysis.Fallback,
	}

	if err := reports.Replace(ctx, &report); err != nil {
		logger.Error().Err(err).Msg("failed to persist risk report")
		return
	}

	logger.Info().
		Float64("risk_score", analysis.Score).
		Str("risk_level", analysis.Level).
		Bool("fallback", analysis.Fallback).
		Msg("risk report stored")

	s.publish(logger, submission, analysis)
}

// publish emits the completion event. Delivery is best effort: a broker outage
// must not undo a stored report.
func (s *RiskScheduler) publish(logger zerolog.Logger, submission models.Submission, analysis llm.RiskReport) {
	if s.nc == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"submission_id": submission.ID,
		"activity_id":   submission.ActivityID,
		"student_id":    submission.StudentID,
		"risk_score":    analysis.Score,
		"risk_level":    analysis.Level,
		"fallback":      analysis.Fallback,
		"completed_at":  time.Now().UTC(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode risk event")
		return
	}

	if err := s.nc.Publish(SubjectRiskCompleted, payload); err != nil {
		logger.Warn().Err(err).Msg("failed to publish risk event")
	}
}

func latestCode(attempts []models.ExerciseAttempt) string {
	if len(attempts) == 0 {
		return ""
	}
	return attempts[len(attempts)-1].Code
}

func toChatTurns(messages []models.ChatMessage) []llm.ChatTurn {
	turns := make([]llm.ChatTurn, 0, len(messages))
	for _, m := range messages {
		role := "assistant"
		if m.Sender == models.SenderStudent {
			role = "user"
		}
		turns = append(turns, llm.ChatTurn{Role: role, Content: m.Content})
	}
	return turns
}
