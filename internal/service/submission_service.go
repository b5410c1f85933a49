package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/internal/worker"
	"github.com/aulalabs/aula-api/pkg/llm"
	"github.com/aulalabs/aula-api/pkg/sandbox"
)

// SubmissionService exposes the submission workflow: solo runs, final
// submissions, and the risk report read path.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmitSolutionRequest) (dto.SubmitSolutionResponse, error)
	RiskReport(ctx context.Context, activityID, studentID string) (dto.RiskReportResponse, error)
}

// ErrSubmissionNotFound indicates no submission exists for the pair.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrRiskReportNotReady indicates the background analysis has not completed.
var ErrRiskReportNotReady = errors.New("risk report not ready")

type submissionService struct {
	db          *gorm.DB
	submissions repository.SubmissionRepository
	exercises   repository.ExerciseRepository
	reports     repository.RiskReportRepository
	executor    sandbox.Executor
	auditor     *llm.Auditor
	pool        *worker.Pool
	risk        *worker.RiskScheduler
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewSubmissionService constructs the submission orchestrator.
func NewSubmissionService(
	db *gorm.DB,
	submissionRepo repository.SubmissionRepository,
	exerciseRepo repository.ExerciseRepository,
	reportRepo repository.RiskReportRepository,
	executor sandbox.Executor,
	auditor *llm.Auditor,
	pool *worker.Pool,
	risk *worker.RiskScheduler,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		db:          db,
		submissions: submissionRepo,
		exercises:   exerciseRepo,
		reports:     reportRepo,
		executor:    executor,
		auditor:     auditor,
		pool:        pool,
		risk:        risk,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Submit(ctx context.Context, payload dto.SubmitSolutionRequest) (dto.SubmitSolutionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitSolutionResponse{}, err
	}

	submission, err := s.findOrCreate(ctx, payload.ActivityID, payload.StudentID)
	if err != nil {
		return dto.SubmitSolutionResponse{}, err
	}

	if payload.IsFinalSubmission {
		return s.finalSubmission(ctx, &submission, payload)
	}
	return s.soloRun(ctx, &submission, payload)
}

// soloRun executes one exercise in the sandbox and records the attempt. The
// submission keeps its current status.
func (s *submissionService) soloRun(ctx context.Context, submission *models.Submission, payload dto.SubmitSolutionRequest) (dto.SubmitSolutionResponse, error) {
	result := s.executor.Execute(ctx, sandbox.Request{
		Code:      payload.Code,
		Language:  payload.Language,
		TestCases: s.exerciseTestCases(ctx, payload.ExerciseID),
	})

	submission.AddAttempt(models.ExerciseAttempt{
		ExerciseID: payload.ExerciseID,
		Code:       payload.Code,
		ExitCode:   result.ExitCode,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ExecError:  result.Error,
		Passed:     result.Success(),
	})

	if err := s.persist(ctx, submission); err != nil {
		return dto.SubmitSolutionResponse{}, err
	}

	return dto.SubmitSolutionResponse{
		Grade:  0,
		Passed: result.Success(),
		Execution: &dto.ExecutionResponse{
			Stdout:  result.Stdout,
			Stderr:  result.Stderr,
			Error:   result.Error,
			Success: result.Success(),
		},
		Details: map[string]any{
			"submission_id": submission.ID,
			"status":        submission.Status,
		},
	}, nil
}

// finalSubmission audits every supplied exercise, grades the submission, and
// schedules the background risk analysis after the transaction commits.
func (s *submissionService) finalSubmission(ctx context.Context, submission *models.Submission, payload dto.SubmitSolutionRequest) (dto.SubmitSolutionResponse, error) {
	codes := payload.AllExerciseCodes
	if len(codes) == 0 && payload.ExerciseID != "" {
		codes = map[string]string{payload.ExerciseID: payload.Code}
	}

	// Nothing to audit still grades: an empty final submission scores zero and
	// goes through the same transition, persistence, and risk scheduling.
	var report llm.AuditReport
	if len(codes) == 0 {
		report = llm.AuditReport{
			GeneralFeedback: "No exercise code was submitted.",
			Exercises:       []llm.ExerciseAudit{},
		}
	} else {
		report = s.auditor.Audit(ctx, s.auditEntries(ctx, *submission, codes))
	}

	now := time.Now()
	s.applyAudit(submission, report, codes)
	submission.MarkSubmitted(now)
	submission.Grade(report.FinalGrade, now)

	if err := s.persist(ctx, submission); err != nil {
		return dto.SubmitSolutionResponse{}, err
	}

	// Fire-and-forget: a scheduling failure never fails the submission.
	if err := s.pool.Enqueue(s.risk.TaskFor(submission.ID)); err != nil {
		s.logger.Warn().Err(err).
			Str("submission_id", submission.ID).
			Msg("failed to schedule risk analysis")
	}

	return dto.SubmitSolutionResponse{
		Grade:    int(math.Round(report.FinalGrade)),
		Feedback: report.GeneralFeedback,
		Passed:   llm.Passed(report.FinalGrade),
		Details: map[string]any{
			"submission_id":   submission.ID,
			"status":          submission.Status,
			"fallback":        report.Fallback,
			"exercises_audit": report.Exercises,
		},
	}, nil
}

// exerciseTestCases loads the exercise's stored test cases for the executor.
// A missing exercise or undecodable column means a run without them.
func (s *submissionService) exerciseTestCases(ctx context.Context, exerciseID string) []sandbox.TestCase {
	if exerciseID == "" {
		return nil
	}
	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		return nil
	}

	var stored []struct {
		InputData      string `json:"input_data"`
		ExpectedOutput string `json:"expected_output"`
	}
	if err := json.Unmarshal(exercise.TestCases, &stored); err != nil {
		return nil
	}

	cases := make([]sandbox.TestCase, 0, len(stored))
	for _, tc := range stored {
		cases = append(cases, sandbox.TestCase{Input: tc.InputData, Expected: tc.ExpectedOutput})
	}
	return cases
}

// auditEntries enriches each submitted code with exercise metadata and the
// outcome of the student's last sandbox run, when either exists.
func (s *submissionService) auditEntries(ctx context.Context, submission models.Submission, codes map[string]string) []llm.ExerciseSubmission {
	lastRun := make(map[string]bool, len(submission.Attempts))
	for _, attempt := range submission.Attempts {
		lastRun[attempt.ExerciseID] = attempt.Passed
	}

	entries := make([]llm.ExerciseSubmission, 0, len(codes))
	for exerciseID, code := range codes {
		entry := llm.ExerciseSubmission{
			ID:     exerciseID,
			Code:   code,
			Passed: lastRun[exerciseID],
		}
		if exercise, err := s.exercises.GetByID(ctx, exerciseID); err == nil {
			entry.Title = exercise.Title
			entry.Difficulty = exercise.Difficulty
		}
		entries = append(entries, entry)
	}
	return entries
}

// applyAudit appends one attempt per audited exercise. A fallback report with
// no per-exercise verdicts still records an attempt for every submitted code.
func (s *submissionService) applyAudit(submission *models.Submission, report llm.AuditReport, codes map[string]string) {
	audited := make(map[string]bool, len(report.Exercises))
	for _, audit := range report.Exercises {
		audited[audit.ExerciseID] = true
		grade := audit.Grade
		submission.AddAttempt(models.ExerciseAttempt{
			ExerciseID: audit.ExerciseID,
			Code:       codes[audit.ExerciseID],
			Passed:     audit.Passed,
			Grade:      &grade,
		})
	}

	for exerciseID, code := range codes {
		if audited[exerciseID] {
			continue
		}
		zero := 0.0
		submission.AddAttempt(models.ExerciseAttempt{
			ExerciseID: exerciseID,
			Code:       code,
			Passed:     false,
			Grade:      &zero,
		})
	}
}

func (s *submissionService) RiskReport(ctx context.Context, activityID, studentID string) (dto.RiskReportResponse, error) {
	submission, err := s.submissions.FindByActivityAndStudent(ctx, activityID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RiskReportResponse{}, ErrSubmissionNotFound
		}
		return dto.RiskReportResponse{}, err
	}

	report, err := s.reports.FindBySubmission(ctx, submission.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RiskReportResponse{}, ErrRiskReportNotReady
		}
		return dto.RiskReportResponse{}, err
	}

	return dto.NewRiskReportResponse(report), nil
}

func (s *submissionService) findOrCreate(ctx context.Context, activityID, studentID string) (models.Submission, error) {
	submission, err := s.submissions.FindByActivityAndStudent(ctx, activityID, studentID)
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}

	return models.Submission{
		ActivityID: activityID,
		StudentID:  studentID,
		Status:     models.SubmissionStatusPending,
	}, nil
}

// persist writes the aggregate and its new attempts in one transaction.
func (s *submissionService) persist(ctx context.Context, submission *models.Submission) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(submission).Error
	})
}
