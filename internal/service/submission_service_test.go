package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/internal/worker"
	"github.com/aulalabs/aula-api/pkg/llm"
	"github.com/aulalabs/aula-api/pkg/sandbox"
)

var serviceDBCounter int

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	serviceDBCounter++
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", serviceDBCounter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Activity{},
		&models.Exercise{},
		&models.Submission{},
		&models.ExerciseAttempt{},
		&models.RiskReport{},
		&models.ActivityDocument{},
		&models.LearningSession{},
		&models.ChatMessage{},
	))

	return db
}

// queueProvider serves canned responses in order and is safe for use from the
// background worker.
type queueProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
}

func (q *queueProvider) Complete(context.Context, string, llm.Options) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return "", q.err
	}
	if len(q.responses) == 0 {
		return "", errors.New("no canned response left")
	}
	response := q.responses[0]
	q.responses = q.responses[1:]
	return response, nil
}

type fakeExecutor struct {
	result   sandbox.Result
	requests []sandbox.Request
}

func (f *fakeExecutor) Execute(_ context.Context, req sandbox.Request) sandbox.Result {
	f.requests = append(f.requests, req)
	return f.result
}

type submissionFixture struct {
	db       *gorm.DB
	service  SubmissionService
	executor *fakeExecutor
	pool     *worker.Pool
}

func setupSubmissionService(t *testing.T, provider llm.Provider, result sandbox.Result) submissionFixture {
	t.Helper()

	db := setupServiceDB(t)
	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	executor := &fakeExecutor{result: result}
	auditor := llm.NewAuditor(provider, 0, logger)
	analyzer := llm.NewRiskAnalyzer(provider, 0, logger)

	pool := worker.NewPool(worker.PoolConfig{Workers: 1, QueueSize: 4, Logger: logger})
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	scheduler := worker.NewRiskScheduler(db, analyzer, nil, logger)

	svc := NewSubmissionService(
		db,
		repository.NewSubmissionRepository(db),
		repository.NewExerciseRepository(db),
		repository.NewRiskReportRepository(db),
		executor,
		auditor,
		pool,
		scheduler,
		validate,
		logger,
	)

	return submissionFixture{db: db, service: svc, executor: executor, pool: pool}
}

const auditReportJSON = `{"final_grade": 75, "general_feedback": "Good overall", "exercises_audit": [` +
	`{"exercise_id": "ex-1", "title": "Loops", "grade": 90, "passed": true, "feedback": "well done"},` +
	`{"exercise_id": "ex-2", "title": "Strings", "grade": 60, "passed": true, "feedback": "barely"}]}`

const riskReportJSON = `{"risk_score": 35, "risk_level": "MEDIUM", "diagnosis": "Some frustration",` +
	` "evidence": ["asked for hints often"], "teacher_advice": "check in", "positive_aspects": ["persistent"]}`

func TestSubmitSoloRunAppendsAttempt(t *testing.T) {
	fixture := setupSubmissionService(t, &queueProvider{}, sandbox.Result{ExitCode: 0, Stdout: "42\n"})

	response, err := fixture.service.Submit(context.Background(), dto.SubmitSolutionRequest{
		StudentID:  "stu-1",
		ActivityID: "act-1",
		ExerciseID: "ex-1",
		Code:       "print(42)",
		Language:   "python",
	})

	require.NoError(t, err)
	require.True(t, response.Passed)
	require.NotNil(t, response.Execution)
	require.Equal(t, "42\n", response.Execution.Stdout)
	require.Equal(t, 0, response.Grade)

	var submission models.Submission
	require.NoError(t, fixture.db.Preload("Attempts").First(&submission, "activity_id = ? AND student_id = ?", "act-1", "stu-1").Error)
	require.Equal(t, models.SubmissionStatusPending, submission.Status)
	require.Nil(t, submission.Score)
	require.Len(t, submission.Attempts, 1)
	require.Equal(t, "print(42)", submission.Attempts[0].Code)
	require.True(t, submission.Attempts[0].Passed)
}

func TestSubmitSoloRunForwardsExerciseTestCases(t *testing.T) {
	fixture := setupSubmissionService(t, &queueProvider{}, sandbox.Result{ExitCode: 0})

	exercise := models.Exercise{
		ID:         "ex-1",
		ActivityID: "act-1",
		Title:      "Loops",
		TestCases:  []byte(`[{"input_data": "3", "expected_output": "6", "is_hidden": false}]`),
	}
	require.NoError(t, fixture.db.Create(&exercise).Error)

	_, err := fixture.service.Submit(context.Background(), dto.SubmitSolutionRequest{
		StudentID:  "stu-1",
		ActivityID: "act-1",
		ExerciseID: "ex-1",
		Code:       "print(int(input()) * 2)",
		Language:   "python",
	})

	require.NoError(t, err)
	require.Len(t, fixture.executor.requests, 1)
	require.Equal(t, []sandbox.TestCase{{Input: "3", Expected: "6"}}, fixture.executor.requests[0].TestCases)
}

func TestSubmitSoloRunsAccumulate(t *testing.T) {
	fixture := setupSubmissionService(t, &queueProvider{}, sandbox.Result{ExitCode: 1, Stderr: "NameError"})

	for i := 0; i < 3; i++ {
		_, err := fixture.service.Submit(context.Background(), dto.SubmitSolutionRequest{
			StudentID:  "stu-1",
			ActivityID: "act-1",
			ExerciseID: "ex-1",
			Code:       "broken",
			Language:   "python",
		})
		require.NoError(t, err)
	}

	var submission models.Submission
	require.NoError(t, fixture.db.Preload("Attempts").First(&submission, "activity_id = ?", "act-1").Error)
	require.Len(t, submission.Attempts, 3)
}

func TestSubmitFinalGradesAndSchedulesRiskAnalysis(t *testing.T) {
	provider := &queueProvider{responses: []string{auditReportJSON, riskReportJSON}}
	fixture := setupSubmissionService(t, provider, sandbox.Result{})

	response, err := fixture.service.Submit(context.Background(), dto.SubmitSolutionRequest{
		StudentID:         "stu-1",
		ActivityID:        "act-1",
		Language:          "python",
		IsFinalSubmission: true,
		AllExerciseCodes: map[string]string{
			"ex-1": "print('loops')",
			"ex-2": "print('strings')",
		},
	})

	require.NoError(t, err)
	require.Equal(t, 75, response.Grade)
	require.True(t, response.Passed)
	require.Equal(t, "Good overall", response.Feedback)
	require.Nil(t, response.Execution)

	var submission models.Submission
	require.NoError(t, fixture.db.Preload("Attempts").First(&submission, "activity_id = ?", "act-1").Error)
	require.Equal(t, models.SubmissionStatusGraded, submission.Status)
	require.NotNil(t, submission.Score)
	require.Equal(t, 75.0, *submission.Score)
	require.NotNil(t, submission.SubmittedAt)
	require.Len(t, submission.Attempts, 2)
	for _, attempt := range submission.Attempts {
		require.NotNil(t, attempt.Grade)
	}

	// Drain the pool so the background analysis has definitely finished.
	require.NoError(t, fixture.pool.Shutdown(context.Background()))

	var report models.RiskReport
	require.NoError(t, fixture.db.First(&report, "submission_id = ?", submission.ID).Error)
	require.Equal(t, 35.0, report.Score)
	require.Equal(t, models.RiskLevelMedium, report.Level)
	require.False(t, report.Fallback)
}

func TestSubmitFinalFallsBackWhenAuditorUnreachable(t *testing.T) {
	provider := &queueProvider{err: errors.New("all endpoints down")}
	fixture := setupSubmissionService(t, provider, sandbox.Result{})

	response, err := fixture.service.Submit(context.Background(), dto.SubmitSolutionRequest{
		StudentID:         "stu-1",
		ActivityID:        "act-1",
		ExerciseID:        "ex-1",
		Code:              "print(1)",
		Language:          "python",
		IsFinalSubmission: true,
	})

	require.NoError(t, err)
	require.Equal(t, 0, response.Grade)
	require.False(t, response.Passed)
	require.Contains(t, response.Feedback, "Automated evaluation unavailable")
	require.Equal(t, true, response.Details["fallback"])

	var submission models.Submission
	require.NoError(t, fixture.db.Preload("Attempts").First(&submission, "activity_id = ?", "act-1").Error)
	// Degraded grading still reaches the terminal state with a zero grade.
	require.Equal(t, models.SubmissionStatusGraded, submission.Status)
	require.Len(t, submission.Attempts, 1)
	require.NotNil(t, submission.Attempts[0].Grade)
	require.Equal(t, 0.0, *submission.Attempts[0].Grade)
}

func TestSubmitFinalWithoutCodeGradesZero(t *testing.T) {
	// Only the background risk analysis talks to the provider: with nothing to
	// audit the grading call is skipped entirely.
	provider := &queueProvider{responses: []string{riskReportJSON}}
	fixture := setupSubmissionService(t, provider, sandbox.Result{})

	response, err := fixture.service.Submit(context.Background(), dto.SubmitSolutionRequest{
		StudentID:         "stu-1",
		ActivityID:        "act-1",
		Language:          "python",
		IsFinalSubmission: true,
	})

	require.NoError(t, err)
	require.Equal(t, 0, response.Grade)
	require.False(t, response.Passed)
	require.Equal(t, "No exercise code was submitted.", response.Feedback)

	var submission models.Submission
	require.NoError(t, fixture.db.Preload("Attempts").First(&submission, "activity_id = ?", "act-1").Error)
	require.Equal(t, models.SubmissionStatusGraded, submission.Status)
	require.NotNil(t, submission.Score)
	require.Equal(t, 0.0, *submission.Score)
	require.Empty(t, submission.Attempts)

	require.NoError(t, fixture.pool.Shutdown(context.Background()))

	var report models.RiskReport
	require.NoError(t, fixture.db.First(&report, "submission_id = ?", submission.ID).Error)
	require.Equal(t, 35.0, report.Score)
}

func TestSubmitValidatesPayload(t *testing.T) {
	fixture := setupSubmissionService(t, &queueProvider{}, sandbox.Result{})

	_, err := fixture.service.Submit(context.Background(), dto.SubmitSolutionRequest{Code: "x"})

	require.Error(t, err)
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))
}

func TestRiskReportReadPath(t *testing.T) {
	fixture := setupSubmissionService(t, &queueProvider{}, sandbox.Result{})
	ctx := context.Background()

	_, err := fixture.service.RiskReport(ctx, "act-1", "stu-1")
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = fixture.service.Submit(ctx, dto.SubmitSolutionRequest{
		StudentID:  "stu-1",
		ActivityID: "act-1",
		ExerciseID: "ex-1",
		Code:       "print(1)",
		Language:   "python",
	})
	require.NoError(t, err)

	// Submission exists, analysis has not run.
	_, err = fixture.service.RiskReport(ctx, "act-1", "stu-1")
	require.ErrorIs(t, err, ErrRiskReportNotReady)

	var submission models.Submission
	require.NoError(t, fixture.db.First(&submission, "activity_id = ?", "act-1").Error)
	require.NoError(t, repository.NewRiskReportRepository(fixture.db).Replace(ctx, &models.RiskReport{
		SubmissionID:    submission.ID,
		Score:           55,
		Level:           models.RiskLevelMedium,
		Diagnosis:       "needs attention",
		Evidence:        []byte(`["evidence item"]`),
		PositiveAspects: []byte(`[]`),
	}))

	report, err := fixture.service.RiskReport(ctx, "act-1", "stu-1")
	require.NoError(t, err)
	require.Equal(t, 55.0, report.RiskScore)
	require.Equal(t, []string{"evidence item"}, report.Evidence)
}
