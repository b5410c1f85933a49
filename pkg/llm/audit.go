package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	passingGrade     = 60
	auditCodePreview = 1500
)

// ExerciseSubmission is one exercise presented to the auditor.
type ExerciseSubmission struct {
	ID         string
	Title      string
	Difficulty string
	Code       string
	Passed     bool
}

// ExerciseAudit is the per-exercise verdict inside an audit report.
type ExerciseAudit struct {
	ExerciseID string  `json:"exercise_id"`
	Title      string  `json:"title"`
	Grade      float64 `json:"grade"`
	Passed     bool    `json:"passed"`
	Feedback   string  `json:"feedback"`
}

// AuditReport is the structured grading verdict for a final submission.
// Fallback marks reports produced locally after a transport or parse failure.
type AuditReport struct {
	FinalGrade      float64         `json:"final_grade"`
	GeneralFeedback string          `json:"general_feedback"`
	Exercises       []ExerciseAudit `json:"exercises_audit"`
	Fallback        bool            `json:"fallback"`
}

// Auditor grades a set of exercises through the inference gateway. It never
// returns an error: any failure yields a deterministic zero-grade report.
type Auditor struct {
	provider Provider
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewAuditor constructs an auditor with the caller's completion budget.
func NewAuditor(provider Provider, timeout time.Duration, logger zerolog.Logger) *Auditor {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Auditor{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With().Str("component", "auditor").Logger(),
	}
}

// Audit builds one evaluation request for all exercises, calls the gateway
// once, and parses the response into a validated report.
func (a *Auditor) Audit(ctx context.Context, exercises []ExerciseSubmission) AuditReport {
	prompt := buildAuditPrompt(exercises)

	raw, err := a.provider.Complete(ctx, prompt, Options{
		Temperature: 0,
		NumPredict:  1024,
		JSONMode:    true,
		Timeout:     a.timeout,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("audit completion failed")
		return fallbackAudit("evaluation service unreachable")
	}

	report, err := parseAudit(raw)
	if err != nil {
		a.logger.Error().Err(err).Str("raw", truncate(raw, 512)).Msg("audit response unparseable")
		return fallbackAudit("evaluation response malformed")
	}

	return report
}

func buildAuditPrompt(exercises []ExerciseSubmission) string {
	var b strings.Builder
	b.WriteString("You are a senior programming instructor auditing a student's final submission.\n")
	b.WriteString("Grade every exercise from 0 to 100 and give concrete technical feedback.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- An exercise marked [EMPTY SUBMISSION / NOT ATTEMPTED] earns grade 0. Never invent working code.\n")
	b.WriteString("- Code that runs but misses cases lands between 41 and 59; correct solutions start at 60.\n")
	b.WriteString("- final_grade is the arithmetic mean of all exercise grades.\n")
	b.WriteString("- Feedback must name what is wrong and where to look, without handing over the solution.\n\n")
	b.WriteString("Exercises:\n")

	for i, ex := range exercises {
		code := strings.TrimSpace(ex.Code)
		display := truncate(code, auditCodePreview)
		if code == "" {
			display = "[EMPTY SUBMISSION / NOT ATTEMPTED]"
		}
		fmt.Fprintf(&b, "\n--- EXERCISE %d ---\nID: %s\nTitle: %s\nDifficulty: %s\nStudent code:\n%s\n", i+1, ex.ID, ex.Title, ex.Difficulty, display)
	}

	b.WriteString("\nRespond ONLY with a JSON object in exactly this shape:\n")
	b.WriteString(`{"final_grade": <0-100>, "general_feedback": "<summary>", "exercises_audit": [{"exercise_id": "<id>", "title": "<title>", "grade": <0-100>, "passed": <bool>, "feedback": "<detail>"}]}`)
	b.WriteString("\n")

	return b.String()
}

func parseAudit(raw string) (AuditReport, error) {
	sliced := extractObject(raw)
	if sliced == "" {
		return AuditReport{}, fmt.Errorf("no JSON object in response")
	}

	var payload struct {
		FinalGrade      float64 `json:"final_grade"`
		GeneralFeedback string  `json:"general_feedback"`
		ExercisesAudit  []struct {
			ExerciseID string  `json:"exercise_id"`
			Title      string  `json:"title"`
			Grade      float64 `json:"grade"`
			Passed     bool    `json:"passed"`
			Feedback   string  `json:"feedback"`
		} `json:"exercises_audit"`
	}
	if err := json.Unmarshal([]byte(sliced), &payload); err != nil {
		return AuditReport{}, fmt.Errorf("decode audit json: %w", err)
	}

	report := AuditReport{
		FinalGrade:      clampGrade(payload.FinalGrade),
		GeneralFeedback: payload.GeneralFeedback,
		Exercises:       make([]ExerciseAudit, 0, len(payload.ExercisesAudit)),
	}

	for _, item := range payload.ExercisesAudit {
		grade := clampGrade(item.Grade)
		report.Exercises = append(report.Exercises, ExerciseAudit{
			ExerciseID: item.ExerciseID,
			Title:      item.Title,
			Grade:      grade,
			// The model asserts its own boolean; the threshold rule is the
			// single source of truth here.
			Passed:   grade >= passingGrade,
			Feedback: item.Feedback,
		})
	}

	return report, nil
}

func fallbackAudit(reason string) AuditReport {
	return AuditReport{
		FinalGrade:      0,
		GeneralFeedback: fmt.Sprintf("Automated evaluation unavailable: %s", reason),
		Exercises:       []ExerciseAudit{},
		Fallback:        true,
	}
}

// Passed reports whether a grade clears the passing threshold.
func Passed(grade float64) bool {
	return grade >= passingGrade
}
