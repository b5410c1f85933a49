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
	riskHistoryWindow = 15
	riskCodePreview   = 1000
)

// RiskInput carries the fully-hydrated context for one risk analysis run. The
// analyzer reads nothing from persistence itself.
type RiskInput struct {
	StudentName   string
	ActivityTitle string
	ChatHistory   []ChatTurn
	Code          string
	Grade         float64
}

// RiskReport is the behavioural risk assessment for one student/activity pair.
type RiskReport struct {
	Score           float64  `json:"risk_score"`
	Level           string   `json:"risk_level"`
	Diagnosis       string   `json:"diagnosis"`
	Evidence        []string `json:"evidence"`
	TeacherAdvice   string   `json:"teacher_advice"`
	PositiveAspects []string `json:"positive_aspects"`
	Fallback        bool     `json:"fallback"`
}

// RiskAnalyzer scores engagement risk through the inference gateway with the
// same never-fail discipline as the auditor.
type RiskAnalyzer struct {
	provider Provider
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewRiskAnalyzer constructs an analyzer with the caller's completion budget.
func NewRiskAnalyzer(provider Provider, timeout time.Duration, logger zerolog.Logger) *RiskAnalyzer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RiskAnalyzer{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With().Str("component", "risk_analyzer").Logger(),
	}
}

// Analyze bounds the prompt (last 15 chat turns, first 1000 code characters),
// calls the gateway once, and parses a validated report.
func (r *RiskAnalyzer) Analyze(ctx context.Context, input RiskInput) RiskReport {
	prompt := buildRiskPrompt(input)

	raw, err := r.provider.Complete(ctx, prompt, Options{
		Temperature: 0.2,
		JSONMode:    true,
		Timeout:     r.timeout,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("activity", input.ActivityTitle).Msg("risk completion failed")
		return fallbackRisk("analysis service unreachable")
	}

	report, err := parseRisk(raw)
	if err != nil {
		r.logger.Error().Err(err).Str("raw", truncate(raw, 512)).Msg("risk response unparseable")
		return fallbackRisk("analysis response malformed")
	}

	return report
}

func buildRiskPrompt(input RiskInput) string {
	history := input.ChatHistory
	if len(history) > riskHistoryWindow {
		history = history[len(history)-riskHistoryWindow:]
	}

	var chat strings.Builder
	if len(history) == 0 {
		chat.WriteString("No tutor chat interactions recorded.\n")
	}
	for _, turn := range history {
		role := "AI Tutor"
		if turn.Role == "user" || turn.Role == "student" {
			role = "Student"
		}
		fmt.Fprintf(&chat, "%s: %s\n", role, turn.Content)
	}

	var b strings.Builder
	b.WriteString("You are an educational psychologist assessing dropout and frustration risk.\n")
	fmt.Fprintf(&b, "Student: %s\nActivity: %s\nFinal grade: %.0f/100\n\n", input.StudentName, input.ActivityTitle, input.Grade)
	b.WriteString("Submitted code (truncated):\n")
	b.WriteString(truncate(input.Code, riskCodePreview))
	b.WriteString("\n\nTutor chat history:\n")
	b.WriteString(chat.String())
	b.WriteString("\nLook explicitly for: direct solution requests, signs of frustration or abandonment, and whether questions were conceptual or copy-paste.\n")
	b.WriteString("\nRespond ONLY with a JSON object in exactly this shape:\n")
	b.WriteString(`{"risk_score": <0-100>, "risk_level": "LOW"|"MEDIUM"|"HIGH"|"CRITICAL", "diagnosis": "<diagnosis referencing chat behaviour>", "evidence": ["<quote or observation>"], "teacher_advice": "<actionable advice>", "positive_aspects": ["<something good>"]}`)
	b.WriteString("\n")

	return b.String()
}

func parseRisk(raw string) (RiskReport, error) {
	sliced := extractObject(raw)
	if sliced == "" {
		return RiskReport{}, fmt.Errorf("no JSON object in response")
	}

	var payload struct {
		RiskScore       float64  `json:"risk_score"`
		RiskLevel       string   `json:"risk_level"`
		Diagnosis       string   `json:"diagnosis"`
		Evidence        []string `json:"evidence"`
		TeacherAdvice   string   `json:"teacher_advice"`
		PositiveAspects []string `json:"positive_aspects"`
	}
	if err := json.Unmarshal([]byte(sliced), &payload); err != nil {
		return RiskReport{}, fmt.Errorf("decode risk json: %w", err)
	}

	report := RiskReport{
		Score:           clampGrade(payload.RiskScore),
		Level:           normalizeRiskLevel(payload.RiskLevel),
		Diagnosis:       payload.Diagnosis,
		Evidence:        payload.Evidence,
		TeacherAdvice:   payload.TeacherAdvice,
		PositiveAspects: payload.PositiveAspects,
	}
	if report.Evidence == nil {
		report.Evidence = []string{}
	}
	if report.PositiveAspects == nil {
		report.PositiveAspects = []string{}
	}

	return report, nil
}

func normalizeRiskLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "MEDIUM":
		return "MEDIUM"
	case "HIGH":
		return "HIGH"
	case "CRITICAL":
		return "CRITICAL"
	default:
		return "LOW"
	}
}

func fallbackRisk(reason string) RiskReport {
	return RiskReport{
		Score:           0,
		Level:           "LOW",
		Diagnosis:       "Automated analysis could not be completed.",
		Evidence:        []string{fmt.Sprintf("internal error: %s", reason)},
		TeacherAdvice:   "Review the submission manually.",
		PositiveAspects: []string{},
		Fallback:        true,
	}
}
