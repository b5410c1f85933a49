package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// GeneratedTestCase is one test case of a generated exercise.
type GeneratedTestCase struct {
	InputData      string `json:"input_data"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"is_hidden"`
}

// GeneratedExercise is one exercise produced by the generator.
type GeneratedExercise struct {
	Title            string              `json:"title"`
	ProblemStatement string              `json:"problem_statement"`
	StarterCode      string              `json:"starter_code"`
	SolutionCode     string              `json:"solution_code"`
	TestCases        []GeneratedTestCase `json:"test_cases"`
}

// GenerateRequest describes a batch of exercises to generate.
type GenerateRequest struct {
	Topic      string
	Count      int
	Difficulty string
	Language   string
	Context    string
}

// Generator produces programming exercises through the inference gateway.
// Small models are unreliable on large structured outputs, so it generates one
// exercise per call and keeps whatever it managed to parse.
type Generator struct {
	provider Provider
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewGenerator constructs a generator with the per-batch completion budget.
func NewGenerator(provider Provider, timeout time.Duration, logger zerolog.Logger) *Generator {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Generator{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With().Str("component", "exercise_generator").Logger(),
	}
}

// Generate returns up to req.Count exercises. Partial results are returned
// when a later batch fails; an error is returned only when nothing at all was
// produced.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) ([]GeneratedExercise, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("count must be positive")
	}

	exercises := make([]GeneratedExercise, 0, req.Count)

	for i := 0; i < req.Count; i++ {
		prompt := buildGeneratePrompt(req)

		raw, err := g.provider.Complete(ctx, prompt, Options{
			Temperature: 0.1,
			TopP:        0.9,
			JSONMode:    true,
			Timeout:     g.timeout,
		})
		if err != nil {
			if len(exercises) > 0 {
				g.logger.Warn().Err(err).Int("generated", len(exercises)).Msg("returning partial generation results")
				return exercises, nil
			}
			return nil, fmt.Errorf("generate exercises: %w", err)
		}

		batch, err := parseGenerated(raw)
		if err != nil {
			if len(exercises) > 0 {
				g.logger.Warn().Err(err).Int("generated", len(exercises)).Msg("returning partial generation results")
				return exercises, nil
			}
			return nil, err
		}

		exercises = append(exercises, batch...)
		if len(exercises) >= req.Count {
			return exercises[:req.Count], nil
		}
	}

	return exercises, nil
}

func buildGeneratePrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString("You are an instructional designer writing programming exercises for first-year students.\n")
	fmt.Fprintf(&b, "Generate exactly 1 exercise on the topic '%s'.\n", req.Topic)
	fmt.Fprintf(&b, "Difficulty: %s\nLanguage: %s\n\n", req.Difficulty, req.Language)
	b.WriteString("Rules:\n")
	b.WriteString("- The student does not know functions yet: starter_code must be a top-to-bottom script.\n")
	b.WriteString("- The problem statement must describe a realistic scenario with exact instructions.\n")
	b.WriteString("- Test cases use simple string inputs and the exact expected output.\n")
	b.WriteString("- solution_code is a complete working solution; it is kept private for grading.\n")
	if req.Context != "" {
		b.WriteString("- Base the exercise narrative on this course material:\n---\n")
		b.WriteString(req.Context)
		b.WriteString("\n---\n")
	}
	b.WriteString("\nRespond ONLY with a JSON object in exactly this shape:\n")
	b.WriteString(`{"exercises": [{"title": "<name>", "problem_statement": "<description>", "starter_code": "# your code here\n", "solution_code": "<working solution>", "test_cases": [{"input_data": "10", "expected_output": "20", "is_hidden": false}]}]}`)
	b.WriteString("\n")
	return b.String()
}

func parseGenerated(raw string) ([]GeneratedExercise, error) {
	sliced := extractObject(raw)
	if sliced == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var payload struct {
		Exercises []GeneratedExercise `json:"exercises"`
	}
	if err := json.Unmarshal([]byte(sliced), &payload); err != nil {
		return nil, fmt.Errorf("decode generated exercises: %w", err)
	}

	return payload.Exercises, nil
}
