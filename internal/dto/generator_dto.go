package dto

import (
	"encoding/json"

	"github.com/aulalabs/aula-api/internal/models"
)

// GenerateExercisesRequest asks for AI-drafted exercises on a topic.
type GenerateExercisesRequest struct {
	Topic      string `json:"topic" validate:"required,min=3"`
	Count      int    `json:"count" validate:"omitempty,min=1,max=10"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Language   string `json:"language"`
}

// ExerciseTestCaseResponse is one test case of a generated exercise.
type ExerciseTestCaseResponse struct {
	InputData      string `json:"input_data"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"is_hidden"`
}

// ExerciseResponse represents an exercise to API consumers.
type ExerciseResponse struct {
	ID               string                     `json:"id"`
	ActivityID       string                     `json:"activity_id"`
	Title            string                     `json:"title"`
	ProblemStatement string                     `json:"problem_statement"`
	StarterCode      string                     `json:"starter_code"`
	Difficulty       string                     `json:"difficulty"`
	Language         string                     `json:"language"`
	Status           string                     `json:"status"`
	TestCases        []ExerciseTestCaseResponse `json:"test_cases"`
}

// NewExerciseResponse builds a response DTO from a model. The reference
// solution is never exposed through the API.
func NewExerciseResponse(exercise models.Exercise) ExerciseResponse {
	response := ExerciseResponse{
		ID:               exercise.ID,
		ActivityID:       exercise.ActivityID,
		Title:            exercise.Title,
		ProblemStatement: exercise.ProblemStatement,
		StarterCode:      exercise.StarterCode,
		Difficulty:       exercise.Difficulty,
		Language:         exercise.Language,
		Status:           exercise.Status,
		TestCases:        []ExerciseTestCaseResponse{},
	}

	_ = json.Unmarshal(exercise.TestCases, &response.TestCases)

	return response
}
