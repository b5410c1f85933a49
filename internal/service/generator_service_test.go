package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/pkg/llm"
	"github.com/aulalabs/aula-api/pkg/rag"
)

const draftedExerciseJSON = `{"exercises": [{` +
	`"title": "Ticket price calculator",` +
	`"problem_statement": "Read an age and print the ticket price.",` +
	`"starter_code": "# your code here\n",` +
	`"solution_code": "age = int(input())\nprint(10 if age < 18 else 20)",` +
	`"test_cases": [{"input_data": "12", "expected_output": "10", "is_hidden": false}]}]}`

func setupGeneratorService(t *testing.T, provider llm.Provider, index rag.Index) (GeneratorService, repository.ExerciseRepository) {
	t.Helper()

	db := setupServiceDB(t)
	logger := zerolog.Nop()

	exercises := repository.NewExerciseRepository(db)
	retriever := rag.NewService(rag.NewChunker(1000, 200), fixedEmbedder{}, index, "documents", logger)
	generator := llm.NewGenerator(provider, time.Second, logger)

	return NewGeneratorService(exercises, retriever, generator, validator.New(), logger), exercises
}

func TestGenerateDraftsExercises(t *testing.T) {
	provider := &queueProvider{responses: []string{draftedExerciseJSON, draftedExerciseJSON}}
	service, exercises := setupGeneratorService(t, provider, &fixedIndex{})

	responses, err := service.Generate(context.Background(), "act-1", dto.GenerateExercisesRequest{
		Topic:      "conditionals",
		Count:      2,
		Difficulty: "easy",
		Language:   "python",
	})
	require.NoError(t, err)
	require.Len(t, responses, 2)
	require.Equal(t, "Ticket price calculator", responses[0].Title)
	require.Equal(t, models.ExerciseStatusDraft, responses[0].Status)
	require.Len(t, responses[0].TestCases, 1)
	require.Equal(t, "12", responses[0].TestCases[0].InputData)

	persisted, err := exercises.ListByActivity(context.Background(), "act-1")
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	require.NotEmpty(t, persisted[0].SolutionCode)
}

func TestGenerateSurvivesRetrievalFailure(t *testing.T) {
	provider := &queueProvider{responses: []string{draftedExerciseJSON}}
	service, _ := setupGeneratorService(t, provider, &fixedIndex{queryErr: errors.New("index down")})

	responses, err := service.Generate(context.Background(), "act-1", dto.GenerateExercisesRequest{
		Topic: "loops and ranges",
	})
	require.NoError(t, err)
	require.Len(t, responses, 1)
}

func TestGenerateRejectsInvalidPayload(t *testing.T) {
	service, _ := setupGeneratorService(t, &queueProvider{}, &fixedIndex{})

	_, err := service.Generate(context.Background(), "act-1", dto.GenerateExercisesRequest{Topic: "ab"})
	require.Error(t, err)

	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
}

func TestGenerateSurfacesGeneratorFailure(t *testing.T) {
	provider := &queueProvider{err: errors.New("gateway down")}
	service, _ := setupGeneratorService(t, provider, &fixedIndex{})

	_, err := service.Generate(context.Background(), "act-1", dto.GenerateExercisesRequest{Topic: "strings"})
	require.Error(t, err)
}

func TestGenerateNeverExposesSolutionCode(t *testing.T) {
	provider := &queueProvider{responses: []string{draftedExerciseJSON}}
	service, _ := setupGeneratorService(t, provider, &fixedIndex{})

	responses, err := service.Generate(context.Background(), "act-1", dto.GenerateExercisesRequest{Topic: "conditionals"})
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.NotContains(t, responses[0].StarterCode, "print(10 if")
}
