package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/pkg/llm"
	"github.com/aulalabs/aula-api/pkg/rag"
)

// GeneratorService drafts new exercises for an activity with the AI generator.
type GeneratorService interface {
	Generate(ctx context.Context, activityID string, payload dto.GenerateExercisesRequest) ([]dto.ExerciseResponse, error)
}

type generatorService struct {
	exercises repository.ExerciseRepository
	retriever *rag.Service
	generator *llm.Generator
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGeneratorService constructs the generator service.
func NewGeneratorService(
	exerciseRepo repository.ExerciseRepository,
	retriever *rag.Service,
	generator *llm.Generator,
	validate *validator.Validate,
	logger zerolog.Logger,
) GeneratorService {
	return &generatorService{
		exercises: exerciseRepo,
		retriever: retriever,
		generator: generator,
		validator: validate,
		logger:    logger.With().Str("component", "generator_service").Logger(),
	}
}

// Generate drafts up to payload.Count exercises grounded in the activity's
// documents. Whatever the generator produced is persisted, even when later
// batches failed.
func (s *generatorService) Generate(ctx context.Context, activityID string, payload dto.GenerateExercisesRequest) ([]dto.ExerciseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	count := payload.Count
	if count <= 0 {
		count = 1
	}

	// Course context is optional grounding; the generator works without it.
	context := ""
	if retrieved, err := s.retriever.Query(ctx, activityID, payload.Topic, 3); err != nil {
		s.logger.Warn().Err(err).Str("activity_id", activityID).Msg("context retrieval failed, generating without it")
	} else {
		context = strings.Join(retrieved, "\n\n")
	}

	generated, err := s.generator.Generate(ctx, llm.GenerateRequest{
		Topic:      payload.Topic,
		Count:      count,
		Difficulty: payload.Difficulty,
		Language:   payload.Language,
		Context:    context,
	})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ExerciseResponse, 0, len(generated))
	for _, draft := range generated {
		testCases, _ := json.Marshal(draft.TestCases)

		exercise := models.Exercise{
			ActivityID:       activityID,
			Title:            draft.Title,
			ProblemStatement: draft.ProblemStatement,
			StarterCode:      draft.StarterCode,
			SolutionCode:     draft.SolutionCode,
			Difficulty:       payload.Difficulty,
			Language:         payload.Language,
			Status:           models.ExerciseStatusDraft,
			TestCases:        testCases,
		}
		if err := s.exercises.Create(ctx, &exercise); err != nil {
			return nil, err
		}
		responses = append(responses, dto.NewExerciseResponse(exercise))
	}

	s.logger.Info().
		Str("activity_id", activityID).
		Int("requested", count).
		Int("generated", len(responses)).
		Msg("exercises drafted")

	return responses, nil
}
