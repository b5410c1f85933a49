package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/repository"
	"github.com/aulalabs/aula-api/pkg/llm"
	"github.com/aulalabs/aula-api/pkg/rag"
)

// TutorService exposes the session-based AI tutoring workflow.
type TutorService interface {
	StartSession(ctx context.Context, payload dto.StartSessionRequest) (dto.SessionResponse, error)
	SendMessage(ctx context.Context, sessionID string, payload dto.SendMessageRequest) (dto.ChatMessageResponse, error)
}

// ErrSessionNotFound indicates the learning session cannot be located.
var ErrSessionNotFound = errors.New("learning session not found")

const historyCachePrefix = "aula:tutor:history:"

type tutorService struct {
	sessions  repository.SessionRepository
	exercises repository.ExerciseRepository
	retriever *rag.Service
	tutor     *rag.Tutor
	cache     *redis.Client
	cacheTTL  time.Duration
	sanitizer *bluemonday.Policy
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTutorService constructs the tutor service. cache may be nil; history is
// then always read from the database.
func NewTutorService(
	sessionRepo repository.SessionRepository,
	exerciseRepo repository.ExerciseRepository,
	retriever *rag.Service,
	tutor *rag.Tutor,
	cache *redis.Client,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger zerolog.Logger,
) TutorService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	return &tutorService{
		sessions:  sessionRepo,
		exercises: exerciseRepo,
		retriever: retriever,
		tutor:     tutor,
		cache:     cache,
		cacheTTL:  cacheTTL,
		sanitizer: bluemonday.StrictPolicy(),
		validator: validate,
		logger:    logger.With().Str("component", "tutor_service").Logger(),
	}
}

func (s *tutorService) StartSession(ctx context.Context, payload dto.StartSessionRequest) (dto.SessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionResponse{}, err
	}

	session := models.LearningSession{
		StudentID:  payload.StudentID,
		ActivityID: payload.ActivityID,
		Status:     models.SessionStatusActive,
	}
	if err := s.sessions.Save(ctx, &session); err != nil {
		return dto.SessionResponse{}, err
	}

	return dto.NewSessionResponse(session), nil
}

func (s *tutorService) SendMessage(ctx context.Context, sessionID string, payload dto.SendMessageRequest) (dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatMessageResponse{}, ErrSessionNotFound
		}
		return dto.ChatMessageResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if message == "" {
		return dto.ChatMessageResponse{}, fmt.Errorf("message is empty after sanitization")
	}

	history := s.history(ctx, session)

	// Retrieval degrades to an empty context; the tutor must answer anyway.
	retrieved, err := s.retriever.Query(ctx, session.ActivityID, message, 3)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("context retrieval failed")
		retrieved = nil
	}

	query := rag.TutorQuery{
		Query:   message,
		Context: retrieved,
		History: history,
		Code:    payload.CodeContext,
	}
	if payload.ExerciseID != "" {
		if exercise, err := s.exercises.GetByID(ctx, payload.ExerciseID); err == nil {
			query.ProblemStatement = exercise.ProblemStatement
			query.ReferenceSolution = exercise.SolutionCode
		}
	}

	reply := s.tutor.Respond(ctx, query)

	turns := []models.ChatMessage{
		{Sender: models.SenderStudent, Content: message},
		{Sender: models.SenderAITutor, Content: reply},
	}
	if err := s.sessions.AppendMessages(ctx, session.ID, turns); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	s.cacheHistory(ctx, session.ID, append(history,
		llm.ChatTurn{Role: "user", Content: message},
		llm.ChatTurn{Role: "assistant", Content: reply},
	))

	return dto.NewChatMessageResponse(turns[1]), nil
}

// history serves the recent conversation from Redis, falling back to the rows
// already loaded with the session on a miss.
func (s *tutorService) history(ctx context.Context, session models.LearningSession) []llm.ChatTurn {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, historyCachePrefix+session.ID).Bytes()
		if err == nil {
			var turns []llm.ChatTurn
			if json.Unmarshal(raw, &turns) == nil {
				return turns
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("history cache read failed")
		}
	}

	turns := make([]llm.ChatTurn, 0, len(session.Messages))
	for _, m := range session.Messages {
		role := "assistant"
		if m.Sender == models.SenderStudent {
			role = "user"
		}
		turns = append(turns, llm.ChatTurn{Role: role, Content: m.Content})
	}
	return turns
}

func (s *tutorService) cacheHistory(ctx context.Context, sessionID string, turns []llm.ChatTurn) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(turns)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, historyCachePrefix+sessionID, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("history cache write failed")
	}
}
