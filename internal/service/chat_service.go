package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aulalabs/aula-api/pkg/rag"
)

// ChatService answers one-off questions about an activity's documents, without
// a learning session.
type ChatService interface {
	Ask(ctx context.Context, activityID, query string) (string, error)
}

type chatService struct {
	retriever *rag.Service
	tutor     *rag.Tutor
	logger    zerolog.Logger
}

// NewChatService constructs the document chat service.
func NewChatService(retriever *rag.Service, tutor *rag.Tutor, logger zerolog.Logger) ChatService {
	return &chatService{
		retriever: retriever,
		tutor:     tutor,
		logger:    logger.With().Str("component", "chat_service").Logger(),
	}
}

// Ask retrieves context for the question and answers from it. Retrieval
// failures surface to the caller: a broken index should be visible, not
// papered over with a generic reply.
func (s *chatService) Ask(ctx context.Context, activityID, query string) (string, error) {
	retrieved, err := s.retriever.Query(ctx, activityID, query, 3)
	if err != nil {
		return "", err
	}

	return s.tutor.Answer(ctx, query, retrieved), nil
}
