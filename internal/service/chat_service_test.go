package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/pkg/rag"
)

func setupChatService(t *testing.T, provider *recordingProvider, index rag.Index) ChatService {
	t.Helper()

	logger := zerolog.Nop()
	retriever := rag.NewService(rag.NewChunker(1000, 200), fixedEmbedder{}, index, "documents", logger)
	tutor := rag.NewTutor(provider, time.Second, logger)

	return NewChatService(retriever, tutor, logger)
}

func TestAskAnswersFromDocuments(t *testing.T) {
	provider := &recordingProvider{response: "A loop repeats statements."}
	service := setupChatService(t, provider, &fixedIndex{documents: []string{"loops repeat statements"}})

	answer, err := service.Ask(context.Background(), "act-1", "what is a loop?")
	require.NoError(t, err)
	require.Equal(t, "A loop repeats statements.", answer)
	require.Contains(t, provider.prompts[0], "loops repeat statements")
}

func TestAskWithoutRelevantDocuments(t *testing.T) {
	provider := &recordingProvider{response: "unused"}
	service := setupChatService(t, provider, &fixedIndex{})

	answer, err := service.Ask(context.Background(), "act-1", "what is a loop?")
	require.NoError(t, err)
	require.Equal(t, rag.NoContextMessage, answer)
	require.Empty(t, provider.prompts)
}

func TestAskSurfacesRetrievalFailure(t *testing.T) {
	provider := &recordingProvider{response: "unused"}
	service := setupChatService(t, provider, &fixedIndex{queryErr: errors.New("index down")})

	_, err := service.Ask(context.Background(), "act-1", "what is a loop?")
	require.Error(t, err)
}
