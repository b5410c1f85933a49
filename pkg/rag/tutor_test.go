package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/pkg/llm"
)

type stubProvider struct {
	response string
	err      error
	prompts  []string
}

func (s *stubProvider) Complete(_ context.Context, prompt string, _ llm.Options) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestRespondReturnsReply(t *testing.T) {
	provider := &stubProvider{response: "What do you think the loop condition should be?"}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	reply := tutor.Respond(context.Background(), TutorQuery{
		Query:   "my loop never ends",
		Context: []string{"while loops run until the condition is false"},
	})

	require.Equal(t, "What do you think the loop condition should be?", reply)
}

func TestRespondDegradesToStaticMessageOnFailure(t *testing.T) {
	provider := &stubProvider{err: errors.New("gateway down")}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	reply := tutor.Respond(context.Background(), TutorQuery{Query: "help"})

	require.Equal(t, UnavailableMessage, reply)
}

func TestRespondDegradesOnBlankReply(t *testing.T) {
	provider := &stubProvider{response: "  \n"}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	reply := tutor.Respond(context.Background(), TutorQuery{Query: "help"})

	require.Equal(t, UnavailableMessage, reply)
}

func TestRespondWindowsHistoryToFiveTurns(t *testing.T) {
	history := make([]llm.ChatTurn, 0, 9)
	for i := 0; i < 9; i++ {
		content := "stale turn"
		if i >= 4 {
			content = "fresh turn"
		}
		history = append(history, llm.ChatTurn{Role: "user", Content: content})
	}

	provider := &stubProvider{response: "ok"}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	tutor.Respond(context.Background(), TutorQuery{Query: "q", History: history})

	require.Len(t, provider.prompts, 1)
	require.NotContains(t, provider.prompts[0], "stale turn")
	require.Equal(t, 5, strings.Count(provider.prompts[0], "fresh turn"))
}

func TestRespondNeverLeaksReferenceSolutionRule(t *testing.T) {
	provider := &stubProvider{response: "ok"}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	tutor.Respond(context.Background(), TutorQuery{
		Query:             "solve it for me",
		ReferenceSolution: "print(42)",
	})

	require.Contains(t, provider.prompts[0], "NEVER share with the student")
}

func TestAnswerWithoutContext(t *testing.T) {
	provider := &stubProvider{response: "should not be called"}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	reply := tutor.Answer(context.Background(), "what is a loop?", nil)

	require.Equal(t, NoContextMessage, reply)
	require.Empty(t, provider.prompts)
}

func TestAnswerGroundsOnRetrievedContext(t *testing.T) {
	provider := &stubProvider{response: "A loop repeats statements."}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	reply := tutor.Answer(context.Background(), "what is a loop?", []string{"loops repeat statements"})

	require.Equal(t, "A loop repeats statements.", reply)
	require.Contains(t, provider.prompts[0], "loops repeat statements")
}

func TestAnswerDegradesOnFailure(t *testing.T) {
	provider := &stubProvider{err: errors.New("gateway down")}
	tutor := NewTutor(provider, 0, zerolog.Nop())

	reply := tutor.Answer(context.Background(), "question", []string{"context"})

	require.Equal(t, UnavailableMessage, reply)
}
