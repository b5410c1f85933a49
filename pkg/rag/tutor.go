package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aulalabs/aula-api/pkg/llm"
)

const (
	tutorHistoryWindow = 5

	// UnavailableMessage is returned when the tutor backend cannot answer. A
	// tutor timeout is never fatal for the caller.
	UnavailableMessage = "The AI tutor is temporarily unavailable. Please try again in a moment."

	// NoContextMessage is returned by document Q&A when retrieval found
	// nothing to ground an answer on.
	NoContextMessage = "I couldn't find relevant information in the course documents."
)

// TutorQuery carries everything the tutor prompt is composed from.
type TutorQuery struct {
	Query             string
	Context           []string
	History           []llm.ChatTurn
	Code              string
	ProblemStatement  string
	ReferenceSolution string
}

// Tutor composes Socratic tutoring prompts over retrieved context and calls
// the gateway. It degrades to a static message on any failure.
type Tutor struct {
	provider llm.Provider
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewTutor constructs a tutor with the caller's completion budget.
func NewTutor(provider llm.Provider, timeout time.Duration, logger zerolog.Logger) *Tutor {
	return &Tutor{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With().Str("component", "tutor").Logger(),
	}
}

// Respond generates one tutor reply for a session message.
func (t *Tutor) Respond(ctx context.Context, q TutorQuery) string {
	prompt := buildTutorPrompt(q)

	reply, err := t.provider.Complete(ctx, prompt, llm.Options{
		Temperature: 0.2,
		TopP:        0.9,
		Timeout:     t.timeout,
	})
	if err != nil {
		t.logger.Error().Err(err).Msg("tutor completion failed")
		return UnavailableMessage
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return UnavailableMessage
	}
	return reply
}

// Answer serves document Q&A without a session: the reply is grounded only in
// the retrieved context.
func (t *Tutor) Answer(ctx context.Context, query string, retrieved []string) string {
	context := strings.TrimSpace(strings.Join(retrieved, "\n\n"))
	if context == "" {
		return NoContextMessage
	}

	var b strings.Builder
	b.WriteString("Answer the question using ONLY the provided context. If the answer is not in the context, say you don't know based on the document.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:\n")

	reply, err := t.provider.Complete(ctx, b.String(), llm.Options{
		Temperature: 0.2,
		TopP:        0.9,
		Timeout:     t.timeout,
	})
	if err != nil {
		t.logger.Error().Err(err).Msg("document answer failed")
		return UnavailableMessage
	}
	return strings.TrimSpace(reply)
}

func buildTutorPrompt(q TutorQuery) string {
	history := q.History
	if len(history) > tutorHistoryWindow {
		history = history[len(history)-tutorHistoryWindow:]
	}

	var b strings.Builder
	b.WriteString("You are Turing, a university programming professor. Your goal is NOT to give answers but to make the student reason their way to the solution.\n\n")
	b.WriteString("Strict rules:\n")
	b.WriteString("1. Never write code in your reply. If asked to solve the exercise, explain that your role is to guide.\n")
	b.WriteString("2. Answer with a conceptual counter-question or point at exactly where the student should look.\n")
	b.WriteString("3. Force decisions: make the student choose between approaches.\n")
	b.WriteString("4. Ground explanations in the course material below, in your own words.\n")
	b.WriteString("5. Be direct, demanding, and encouraging.\n")

	if q.ProblemStatement != "" || q.ReferenceSolution != "" {
		b.WriteString("\nCurrent exercise:\n---\n")
		if q.ProblemStatement != "" {
			fmt.Fprintf(&b, "Problem statement:\n%s\n", q.ProblemStatement)
		}
		if q.ReferenceSolution != "" {
			fmt.Fprintf(&b, "Reference solution (NEVER share with the student):\n```\n%s\n```\n", q.ReferenceSolution)
		}
		b.WriteString("---\n")
	}

	b.WriteString("\nCourse material:\n---\n")
	b.WriteString(strings.Join(q.Context, "\n"))
	b.WriteString("\n---\n")

	if q.Code != "" {
		fmt.Fprintf(&b, "\nStudent's current code:\n```\n%s\n```\n", q.Code)
	}

	b.WriteString("\nRecent conversation:\n---\n")
	for _, turn := range history {
		role := "Tutor"
		if turn.Role == "user" || turn.Role == "student" {
			role = "Student"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, turn.Content)
	}
	b.WriteString("---\n")

	fmt.Fprintf(&b, "\nStudent's question: %s\n\nTuring:\n", q.Query)
	return b.String()
}
