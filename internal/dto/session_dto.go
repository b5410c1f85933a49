package dto

import (
	"time"

	"github.com/aulalabs/aula-api/internal/models"
)

// StartSessionRequest opens a tutoring session for a student on an activity.
type StartSessionRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	ActivityID string `json:"activity_id" validate:"required"`
}

// SendMessageRequest carries one student turn to the tutor. The session id
// comes from the route.
type SendMessageRequest struct {
	Message     string `json:"message" validate:"required,min=1"`
	CodeContext string `json:"code_context"`
	ExerciseID  string `json:"exercise_id"`
}

// ChatMessageResponse represents one conversation turn to API consumers.
type ChatMessageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChatMessageResponse builds a response DTO from a model.
func NewChatMessageResponse(message models.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:        message.ID,
		Sender:    message.Sender,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
	}
}

// SessionResponse represents a learning session to API consumers.
type SessionResponse struct {
	ID         string                `json:"id"`
	StudentID  string                `json:"student_id"`
	ActivityID string                `json:"activity_id"`
	Status     string                `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	EndedAt    *time.Time            `json:"ended_at,omitempty"`
	Messages   []ChatMessageResponse `json:"messages"`
}

// NewSessionResponse builds a response DTO from a model.
func NewSessionResponse(session models.LearningSession) SessionResponse {
	messages := make([]ChatMessageResponse, 0, len(session.Messages))
	for _, message := range session.Messages {
		messages = append(messages, NewChatMessageResponse(message))
	}

	return SessionResponse{
		ID:         session.ID,
		StudentID:  session.StudentID,
		ActivityID: session.ActivityID,
		Status:     session.Status,
		StartedAt:  session.StartedAt,
		EndedAt:    session.EndedAt,
		Messages:   messages,
	}
}
