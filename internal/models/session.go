package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session status values.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusAbandoned = "abandoned"
)

// Message senders.
const (
	SenderStudent = "student"
	SenderAITutor = "ai_tutor"
	SenderSystem  = "system"
)

// LearningSession holds the ordered, append-only tutoring conversation between
// one student and the AI tutor for one activity.
type LearningSession struct {
	ID         string        `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID  string        `gorm:"size:64;not null;index" json:"student_id"`
	ActivityID string        `gorm:"size:64;not null;index" json:"activity_id"`
	Status     string        `gorm:"size:16;not null;default:active" json:"status"`
	Messages   []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"messages"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (s *LearningSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return nil
}

// AddMessage appends a message to the conversation.
func (s *LearningSession) AddMessage(message ChatMessage) {
	s.Messages = append(s.Messages, message)
}

// Complete closes the session.
func (s *LearningSession) Complete(now time.Time) {
	s.Status = SessionStatusCompleted
	s.EndedAt = &now
}

// ChatMessage is one turn in a learning session.
type ChatMessage struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;not null;index" json:"session_id"`
	Sender    string    `gorm:"size:16;not null" json:"sender"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a fresh identifier when none was provided.
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
