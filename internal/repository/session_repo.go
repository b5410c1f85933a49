package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aulalabs/aula-api/internal/models"
)

// SessionRepository persists learning sessions and their message history.
type SessionRepository interface {
	Save(ctx context.Context, session *models.LearningSession) error
	GetByID(ctx context.Context, id string) (models.LearningSession, error)
	// AppendMessages stores new messages without rewriting the existing history.
	AppendMessages(ctx context.Context, sessionID string, messages []models.ChatMessage) error
	// HistoryForStudent returns the messages the student exchanged across all
	// sessions of one activity, oldest first. Used by the risk analyzer.
	HistoryForStudent(ctx context.Context, activityID, studentID string) ([]models.ChatMessage, error)
}

// NewSessionRepository constructs a session repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Save(ctx context.Context, session *models.LearningSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (models.LearningSession, error) {
	var session models.LearningSession
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("chat_messages.created_at ASC")
		}).
		First(&session, "id = ?", id).Error
	if err != nil {
		return models.LearningSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) AppendMessages(ctx context.Context, sessionID string, messages []models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	for i := range messages {
		messages[i].SessionID = sessionID
	}
	return r.db.WithContext(ctx).Create(&messages).Error
}

func (r *sessionRepository) HistoryForStudent(ctx context.Context, activityID, studentID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Joins("JOIN learning_sessions ON learning_sessions.id = chat_messages.session_id").
		Where("learning_sessions.activity_id = ? AND learning_sessions.student_id = ?", activityID, studentID).
		Order("chat_messages.created_at ASC").
		Find(&messages).Error
	return messages, err
}
