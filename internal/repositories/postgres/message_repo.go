package postgres

import (
	"context"

	"github.com/fellahtech/agribot/internal/models"
	"gorm.io/gorm"
)

type MessageRepo interface {
	Insert(ctx context.Context, m *models.ChatMessage) error
	// RecentBySession returns the newest n turns in chronological
	// (oldest-first) order.
	RecentBySession(ctx context.Context, sessionID string, n int) ([]models.ChatMessage, error)
	// ListBySession pages through a session's turns oldest-first; afterSeq=0
	// starts from the beginning.
	ListBySession(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Insert(ctx context.Context, m *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepo) RecentBySession(ctx context.Context, sessionID string, n int) ([]models.ChatMessage, error) {
	if n <= 0 {
		n = 10
	}

	var rows []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, seq DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (r *messageRepo) ListBySession(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if afterSeq > 0 {
		q = q.Where("seq > ?", afterSeq)
	}

	var rows []models.ChatMessage
	err := q.Order("created_at ASC, seq ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *messageRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.ChatMessage{}).Error
}
