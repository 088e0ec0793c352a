package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/fellahtech/agribot/internal/models"
	"github.com/fellahtech/agribot/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionRepository interface {
	Create(ctx context.Context, s *models.ChatSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.ChatSession, error)
	// FindActiveByUser returns the newest active session for the user, or
	// utils.ErrNotFound when none exists.
	FindActiveByUser(ctx context.Context, userID string) (*models.ChatSession, error)
	// ListByUser returns sessions newest-first, optionally only those
	// started before the given instant (cursor pagination).
	ListByUser(ctx context.Context, userID string, limit int, before *time.Time) ([]models.ChatSession, error)
	Close(ctx context.Context, sessionID string, endedAt time.Time, summary string) error
	Delete(ctx context.Context, sessionID string) error
	// RecordActivity bumps the message counter and last-activity marker.
	RecordActivity(ctx context.Context, sessionID string, delta int64, at time.Time) error
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("chat_sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.ChatSession) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) FindActiveByUser(ctx context.Context, userID string) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.col.FindOne(ctx,
		bson.M{"user_id": userID, "status": models.SessionStatusActive},
		options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}}),
	).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string, limit int, before *time.Time) ([]models.ChatSession, error) {
	if limit <= 0 {
		limit = 20
	}

	filter := bson.M{"user_id": userID}
	if before != nil {
		filter["started_at"] = bson.M{"$lt": before.UTC()}
	}

	cur, err := r.col.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "started_at", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ChatSession
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) Close(ctx context.Context, sessionID string, endedAt time.Time, summary string) error {
	set := bson.M{
		"status":   models.SessionStatusClosed,
		"ended_at": endedAt.UTC(),
	}
	if summary != "" {
		set["summary"] = summary
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"session_id": sessionID}, bson.M{"$set": set})
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"session_id": sessionID})
	return err
}

func (r *sessionRepo) RecordActivity(ctx context.Context, sessionID string, delta int64, at time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{
			"$inc": bson.M{"total_messages": delta},
			"$set": bson.M{"last_message_at": at.UTC()},
		},
	)
	return err
}
