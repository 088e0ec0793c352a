package postgres

import (
	"context"
	"errors"

	"github.com/fellahtech/agribot/internal/models"
	"github.com/fellahtech/agribot/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContextCacheRepo interface {
	GetByUserID(ctx context.Context, userID string) (*models.ContextCache, error)
	// Upsert replaces the user's cache row whole. Last write wins; every
	// field is a recomputation from the same source of truth, so there is
	// no conflict to detect.
	Upsert(ctx context.Context, c *models.ContextCache) error
}

type contextCacheRepo struct {
	db *gorm.DB
}

func NewContextCacheRepo(db *gorm.DB) ContextCacheRepo {
	return &contextCacheRepo{db: db}
}

func (r *contextCacheRepo) GetByUserID(ctx context.Context, userID string) (*models.ContextCache, error) {
	var c models.ContextCache
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &c, err
}

func (r *contextCacheRepo) Upsert(ctx context.Context, c *models.ContextCache) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"recent_crops", "avg_soil_metrics", "crop_names",
				"preferred_region", "preferred_season", "history_digest",
				"last_updated",
			}),
		}).
		Create(c).Error
}
