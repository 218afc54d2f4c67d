// backend/internal/play/repository.go
package play

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"quiz-story/internal/models"
)

// Repository persists play sessions in PostgreSQL.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.Named("session_repo")}
}

func (r *Repository) Create(ctx context.Context, s *models.PlaySession) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		r.logger.Error("Error creating session", zap.String("session_id", s.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.PlaySession, error) {
	var s models.PlaySession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

// Update writes s only if the stored version still equals s.Version, then
// bumps it. A lost race surfaces as models.ErrConflict.
func (r *Repository) Update(ctx context.Context, s *models.PlaySession) error {
	res := r.db.WithContext(ctx).
		Model(&models.PlaySession{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(map[string]interface{}{
			"scene_kind":        s.SceneKind,
			"scene_id":          s.SceneID,
			"status":            s.Status,
			"score":             s.Score,
			"level":             s.Level,
			"ending":            endingValue(s.Ending),
			"presented_answers": jsonIDs(s.PresentedAnswers),
			"ended_at":          s.EndedAt,
			"version":           s.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, s.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: session %s version %d", models.ErrConflict, s.ID, s.Version)
	}
	s.Version++
	return nil
}

func (r *Repository) ListByPlayer(ctx context.Context, playerID uint) ([]models.PlaySession, error) {
	var sessions []models.PlaySession
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("started_at desc").
		Find(&sessions).Error
	return sessions, err
}

func endingValue(e *models.EndingVariant) interface{} {
	if e == nil {
		return nil
	}
	return string(*e)
}

// jsonIDs encodes ids the way the serializer:json column stores them.
func jsonIDs(ids []uint) string {
	if ids == nil {
		return "null"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}
