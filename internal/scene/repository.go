// backend/internal/scene/repository.go
package scene

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quiz-story/internal/models"
)

// Repository is the PostgreSQL scene store. Stories own their intro, question
// scenes, answers and endings; deletes cascade.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.Named("scene_repo")}
}

func storyErr(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: "+format, append([]interface{}{models.ErrStoryNotFound}, args...)...)
	}
	return err
}

func (r *Repository) LoadStory(ctx context.Context, storyID uint) (*models.Story, error) {
	var story models.Story
	err := r.db.WithContext(ctx).
		Preload("Intro").
		Preload("Endings").
		First(&story, storyID).Error
	if err != nil {
		return nil, storyErr(err, "id %d", storyID)
	}
	return &story, nil
}

func (r *Repository) LoadStoryByCode(ctx context.Context, code string) (*models.Story, error) {
	var story models.Story
	err := r.db.WithContext(ctx).
		Preload("Intro").
		Preload("Endings").
		Where("join_code = ?", code).
		First(&story).Error
	if err != nil {
		return nil, storyErr(err, "code %s", code)
	}
	return &story, nil
}

// LoadScenes returns the question scenes of a story, unordered, with answers
// sorted by position.
func (r *Repository) LoadScenes(ctx context.Context, storyID uint) ([]models.QuestionScene, error) {
	var scenes []models.QuestionScene
	err := r.db.WithContext(ctx).
		Where("story_id = ?", storyID).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Order("id asc").
		Find(&scenes).Error
	if err != nil {
		r.logger.Error("Error loading scenes", zap.Uint("story_id", storyID), zap.Error(err))
		return nil, err
	}
	return scenes, nil
}

func (r *Repository) LoadIntro(ctx context.Context, storyID uint) (*models.IntroScene, error) {
	var intro models.IntroScene
	err := r.db.WithContext(ctx).Where("story_id = ?", storyID).First(&intro).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: intro of story %d", models.ErrSceneNotFound, storyID)
		}
		return nil, err
	}
	return &intro, nil
}

func (r *Repository) LoadEndings(ctx context.Context, storyID uint) ([]models.EndingScene, error) {
	var endings []models.EndingScene
	err := r.db.WithContext(ctx).Where("story_id = ?", storyID).Find(&endings).Error
	if err != nil {
		return nil, err
	}
	return endings, nil
}

// ApplyReconciliation writes rec in one transaction holding the story row lock.
func (r *Repository) ApplyReconciliation(ctx context.Context, rec models.Reconciliation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var story models.Story
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&story, rec.StoryID).Error
		if err != nil {
			return storyErr(err, "id %d", rec.StoryID)
		}
		return applyReconciliation(tx, rec)
	})
}

func applyReconciliation(tx *gorm.DB, rec models.Reconciliation) error {
	// Links are cleared first so the unique index on next_scene_id never
	// sees two scenes pointing at the same target mid-relink.
	err := tx.Model(&models.QuestionScene{}).
		Where("story_id = ? AND next_scene_id IS NOT NULL", rec.StoryID).
		Update("next_scene_id", nil).Error
	if err != nil {
		return fmt.Errorf("clear links: %w", err)
	}

	if len(rec.Deletes) > 0 {
		if err := tx.Where("scene_id IN ?", rec.Deletes).Delete(&models.AnswerOption{}).Error; err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		res := tx.Where("story_id = ? AND id IN ?", rec.StoryID, rec.Deletes).Delete(&models.QuestionScene{})
		if res.Error != nil {
			return fmt.Errorf("delete scenes: %w", res.Error)
		}
		if res.RowsAffected != int64(len(rec.Deletes)) {
			return fmt.Errorf("%w: deleted %d of %d scenes", models.ErrConflict, res.RowsAffected, len(rec.Deletes))
		}
	}

	ids := make([]uint, len(rec.Scenes))
	for i := range rec.Scenes {
		s := rec.Scenes[i]
		s.StoryID = rec.StoryID
		s.NextSceneID = nil
		if s.ID == 0 {
			if err := tx.Create(&s).Error; err != nil {
				return fmt.Errorf("insert scene %d: %w", i, err)
			}
			ids[i] = s.ID
			continue
		}
		if err := updateScene(tx, s); err != nil {
			return err
		}
		ids[i] = s.ID
	}

	for i := 0; i+1 < len(ids); i++ {
		err := tx.Model(&models.QuestionScene{}).
			Where("id = ?", ids[i]).
			Update("next_scene_id", ids[i+1]).Error
		if err != nil {
			return fmt.Errorf("link scene %d -> %d: %w", ids[i], ids[i+1], err)
		}
	}
	return nil
}

// updateScene rewrites a scene and its answers in place, keeping answer ids
// stable for sessions that already show them.
func updateScene(tx *gorm.DB, s models.QuestionScene) error {
	res := tx.Model(&models.QuestionScene{}).
		Where("id = ? AND story_id = ?", s.ID, s.StoryID).
		Updates(map[string]interface{}{
			"lead_in":  s.LeadIn,
			"question": s.Question,
		})
	if res.Error != nil {
		return fmt.Errorf("update scene %d: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", models.ErrSceneNotFound, s.ID)
	}

	for _, a := range s.Answers {
		res := tx.Model(&models.AnswerOption{}).
			Where("scene_id = ? AND position = ?", s.ID, a.Position).
			Updates(map[string]interface{}{
				"text":       a.Text,
				"feedback":   a.Feedback,
				"is_correct": a.IsCorrect,
			})
		if res.Error != nil {
			return fmt.Errorf("update answer %d of scene %d: %w", a.Position, s.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			a.SceneID = s.ID
			if err := tx.Create(&a).Error; err != nil {
				return fmt.Errorf("insert answer %d of scene %d: %w", a.Position, s.ID, err)
			}
		}
	}
	return tx.Where("scene_id = ? AND position >= ?", s.ID, len(s.Answers)).
		Delete(&models.AnswerOption{}).Error
}

// CreateStory stores a story with its intro, endings and initial chain in one
// transaction.
func (r *Repository) CreateStory(ctx context.Context, story *models.Story, rec models.Reconciliation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions").Create(story).Error; err != nil {
			return err
		}
		rec.StoryID = story.ID
		return applyReconciliation(tx, rec)
	})
	if err != nil {
		r.logger.Error("Error creating story", zap.String("title", story.Title), zap.Error(err))
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", models.ErrConflict, err)
		}
		return err
	}
	r.logger.Info("Created story", zap.Uint("story_id", story.ID), zap.Int("questions", len(rec.Scenes)))
	return nil
}

// UpdateStoryDetails saves the story row, its intro text and ending texts.
func (r *Repository) UpdateStoryDetails(ctx context.Context, story *models.Story) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Story{}).
			Where("id = ?", story.ID).
			Updates(map[string]interface{}{
				"title":       story.Title,
				"description": story.Description,
				"difficulty":  story.Difficulty,
				"visibility":  story.Visibility,
				"join_code":   story.JoinCode,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id %d", models.ErrStoryNotFound, story.ID)
		}
		if story.Intro != nil {
			err := tx.Model(&models.IntroScene{}).
				Where("story_id = ?", story.ID).
				Update("text", story.Intro.Text).Error
			if err != nil {
				return err
			}
		}
		for _, e := range story.Endings {
			err := tx.Model(&models.EndingScene{}).
				Where("story_id = ? AND variant = ?", story.ID, e.Variant).
				Update("text", e.Text).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) ListStoriesByAuthor(ctx context.Context, authorID uint) ([]models.Story, error) {
	var stories []models.Story
	err := r.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("created_at desc").
		Find(&stories).Error
	return stories, err
}

func (r *Repository) ListPublicStories(ctx context.Context) ([]models.Story, error) {
	var stories []models.Story
	err := r.db.WithContext(ctx).
		Where("visibility = ?", models.VisibilityPublic).
		Order("created_at desc").
		Find(&stories).Error
	return stories, err
}

// DeleteStory removes a story and everything it owns.
func (r *Repository) DeleteStory(ctx context.Context, storyID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sceneIDs := tx.Model(&models.QuestionScene{}).Select("id").Where("story_id = ?", storyID)
		if err := tx.Where("scene_id IN (?)", sceneIDs).Delete(&models.AnswerOption{}).Error; err != nil {
			return err
		}
		for _, m := range []interface{}{&models.QuestionScene{}, &models.IntroScene{}, &models.EndingScene{}} {
			if err := tx.Where("story_id = ?", storyID).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.Story{}, storyID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id %d", models.ErrStoryNotFound, storyID)
		}
		return nil
	})
}
