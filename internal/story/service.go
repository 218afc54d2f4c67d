// backend/internal/story/service.go
package story

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"

	"quiz-story/internal/chain"
	"quiz-story/internal/models"
	"quiz-story/pkg/cache"
	"quiz-story/pkg/lock"
)

const joinCodeAttempts = 3

type Store interface {
	chain.Store
	LoadStory(ctx context.Context, storyID uint) (*models.Story, error)
	LoadStoryByCode(ctx context.Context, code string) (*models.Story, error)
	LoadIntro(ctx context.Context, storyID uint) (*models.IntroScene, error)
	LoadEndings(ctx context.Context, storyID uint) ([]models.EndingScene, error)
	CreateStory(ctx context.Context, story *models.Story, rec models.Reconciliation) error
	UpdateStoryDetails(ctx context.Context, story *models.Story) error
	ListStoriesByAuthor(ctx context.Context, authorID uint) ([]models.Story, error)
	ListPublicStories(ctx context.Context) ([]models.Story, error)
	DeleteStory(ctx context.Context, storyID uint) error
}

type Cache interface {
	SetStory(ctx context.Context, story *models.Story) error
	GetStoryByCode(ctx context.Context, code string) (*models.Story, error)
	DeleteStoryCode(ctx context.Context, code string) error
	DeleteLeaderboard(ctx context.Context, storyID uint) error
}

// Service is the authoring side: creating stories and editing their chains.
type Service struct {
	store      Store
	reconciler *chain.Reconciler
	cache      Cache
	locker     lock.Locker
	logger     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService builds the authoring service. cache may be nil.
func NewService(store Store, reconciler *chain.Reconciler, cache Cache, locker lock.Locker, src rand.Source, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		reconciler: reconciler,
		cache:      cache,
		locker:     locker,
		logger:     logger.Named("story"),
		rng:        rand.New(src),
	}
}

func validateDetails(in models.StoryDetailsInput) []models.Violation {
	var v []models.Violation
	add := func(field, rule string) {
		v = append(v, models.Violation{Position: -1, Field: field, Rule: rule})
	}
	if strings.TrimSpace(in.Title) == "" {
		add("title", "must not be empty")
	}
	if strings.TrimSpace(in.Intro) == "" {
		add("intro", "must not be empty")
	}
	for _, variant := range models.EndingVariants {
		if strings.TrimSpace(in.Endings.Text(variant)) == "" {
			add("endings."+string(variant), "must not be empty")
		}
	}
	switch in.Visibility {
	case "", models.VisibilityPublic, models.VisibilityPrivate:
	default:
		add("visibility", "must be public or private")
	}
	return v
}

func visibilityOf(in models.StoryDetailsInput) models.Visibility {
	if in.Visibility == models.VisibilityPrivate {
		return models.VisibilityPrivate
	}
	return models.VisibilityPublic
}

func (s *Service) generateJoinCode() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	s.mu.Lock()
	defer s.mu.Unlock()
	code := make([]byte, 6)
	for i := range code {
		code[i] = charset[s.rng.Intn(len(charset))]
	}
	return string(code)
}

// CreateStory validates the whole input before writing anything, then stores
// the story, its intro, endings and question chain together.
func (s *Service) CreateStory(ctx context.Context, authorID uint, in models.CreateStoryInput) (*models.Story, error) {
	violations := validateDetails(in.StoryDetailsInput)
	rec, err := chain.Plan(0, nil, in.Questions)
	if err != nil {
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		violations = append(violations, verr.Violations...)
	}
	if len(violations) > 0 {
		return nil, &models.ValidationError{Violations: violations}
	}

	for attempt := 1; ; attempt++ {
		story := newStory(authorID, in)
		if story.Visibility == models.VisibilityPrivate {
			code := s.generateJoinCode()
			story.JoinCode = &code
		}

		err := s.store.CreateStory(ctx, story, rec)
		if err == nil {
			s.cacheStory(ctx, story)
			s.logger.Info("Story created",
				zap.Uint("story_id", story.ID),
				zap.Uint("author_id", authorID),
				zap.Int("questions", len(rec.Scenes)))
			return story, nil
		}
		if !errors.Is(err, models.ErrConflict) || story.JoinCode == nil || attempt >= joinCodeAttempts {
			return nil, err
		}
		s.logger.Warn("Join code collision, retrying", zap.Int("attempt", attempt))
	}
}

func newStory(authorID uint, in models.CreateStoryInput) *models.Story {
	story := &models.Story{
		AuthorID:    authorID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Difficulty:  strings.TrimSpace(in.Difficulty),
		Visibility:  visibilityOf(in.StoryDetailsInput),
		Intro:       &models.IntroScene{Text: strings.TrimSpace(in.Intro)},
	}
	for _, variant := range models.EndingVariants {
		story.Endings = append(story.Endings, models.EndingScene{
			Variant: variant,
			Text:    strings.TrimSpace(in.Endings.Text(variant)),
		})
	}
	return story
}

func (s *Service) owned(ctx context.Context, authorID, storyID uint) (*models.Story, error) {
	story, err := s.store.LoadStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.AuthorID != authorID {
		return nil, fmt.Errorf("%w: story %d belongs to another author", models.ErrForbidden, storyID)
	}
	return story, nil
}

// Authorize fails with models.ErrForbidden unless authorID wrote the story.
func (s *Service) Authorize(ctx context.Context, authorID, storyID uint) error {
	_, err := s.owned(ctx, authorID, storyID)
	return err
}

// GetStory returns the author's view of a story, questions in chain order.
func (s *Service) GetStory(ctx context.Context, authorID, storyID uint) (*models.Story, error) {
	story, err := s.owned(ctx, authorID, storyID)
	if err != nil {
		return nil, err
	}
	c, err := chain.Load(ctx, s.store, storyID)
	if err != nil {
		if errors.Is(err, models.ErrChainCorruption) {
			chain.LogCorruption(s.logger, "Scene chain corrupted", err)
		}
		return nil, err
	}
	story.Questions = c.ToOrderedList()
	return story, nil
}

// SubmitEditedQuestions replaces the story's question list.
func (s *Service) SubmitEditedQuestions(ctx context.Context, authorID, storyID uint, edits []models.SceneEdit) ([]models.QuestionScene, error) {
	if _, err := s.owned(ctx, authorID, storyID); err != nil {
		return nil, err
	}
	c, err := s.reconciler.Reconcile(ctx, storyID, edits)
	if err != nil {
		return nil, err
	}
	return c.ToOrderedList(), nil
}

// UpdateDetails changes the story's texts and visibility. Going private
// assigns a join code, going public drops it.
func (s *Service) UpdateDetails(ctx context.Context, authorID, storyID uint, in models.StoryDetailsInput) (*models.Story, error) {
	if v := validateDetails(in); len(v) > 0 {
		return nil, &models.ValidationError{Violations: v}
	}

	unlock, err := s.locker.Lock(ctx, lock.StoryKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("lock story %d: %w", storyID, err)
	}
	defer unlock()

	story, err := s.owned(ctx, authorID, storyID)
	if err != nil {
		return nil, err
	}
	oldCode := story.JoinCode

	story.Title = strings.TrimSpace(in.Title)
	story.Description = strings.TrimSpace(in.Description)
	story.Difficulty = strings.TrimSpace(in.Difficulty)
	story.Visibility = visibilityOf(in)
	if story.Intro == nil {
		story.Intro = &models.IntroScene{StoryID: storyID}
	}
	story.Intro.Text = strings.TrimSpace(in.Intro)
	for i := range story.Endings {
		story.Endings[i].Text = strings.TrimSpace(in.Endings.Text(story.Endings[i].Variant))
	}

	switch {
	case story.Visibility == models.VisibilityPublic:
		story.JoinCode = nil
	case story.JoinCode == nil:
		code := s.generateJoinCode()
		story.JoinCode = &code
	}

	if err := s.store.UpdateStoryDetails(ctx, story); err != nil {
		return nil, err
	}
	if oldCode != nil {
		s.dropCode(ctx, *oldCode)
	}
	s.cacheStory(ctx, story)
	return story, nil
}

func (s *Service) DeleteStory(ctx context.Context, authorID, storyID uint) error {
	unlock, err := s.locker.Lock(ctx, lock.StoryKey(storyID))
	if err != nil {
		return fmt.Errorf("lock story %d: %w", storyID, err)
	}
	defer unlock()

	story, err := s.owned(ctx, authorID, storyID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteStory(ctx, storyID); err != nil {
		return err
	}
	if story.JoinCode != nil {
		s.dropCode(ctx, *story.JoinCode)
	}
	if s.cache != nil {
		if err := s.cache.DeleteLeaderboard(ctx, storyID); err != nil {
			s.logger.Warn("Failed to drop leaderboard", zap.Uint("story_id", storyID), zap.Error(err))
		}
	}
	s.logger.Info("Story deleted", zap.Uint("story_id", storyID))
	return nil
}

func (s *Service) ListMine(ctx context.Context, authorID uint) ([]models.StorySummary, error) {
	stories, err := s.store.ListStoriesByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	return summaries(stories, true), nil
}

func (s *Service) ListPublic(ctx context.Context) ([]models.StorySummary, error) {
	stories, err := s.store.ListPublicStories(ctx)
	if err != nil {
		return nil, err
	}
	return summaries(stories, false), nil
}

func summaries(stories []models.Story, withCode bool) []models.StorySummary {
	out := make([]models.StorySummary, len(stories))
	for i, st := range stories {
		out[i] = st.Summary(withCode)
	}
	return out
}

// ResolveJoinCode finds a story by join code, cache first.
func (s *Service) ResolveJoinCode(ctx context.Context, code string) (*models.Story, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if s.cache != nil {
		story, err := s.cache.GetStoryByCode(ctx, code)
		if err == nil {
			return story, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Story cache read failed", zap.String("code", code), zap.Error(err))
		}
	}

	story, err := s.store.LoadStoryByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.cacheStory(ctx, story)
	return story, nil
}

func (s *Service) cacheStory(ctx context.Context, story *models.Story) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetStory(ctx, story); err != nil {
		s.logger.Warn("Failed to cache story", zap.Uint("story_id", story.ID), zap.Error(err))
	}
}

func (s *Service) dropCode(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteStoryCode(ctx, code); err != nil {
		s.logger.Warn("Failed to drop cached story", zap.String("code", code), zap.Error(err))
	}
}
