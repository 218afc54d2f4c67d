// backend/internal/play/service.go
package play

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-story/internal/chain"
	"quiz-story/internal/difficulty"
	"quiz-story/internal/ending"
	"quiz-story/internal/models"
	"quiz-story/pkg/lock"
)

type SceneStore interface {
	chain.Loader
	LoadStory(ctx context.Context, storyID uint) (*models.Story, error)
	LoadIntro(ctx context.Context, storyID uint) (*models.IntroScene, error)
	LoadEndings(ctx context.Context, storyID uint) ([]models.EndingScene, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *models.PlaySession) error
	Get(ctx context.Context, id string) (*models.PlaySession, error)
	Update(ctx context.Context, s *models.PlaySession) error
	ListByPlayer(ctx context.Context, playerID uint) ([]models.PlaySession, error)
}

// Scoreboard keeps each player's best finishing score per story.
type Scoreboard interface {
	RecordScore(ctx context.Context, storyID, playerID uint, score int) error
	Leaderboard(ctx context.Context, storyID uint, limit int64) ([]models.LeaderboardEntry, error)
}

// Notifier pushes events to websocket rooms.
type Notifier interface {
	BroadcastMessage(room string, messageType string, data interface{})
}

// StoryRoom is the websocket room of a story's live play events.
func StoryRoom(storyID uint) string {
	return fmt.Sprintf("story:%d", storyID)
}

type Service struct {
	scenes     SceneStore
	sessions   SessionStore
	locker     lock.Locker
	selector   *ending.Selector
	presenter  *difficulty.Presenter
	scoreboard Scoreboard
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires the play state machine. scoreboard and notifier may be nil.
func NewService(
	scenes SceneStore,
	sessions SessionStore,
	locker lock.Locker,
	selector *ending.Selector,
	presenter *difficulty.Presenter,
	scoreboard Scoreboard,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		scenes:     scenes,
		sessions:   sessions,
		locker:     locker,
		selector:   selector,
		presenter:  presenter,
		scoreboard: scoreboard,
		notifier:   notifier,
		logger:     logger.Named("play"),
		now:        time.Now,
	}
}

// StartSession begins a playthrough of a public story, or of the caller's
// own private story.
func (s *Service) StartSession(ctx context.Context, storyID, playerID uint) (*models.PlaySession, *models.SceneRef, error) {
	story, err := s.scenes.LoadStory(ctx, storyID)
	if err != nil {
		return nil, nil, err
	}
	if !story.IsPublic() && story.AuthorID != playerID {
		return nil, nil, fmt.Errorf("%w: id %d", models.ErrStoryNotFound, storyID)
	}
	return s.start(ctx, story, playerID)
}

// StartJoinedSession begins a playthrough of a story the player reached
// through its join code, whatever its visibility.
func (s *Service) StartJoinedSession(ctx context.Context, story *models.Story, playerID uint) (*models.PlaySession, *models.SceneRef, error) {
	return s.start(ctx, story, playerID)
}

func (s *Service) start(ctx context.Context, story *models.Story, playerID uint) (*models.PlaySession, *models.SceneRef, error) {
	c, err := s.loadChain(ctx, story.ID)
	if err != nil {
		return nil, nil, err
	}
	if story.Intro == nil {
		intro, err := s.scenes.LoadIntro(ctx, story.ID)
		if err != nil {
			return nil, nil, err
		}
		story.Intro = intro
	}

	sess := newSession(uuid.NewString(), story, c.Len(), playerID, s.now())
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, nil, err
	}

	s.logger.Info("Session started",
		zap.String("session_id", sess.ID),
		zap.Uint("story_id", story.ID),
		zap.Uint("player_id", playerID),
		zap.Int("max_score", sess.MaxScore))
	s.notify(story.ID, "session_started", map[string]interface{}{
		"session_id": sess.ID,
		"player_id":  playerID,
	})

	return sess, sess.CurrentScene(), nil
}

// Advance moves a session from the intro to the first question.
func (s *Service) Advance(ctx context.Context, sessionID string, playerID uint) (*models.SceneRef, error) {
	var ref models.SceneRef
	_, err := s.mutate(ctx, sessionID, playerID, func(sess *models.PlaySession) error {
		c, err := s.loadChain(ctx, sess.StoryID)
		if err != nil {
			return err
		}
		ref, err = advance(sess, c, s.presenter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// SubmitAnswer scores the chosen answer of the current question. Only the
// answer id comes from the caller; score and level are the session's own.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID string, playerID uint, answerID uint) (*models.AnswerResult, error) {
	var res models.AnswerResult
	sess, err := s.mutate(ctx, sessionID, playerID, func(sess *models.PlaySession) error {
		c, err := s.loadChain(ctx, sess.StoryID)
		if err != nil {
			return err
		}
		endings, err := s.scenes.LoadEndings(ctx, sess.StoryID)
		if err != nil {
			return err
		}
		res, err = answer(sess, c, endings, s.selector, s.presenter, answerID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(sess.StoryID, "answer_submitted", map[string]interface{}{
		"session_id": sess.ID,
		"player_id":  playerID,
		"correct":    res.Correct,
		"score":      res.Score,
		"level":      res.Level,
	})
	if sess.Finished() {
		s.finish(ctx, sess)
	}
	return &res, nil
}

func (s *Service) finish(ctx context.Context, sess *models.PlaySession) {
	s.logger.Info("Session finished",
		zap.String("session_id", sess.ID),
		zap.Uint("story_id", sess.StoryID),
		zap.String("status", string(sess.Status)),
		zap.Int("score", sess.Score),
		zap.Int("max_score", sess.MaxScore))

	if s.scoreboard != nil {
		if err := s.scoreboard.RecordScore(ctx, sess.StoryID, sess.PlayerID, sess.Score); err != nil {
			s.logger.Warn("Failed to record score", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	s.notify(sess.StoryID, "session_finished", sess.View())
}

// endStranded finishes a session whose current question was deleted by a
// reconcile.
func (s *Service) endStranded(ctx context.Context, sessionID string, playerID uint) error {
	var ended bool
	sess, err := s.mutate(ctx, sessionID, playerID, func(sess *models.PlaySession) error {
		c, err := s.loadChain(ctx, sess.StoryID)
		if err != nil {
			return err
		}
		ended = strand(sess, c, s.now())
		return nil
	})
	if err != nil {
		return err
	}
	if ended {
		s.logger.Warn("Current question removed, ending session",
			zap.String("session_id", sess.ID),
			zap.Uint("scene_id", sess.SceneID))
		s.finish(ctx, sess)
	}
	return nil
}

// GetScene returns the content of the session's current scene.
func (s *Service) GetScene(ctx context.Context, sessionID string, playerID uint, kind models.SceneKind, sceneID uint) (*models.SceneContent, error) {
	sess, err := s.GetSession(ctx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionGameOver {
		return nil, models.ErrSessionFinished
	}
	if kind != sess.SceneKind || sceneID != sess.SceneID {
		return nil, fmt.Errorf("%w: requested %s %d, session is at %s %d",
			models.ErrSceneNotCurrent, kind, sceneID, sess.SceneKind, sess.SceneID)
	}

	switch kind {
	case models.SceneIntro:
		intro, err := s.scenes.LoadIntro(ctx, sess.StoryID)
		if err != nil {
			return nil, err
		}
		return &models.SceneContent{Kind: kind, ID: intro.ID, Text: intro.Text}, nil

	case models.SceneQuestion:
		c, err := s.loadChain(ctx, sess.StoryID)
		if err != nil {
			return nil, err
		}
		if !c.Contains(sceneID) {
			if err := s.endStranded(ctx, sessionID, playerID); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: question %d was removed from the story", models.ErrSessionFinished, sceneID)
		}
		scene, err := c.Scene(sceneID)
		if err != nil {
			return nil, err
		}
		content := &models.SceneContent{
			Kind:     kind,
			ID:       scene.ID,
			LeadIn:   scene.LeadIn,
			Question: scene.Question,
			Answers:  make([]models.AnswerView, 0, len(sess.PresentedAnswers)),
		}
		for _, id := range sess.PresentedAnswers {
			if a := scene.Answer(id); a != nil {
				content.Answers = append(content.Answers, models.AnswerView{ID: a.ID, Text: a.Text})
			}
		}
		return content, nil

	case models.SceneEnding:
		endings, err := s.scenes.LoadEndings(ctx, sess.StoryID)
		if err != nil {
			return nil, err
		}
		for _, e := range endings {
			if e.ID == sceneID {
				variant := e.Variant
				return &models.SceneContent{Kind: kind, ID: e.ID, Text: e.Text, Ending: &variant}, nil
			}
		}
		return nil, fmt.Errorf("%w: ending %d", models.ErrSceneNotFound, sceneID)
	}
	return nil, fmt.Errorf("%w: unknown scene kind %q", models.ErrSceneNotFound, kind)
}

// GetSession returns a session owned by playerID.
func (s *Service) GetSession(ctx context.Context, sessionID string, playerID uint) (*models.PlaySession, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PlayerID != playerID {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, playerID uint) ([]models.PlaySession, error) {
	return s.sessions.ListByPlayer(ctx, playerID)
}

// Leaderboard returns the best scores of a story the caller may play.
func (s *Service) Leaderboard(ctx context.Context, storyID, playerID uint, limit int64) ([]models.LeaderboardEntry, error) {
	story, err := s.scenes.LoadStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !story.IsPublic() && story.AuthorID != playerID {
		return nil, fmt.Errorf("%w: id %d", models.ErrStoryNotFound, storyID)
	}
	if s.scoreboard == nil {
		return []models.LeaderboardEntry{}, nil
	}
	return s.scoreboard.Leaderboard(ctx, storyID, limit)
}

// mutate runs fn on a session as one serialized read-modify-write. The write
// fails with models.ErrConflict if another writer got in between.
func (s *Service) mutate(ctx context.Context, sessionID string, playerID uint, fn func(*models.PlaySession) error) (*models.PlaySession, error) {
	unlock, err := s.locker.Lock(ctx, lock.SessionKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer unlock()

	sess, err := s.GetSession(ctx, sessionID, playerID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Warn("Session write lost a race", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}
	return sess, nil
}

func (s *Service) loadChain(ctx context.Context, storyID uint) (*chain.Chain, error) {
	c, err := chain.Load(ctx, s.scenes, storyID)
	if err != nil {
		if errors.Is(err, models.ErrChainCorruption) {
			chain.LogCorruption(s.logger, "Scene chain corrupted", err)
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) notify(storyID uint, messageType string, data interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.BroadcastMessage(StoryRoom(storyID), messageType, data)
}
