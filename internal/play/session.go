package play

import (
	"fmt"
	"time"

	"quiz-story/internal/chain"
	"quiz-story/internal/difficulty"
	"quiz-story/internal/ending"
	"quiz-story/internal/models"
)

// The functions below are the session state machine:
//
//	intro -> question (xN, following the chain) -> ending
//	question -> game over (wrong answer at the lowest level)
//	question -> game over (the question was removed from the story)
//
// They only mutate the session they are handed; persisting it is the
// service's job.

func newSession(id string, story *models.Story, questions int, playerID uint, now time.Time) *models.PlaySession {
	return &models.PlaySession{
		ID:        id,
		StoryID:   story.ID,
		PlayerID:  playerID,
		SceneKind: models.SceneIntro,
		SceneID:   story.Intro.ID,
		Status:    models.SessionActive,
		Score:     0,
		MaxScore:  difficulty.MaxScore(questions),
		Level:     difficulty.StartLevel,
		StartedAt: now,
	}
}

func enterQuestion(s *models.PlaySession, scene models.QuestionScene, p *difficulty.Presenter) models.SceneRef {
	s.SceneKind = models.SceneQuestion
	s.SceneID = scene.ID
	shown := p.Present(scene.Answers, s.Level)
	s.PresentedAnswers = make([]uint, len(shown))
	for i, a := range shown {
		s.PresentedAnswers[i] = a.ID
	}
	return models.SceneRef{Kind: models.SceneQuestion, ID: scene.ID}
}

func advance(s *models.PlaySession, c *chain.Chain, p *difficulty.Presenter) (models.SceneRef, error) {
	if s.Finished() {
		return models.SceneRef{}, models.ErrSessionFinished
	}
	if s.SceneKind != models.SceneIntro {
		return models.SceneRef{}, fmt.Errorf("%w: advance is only valid from the intro, session is at %s",
			models.ErrIllegalStateTransition, s.SceneKind)
	}
	head, ok := c.Head()
	if !ok {
		return models.SceneRef{}, fmt.Errorf("%w: story %d has no questions", models.ErrConfiguration, s.StoryID)
	}
	return enterQuestion(s, head, p), nil
}

func presented(s *models.PlaySession, answerID uint) bool {
	for _, id := range s.PresentedAnswers {
		if id == answerID {
			return true
		}
	}
	return false
}

func findEnding(endings []models.EndingScene, v models.EndingVariant) (models.EndingScene, bool) {
	for _, e := range endings {
		if e.Variant == v {
			return e, true
		}
	}
	return models.EndingScene{}, false
}

// strand ends a session whose current question is no longer in the chain,
// keeping the score earned so far. It reports whether s changed.
func strand(s *models.PlaySession, c *chain.Chain, now time.Time) bool {
	if s.Finished() || s.SceneKind != models.SceneQuestion || c.Contains(s.SceneID) {
		return false
	}
	s.Status = models.SessionGameOver
	s.PresentedAnswers = nil
	s.EndedAt = &now
	return true
}

// answer applies one submitted answer. On error s is left untouched.
func answer(
	s *models.PlaySession,
	c *chain.Chain,
	endings []models.EndingScene,
	selector *ending.Selector,
	p *difficulty.Presenter,
	answerID uint,
	now time.Time,
) (models.AnswerResult, error) {
	if s.Finished() {
		return models.AnswerResult{}, models.ErrSessionFinished
	}
	if s.SceneKind != models.SceneQuestion {
		return models.AnswerResult{}, fmt.Errorf("%w: no question to answer at %s",
			models.ErrIllegalStateTransition, s.SceneKind)
	}
	if strand(s, c, now) {
		return models.AnswerResult{Score: s.Score, MaxScore: s.MaxScore, Level: s.Level, GameOver: true}, nil
	}
	scene, err := c.Scene(s.SceneID)
	if err != nil {
		return models.AnswerResult{}, err
	}
	opt := scene.Answer(answerID)
	if opt == nil || !presented(s, answerID) {
		return models.AnswerResult{}, fmt.Errorf("%w: %d in scene %d", models.ErrAnswerNotFound, answerID, scene.ID)
	}

	out := difficulty.Apply(s.Level, opt.IsCorrect)
	score := s.Score + out.Points
	res := models.AnswerResult{
		Correct:  opt.IsCorrect,
		Feedback: opt.Feedback,
		Score:    score,
		MaxScore: s.MaxScore,
		Level:    out.Level,
	}

	if out.GameOver {
		s.Score, s.Level = score, out.Level
		s.Status = models.SessionGameOver
		s.PresentedAnswers = nil
		s.EndedAt = &now
		res.GameOver = true
		return res, nil
	}

	next, ok, err := c.Next(scene.ID)
	if err != nil {
		return models.AnswerResult{}, err
	}
	if ok {
		s.Score, s.Level = score, out.Level
		ref := enterQuestion(s, next, p)
		res.Next = &ref
		return res, nil
	}

	variant, err := selector.Select(score, s.MaxScore)
	if err != nil {
		return models.AnswerResult{}, err
	}
	end, ok := findEnding(endings, variant)
	if !ok {
		return models.AnswerResult{}, fmt.Errorf("%w: story %d has no %s ending", models.ErrConfiguration, s.StoryID, variant)
	}
	s.Score, s.Level = score, out.Level
	s.SceneKind = models.SceneEnding
	s.SceneID = end.ID
	s.Status = models.SessionCompleted
	s.Ending = &variant
	s.PresentedAnswers = nil
	s.EndedAt = &now
	res.Next = &models.SceneRef{Kind: models.SceneEnding, ID: end.ID}
	res.Ending = &variant
	return res, nil
}
