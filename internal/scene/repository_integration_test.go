//go:build integration

package scene_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"quiz-story/internal/chain"
	"quiz-story/internal/models"
	"quiz-story/internal/scene"
	"quiz-story/internal/testdb"
	"quiz-story/pkg/lock"
)

type RepositorySuite struct {
	suite.Suite
	ctx  context.Context
	repo *scene.Repository
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	s.repo = scene.NewRepository(testdb.Postgres(s.T()), zap.NewNop())
}

func edit(id *uint, q string) models.SceneEdit {
	return models.SceneEdit{
		ID:       id,
		LeadIn:   "A corridor.",
		Question: q,
		Answers: []models.AnswerEdit{
			{Text: "left", Feedback: "Light ahead."},
			{Text: "right", Feedback: "A wall."},
			{Text: "up", Feedback: "No stairs."},
			{Text: "down", Feedback: "No hatch."},
		},
	}
}

func (s *RepositorySuite) createStory(code *string, questions ...string) (*models.Story, []uint) {
	edits := make([]models.SceneEdit, len(questions))
	for i, q := range questions {
		edits[i] = edit(nil, q)
	}
	rec, err := chain.Plan(0, nil, edits)
	s.Require().NoError(err)

	story := &models.Story{
		AuthorID:   1,
		Title:      "Corridors",
		Visibility: models.VisibilityPublic,
		JoinCode:   code,
		Intro:      &models.IntroScene{Text: "Dark."},
		Endings: []models.EndingScene{
			{Variant: models.EndingGood, Text: "Out."},
			{Variant: models.EndingNeutral, Text: "Lost a while."},
			{Variant: models.EndingBad, Text: "Lost."},
		},
	}
	s.Require().NoError(s.repo.CreateStory(s.ctx, story, rec))

	c, err := chain.Load(s.ctx, s.repo, story.ID)
	s.Require().NoError(err)
	return story, c.IDs()
}

func (s *RepositorySuite) TestCreateAndLoad() {
	story, ids := s.createStory(nil, "A", "B", "C")
	s.Len(ids, 3)

	loaded, err := s.repo.LoadStory(s.ctx, story.ID)
	s.Require().NoError(err)
	s.Equal("Dark.", loaded.Intro.Text)
	s.Len(loaded.Endings, 3)

	c, err := chain.Load(s.ctx, s.repo, story.ID)
	s.Require().NoError(err)
	list := c.ToOrderedList()
	s.Equal("A", list[0].Question)
	s.Equal("C", list[2].Question)
	s.Require().Len(list[0].Answers, 4)
	s.True(list[0].Answers[0].IsCorrect)
	s.Equal("left", list[0].Answers[0].Text)

	_, err = s.repo.LoadStory(s.ctx, 999999)
	s.True(errors.Is(err, models.ErrStoryNotFound))
}

func (s *RepositorySuite) TestReorderDeleteInsert() {
	story, ids := s.createStory(nil, "A", "B", "C")
	before, err := s.repo.LoadScenes(s.ctx, story.ID)
	s.Require().NoError(err)

	reconciler := chain.NewReconciler(s.repo, lock.NewKeyedMutex(), zap.NewNop())
	changed := edit(&ids[0], "A changed")
	changed.CorrectIndex = 3

	c, err := reconciler.Reconcile(s.ctx, story.ID, []models.SceneEdit{
		edit(&ids[2], "C"),
		edit(nil, "D"),
		changed,
	})
	s.Require().NoError(err)

	got := c.IDs()
	s.Require().Len(got, 3)
	s.Equal(ids[2], got[0])
	s.Equal(ids[0], got[2])
	s.NotContains(got, ids[1])

	a, err := c.Scene(ids[0])
	s.Require().NoError(err)
	s.Equal("A changed", a.Question)
	s.Require().Len(a.Answers, 4)
	s.True(a.Answers[3].IsCorrect)
	s.False(a.Answers[0].IsCorrect)
	for _, old := range before {
		if old.ID == ids[0] {
			for i := range old.Answers {
				s.Equal(old.Answers[i].ID, a.Answers[i].ID, "answer ids are stable")
			}
		}
	}
}

func (s *RepositorySuite) TestFailedApplyRollsBack() {
	story, ids := s.createStory(nil, "A", "B")

	rec, err := chain.Plan(story.ID, ids, []models.SceneEdit{edit(&ids[1], "B"), edit(&ids[0], "A")})
	s.Require().NoError(err)
	rec.Deletes = append(rec.Deletes, 999999)

	err = s.repo.ApplyReconciliation(s.ctx, rec)
	s.True(errors.Is(err, models.ErrConflict))

	c, err := chain.Load(s.ctx, s.repo, story.ID)
	s.Require().NoError(err)
	s.Equal(ids, c.IDs(), "links survive the failed write")
}

func (s *RepositorySuite) TestConcurrentReconcilesKeepOneChain() {
	story, ids := s.createStory(nil, "A", "B", "C")
	reconciler := chain.NewReconciler(s.repo, lock.NewKeyedMutex(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := []uint{ids[i%3], ids[(i+1)%3], ids[(i+2)%3]}
			edits := make([]models.SceneEdit, len(order))
			for j := range order {
				edits[j] = edit(&order[j], "q")
			}
			_, err := reconciler.Reconcile(s.ctx, story.ID, edits)
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	c, err := chain.Load(s.ctx, s.repo, story.ID)
	s.Require().NoError(err)
	s.Equal(3, c.Len())
}

func (s *RepositorySuite) TestJoinCodeIsUnique() {
	code := "ABC123"
	story, _ := s.createStory(&code, "A")

	found, err := s.repo.LoadStoryByCode(s.ctx, code)
	s.Require().NoError(err)
	s.Equal(story.ID, found.ID)

	rec, err := chain.Plan(0, nil, nil)
	s.Require().NoError(err)
	dup := &models.Story{AuthorID: 2, Title: "Copy", JoinCode: &code, Intro: &models.IntroScene{Text: "x"}}
	err = s.repo.CreateStory(s.ctx, dup, rec)
	s.True(errors.Is(err, models.ErrConflict))
}

func (s *RepositorySuite) TestUpdateAndDelete() {
	story, _ := s.createStory(nil, "A", "B")

	code := "PRIV01"
	story.Title = "Renamed"
	story.Visibility = models.VisibilityPrivate
	story.JoinCode = &code
	story.Intro.Text = "Darker."
	story.Endings[0].Text = "Sunlight."
	s.Require().NoError(s.repo.UpdateStoryDetails(s.ctx, story))

	loaded, err := s.repo.LoadStory(s.ctx, story.ID)
	s.Require().NoError(err)
	s.Equal("Renamed", loaded.Title)
	s.Equal("Darker.", loaded.Intro.Text)
	s.Equal(code, *loaded.JoinCode)

	public, err := s.repo.ListPublicStories(s.ctx)
	s.Require().NoError(err)
	for _, p := range public {
		s.NotEqual(story.ID, p.ID)
	}

	s.Require().NoError(s.repo.DeleteStory(s.ctx, story.ID))
	scenes, err := s.repo.LoadScenes(s.ctx, story.ID)
	s.Require().NoError(err)
	s.Empty(scenes)
	s.True(errors.Is(s.repo.DeleteStory(s.ctx, story.ID), models.ErrStoryNotFound))
}
