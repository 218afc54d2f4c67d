// Package memstore holds in-memory scene and session stores, used for local
// runs without PostgreSQL and by tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-story/internal/models"
)

type sceneState struct {
	stories map[uint]models.Story
	scenes  map[uint]models.QuestionScene
	nextID  uint
}

func (s *sceneState) clone() *sceneState {
	c := &sceneState{
		stories: make(map[uint]models.Story, len(s.stories)),
		scenes:  make(map[uint]models.QuestionScene, len(s.scenes)),
		nextID:  s.nextID,
	}
	for id, st := range s.stories {
		c.stories[id] = copyStory(st)
	}
	for id, q := range s.scenes {
		c.scenes[id] = copyScene(q)
	}
	return c
}

func (s *sceneState) id() uint {
	s.nextID++
	return s.nextID
}

// SceneStore is a copy-on-write scene store: writes build a new state and
// swap it in only on success.
type SceneStore struct {
	mu    sync.RWMutex
	state *sceneState

	// FailApply, when set, is returned by ApplyReconciliation after the
	// writes were staged, to exercise rollback.
	FailApply error
}

func NewSceneStore() *SceneStore {
	return &SceneStore{state: &sceneState{
		stories: make(map[uint]models.Story),
		scenes:  make(map[uint]models.QuestionScene),
	}}
}

func copyScene(q models.QuestionScene) models.QuestionScene {
	q.Answers = append([]models.AnswerOption(nil), q.Answers...)
	if q.NextSceneID != nil {
		next := *q.NextSceneID
		q.NextSceneID = &next
	}
	return q
}

func copyStory(s models.Story) models.Story {
	if s.Intro != nil {
		intro := *s.Intro
		s.Intro = &intro
	}
	if s.JoinCode != nil {
		code := *s.JoinCode
		s.JoinCode = &code
	}
	s.Endings = append([]models.EndingScene(nil), s.Endings...)
	s.Questions = nil
	return s
}

func (m *SceneStore) LoadStory(_ context.Context, storyID uint) (*models.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.stories[storyID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", models.ErrStoryNotFound, storyID)
	}
	st = copyStory(st)
	return &st, nil
}

func (m *SceneStore) LoadStoryByCode(_ context.Context, code string) (*models.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.state.stories {
		if st.JoinCode != nil && *st.JoinCode == code {
			st = copyStory(st)
			return &st, nil
		}
	}
	return nil, fmt.Errorf("%w: code %s", models.ErrStoryNotFound, code)
}

func (m *SceneStore) LoadScenes(_ context.Context, storyID uint) ([]models.QuestionScene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var scenes []models.QuestionScene
	for _, q := range m.state.scenes {
		if q.StoryID == storyID {
			scenes = append(scenes, copyScene(q))
		}
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID < scenes[j].ID })
	return scenes, nil
}

func (m *SceneStore) LoadIntro(_ context.Context, storyID uint) (*models.IntroScene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.stories[storyID]
	if !ok || st.Intro == nil {
		return nil, fmt.Errorf("%w: intro of story %d", models.ErrSceneNotFound, storyID)
	}
	intro := *st.Intro
	return &intro, nil
}

func (m *SceneStore) LoadEndings(_ context.Context, storyID uint) ([]models.EndingScene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.stories[storyID]
	if !ok {
		return nil, nil
	}
	return append([]models.EndingScene(nil), st.Endings...), nil
}

func (m *SceneStore) ApplyReconciliation(_ context.Context, rec models.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.stories[rec.StoryID]; !ok {
		return fmt.Errorf("%w: id %d", models.ErrStoryNotFound, rec.StoryID)
	}
	next := m.state.clone()
	if err := apply(next, rec); err != nil {
		return err
	}
	if m.FailApply != nil {
		return m.FailApply
	}
	m.state = next
	return nil
}

func apply(st *sceneState, rec models.Reconciliation) error {
	for id, q := range st.scenes {
		if q.StoryID == rec.StoryID {
			q.NextSceneID = nil
			st.scenes[id] = q
		}
	}
	for _, id := range rec.Deletes {
		q, ok := st.scenes[id]
		if !ok || q.StoryID != rec.StoryID {
			return fmt.Errorf("%w: deleted scene %d missing", models.ErrConflict, id)
		}
		delete(st.scenes, id)
	}

	now := time.Now()
	ids := make([]uint, len(rec.Scenes))
	for i, s := range rec.Scenes {
		s = copyScene(s)
		s.StoryID = rec.StoryID
		s.NextSceneID = nil
		s.UpdatedAt = now
		if s.ID == 0 {
			s.ID = st.id()
			s.CreatedAt = now
			for j := range s.Answers {
				s.Answers[j].ID = st.id()
			}
		} else {
			old, ok := st.scenes[s.ID]
			if !ok || old.StoryID != rec.StoryID {
				return fmt.Errorf("%w: %d", models.ErrSceneNotFound, s.ID)
			}
			s.CreatedAt = old.CreatedAt
			for j := range s.Answers {
				if j < len(old.Answers) {
					s.Answers[j].ID = old.Answers[j].ID
				} else {
					s.Answers[j].ID = st.id()
				}
			}
		}
		for j := range s.Answers {
			s.Answers[j].SceneID = s.ID
		}
		st.scenes[s.ID] = s
		ids[i] = s.ID
	}

	for i := 0; i+1 < len(ids); i++ {
		q := st.scenes[ids[i]]
		next := ids[i+1]
		q.NextSceneID = &next
		st.scenes[ids[i]] = q
	}
	return nil
}

func (m *SceneStore) CreateStory(_ context.Context, story *models.Story, rec models.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.clone()
	if story.JoinCode != nil {
		for _, st := range next.stories {
			if st.JoinCode != nil && *st.JoinCode == *story.JoinCode {
				return fmt.Errorf("%w: join code %s taken", models.ErrConflict, *story.JoinCode)
			}
		}
	}

	now := time.Now()
	story.ID = next.id()
	story.CreatedAt, story.UpdatedAt = now, now
	if story.Intro != nil {
		story.Intro.ID = next.id()
		story.Intro.StoryID = story.ID
	}
	for i := range story.Endings {
		story.Endings[i].ID = next.id()
		story.Endings[i].StoryID = story.ID
	}
	next.stories[story.ID] = copyStory(*story)

	rec.StoryID = story.ID
	if err := apply(next, rec); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *SceneStore) UpdateStoryDetails(_ context.Context, story *models.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.state.stories[story.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", models.ErrStoryNotFound, story.ID)
	}
	cur.Title = story.Title
	cur.Description = story.Description
	cur.Difficulty = story.Difficulty
	cur.Visibility = story.Visibility
	cur.JoinCode = story.JoinCode
	cur.UpdatedAt = time.Now()
	if story.Intro != nil && cur.Intro != nil {
		cur.Intro.Text = story.Intro.Text
	}
	for _, e := range story.Endings {
		for i := range cur.Endings {
			if cur.Endings[i].Variant == e.Variant {
				cur.Endings[i].Text = e.Text
			}
		}
	}
	m.state.stories[story.ID] = copyStory(cur)
	return nil
}

func (m *SceneStore) ListStoriesByAuthor(_ context.Context, authorID uint) ([]models.Story, error) {
	return m.list(func(s models.Story) bool { return s.AuthorID == authorID }), nil
}

func (m *SceneStore) ListPublicStories(_ context.Context) ([]models.Story, error) {
	return m.list(func(s models.Story) bool { return s.IsPublic() }), nil
}

func (m *SceneStore) list(keep func(models.Story) bool) []models.Story {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Story
	for _, st := range m.state.stories {
		if keep(st) {
			out = append(out, copyStory(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *SceneStore) DeleteStory(_ context.Context, storyID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.stories[storyID]; !ok {
		return fmt.Errorf("%w: id %d", models.ErrStoryNotFound, storyID)
	}
	delete(m.state.stories, storyID)
	for id, q := range m.state.scenes {
		if q.StoryID == storyID {
			delete(m.state.scenes, id)
		}
	}
	return nil
}

// SetNext overwrites one next reference without any checks, to simulate
// corrupted data.
func (m *SceneStore) SetNext(sceneID uint, next *uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.state.scenes[sceneID]
	q.NextSceneID = next
	m.state.scenes[sceneID] = q
}
