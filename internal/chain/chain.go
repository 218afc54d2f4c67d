// Package chain keeps the ordered question scenes of a story. Scenes are held
// in a dense slice and linked by index, so integrity checks are array scans.
package chain

import (
	"context"
	"fmt"

	"quiz-story/internal/models"
)

const none = -1

// Loader reads the raw, unordered question scenes of a story.
type Loader interface {
	LoadScenes(ctx context.Context, storyID uint) ([]models.QuestionScene, error)
}

type Chain struct {
	storyID uint
	scenes  []models.QuestionScene
	next    []int
	index   map[uint]int
	order   []int
}

// Load reads the scenes of a story and orders them.
func Load(ctx context.Context, loader Loader, storyID uint) (*Chain, error) {
	scenes, err := loader.LoadScenes(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return Build(storyID, scenes)
}

// Build orders scenes by their next references. Any break of the chain
// invariants (dangling reference, convergence, zero or several heads, cycle)
// is reported as a *models.CorruptionError; nothing is repaired.
func Build(storyID uint, scenes []models.QuestionScene) (*Chain, error) {
	c := &Chain{
		storyID: storyID,
		scenes:  append([]models.QuestionScene(nil), scenes...),
		next:    make([]int, len(scenes)),
		index:   make(map[uint]int, len(scenes)),
	}

	for i, s := range c.scenes {
		if _, dup := c.index[s.ID]; dup {
			return nil, c.corrupt("duplicate scene id %d", s.ID)
		}
		c.index[s.ID] = i
	}

	incoming := make([]int, len(c.scenes))
	for i, s := range c.scenes {
		c.next[i] = none
		if s.NextSceneID == nil {
			continue
		}
		target, ok := c.index[*s.NextSceneID]
		if !ok {
			return nil, c.corrupt("scene %d references missing scene %d", s.ID, *s.NextSceneID)
		}
		if target == i {
			return nil, c.corrupt("scene %d references itself", s.ID)
		}
		incoming[target]++
		if incoming[target] > 1 {
			return nil, c.corrupt("scene %d is referenced by more than one scene", *s.NextSceneID)
		}
		c.next[i] = target
	}

	if len(c.scenes) == 0 {
		return c, nil
	}

	head := none
	var heads []uint
	for i, n := range incoming {
		if n == 0 {
			head = i
			heads = append(heads, c.scenes[i].ID)
		}
	}
	switch {
	case len(heads) == 0:
		return nil, c.corrupt("no chain head")
	case len(heads) > 1:
		return nil, c.corrupt("multiple chain heads %v", heads)
	}

	visited := make([]bool, len(c.scenes))
	c.order = make([]int, 0, len(c.scenes))
	for cur := head; cur != none; cur = c.next[cur] {
		if visited[cur] || len(c.order) >= len(c.scenes) {
			return nil, c.corrupt("cycle at scene %d", c.scenes[cur].ID)
		}
		visited[cur] = true
		c.order = append(c.order, cur)
	}
	if len(c.order) != len(c.scenes) {
		return nil, c.corrupt("%d of %d scenes unreachable from head", len(c.scenes)-len(c.order), len(c.scenes))
	}

	return c, nil
}

func (c *Chain) corrupt(format string, args ...interface{}) error {
	return &models.CorruptionError{
		StoryID: c.storyID,
		Reason:  fmt.Sprintf(format, args...),
		Links:   Links(c.scenes),
	}
}

// Links maps every scene id to its next scene id, 0 meaning none.
func Links(scenes []models.QuestionScene) map[uint]uint {
	links := make(map[uint]uint, len(scenes))
	for _, s := range scenes {
		var next uint
		if s.NextSceneID != nil {
			next = *s.NextSceneID
		}
		links[s.ID] = next
	}
	return links
}

func (c *Chain) StoryID() uint {
	return c.storyID
}

func (c *Chain) Len() int {
	return len(c.order)
}

// Head returns the first scene, false when the chain is empty.
func (c *Chain) Head() (models.QuestionScene, bool) {
	if len(c.order) == 0 {
		return models.QuestionScene{}, false
	}
	return c.scenes[c.order[0]], true
}

// Scene returns the scene with the given id.
func (c *Chain) Scene(id uint) (models.QuestionScene, error) {
	i, ok := c.index[id]
	if !ok {
		return models.QuestionScene{}, fmt.Errorf("%w: %d", models.ErrSceneNotFound, id)
	}
	return c.scenes[i], nil
}

// Next returns the scene following id, false when id is the last one.
func (c *Chain) Next(id uint) (models.QuestionScene, bool, error) {
	i, ok := c.index[id]
	if !ok {
		return models.QuestionScene{}, false, fmt.Errorf("%w: %d", models.ErrSceneNotFound, id)
	}
	if c.next[i] == none {
		return models.QuestionScene{}, false, nil
	}
	return c.scenes[c.next[i]], true, nil
}

// Contains reports whether id belongs to the chain.
func (c *Chain) Contains(id uint) bool {
	_, ok := c.index[id]
	return ok
}

// IDs returns the scene ids in chain order.
func (c *Chain) IDs() []uint {
	ids := make([]uint, len(c.order))
	for i, idx := range c.order {
		ids[i] = c.scenes[idx].ID
	}
	return ids
}

// ToOrderedList returns the scenes from head to tail.
func (c *Chain) ToOrderedList() []models.QuestionScene {
	list := make([]models.QuestionScene, len(c.order))
	for i, idx := range c.order {
		list[i] = c.scenes[idx]
	}
	return list
}
