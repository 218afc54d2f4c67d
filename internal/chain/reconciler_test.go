package chain

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quiz-story/internal/memstore"
	"quiz-story/internal/models"
	"quiz-story/pkg/lock"
)

func seedStory(t *testing.T, store *memstore.SceneStore, questions ...string) (uint, []uint) {
	t.Helper()
	edits := make([]models.SceneEdit, len(questions))
	for i, q := range questions {
		edits[i] = edit(nil, q)
	}
	rec, err := Plan(0, nil, edits)
	require.NoError(t, err)

	story := &models.Story{AuthorID: 1, Title: "Bridge", Visibility: models.VisibilityPublic}
	require.NoError(t, store.CreateStory(context.Background(), story, rec))

	c, err := Load(context.Background(), store, story.ID)
	require.NoError(t, err)
	return story.ID, c.IDs()
}

func newReconciler(store *memstore.SceneStore) *Reconciler {
	return NewReconciler(store, lock.NewKeyedMutex(), zap.NewNop())
}

func TestReconcileReorderAndDelete(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, ids := seedStory(t, store, "A", "B", "C", "D")
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	before, err := store.LoadScenes(context.Background(), storyID)
	require.NoError(t, err)

	got, err := newReconciler(store).Reconcile(context.Background(), storyID, []models.SceneEdit{
		edit(ref(c), "C"),
		edit(ref(a), "A"),
		edit(ref(b), "B"),
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{c, a, b}, got.IDs())

	scenes, err := store.LoadScenes(context.Background(), storyID)
	require.NoError(t, err)
	require.Len(t, scenes, 3)
	for _, s := range scenes {
		assert.NotEqual(t, d, s.ID, "D is gone")
		if s.NextSceneID != nil {
			assert.NotEqual(t, d, *s.NextSceneID, "no reference to D remains")
		}
	}

	// answers of kept scenes keep their ids
	for _, old := range before {
		if old.ID != a {
			continue
		}
		kept, err := got.Scene(a)
		require.NoError(t, err)
		for i := range old.Answers {
			assert.Equal(t, old.Answers[i].ID, kept.Answers[i].ID)
		}
	}
}

func TestReconcileRejectsInvalidEditWithoutWriting(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, ids := seedStory(t, store, "A", "B")

	bad := edit(ref(ids[1]), "B changed")
	bad.Answers = bad.Answers[:3]

	_, err := newReconciler(store).Reconcile(context.Background(), storyID, []models.SceneEdit{
		edit(ref(ids[0]), "A changed"),
		bad,
	})
	require.Error(t, err)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, 1, verr.Violations[0].Position)
	assert.Equal(t, "answers", verr.Violations[0].Field)

	c, err := Load(context.Background(), store, storyID)
	require.NoError(t, err)
	assert.Equal(t, ids, c.IDs())
	head, _ := c.Head()
	assert.Equal(t, "A", head.Question, "nothing was written")
}

func TestReconcileFailedApplyLeavesChainUntouched(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, ids := seedStory(t, store, "A", "B", "C")
	store.FailApply = errors.New("disk full")

	_, err := newReconciler(store).Reconcile(context.Background(), storyID, []models.SceneEdit{
		edit(ref(ids[2]), "C"),
		edit(nil, "D"),
	})
	require.Error(t, err)

	store.FailApply = nil
	c, err := Load(context.Background(), store, storyID)
	require.NoError(t, err)
	assert.Equal(t, ids, c.IDs())
}

func TestReconcileUnknownIDRejected(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, ids := seedStory(t, store, "A")
	_, otherIDs := seedStory(t, store, "X")

	_, err := newReconciler(store).Reconcile(context.Background(), storyID, []models.SceneEdit{
		edit(ref(otherIDs[0]), "X"),
	})
	assert.True(t, errors.Is(err, models.ErrValidationFailed))

	c, err := Load(context.Background(), store, storyID)
	require.NoError(t, err)
	assert.Equal(t, ids, c.IDs())
}

func TestReconcileEmptyList(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, _ := seedStory(t, store, "A", "B")

	c, err := newReconciler(store).Reconcile(context.Background(), storyID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestReconcileRepairsCorruptedStoredChain(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, ids := seedStory(t, store, "A", "B", "C")
	store.SetNext(ids[2], ref(ids[0]))

	_, err := Load(context.Background(), store, storyID)
	require.True(t, errors.Is(err, models.ErrChainCorruption))

	c, err := newReconciler(store).Reconcile(context.Background(), storyID, []models.SceneEdit{
		edit(ref(ids[1]), "B"),
		edit(ref(ids[0]), "A"),
		edit(ref(ids[2]), "C"),
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[1], ids[0], ids[2]}, c.IDs())
}

func TestReconcileRandomEditsKeepChainIntact(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, _ := seedStory(t, store, "A", "B", "C", "D")
	r := newReconciler(store)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		current, err := Load(context.Background(), store, storyID)
		require.NoError(t, err)

		var edits []models.SceneEdit
		for _, id := range current.IDs() {
			if rng.Intn(4) > 0 {
				edits = append(edits, edit(ref(id), "kept"))
			}
		}
		for n := rng.Intn(3); n > 0; n-- {
			edits = append(edits, edit(nil, "new"))
		}
		rng.Shuffle(len(edits), func(i, j int) { edits[i], edits[j] = edits[j], edits[i] })

		got, err := r.Reconcile(context.Background(), storyID, edits)
		require.NoError(t, err, "round %d", round)
		require.Equal(t, len(edits), got.Len(), "round %d", round)

		for i, id := range got.IDs() {
			if edits[i].ID != nil {
				assert.Equal(t, *edits[i].ID, id, "round %d position %d", round, i)
			} else {
				assert.False(t, current.Contains(id), "inserted scene reuses an id")
			}
		}
	}
}

func TestConcurrentReconcilesSerialize(t *testing.T) {
	store := memstore.NewSceneStore()
	storyID, ids := seedStory(t, store, "A", "B", "C")
	r := newReconciler(store)

	orders := [][]uint{
		{ids[0], ids[1], ids[2]},
		{ids[2], ids[1], ids[0]},
		{ids[1], ids[2], ids[0]},
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		order := orders[i%len(orders)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			edits := make([]models.SceneEdit, len(order))
			for j, id := range order {
				edits[j] = edit(ref(id), "q")
			}
			_, err := r.Reconcile(context.Background(), storyID, edits)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := Load(context.Background(), store, storyID)
	require.NoError(t, err)
	assert.Contains(t, orders, c.IDs())
}
