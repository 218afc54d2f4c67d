package chain

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"quiz-story/internal/models"
	"quiz-story/pkg/lock"
)

// Store is the persistence the reconciler needs. ApplyReconciliation must be
// all-or-nothing.
type Store interface {
	Loader
	ApplyReconciliation(ctx context.Context, rec models.Reconciliation) error
}

// Reconciler applies an author's full replacement question list to a story.
type Reconciler struct {
	store  Store
	locker lock.Locker
	logger *zap.Logger
}

func NewReconciler(store Store, locker lock.Locker, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		locker: locker,
		logger: logger.Named("chain"),
	}
}

// Reconcile deletes the scenes missing from edits, updates and inserts the
// rest, and relinks them in the submitted order. Edits of the same story are
// serialized. Validation happens before any write.
func (r *Reconciler) Reconcile(ctx context.Context, storyID uint, edits []models.SceneEdit) (*Chain, error) {
	unlock, err := r.locker.Lock(ctx, lock.StoryKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("lock story %d: %w", storyID, err)
	}
	defer unlock()

	scenes, err := r.store.LoadScenes(ctx, storyID)
	if err != nil {
		return nil, err
	}

	// The submitted list replaces every link, so a broken stored chain does
	// not block the edit. It is still reported.
	if _, err := Build(storyID, scenes); err != nil {
		LogCorruption(r.logger, "stored chain corrupted before reconciliation", err)
	}

	existing := make([]uint, len(scenes))
	for i, s := range scenes {
		existing[i] = s.ID
	}

	rec, err := Plan(storyID, existing, edits)
	if err != nil {
		r.logger.Info("Rejected question edit",
			zap.Uint("story_id", storyID),
			zap.Error(err))
		return nil, err
	}

	if err := r.store.ApplyReconciliation(ctx, rec); err != nil {
		r.logger.Error("Failed to apply reconciliation",
			zap.Uint("story_id", storyID),
			zap.Error(err))
		return nil, err
	}

	c, err := Load(ctx, r.store, storyID)
	if err != nil {
		LogCorruption(r.logger, "chain corrupted after reconciliation", err)
		return nil, err
	}

	r.logger.Info("Reconciled story questions",
		zap.Uint("story_id", storyID),
		zap.Int("deleted", len(rec.Deletes)),
		zap.Int("updated", len(rec.Updates())),
		zap.Int("inserted", rec.Inserts()),
		zap.Int("length", c.Len()))
	return c, nil
}

// LogCorruption logs err with the full offending chain when it is a
// *models.CorruptionError.
func LogCorruption(logger *zap.Logger, msg string, err error) {
	var ce *models.CorruptionError
	if errors.As(err, &ce) {
		logger.Error(msg,
			zap.Uint("story_id", ce.StoryID),
			zap.String("reason", ce.Reason),
			zap.Any("links", ce.Links))
		return
	}
	logger.Error(msg, zap.Error(err))
}
