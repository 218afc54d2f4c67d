//go:build integration

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"quiz-story/internal/models"
	"quiz-story/internal/testdb"
)

func newCache(t *testing.T) *RedisCache {
	return NewRedisCacheWithClient(testdb.Redis(t), Options{LockTTL: 2 * time.Second})
}

func TestStoryByCode(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	_, err := c.GetStoryByCode(ctx, "NONE00")
	assert.True(t, errors.Is(err, ErrMiss))

	code := "ABC123"
	story := &models.Story{ID: 4, Title: "Doors", JoinCode: &code, Visibility: models.VisibilityPrivate}
	require.NoError(t, c.SetStory(ctx, story))

	got, err := c.GetStoryByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, uint(4), got.ID)
	assert.Equal(t, "Doors", got.Title)

	require.NoError(t, c.DeleteStoryCode(ctx, code))
	_, err = c.GetStoryByCode(ctx, code)
	assert.True(t, errors.Is(err, ErrMiss))
}

func TestLeaderboardKeepsBestScore(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.RecordScore(ctx, 1, 10, 13))
	require.NoError(t, c.RecordScore(ctx, 1, 10, 5))
	require.NoError(t, c.RecordScore(ctx, 1, 11, 20))
	require.NoError(t, c.RecordScore(ctx, 1, 12, 0))
	require.NoError(t, c.RecordScore(ctx, 2, 10, 1))

	board, err := c.Leaderboard(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.LeaderboardEntry{
		{PlayerID: 11, Score: 20},
		{PlayerID: 10, Score: 13},
	}, board)

	all, err := c.Leaderboard(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, c.DeleteLeaderboard(ctx, 1))
	board, err = c.Leaderboard(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestLockIsExclusive(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	var mu sync.Mutex
	inside, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := c.Lock(ctx, "lock:session:x")
			require.NoError(t, err)
			mu.Lock()
			inside++
			if inside > peak {
				peak = inside
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)

	unlock, err := c.Lock(ctx, "lock:story:1")
	require.NoError(t, err)
	defer unlock()

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.Lock(short, "lock:story:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExpiredLockReleaseIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := NewRedisCacheWithClient(testdb.Redis(t), Options{
		LockTTL: 500 * time.Millisecond,
		Logger:  zap.New(core),
	})
	ctx := context.Background()

	unlock, err := c.Lock(ctx, "lock:story:7")
	require.NoError(t, err)
	unlock()
	assert.Zero(t, logs.Len(), "release within the ttl is silent")

	unlock, err = c.Lock(ctx, "lock:story:7")
	require.NoError(t, err)
	time.Sleep(700 * time.Millisecond)

	next, err := c.Lock(ctx, "lock:story:7")
	require.NoError(t, err, "expired lock can be retaken")
	unlock()

	entries := logs.FilterMessage("Lock expired before release").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lock:story:7", entries[0].ContextMap()["key"])

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.Lock(short, "lock:story:7")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "stale release leaves the new holder's lock alone")
	next()
}
