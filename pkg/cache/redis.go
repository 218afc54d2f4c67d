// backend/pkg/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-story/internal/models"
)

const (
	lockRetryMin = 10 * time.Millisecond
	lockRetryMax = 200 * time.Millisecond
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

type RedisCache struct {
	client   *redis.Client
	storyTTL time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger
}

type Options struct {
	Addr     string
	Password string
	StoryTTL time.Duration
	LockTTL  time.Duration
	// Logger receives lock release failures. Nil discards them.
	Logger *zap.Logger
}

func NewRedisCache(opts Options) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
	})
	return NewRedisCacheWithClient(client, opts)
}

func NewRedisCacheWithClient(client *redis.Client, opts Options) *RedisCache {
	if opts.StoryTTL <= 0 {
		opts.StoryTTL = 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RedisCache{
		client:   client,
		storyTTL: opts.StoryTTL,
		lockTTL:  opts.LockTTL,
		logger:   opts.Logger.Named("redis_cache"),
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func storyCodeKey(code string) string {
	return "story:code:" + code
}

// SetStory caches a story under its join code. Stories without a code are
// not cached.
func (c *RedisCache) SetStory(ctx context.Context, story *models.Story) error {
	if story.JoinCode == nil {
		return nil
	}
	data, err := json.Marshal(story)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, storyCodeKey(*story.JoinCode), data, c.storyTTL).Err()
}

func (c *RedisCache) GetStoryByCode(ctx context.Context, code string) (*models.Story, error) {
	data, err := c.client.Get(ctx, storyCodeKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}

	var story models.Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

func (c *RedisCache) DeleteStoryCode(ctx context.Context, code string) error {
	return c.client.Del(ctx, storyCodeKey(code)).Err()
}

func leaderboardKey(storyID uint) string {
	return fmt.Sprintf("leaderboard:story:%d", storyID)
}

// RecordScore keeps the best score of a player for a story.
func (c *RedisCache) RecordScore(ctx context.Context, storyID, playerID uint, score int) error {
	return c.client.ZAddArgs(ctx, leaderboardKey(storyID), redis.ZAddArgs{
		GT: true,
		Members: []redis.Z{{
			Score:  float64(score),
			Member: strconv.FormatUint(uint64(playerID), 10),
		}},
	}).Err()
}

// Leaderboard returns the top limit entries, best first. limit <= 0 means all.
func (c *RedisCache) Leaderboard(ctx context.Context, storyID uint, limit int64) ([]models.LeaderboardEntry, error) {
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey(storyID), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(results))
	for _, z := range results {
		member, _ := z.Member.(string)
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			PlayerID: uint(id),
			Score:    int(z.Score),
		})
	}
	return entries, nil
}

func (c *RedisCache) DeleteLeaderboard(ctx context.Context, storyID uint) error {
	return c.client.Del(ctx, leaderboardKey(storyID)).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes a distributed lock on key, retrying until ctx is done. The lock
// expires after the configured TTL if its holder dies.
func (c *RedisCache) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	wait := lockRetryMin
	for {
		ok, err := c.client.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > lockRetryMax {
			wait = lockRetryMax
		}
	}

	return func() {
		released, err := releaseScript.Run(context.Background(), c.client, []string{key}, token).Int()
		switch {
		case err != nil:
			c.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		case released == 0:
			c.logger.Warn("Lock expired before release",
				zap.String("key", key),
				zap.Duration("lock_ttl", c.lockTTL))
		}
	}, nil
}
