package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Key prefixes namespace entries so the same Redis database can be shared
// with other tools.
const (
	claimKeyPrefix    = "paperpipe:claim:"
	progressKeyPrefix = "paperpipe:progress:"
)

// redisCache is the Redis implementation of ClaimCache. SetNX gives the
// atomic acquire; expiry is handled server-side.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection with a ping.
func NewRedisCache(ctx context.Context, address, password string, db int) (ClaimCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisCache{client: client}, nil
}

func (c *redisCache) TryMark(ctx context.Context, sourceID, runID string, ttl time.Duration) (bool, error) {
	key := claimKeyPrefix + sourceID
	acquired, err := c.client.SetNX(ctx, key, runID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set claim mark: %w", err)
	}
	if acquired {
		return true, nil
	}

	holder, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			// Mark expired between SetNX and Get; let the caller retry via
			// the database CAS rather than looping here.
			return false, nil
		}
		return false, fmt.Errorf("failed to read claim mark: %w", err)
	}

	return holder == runID, nil
}

func (c *redisCache) Release(ctx context.Context, sourceID string) error {
	if err := c.client.Del(ctx, claimKeyPrefix+sourceID).Err(); err != nil {
		return fmt.Errorf("failed to release claim mark: %w", err)
	}
	return nil
}

func (c *redisCache) IncrProgress(ctx context.Context, runID string, ttl time.Duration) error {
	key := progressKeyPrefix + runID
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment run progress: %w", err)
	}
	return nil
}

func (c *redisCache) Progress(ctx context.Context, runID string) (int64, bool, error) {
	count, err := c.client.Get(ctx, progressKeyPrefix+runID).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read run progress: %w", err)
	}
	return count, true, nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
