package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the unread badge cache.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedisUnreadCache implements UnreadCache on Redis counters.
type RedisUnreadCache struct {
	client *redis.Client
	prefix string
}

// NewRedisUnreadCache connects to Redis and returns the cache.
func NewRedisUnreadCache(cfg RedisConfig, prefix string) (*RedisUnreadCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisUnreadCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisUnreadCache) key(participantID string) string {
	return fmt.Sprintf("%s:unread:%s", c.prefix, participantID)
}

// AddTotal adjusts the participant's badge counter. The counter is clamped
// at zero so a late decrement can never leave it negative.
func (c *RedisUnreadCache) AddTotal(ctx context.Context, participantID string, delta int) error {
	key := c.key(participantID)
	val, err := c.client.IncrBy(ctx, key, int64(delta)).Result()
	if err != nil {
		return fmt.Errorf("failed to adjust unread total: %w", err)
	}
	if val < 0 {
		return c.client.Set(ctx, key, 0, 0).Err()
	}
	return nil
}

// SetTotal overwrites the participant's badge counter.
func (c *RedisUnreadCache) SetTotal(ctx context.Context, participantID string, total int) error {
	if total < 0 {
		total = 0
	}
	if err := c.client.Set(ctx, c.key(participantID), total, 0).Err(); err != nil {
		return fmt.Errorf("failed to set unread total: %w", err)
	}
	return nil
}

// GetTotal returns the participant's badge counter.
func (c *RedisUnreadCache) GetTotal(ctx context.Context, participantID string) (int, error) {
	val, err := c.client.Get(ctx, c.key(participantID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("failed to get unread total: %w", err)
	}
	return val, nil
}

// Close closes the Redis client.
func (c *RedisUnreadCache) Close() error {
	return c.client.Close()
}
