package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// eventTTL bounds the processed-event ledger. Broker redeliveries happen
// within seconds of a crash, so a day of history is plenty.
const eventTTL = 24 * time.Hour

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func NewRedisCache(log *zap.SugaredLogger, host string, port int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Connected to Redis")

	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}, nil
}

// Get retrieves value from cache
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err // Returns redis.Nil if key doesn't exist
	}

	return json.Unmarshal([]byte(val), dest)
}

// Set stores value in cache
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes key from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func eventKey(id string) string {
	return fmt.Sprintf("processed:event:%s", id)
}

// SeenEvent reports whether an event id was already processed. Part of the
// dedup ledger that keeps redelivered messages from deducting stock twice.
func (c *RedisCache) SeenEvent(ctx context.Context, id string) (bool, error) {
	_, err := c.client.Get(ctx, eventKey(id)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check event ledger: %w", err)
	}
	return true, nil
}

// MarkEventSeen records an event id as processed, with a TTL so the ledger
// does not grow without bound.
func (c *RedisCache) MarkEventSeen(ctx context.Context, id string) error {
	if err := c.client.Set(ctx, eventKey(id), "1", eventTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
