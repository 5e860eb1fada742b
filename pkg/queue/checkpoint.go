package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checkpoint is a single timestamp kept in Redis next to the queue.
type Checkpoint struct {
	client *redis.Client
	key    string
}

// Checkpoint returns the named checkpoint, sharing the queue's connection.
func (q *RedisJobQueue) Checkpoint(name string) *Checkpoint {
	return &Checkpoint{client: q.client, key: fmt.Sprintf("checkpoint:%s:%s", q.stream, name)}
}

// Load returns the stored time; ok is false when nothing was saved yet.
func (c *Checkpoint) Load(ctx context.Context) (time.Time, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse checkpoint %s: %w", c.key, err)
	}
	return t, true, nil
}

func (c *Checkpoint) Save(ctx context.Context, t time.Time) error {
	return c.client.Set(ctx, c.key, t.UTC().Format(time.RFC3339Nano), 0).Err()
}
