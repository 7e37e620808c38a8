package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vodeneev/oddsapi/internal/pkg/config"
)

// ErrQueueEmpty is returned when a blocking pop times out without an item.
var ErrQueueEmpty = errors.New("queue empty")

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Check connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Queue is a set of named FIFO lists. Producers LPUSH, consumers pop from the
// right.
type Queue struct {
	client redis.Cmdable
}

func NewQueue(client redis.Cmdable) *Queue {
	return &Queue{client: client}
}

// Pop removes and returns the oldest item of the named queue, waiting up to
// timeout. It returns ErrQueueEmpty when nothing arrived in time.
func (q *Queue) Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", name, err)
	}
	// [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply from %s: %d elements", name, len(res))
	}
	return []byte(res[1]), nil
}

// Cycle returns the oldest item and moves it back to the head of the same
// queue, so replaying does not consume anything.
func (q *Queue) Cycle(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BLMove(ctx, name, name, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cycle %s: %w", name, err)
	}
	return []byte(res), nil
}

// Push appends an item to the tail of the queue.
func (q *Queue) Push(ctx context.Context, name string, payload []byte) error {
	if err := q.client.LPush(ctx, name, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", name, err)
	}
	return nil
}

func (q *Queue) Len(ctx context.Context, name string) (int64, error) {
	n, err := q.client.LLen(ctx, name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", name, err)
	}
	return n, nil
}
