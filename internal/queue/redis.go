package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPollInterval = 2 * time.Second

// RedisQueue implements Queue over a Redis list, shared by all gateway
// instances pointing at the same Redis.
type RedisQueue struct {
	client *redis.Client
	qKey   string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(config *Config) (*RedisQueue, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		client: client,
		qKey:   fmt.Sprintf("queue:%s", config.QueueName),
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, d Dispatch) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

// Dequeue polls BLPOP in short slices so ctx cancellation is honored.
func (q *RedisQueue) Dequeue(ctx context.Context) (Dispatch, error) {
	for {
		result, err := q.client.BLPop(ctx, redisPollInterval, q.qKey).Result()
		if err == redis.Nil {
			select {
			case <-ctx.Done():
				return Dispatch{}, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return Dispatch{}, ctx.Err()
			}
			return Dispatch{}, fmt.Errorf("failed to pop from Redis: %w", err)
		}

		var d Dispatch
		if err := json.Unmarshal([]byte(result[1]), &d); err != nil {
			return Dispatch{}, fmt.Errorf("failed to unmarshal dispatch: %w", err)
		}
		return d, nil
	}
}

func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// RedisDeadLetterQueue stores failed dispatches in a Redis hash keyed by
// item id.
type RedisDeadLetterQueue struct {
	client *redis.Client
	dlqKey string
}

func NewRedisDeadLetterQueue(client *redis.Client, queueName string) *RedisDeadLetterQueue {
	return &RedisDeadLetterQueue{
		client: client,
		dlqKey: fmt.Sprintf("queue:%s:dlq", queueName),
	}
}

func (q *RedisDeadLetterQueue) Add(ctx context.Context, d Dispatch, cause error) error {
	item := DeadLetterItem{
		ID:        uuid.NewString(),
		Dispatch:  d,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", err)
	}

	if err := q.client.HSet(ctx, q.dlqKey, item.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to store dead letter item: %w", err)
	}
	return nil
}

func (q *RedisDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	values, err := q.client.HVals(ctx, q.dlqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem, 0, len(values))
	for _, v := range values {
		var item DeadLetterItem
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			continue
		}
		items = append(items, item)
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}
	return items, nil
}

func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	removed, err := q.client.HDel(ctx, q.dlqKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove dead letter item: %w", err)
	}
	if removed == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *RedisDeadLetterQueue) Close() error {
	return nil
}
