// SPDX-License-Identifier: MIT

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/coachscribe/coachscribe/internal/metrics"
)

// RedisQueue is a Redis-list backed Queue. LPUSH on enqueue, blocking
// BRPOP on dequeue, so jobs come out in submission order.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string // list key holding pending jobs
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(cfg RedisConfig, logger zerolog.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second, // blocking reads derive their own deadline from the BRPOP timeout
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("key", cfg.Key).
		Msg("connected to Redis queue")

	return &RedisQueue{client: client, key: cfg.Key, logger: logger}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	if n, err := q.client.LLen(ctx, q.key).Result(); err == nil {
		metrics.SetQueueDepth(int(n))
	}
	return nil
}

// brpopWindow bounds how long a single BRPOP blocks. A zero timeout
// would park the connection read forever and never observe ctx, so
// Dequeue re-checks ctx between windows instead.
const brpopWindow = time.Second

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		res, err := q.client.BRPop(ctx, brpopWindow, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue // nothing arrived within this window
		}
		if err != nil {
			return Job{}, err
		}
		// BRPOP returns [key, value].
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.Warn().Err(err).Str("payload", res[1]).Msg("dropping malformed queue entry")
			return Job{}, fmt.Errorf("unmarshal job: %w", err)
		}
		if n, err := q.client.LLen(ctx, q.key).Result(); err == nil {
			metrics.SetQueueDepth(int(n))
		}
		return job, nil
	}
}

func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// HealthCheck reports whether Redis is reachable.
func (q *RedisQueue) HealthCheck(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
