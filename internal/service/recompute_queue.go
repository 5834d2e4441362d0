package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// RecomputeEnqueuer schedules compliance recomputation after data changes.
type RecomputeEnqueuer interface {
	EnqueueStudents(ctx context.Context, ids ...uuid.UUID) error
	EnqueueAll(ctx context.Context) error
}

// RecomputeQueue pushes recompute requests onto the Redis list drained by
// the recompute worker.
type RecomputeQueue struct {
	rdb *redis.Client
	key string
}

// NewRecomputeQueue creates a queue producer.
func NewRecomputeQueue(rdb *redis.Client) *RecomputeQueue {
	return &RecomputeQueue{rdb: rdb, key: config.WorkerKey.RecomputeComplianceQueue}
}

// EnqueueStudents requests a per-student recompute for each ID.
func (q *RecomputeQueue) EnqueueStudents(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	payloads := make([]any, 0, len(ids))
	for _, id := range ids {
		raw, err := json.Marshal(model.RecomputeRequest{StudentID: &id})
		if err != nil {
			return err
		}
		payloads = append(payloads, raw)
	}
	if err := q.rdb.RPush(ctx, q.key, payloads...).Err(); err != nil {
		return fmt.Errorf("enqueue recompute: %w", err)
	}
	return nil
}

// EnqueueAll requests a forced full derivation.
func (q *RecomputeQueue) EnqueueAll(ctx context.Context) error {
	raw, err := json.Marshal(model.RecomputeRequest{All: true})
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue full recompute: %w", err)
	}
	return nil
}

// RedisProgressPublisher fans derivation events out over Redis PubSub.
type RedisProgressPublisher struct {
	rdb *redis.Client
}

// NewRedisProgressPublisher creates a publisher on the progress channel.
func NewRedisProgressPublisher(rdb *redis.Client) *RedisProgressPublisher {
	return &RedisProgressPublisher{rdb: rdb}
}

// Publish sends one event.
func (p *RedisProgressPublisher) Publish(ctx context.Context, event model.DerivationEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, config.CacheKey.DerivationProgressChannel(), raw).Err()
}
