package fulltext

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is the extraction job queue: a list of document ids plus a set
// deduplicating ids already queued, so repeated edits before extraction
// produce one job.
type RedisQueue struct {
	client *redis.Client
	list   string
	dedupe string
}

// NewRedisQueue connects to redis at redisURL and verifies the connection.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisQueueWithClient(client), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client: client,
		list:   "fulltext:jobs",
		dedupe: "fulltext:queued",
	}
}

// Schedule enqueues an extraction job for docID. An id already waiting in
// the queue is not enqueued twice.
func (q *RedisQueue) Schedule(ctx context.Context, docID string) error {
	added, err := q.client.SAdd(ctx, q.dedupe, docID).Result()
	if err != nil {
		return fmt.Errorf("schedule fulltext %s: %w", docID, err)
	}
	if added == 0 {
		return nil
	}
	if err := q.client.LPush(ctx, q.list, docID).Err(); err != nil {
		return fmt.Errorf("schedule fulltext %s: %w", docID, err)
	}
	return nil
}

// Claim blocks up to timeout for the next job and returns its document id.
// An empty id means the queue stayed empty.
func (q *RedisQueue) Claim(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, timeout, q.list).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("claim fulltext job: %w", err)
	}
	docID := res[1]
	if err := q.client.SRem(ctx, q.dedupe, docID).Err(); err != nil {
		return "", fmt.Errorf("claim fulltext job: %w", err)
	}
	return docID, nil
}

// Pending returns the number of queued jobs.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.list).Result()
}

// Close closes the redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping checks that redis is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
