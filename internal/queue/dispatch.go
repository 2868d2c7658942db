// Package queue implements the dispatch channel between the job producer and
// remote workers on Redis: a ready list plus an in-flight sorted set scored
// by lease expiry. Delivery is at-least-once; a consumer that dies holding a
// lease has its message requeued, and downstream idempotency makes the
// redelivery safe.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docpack/internal/config"
)

// Message is the dispatch payload. Deliberately just identifiers so no
// personal data transits the queue.
type Message struct {
	JobID     string `json:"job_id"`
	PackageID string `json:"package_id"`
}

// DispatchQueue carries job-start messages to workers.
type DispatchQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	visibilityTTL time.Duration
}

// New builds a dispatch queue client from config.
func New(cfg config.Config) *DispatchQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 2 * time.Minute
	}
	return &DispatchQueue{
		client:        client,
		readyKey:      "dispatch:ready",
		inflightKey:   "dispatch:inflight",
		visibilityTTL: visibility,
	}
}

// Enqueue appends a dispatch message to the ready list.
func (q *DispatchQueue) Enqueue(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}
	return q.client.RPush(ctx, q.readyKey, raw).Err()
}

// DequeueWithLease pops the oldest message and records it in-flight with a
// visibility deadline. Returns ok=false when the queue is empty.
func (q *DispatchQueue) DequeueWithLease(ctx context.Context) (Message, bool, error) {
	deadline := time.Now().Add(q.visibilityTTL).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey}, deadline).Result()
	if err == redis.Nil {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	raw, ok := res.(string)
	if !ok {
		return Message{}, false, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, false, fmt.Errorf("unmarshal dispatch message: %w", err)
	}
	return msg, true, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight message.
func (q *DispatchQueue) ExtendLease(ctx context.Context, msg Message, extension time.Duration) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}
	return q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: string(raw),
	}).Err()
}

// Ack removes a message from in-flight tracking after the outcome is reported.
func (q *DispatchQueue) Ack(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}
	return q.client.ZRem(ctx, q.inflightKey, string(raw)).Err()
}

// RequeueExpired returns messages whose lease lapsed to the ready list and
// reports how many were reclaimed.
func (q *DispatchQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, m := range members {
		pipe.ZRem(ctx, q.inflightKey, m)
		pipe.RPush(ctx, q.readyKey, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(members), nil
}

// Depth returns the ready list length.
func (q *DispatchQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

var dequeueScript = redis.NewScript(`
local msg = redis.call('LPOP', KEYS[1])
if msg then
  redis.call('ZADD', KEYS[2], ARGV[1], msg)
  return msg
end
return nil
`)
