package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps the crawl queue in redis so it survives restarts.
// Order lives in a sorted set scored by mtime in milliseconds; members are
// "%020d|path" so equal scores fall back to size through the lexical
// member order. Entries are stored in a hash keyed by path, which is also
// what deduplicates them.
type RedisQueue struct {
	client     *redis.Client
	orderKey   string
	entriesKey string
}

func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "fpv:crawl"
	}
	return &RedisQueue{
		client:     client,
		orderKey:   prefix + ":order",
		entriesKey: prefix + ":entries",
	}
}

func orderMember(entry Entry) string {
	return fmt.Sprintf("%020d|%s", entry.Size, entry.Path)
}

func (q *RedisQueue) Enqueue(ctx context.Context, entry Entry) (bool, error) {
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal error: %w", err)
	}

	added, err := q.client.HSetNX(ctx, q.entriesKey, entry.Path, data).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store queue entry: %w", err)
	}
	if !added {
		return false, nil
	}

	err = q.client.ZAdd(ctx, q.orderKey, redis.Z{
		Score:  float64(entry.ModTime.UnixMilli()),
		Member: orderMember(entry),
	}).Err()
	if err != nil {
		q.client.HDel(ctx, q.entriesKey, entry.Path)
		return false, fmt.Errorf("failed to order queue entry: %w", err)
	}
	return true, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Entry, error) {
	popped, err := q.client.ZPopMin(ctx, q.orderKey, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop queue entry: %w", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}

	member, _ := popped[0].Member.(string)
	_, path, found := strings.Cut(member, "|")
	if !found {
		return nil, fmt.Errorf("malformed queue member %q", member)
	}

	data, err := q.client.HGet(ctx, q.entriesKey, path).Result()
	q.client.HDel(ctx, q.entriesKey, path)
	if errors.Is(err, redis.Nil) {
		// order and entry drifted apart; the path is still worth analyzing
		return &Entry{Path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return &entry, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.orderKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return int(n), nil
}

func (q *RedisQueue) Contains(ctx context.Context, path string) (bool, error) {
	ok, err := q.client.HExists(ctx, q.entriesKey, path).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check queue: %w", err)
	}
	return ok, nil
}
