package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cachedSnapshot is the Redis value format for cached snapshots
type cachedSnapshot struct {
	Data json.RawMessage `json:"data"`
	Seq  uint64          `json:"seq"`
}

// SnapshotCache caches marshaled diagram snapshots in Redis
// ARCHITECTURAL DISCOVERY: Snapshot marshaling dominates full sync cost;
// an external cache also survives process restarts between syncs
type SnapshotCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSnapshotCache creates a Redis-backed snapshot cache
func NewSnapshotCache(redisURL string, ttl time.Duration) (*SnapshotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &SnapshotCache{
		client: client,
		prefix: "snapshot:",
		ttl:    ttl,
	}, nil
}

// NewSnapshotCacheWithClient creates a cache from an existing Redis client
func NewSnapshotCacheWithClient(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		client: client,
		prefix: "snapshot:",
		ttl:    ttl,
	}
}

// key generates the Redis key for a diagram snapshot
func (c *SnapshotCache) key(diagramID string) string {
	return c.prefix + diagramID
}

// Get returns a cached snapshot if present
func (c *SnapshotCache) Get(ctx context.Context, diagramID string) (json.RawMessage, uint64, bool) {
	jsonData, err := c.client.Get(ctx, c.key(diagramID)).Result()
	if err != nil {
		// redis.Nil and transport errors both read as a cache miss
		return nil, 0, false
	}

	var cached cachedSnapshot
	if err := json.Unmarshal([]byte(jsonData), &cached); err != nil {
		return nil, 0, false
	}

	return cached.Data, cached.Seq, true
}

// Set stores a snapshot with the configured TTL
func (c *SnapshotCache) Set(ctx context.Context, diagramID string, data json.RawMessage, seq uint64) error {
	jsonData, err := json.Marshal(cachedSnapshot{Data: data, Seq: seq})
	if err != nil {
		return fmt.Errorf("marshal cached snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key(diagramID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Invalidate removes a cached snapshot after the model advances
func (c *SnapshotCache) Invalidate(ctx context.Context, diagramID string) error {
	if err := c.client.Del(ctx, c.key(diagramID)).Err(); err != nil {
		return fmt.Errorf("invalidate snapshot: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
