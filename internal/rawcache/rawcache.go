// Package rawcache keeps the last parsed source records of each connection in
// Redis, so offers can be rebuilt after a mapping change without refetching.
package rawcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"job_distributor/internal/record"
)

// ErrMiss is returned when no records are cached for a connection.
var ErrMiss = errors.New("raw records not cached")

// NewRedisClient creates and verifies a Redis client connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

// Cache stores record sets under "raw:connection:<id>" with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Cache. A non-positive ttl keeps entries for a day.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func key(connectionID int64) string {
	return "raw:connection:" + strconv.FormatInt(connectionID, 10)
}

// Put replaces the cached records of a connection.
func (c *Cache) Put(ctx context.Context, connectionID int64, recs []*record.Record) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := c.client.Set(ctx, key(connectionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache records: %w", err)
	}
	return nil
}

// Get returns the cached records of a connection, in their original order.
func (c *Cache) Get(ctx context.Context, connectionID int64) ([]*record.Record, error) {
	data, err := c.client.Get(ctx, key(connectionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("connection %d: %w", connectionID, ErrMiss)
	}
	if err != nil {
		return nil, fmt.Errorf("read cached records: %w", err)
	}

	var recs []*record.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode cached records: %w", err)
	}
	return recs, nil
}
