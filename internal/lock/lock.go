// Package lock provides per-connection run guards so that a connection is
// never ingested by two runs at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run already holds the guard.
var ErrHeld = errors.New("lock held")

// Release gives a guard back. It is safe to call more than once.
type Release func()

// Memory guards connections within one process.
type Memory struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewMemory creates an empty in-process guard.
func NewMemory() *Memory {
	return &Memory{held: make(map[int64]struct{})}
}

// Acquire takes the guard of a connection or returns ErrHeld.
func (m *Memory) Acquire(_ context.Context, connectionID int64) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[connectionID]; ok {
		return nil, fmt.Errorf("connection %d: %w", connectionID, ErrHeld)
	}
	m.held[connectionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, connectionID)
			m.mu.Unlock()
		})
	}, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Redis guards connections across processes with SET NX and a TTL. The TTL
// bounds how long a crashed run can block its connection; a live holder
// refreshes it every third of the TTL until release.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed guard. Keys are "<prefix><connection id>".
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "lock:ingest:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Acquire takes the guard of a connection or returns ErrHeld. The release
// only deletes the key while this holder still owns it.
func (r *Redis) Acquire(ctx context.Context, connectionID int64) (Release, error) {
	key := r.prefix + strconv.FormatInt(connectionID, 10)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("connection %d: %w", connectionID, ErrHeld)
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		r.refresh(key, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
		})
	}, nil
}

// refresh extends the key TTL until stop is closed or the token no longer
// owns the key.
func (r *Redis) refresh(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		n, err := refreshScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
		cancel()
		if err == nil && n == 0 {
			return
		}
	}
}
