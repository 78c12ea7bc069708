// Package dedup claims (student, exam, violation type) slots for a short
// window so that concurrent frames record a violation at most once.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

// Guard reserves a violation slot for window. Acquire returns false when the
// slot is already held. Release frees a slot whose violation was not stored.
type Guard interface {
	Acquire(ctx context.Context, studentID, examID string, vtype domain.ViolationType, window time.Duration) (bool, error)
	Release(ctx context.Context, studentID, examID string, vtype domain.ViolationType) error
}

// Key builds the slot key for a violation
func Key(studentID, examID string, vtype domain.ViolationType) string {
	return fmt.Sprintf("proctor:dedup:%s:%s:%s", studentID, examID, vtype)
}

// RedisGuard shares slots across replicas with SET NX PX
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// NewRedisGuardFromURL parses a redis:// URL and pings the server
func NewRedisGuardFromURL(ctx context.Context, url string) (*RedisGuard, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisGuard{client: client}, nil
}

func (g *RedisGuard) Acquire(ctx context.Context, studentID, examID string, vtype domain.ViolationType, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	ok, err := g.client.SetNX(ctx, Key(studentID, examID, vtype), time.Now().UnixMilli(), window).Result()
	if err != nil {
		return false, fmt.Errorf("acquire dedup slot: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, studentID, examID string, vtype domain.ViolationType) error {
	if err := g.client.Del(ctx, Key(studentID, examID, vtype)).Err(); err != nil {
		return fmt.Errorf("release dedup slot: %w", err)
	}
	return nil
}

// Ping checks the redis connection
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// MemoryGuard keeps slots in process memory for single-replica deployments
type MemoryGuard struct {
	mu    sync.Mutex
	slots map[string]time.Time
	now   func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return NewMemoryGuardWithClock(time.Now)
}

func NewMemoryGuardWithClock(now func() time.Time) *MemoryGuard {
	return &MemoryGuard{
		slots: make(map[string]time.Time),
		now:   now,
	}
}

func (g *MemoryGuard) Acquire(_ context.Context, studentID, examID string, vtype domain.ViolationType, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	key := Key(studentID, examID, vtype)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if expires, ok := g.slots[key]; ok && now.Before(expires) {
		return false, nil
	}
	g.slots[key] = now.Add(window)

	// Drop expired slots opportunistically
	if len(g.slots) > 1024 {
		for k, exp := range g.slots {
			if !now.Before(exp) {
				delete(g.slots, k)
			}
		}
	}

	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, studentID, examID string, vtype domain.ViolationType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.slots, Key(studentID, examID, vtype))
	return nil
}
