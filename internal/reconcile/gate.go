package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate debounces inline triggers. Allow reports whether a pass may start now.
// Shared gates fail open: an extra idempotent pass is harmless.
type Gate interface {
	Allow(ctx context.Context, now time.Time) bool
}

// OpenGate always allows.
type OpenGate struct{}

func (OpenGate) Allow(context.Context, time.Time) bool { return true }

const gateKey = "reconcile:last_run"

// MemoryGate debounces per process. It measures the interval against the
// time it is given, so it follows the reconciler's clock.
type MemoryGate struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

func NewMemoryGate(interval time.Duration) *MemoryGate {
	return &MemoryGate{interval: interval}
}

func (g *MemoryGate) Allow(_ context.Context, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	// A clock that moved backwards reopens the gate.
	if !g.last.IsZero() {
		if d := now.Sub(g.last); d >= 0 && d < g.interval {
			return false
		}
	}
	g.last = now
	return true
}

// RedisGate debounces across instances with SET NX PX.
type RedisGate struct {
	client   redis.Cmdable
	key      string
	interval time.Duration
}

func NewRedisGate(client redis.Cmdable, interval time.Duration) *RedisGate {
	return &RedisGate{client: client, key: gateKey, interval: interval}
}

func (g *RedisGate) Allow(ctx context.Context, now time.Time) bool {
	ok, err := g.client.SetNX(ctx, g.key, now.UTC().Format(time.RFC3339Nano), g.interval).Result()
	if err != nil {
		log.Printf("reconcile gate: redis unavailable, running anyway: %v", err)
		return true
	}
	return ok
}

// Claimer is implemented by stores that keep a shared sync marker row.
type Claimer interface {
	ClaimSync(ctx context.Context, name string, now time.Time, interval time.Duration) (bool, error)
}

// DBGate debounces across instances through a single-row conditional update.
type DBGate struct {
	claimer  Claimer
	name     string
	interval time.Duration
}

func NewDBGate(c Claimer, interval time.Duration) *DBGate {
	return &DBGate{claimer: c, name: "reservations", interval: interval}
}

func (g *DBGate) Allow(ctx context.Context, now time.Time) bool {
	ok, err := g.claimer.ClaimSync(ctx, g.name, now, g.interval)
	if err != nil {
		log.Printf("reconcile gate: claim failed, running anyway: %v", err)
		return true
	}
	return ok
}
