package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimitPolicy names a sliding-window rate limit.
type LimitPolicy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// The registry's defense-in-depth windows. Not a correctness primitive.
var (
	PolicyLogin  = LimitPolicy{Name: "login", Limit: 10, Window: time.Minute}
	PolicyInvite = LimitPolicy{Name: "invite", Limit: 5, Window: time.Hour}
	PolicyLLM    = LimitPolicy{Name: "llm", Limit: 30, Window: time.Minute}
)

// LimiterStore checks and consumes rate-limit budget for an actor. The
// in-memory implementation is per-process; swap in the Redis store for
// multi-instance deployments behind the same interface.
type LimiterStore interface {
	Allow(ctx context.Context, actorID string, policy LimitPolicy) (bool, error)
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiterStore is the single-process LimiterStore backed by
// golang.org/x/time token buckets, one per (policy, actor).
type MemoryLimiterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryLimiterStore creates a store and starts background cleanup of
// stale actors.
func NewMemoryLimiterStore() *MemoryLimiterStore {
	s := &MemoryLimiterStore{entries: make(map[string]*memoryEntry)}
	go s.cleanup()
	return s
}

func (s *MemoryLimiterStore) Allow(ctx context.Context, actorID string, policy LimitPolicy) (bool, error) {
	_ = ctx
	key := policy.Name + ":" + actorID

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		perSec := rate.Limit(float64(policy.Limit) / policy.Window.Seconds())
		e = &memoryEntry{limiter: rate.NewLimiter(perSec, policy.Limit)}
		s.entries[key] = e
	}
	e.lastSeen = time.Now()
	s.mu.Unlock()

	return e.limiter.Allow(), nil
}

// cleanup removes entries idle for more than an hour to bound memory.
func (s *MemoryLimiterStore) cleanup() {
	for {
		time.Sleep(10 * time.Minute)
		s.mu.Lock()
		for key, e := range s.entries {
			if time.Since(e.lastSeen) > time.Hour {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}
