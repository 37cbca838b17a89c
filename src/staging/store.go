// Package staging holds prepared transactions until an external confirmation
// removes them or they outlive their TTL. Keys are opaque here; callers pick
// collision resistant ones.
package staging

import (
	"context"
	"sync"
	"time"

	"github.com/onemorebsmith/launchpad-claims/src/metrics"
	"github.com/onemorebsmith/launchpad-claims/src/model"
)

const DefaultTTL = 15 * time.Minute

// Store is one staging namespace. Get returns nil without error for a key that
// is absent or already past its TTL.
type Store[T any] interface {
	Namespace() model.StageNamespace
	Put(ctx context.Context, key string, payload T) (*model.Staged[T], error)
	Get(ctx context.Context, key string) (*model.Staged[T], error)
	Delete(ctx context.Context, key string) (bool, error)
	// Sweep evicts expired entries and reports how many went.
	Sweep(ctx context.Context) (int, error)
}

type MemoryStore[T any] struct {
	ns      model.StageNamespace
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*model.Staged[T]
}

func NewMemoryStore[T any](ns model.StageNamespace, ttl time.Duration) *MemoryStore[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore[T]{
		ns:      ns,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]*model.Staged[T]{},
	}
}

func (s *MemoryStore[T]) Namespace() model.StageNamespace {
	return s.ns
}

func (s *MemoryStore[T]) Put(_ context.Context, key string, payload T) (*model.Staged[T], error) {
	staged := &model.Staged[T]{Key: key, Payload: payload, CreatedAt: s.now()}
	s.mu.Lock()
	s.entries[key] = staged
	s.mu.Unlock()
	metrics.RecordStaged(string(s.ns))
	copied := *staged
	return &copied, nil
}

func (s *MemoryStore[T]) Get(_ context.Context, key string) (*model.Staged[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if staged.Expired(s.now(), s.ttl) {
		delete(s.entries, key)
		return nil, nil
	}
	copied := *staged
	return &copied, nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return !staged.Expired(s.now(), s.ttl), nil
}

func (s *MemoryStore[T]) Sweep(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, staged := range s.entries {
		if staged.Expired(now, s.ttl) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted, nil
}

// size counts entries still held, expired or not.
func (s *MemoryStore[T]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
