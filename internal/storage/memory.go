package storage

import (
	"context"
	"sync"

	"github.com/gemini-legion/legion/internal/legionerr"
)

// MemoryRepository is an in-memory Repository[T] backed by a map and a
// mutex. Used for tests and for the "memory" storage.backend option.
type MemoryRepository[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository[T any]() *MemoryRepository[T] {
	return &MemoryRepository[T]{items: make(map[string]T)}
}

func (r *MemoryRepository[T]) Get(_ context.Context, id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		var zero T
		return zero, legionerr.New(legionerr.NotFound, "MemoryRepository.Get", ErrNotFound)
	}
	return v, nil
}

func (r *MemoryRepository[T]) Put(_ context.Context, id string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = v
	return nil
}

func (r *MemoryRepository[T]) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository[T]) List(_ context.Context) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for _, v := range r.items {
		out = append(out, v)
	}
	return out, nil
}

// MemoryVersionedRepository adds PutIfVersion compare-and-swap on top of
// MemoryRepository, for callers needing the Session Store's optimistic
// concurrency contract without a durable backend.
type MemoryVersionedRepository[T Versioned] struct {
	*MemoryRepository[T]
	mu sync.Mutex
}

// NewMemoryVersionedRepository constructs an empty versioned repository.
func NewMemoryVersionedRepository[T Versioned]() *MemoryVersionedRepository[T] {
	return &MemoryVersionedRepository[T]{MemoryRepository: NewMemoryRepository[T]()}
}

func (r *MemoryVersionedRepository[T]) PutIfVersion(ctx context.Context, id string, expectedVersion uint64, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.Get(ctx, id)
	if err == nil && existing.GetVersion() != expectedVersion {
		return legionerr.New(legionerr.ConcurrencyConflict, "MemoryVersionedRepository.PutIfVersion", nil)
	}
	return r.Put(ctx, id, v)
}
