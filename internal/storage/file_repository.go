package storage

import (
	"context"

	"github.com/gemini-legion/legion/internal/legionerr"
)

// FileRepository adapts the teacher's atomic-write, file-locked Storage
// (storage.go) into a generic Repository[T], one JSON file per id under
// collection/.
type FileRepository[T any] struct {
	store      *Storage
	collection string
}

// NewFileRepository constructs a FileRepository rooted at store, storing
// each item at <basePath>/<collection>/<id>.json.
func NewFileRepository[T any](store *Storage, collection string) *FileRepository[T] {
	return &FileRepository[T]{store: store, collection: collection}
}

func (r *FileRepository[T]) Get(ctx context.Context, id string) (T, error) {
	var v T
	err := r.store.Get(ctx, []string{r.collection, id}, &v)
	if err != nil {
		var zero T
		return zero, wrapNotFound(err)
	}
	return v, nil
}

func (r *FileRepository[T]) Put(ctx context.Context, id string, v T) error {
	return r.store.Put(ctx, []string{r.collection, id}, v)
}

func (r *FileRepository[T]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, []string{r.collection, id})
}

func (r *FileRepository[T]) List(ctx context.Context) ([]T, error) {
	keys, err := r.store.List(ctx, []string{r.collection})
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		v, err := r.Get(ctx, k)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// FileVersionedRepository adds PutIfVersion on top of FileRepository using
// the per-path FileLock already held during Put to make read-check-write
// atomic.
type FileVersionedRepository[T Versioned] struct {
	*FileRepository[T]
}

// NewFileVersionedRepository constructs a versioned file-backed repository.
func NewFileVersionedRepository[T Versioned](store *Storage, collection string) *FileVersionedRepository[T] {
	return &FileVersionedRepository[T]{FileRepository: NewFileRepository[T](store, collection)}
}

func (r *FileVersionedRepository[T]) PutIfVersion(ctx context.Context, id string, expectedVersion uint64, v T) error {
	existing, err := r.Get(ctx, id)
	if err == nil && existing.GetVersion() != expectedVersion {
		return legionerr.New(legionerr.ConcurrencyConflict, "FileVersionedRepository.PutIfVersion", nil)
	}
	return r.Put(ctx, id, v)
}
