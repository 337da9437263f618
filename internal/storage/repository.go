package storage

import (
	"context"
	"errors"

	"github.com/gemini-legion/legion/internal/legionerr"
)

// Repository is the generic persistence contract named in spec §6:
// "Repository<T> interfaces for channels, messages, agents, sessions;
// implementations (in-memory, SQL, document) are swapped by configuration."
type Repository[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Put(ctx context.Context, id string, v T) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]T, error)
}

// Versioned is implemented by domain values that carry their own
// optimistic-concurrency version, so a VersionedRepository can enforce
// compare-and-swap semantics for the Session Store (spec §4.2).
type Versioned interface {
	GetVersion() uint64
}

// VersionedRepository adds a compare-and-swap Put on top of Repository,
// returning legionerr.ConcurrencyConflict when the stored version does not
// match expectedVersion.
type VersionedRepository[T Versioned] interface {
	Repository[T]
	PutIfVersion(ctx context.Context, id string, expectedVersion uint64, v T) error
}

func wrapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return legionerr.New(legionerr.NotFound, "repository", err)
	}
	return err
}
