// Package session implements the Session Store (C2): per-(agent,
// conversation) state and windowed history, with optimistic concurrency and
// per-key serialized mutation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/gemini-legion/legion/internal/legionerr"
	"github.com/gemini-legion/legion/internal/storage"
	"github.com/gemini-legion/legion/pkg/types"
)

// Store owns Session records exclusively (spec §3 ownership table,
// §4.2 Session Store). Mutations to a given key are serialized through a
// per-key waiter queue, adapted from the teacher's Processor.sessions
// pattern: a caller that finds a key already locked enqueues instead of
// racing, and is woken once the lock is free.
type Store struct {
	repo       storage.VersionedRepository[types.Session]
	maxHistory int

	mu      sync.Mutex
	locked  map[string]bool
	waiters map[string][]chan struct{}
}

// NewStore constructs a Session Store over repo, windowing history to
// maxHistory entries (spec §6 max_history_per_session).
func NewStore(repo storage.VersionedRepository[types.Session], maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &Store{
		repo:       repo,
		maxHistory: maxHistory,
		locked:     make(map[string]bool),
		waiters:    make(map[string][]chan struct{}),
	}
}

// Load fetches a session, creating an empty one (version 0, never
// persisted) if none exists yet.
func (s *Store) Load(ctx context.Context, key types.SessionKey) (types.Session, error) {
	sess, err := s.repo.Get(ctx, key.String())
	if err == nil {
		return sess, nil
	}
	if kind, ok := legionerr.As(err); ok && kind == legionerr.NotFound {
		now := time.Now().UTC()
		return types.Session{
			AgentID:        key.AgentID,
			ConversationID: key.ConversationID,
			State:          make(map[string]string),
			CreatedAt:      now,
			UpdatedAt:      now,
		}, nil
	}
	return types.Session{}, err
}

// lock acquires the per-key mutation lock, blocking behind any waiters
// already queued for this key.
func (s *Store) lock(ctx context.Context, key string) error {
	for {
		s.mu.Lock()
		if !s.locked[key] {
			s.locked[key] = true
			s.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		s.waiters[key] = append(s.waiters[key], ch)
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Store) unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiters := s.waiters[key]
	if len(waiters) == 0 {
		delete(s.locked, key)
		return
	}
	next := waiters[0]
	s.waiters[key] = waiters[1:]
	close(next)
}

// Mutator reads the current session and returns the value to persist.
// Returning an error aborts the mutation without writing.
type Mutator func(sess types.Session) (types.Session, error)

// Apply serializes concurrent callers on key, loads the current session,
// runs fn, windows history to maxHistory, bumps Version, and persists with
// optimistic concurrency. A ConcurrencyConflict from the repository (a
// racing writer outside this Store's lock, e.g. a second process) is
// retried once, reloading the session and running fn again; a second
// conflict is returned. This is the only path callers need for
// read-modify-write.
func (s *Store) Apply(ctx context.Context, key types.SessionKey, fn Mutator) (types.Session, error) {
	k := key.String()
	if err := s.lock(ctx, k); err != nil {
		return types.Session{}, err
	}
	defer s.unlock(k)

	for attempt := 0; ; attempt++ {
		sess, err := s.Load(ctx, key)
		if err != nil {
			return types.Session{}, err
		}
		expected := sess.Version

		next, err := fn(sess)
		if err != nil {
			return types.Session{}, err
		}

		if len(next.History) > s.maxHistory {
			next.History = next.History[len(next.History)-s.maxHistory:]
		}
		next.Version = expected + 1
		next.UpdatedAt = time.Now().UTC()

		if err := s.repo.PutIfVersion(ctx, k, expected, next); err != nil {
			if kind, ok := legionerr.As(err); ok && kind == legionerr.ConcurrencyConflict && attempt == 0 {
				continue
			}
			return types.Session{}, err
		}
		return next, nil
	}
}

// AppendHistory appends entry to the session's history and persists,
// applying the same windowing and versioning as Apply.
func (s *Store) AppendHistory(ctx context.Context, key types.SessionKey, entry types.HistoryEntry) (types.Session, error) {
	return s.Apply(ctx, key, func(sess types.Session) (types.Session, error) {
		sess.History = append(sess.History, entry)
		return sess, nil
	})
}

// SetSummary replaces the session's summary slot (used by the Memory
// Engine's context compaction, spec §4.4) and persists.
func (s *Store) SetSummary(ctx context.Context, key types.SessionKey, summary string) (types.Session, error) {
	return s.Apply(ctx, key, func(sess types.Session) (types.Session, error) {
		sess.Summary = summary
		return sess, nil
	})
}

// SetState merges k/v pairs into the session's free-form state bag and
// persists.
func (s *Store) SetState(ctx context.Context, key types.SessionKey, k, v string) (types.Session, error) {
	return s.Apply(ctx, key, func(sess types.Session) (types.Session, error) {
		if sess.State == nil {
			sess.State = make(map[string]string)
		}
		sess.State[k] = v
		return sess, nil
	})
}

// Delete removes a session entirely.
func (s *Store) Delete(ctx context.Context, key types.SessionKey) error {
	return s.repo.Delete(ctx, key.String())
}
