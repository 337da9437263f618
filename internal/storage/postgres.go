package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemini-legion/legion/internal/legionerr"
)

// PostgresRepository is a JSONB-document-per-row Repository[T], satisfying
// spec §6's "SQL" persistence option. One table per collection, shaped:
//
//	CREATE TABLE <collection> (
//	    id         TEXT PRIMARY KEY,
//	    version    BIGINT NOT NULL DEFAULT 0,
//	    data       JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresRepository[T any] struct {
	pool       *pgxpool.Pool
	collection string
}

// NewPostgresRepository wraps an existing pool. Callers are responsible for
// having created the collection's table (see EnsureSchema).
func NewPostgresRepository[T any](pool *pgxpool.Pool, collection string) *PostgresRepository[T] {
	return &PostgresRepository[T]{pool: pool, collection: collection}
}

// EnsureSchema creates the collection's table if it does not already exist.
func (r *PostgresRepository[T]) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+pgx.Identifier{r.collection}.Sanitize()+` (
			id TEXT PRIMARY KEY,
			version BIGINT NOT NULL DEFAULT 0,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (r *PostgresRepository[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	row := r.pool.QueryRow(ctx,
		`SELECT data FROM `+pgx.Identifier{r.collection}.Sanitize()+` WHERE id = $1`, id)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return zero, legionerr.New(legionerr.NotFound, "PostgresRepository.Get", err)
		}
		return zero, legionerr.New(legionerr.Internal, "PostgresRepository.Get", err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, legionerr.New(legionerr.Internal, "PostgresRepository.Get", err)
	}
	return v, nil
}

func (r *PostgresRepository[T]) Put(ctx context.Context, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return legionerr.New(legionerr.Internal, "PostgresRepository.Put", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO `+pgx.Identifier{r.collection}.Sanitize()+` (id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, id, data)
	if err != nil {
		return legionerr.New(legionerr.Internal, "PostgresRepository.Put", err)
	}
	return nil
}

func (r *PostgresRepository[T]) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM `+pgx.Identifier{r.collection}.Sanitize()+` WHERE id = $1`, id)
	if err != nil {
		return legionerr.New(legionerr.Internal, "PostgresRepository.Delete", err)
	}
	return nil
}

func (r *PostgresRepository[T]) List(ctx context.Context) ([]T, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT data FROM `+pgx.Identifier{r.collection}.Sanitize()+` ORDER BY id`)
	if err != nil {
		return nil, legionerr.New(legionerr.Internal, "PostgresRepository.List", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, legionerr.New(legionerr.Internal, "PostgresRepository.List", err)
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, legionerr.New(legionerr.Internal, "PostgresRepository.List", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PutIfVersion performs the Session Store's optimistic-concurrency write:
// UPDATE ... WHERE id = $1 AND version = $2, falling back to an INSERT when
// no row exists yet. A zero rows-affected UPDATE (row exists, version
// mismatch) surfaces ConcurrencyConflict.
func (r *PostgresRepository[T]) PutIfVersion(ctx context.Context, id string, expectedVersion uint64, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return legionerr.New(legionerr.Internal, "PostgresRepository.PutIfVersion", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE `+pgx.Identifier{r.collection}.Sanitize()+`
		SET data = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
	`, id, expectedVersion, data)
	if err != nil {
		return legionerr.New(legionerr.Internal, "PostgresRepository.PutIfVersion", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No existing row: this is the first write for id, only valid when the
	// caller expected version 0. The row starts at version 1, so the next
	// write's UPDATE matches on expectedVersion 1; a row that a concurrent
	// first write inserted meanwhile surfaces ConcurrencyConflict.
	if expectedVersion != 0 {
		return legionerr.New(legionerr.ConcurrencyConflict, "PostgresRepository.PutIfVersion", nil)
	}
	tag, err = r.pool.Exec(ctx, `
		INSERT INTO `+pgx.Identifier{r.collection}.Sanitize()+` (id, version, data, updated_at)
		VALUES ($1, 1, $2, now())
		ON CONFLICT (id) DO NOTHING
	`, id, data)
	if err != nil {
		return legionerr.New(legionerr.Internal, "PostgresRepository.PutIfVersion", err)
	}
	if tag.RowsAffected() == 0 {
		return legionerr.New(legionerr.ConcurrencyConflict, "PostgresRepository.PutIfVersion", nil)
	}
	return nil
}
