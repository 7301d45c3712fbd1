package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// DBTX is the subset of database/sql the Postgres repository needs. Both *sql.DB and *sql.Tx
// satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository stores one JSON document per user in the cycle_stats table.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository returns a repository over db. The schema is created by the migrations in
// internal/storage.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Load implements [Repository].
func (r *PostgresRepository) Load(ctx context.Context, userID string) (*CycleStats, error) {
	query :=
		`SELECT stats, version FROM cycle_stats
		 WHERE user_id = $1
		 `

	var (
		raw     []byte
		version int64
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	st := &CycleStats{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode cycle stats for %s: %w", userID, err)
	}
	st.UserID = userID
	st.Version = version
	return st, nil
}

// Save implements [Repository]. The write is a single upsert guarded by the previous version, so
// a concurrent writer in another process surfaces as [ErrConflict] instead of a lost update.
func (r *PostgresRepository) Save(ctx context.Context, st *CycleStats) error {
	if st == nil || st.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidObservation)
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode cycle stats: %w", err)
	}

	query :=
		`INSERT INTO cycle_stats (user_id, stats, version, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET stats = EXCLUDED.stats, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
		 WHERE cycle_stats.version = $5
		 `

	res, err := r.db.ExecContext(ctx, query, st.UserID, raw, st.Version, st.UpdatedAt, st.Version-1)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
