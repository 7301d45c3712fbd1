package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

const (
	loadQuery = `(?s)^SELECT\s+stats,\s*version\s+FROM\s+cycle_stats\s+WHERE\s+user_id\s*=\s*\$1\s*$`
	saveQuery = `(?s)^INSERT\s+INTO\s+cycle_stats\s*\(user_id,\s*stats,\s*version,\s*updated_at\)\s*VALUES.*ON\s+CONFLICT\s*\(user_id\)\s*DO\s+UPDATE.*WHERE\s+cycle_stats\.version\s*=\s*\$5\s*$`
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestPostgresLoadNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(loadQuery).WithArgs("alice").WillReturnError(sql.ErrNoRows)

	_, err := repo.Load(context.Background(), "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresLoadDecodes(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	start := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	stored := newCycleStats("alice", DefaultConfig())
	stored.Cycle = stored.Cycle.Fold(29)
	stored.LastPeriodStart = &start
	raw, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(loadQuery).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"stats", "version"}).AddRow(raw, int64(4)))

	got, err := repo.Load(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(4), got.Version, "column version wins over the document")
	require.InDelta(t, 29.0, got.Cycle.Value, 1e-9)
	require.True(t, got.LastPeriodStart.Equal(start))
}

func TestPostgresLoadDBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(loadQuery).WithArgs("alice").WillReturnError(errors.New("db down"))

	_, err := repo.Load(context.Background(), "alice")
	require.ErrorContains(t, err, "db error: db down")
}

func TestPostgresSaveGuardsVersion(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	st := newCycleStats("alice", DefaultConfig())
	st.Version = 3
	st.UpdatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(saveQuery).
		WithArgs("alice", sqlmock.AnyArg(), int64(3), st.UpdatedAt, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Save(context.Background(), &st))

	mock.ExpectExec(saveQuery).
		WithArgs("alice", sqlmock.AnyArg(), int64(3), st.UpdatedAt, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Save(context.Background(), &st), ErrConflict)
}

func TestPostgresSaveRejectsMissingUser(t *testing.T) {
	repo, _ := newRepoWithMock(t)
	require.ErrorIs(t, repo.Save(context.Background(), &CycleStats{}), ErrInvalidObservation)
}
