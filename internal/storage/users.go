package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/cyclecore"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUserExists is returned by CreateUser for a taken username.
var ErrUserExists = errors.New("username already taken")

// UserRepository reads and writes the users table. It implements cyclecore.UserProvider.
type UserRepository struct {
	db DBTX
}

// NewUserRepository returns a repository over db.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByUsername implements cyclecore.UserProvider. Usernames are case-insensitive.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (cyclecore.UserRecord, error) {
	query :=
		`SELECT id, username, password_hash, disabled FROM users
		 WHERE username = $1
		 `

	var u cyclecore.UserRecord
	err := r.db.QueryRowContext(ctx, query, normalize(username)).
		Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cyclecore.UserRecord{}, cyclecore.ErrUserNotFound
		}
		return cyclecore.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// CreateUser inserts an enabled account with an already-hashed password.
func (r *UserRepository) CreateUser(ctx context.Context, username, passwordHash string) (cyclecore.UserRecord, error) {
	u := cyclecore.UserRecord{
		UserID:       uuid.NewString(),
		Username:     normalize(username),
		PasswordHash: passwordHash,
	}
	if u.Username == "" || u.PasswordHash == "" {
		return cyclecore.UserRecord{}, errors.New("username and password hash are required")
	}

	query :=
		`INSERT INTO users (id, username, password_hash)
		 VALUES ($1, $2, $3)
		 `

	if _, err := r.db.ExecContext(ctx, query, u.UserID, u.Username, u.PasswordHash); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return cyclecore.UserRecord{}, ErrUserExists
		}
		return cyclecore.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// SetDisabled enables or disables an account. Disabled accounts cannot log in; tokens already
// issued stay valid until they expire.
func (r *UserRepository) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	query :=
		`UPDATE users SET disabled = $2
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, disabled)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return cyclecore.ErrUserNotFound
	}
	return nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
