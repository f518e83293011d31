package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// Repository implements Store on Postgres through database/sql with the
// pgx driver.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	return r.findUser(ctx, `
		SELECT id, username, password_hash, failed_login_attempts, lock_until, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username)
}

func (r *Repository) FindUserByID(ctx context.Context, id string) (User, error) {
	return r.findUser(ctx, `
		SELECT id, username, password_hash, failed_login_attempts, lock_until, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
}

func (r *Repository) findUser(ctx context.Context, query, arg string) (User, error) {
	var user User
	var lockUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.FailedLoginAttempts,
		&lockUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	if lockUntil.Valid {
		value := lockUntil.Time.UTC()
		user.LockUntil = &value
	}

	return user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, failed_login_attempts, lock_until, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NULL, $4, $5)
	`, user.ID, user.Username, user.PasswordHash, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// RecordLoginFailure bumps the counter and sets the lock in one statement,
// so concurrent failed logins for the same user never lose an increment.
func (r *Repository) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	var lockUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET
			failed_login_attempts = failed_login_attempts + 1,
			lock_until = CASE
				WHEN failed_login_attempts + 1 >= $2 THEN $3::timestamptz
				ELSE lock_until
			END,
			updated_at = $4
		WHERE id = $1
		RETURNING lock_until
	`, userID, threshold, now.UTC().Add(lockFor), now.UTC()).Scan(&lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("record login failure: %w", err)
	}

	if !lockUntil.Valid {
		return nil, nil
	}
	value := lockUntil.Time.UTC()
	return &value, nil
}

func (r *Repository) ResetLoginAttempts(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, lock_until = NULL, updated_at = $2
		WHERE id = $1
	`, userID, now.UTC())
	if err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}

	return nil
}

// ClearExpiredLocks zeroes lockout state whose deadline already passed.
// Lock expiry is implicit at login time; this is housekeeping so stale
// counters do not linger indefinitely.
func (r *Repository) ClearExpiredLocks(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE lock_until IS NOT NULL AND lock_until < NOW()
			ORDER BY lock_until ASC
			LIMIT $1
		)
		UPDATE users u
		SET failed_login_attempts = 0, lock_until = NULL, updated_at = NOW()
		FROM stale
		WHERE u.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired locks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired locks rows affected: %w", err)
	}

	return affected, nil
}
