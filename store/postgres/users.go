package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/shopauth"
)

const userColumns = `id, email, display_name, password_hash, active, email_verified,
	failed_attempts, locked_until, last_access_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (shopauth.User, error) {
	var (
		u          shopauth.User
		lockedTill sql.NullTime
		lastAccess sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Active, &u.EmailVerified,
		&u.FailedAttempts, &lockedTill, &lastAccess, &u.CreatedAt)
	if err != nil {
		return shopauth.User{}, err
	}
	if lockedTill.Valid {
		t := lockedTill.Time
		u.LockedUntil = &t
	}
	if lastAccess.Valid {
		t := lastAccess.Time
		u.LastAccessAt = &t
	}
	return u, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (shopauth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return shopauth.User{}, shopauth.ErrUserNotFound
	}
	if err != nil {
		return shopauth.User{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (shopauth.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return shopauth.User{}, shopauth.ErrUserNotFound
	}
	if err != nil {
		return shopauth.User{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) Create(ctx context.Context, u shopauth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, active, email_verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.DisplayName, u.PasswordHash, u.Active, u.EmailVerified, u.CreatedAt)
	if isUniqueViolation(err) {
		return shopauth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.execUser(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
}

// IncrementFailedAttempts is a single UPDATE ... RETURNING, atomic under
// concurrent failures for the same user. The returned lock is the row's
// current locked_until.
func (s *Store) IncrementFailedAttempts(ctx context.Context, userID string) (int, *time.Time, error) {
	var (
		n     int
		until sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET failed_attempts = failed_attempts + 1
		 WHERE id = $1
		 RETURNING failed_attempts, locked_until`, userID).Scan(&n, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, shopauth.ErrUserNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("db error: %w", err)
	}
	if !until.Valid {
		return n, nil, nil
	}
	t := until.Time
	return n, &t, nil
}

func (s *Store) LockUser(ctx context.Context, userID string, until time.Time) error {
	return s.execUser(ctx, `UPDATE users SET failed_attempts = 0, locked_until = $2 WHERE id = $1`, userID, until)
}

func (s *Store) ClearLockout(ctx context.Context, userID string) error {
	return s.execUser(ctx, `UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE id = $1`, userID)
}

// RecordLoginSuccess only applies while no lock is in force at at. A lock
// written by a concurrent failure makes it return shopauth.ErrAccountLocked.
func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	err := s.execUser(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, last_access_at = $2
		 WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)`,
		userID, at)
	if !errors.Is(err, shopauth.ErrUserNotFound) {
		return err
	}

	var exists bool
	if qerr := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); qerr != nil {
		return fmt.Errorf("db error: %w", qerr)
	}
	if exists {
		return shopauth.ErrAccountLocked
	}
	return shopauth.ErrUserNotFound
}

// SetActive flips users.active. Deactivated users fail login and live
// authorization.
func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	return s.execUser(ctx, `UPDATE users SET active = $2 WHERE id = $1`, userID, active)
}

func (s *Store) execUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return shopauth.ErrUserNotFound
	}
	return nil
}
