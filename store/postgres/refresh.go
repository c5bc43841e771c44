package postgres

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shopauth"
)

const refreshColumns = `id, token_hash, user_id, family_id, issued_at, expires_at,
	revoked, revoked_at, replaced_by, issued_ip`

func scanRefresh(row interface{ Scan(...any) error }) (shopauth.RefreshToken, error) {
	var (
		t          shopauth.RefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	err := row.Scan(&t.ID, &t.Hash, &t.UserID, &t.FamilyID, &t.IssuedAt, &t.ExpiresAt,
		&t.Revoked, &revokedAt, &replacedBy, &t.IssuedIP)
	if err != nil {
		return shopauth.RefreshToken{}, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	t.ReplacedBy = replacedBy.String
	return t, nil
}

func (s *Store) Save(ctx context.Context, t shopauth.RefreshToken) error {
	return insertRefresh(ctx, s.db, t)
}

func insertRefresh(ctx context.Context, db DBTX, t shopauth.RefreshToken) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, family_id, issued_at, expires_at, issued_ip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Hash, t.UserID, t.FamilyID, t.IssuedAt, t.ExpiresAt, t.IssuedIP)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (shopauth.RefreshToken, error) {
	t, err := scanRefresh(s.db.QueryRowContext(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return shopauth.RefreshToken{}, shopauth.ErrRefreshNotFound
	}
	if err != nil {
		return shopauth.RefreshToken{}, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// RotateRefreshToken locks the parent row, validates it, consumes it and
// inserts next in one transaction. Validation failures roll back and still
// return the parent as loaded.
func (s *Store) RotateRefreshToken(ctx context.Context, id, secretHash string, next shopauth.RefreshToken, now time.Time) (shopauth.RefreshToken, error) {
	var parent shopauth.RefreshToken
	err := s.withTx(ctx, func(tx DBTX) error {
		var err error
		parent, err = scanRefresh(tx.QueryRowContext(ctx,
			`SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return shopauth.ErrRefreshNotFound
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		switch {
		case subtle.ConstantTimeCompare([]byte(parent.Hash), []byte(secretHash)) != 1:
			return shopauth.ErrRefreshMismatch
		case parent.Revoked || parent.ReplacedBy != "":
			return shopauth.ErrRefreshConsumed
		case !now.Before(parent.ExpiresAt):
			return shopauth.ErrRefreshExpired
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2, replaced_by = $3
			 WHERE id = $1 AND revoked = FALSE AND replaced_by IS NULL`,
			id, now, next.ID)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("db error: %w", err)
		} else if n != 1 {
			return shopauth.ErrRefreshConsumed
		}

		next.UserID = parent.UserID
		next.FamilyID = parent.FamilyID
		return insertRefresh(ctx, tx, next)
	})
	return parent, err
}

func (s *Store) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2) WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return shopauth.ErrRefreshNotFound
	}
	return nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`,
		userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

// PurgeExpired deletes tokens that expired before cutoff and returns how
// many rows went.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
