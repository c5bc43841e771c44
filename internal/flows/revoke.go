package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/shopauth/internal"
)

// ErrRevokeMismatch is returned when the token id exists but the secret does
// not match; revoking on the id alone would let anyone holding a leaked id
// end the session.
var ErrRevokeMismatch = errors.New("refresh token secret mismatch")

// TokenRecord is the flow-local view of a stored refresh token. Revoked
// also covers a token that has been replaced.
type TokenRecord struct {
	Found     bool
	UserID    string
	Hash      string
	Revoked   bool
	ExpiresAt time.Time
}

// usable reports whether rotation at now would accept secret for rec.
func (rec TokenRecord) usable(secret internal.RefreshSecret, now time.Time) bool {
	return rec.Found && !rec.Revoked && now.Before(rec.ExpiresAt) && secret.Matches(rec.Hash)
}

// RevokeDeps captures logout dependencies.
type RevokeDeps struct {
	Now    func() time.Time
	Get    func(ctx context.Context, id string) (TokenRecord, error)
	Revoke func(ctx context.Context, id string, at time.Time) error
}

// RevokeResult reports what happened. An unknown or already revoked token is
// not an error; logout is idempotent.
type RevokeResult struct {
	Err     error
	Decoded bool
	UserID  string
	Revoked bool
}

// RunRevoke revokes the presented refresh token without issuing a successor.
func RunRevoke(ctx context.Context, refreshToken string, deps RevokeDeps) RevokeResult {
	id, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return RevokeResult{Err: err}
	}

	rec, err := deps.Get(ctx, id.String())
	if err != nil {
		return RevokeResult{Err: err, Decoded: true}
	}
	if !rec.Found || rec.Revoked {
		return RevokeResult{Decoded: true, UserID: rec.UserID}
	}
	if !secret.Matches(rec.Hash) {
		return RevokeResult{Err: ErrRevokeMismatch, Decoded: true}
	}

	if err := deps.Revoke(ctx, id.String(), deps.Now()); err != nil {
		return RevokeResult{Err: err, Decoded: true, UserID: rec.UserID}
	}
	return RevokeResult{Decoded: true, UserID: rec.UserID, Revoked: true}
}
