package shopauth

import (
	"context"
	"time"

	"github.com/MrEthical07/shopauth/permission"
)

// User is a back-office account as held by the credential store. Email is
// stored lowercased; lookups are case-insensitive.
type User struct {
	ID             string
	Email          string
	DisplayName    string
	PasswordHash   string
	Active         bool
	EmailVerified  bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastAccessAt   *time.Time
	CreatedAt      time.Time
}

// RefreshToken is the persisted half of an opaque refresh credential. Hash
// is the hex SHA-256 of the secret; the plaintext never reaches the store.
// ReplacedBy links a rotated-out token to its successor.
type RefreshToken struct {
	ID         string
	Hash       string
	UserID     string
	FamilyID   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	ReplacedBy string
	IssuedIP   string
}

// Rotatable reports whether t may still be exchanged at now.
func (t RefreshToken) Rotatable(now time.Time) bool {
	return !t.Revoked && t.ReplacedBy == "" && now.Before(t.ExpiresAt)
}

// TokenPair is what Login, Register and Refresh hand back.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Profile is the user view returned alongside tokens.
type Profile struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// LoginResult is the success envelope for Login and Register.
type LoginResult struct {
	TokenPair
	User Profile `json:"user"`
}

// RegisterRequest is the self-registration input.
type RegisterRequest struct {
	Email                string `json:"email"`
	DisplayName          string `json:"display_name"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Identity is the caller established by Authorize. Live is set when the
// permission sets were re-resolved from the graph rather than taken from
// token claims.
type Identity struct {
	UserID      string
	Roles       permission.Set
	Permissions permission.Set
	ExpiresAt   time.Time
	Live        bool
}

// Effective returns the identity's sets as a permission.Effective.
func (i *Identity) Effective() permission.Effective {
	if i == nil {
		return permission.Effective{}
	}
	return permission.Effective{Roles: i.Roles, Permissions: i.Permissions}
}

// UserStore is the credential store. IncrementFailedAttempts must be atomic
// and return lockedUntil as it stands after the increment. LockUser must
// reset the counter in the same write. RecordLoginSuccess resets the counter,
// clears any lock and stamps LastAccessAt together, but only when no lock is
// in force at the given time; otherwise it returns ErrAccountLocked.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user User) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	IncrementFailedAttempts(ctx context.Context, userID string) (int, *time.Time, error)
	LockUser(ctx context.Context, userID string, until time.Time) error
	ClearLockout(ctx context.Context, userID string) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
}

// RefreshTokenStore persists refresh tokens.
//
// RotateRefreshToken is the one contested operation. In a single atomic step
// it must load id, verify it is rotatable at now and that secretHash
// matches, mark it revoked with ReplacedBy = next.ID, and insert next with
// UserID and FamilyID copied from the parent. It returns the parent record as loaded whenever it exists, including on
// ErrRefreshConsumed, ErrRefreshExpired and ErrRefreshMismatch, so the
// caller can attribute reuse to a user.
type RefreshTokenStore interface {
	Save(ctx context.Context, token RefreshToken) error
	Get(ctx context.Context, id string) (RefreshToken, error)
	RotateRefreshToken(ctx context.Context, id, secretHash string, next RefreshToken, now time.Time) (RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
}

// RoleAssigner is implemented by graphs that accept writes. Register uses it
// to grant Config.Account.DefaultRole.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID, roleName string) error
}
