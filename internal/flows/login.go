package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/shopauth/internal/limiters"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureValidation
	LoginFailureUnknownUser
	LoginFailureLocked
	LoginFailureBadPassword
	LoginFailureInactive
	LoginFailureUnverified
	LoginFailureBackend
)

// LoginUser is the flow-local view of a credential record.
type LoginUser struct {
	ID            string
	Email         string
	DisplayName   string
	PasswordHash  string
	Active        bool
	EmailVerified bool
	LockedUntil   *time.Time
}

// LoginResult carries the verified user or failure metadata. LockedNow is
// set on the failure that crossed the threshold.
type LoginResult struct {
	Failure     LoginFailureKind
	Err         error
	Email       string
	User        LoginUser
	RetryAfter  time.Duration
	LockedNow   bool
	LockedUntil time.Time
	Upgraded    bool
}

// LoginDeps captures credential verification dependencies.
type LoginDeps struct {
	RequireVerifiedEmail bool
	UpgradeOnLogin       bool

	Now     func() time.Time
	Lockout *limiters.Lockout

	// LookupUser reports found=false for an unknown email; err is reserved
	// for backend failures.
	LookupUser func(ctx context.Context, email string) (LoginUser, bool, error)
	// RecordSuccess returns an error matching ErrLocked when a concurrent
	// failure locked the account after LookupUser read it.
	RecordSuccess      func(ctx context.Context, userID string, at time.Time) error
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	VerifyPassword func(password, hash string) (bool, error)
	VerifyDummy    func(password string)
	NeedsUpgrade   func(hash string) (bool, error)
	HashPassword   func(password string) (string, error)

	ErrLocked error

	Warn func(msg string, err error)
}

// NormalizeEmail trims and lowercases an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RunLogin verifies email and secret and drives the lockout policy. It does
// not issue tokens.
func RunLogin(ctx context.Context, email, secret string, deps LoginDeps) LoginResult {
	email = NormalizeEmail(email)

	fields := map[string]string{}
	if email == "" {
		fields["email"] = "is required"
	}
	if secret == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return LoginResult{Failure: LoginFailureValidation, Err: &FieldError{Fields: fields}, Email: email}
	}

	user, found, err := deps.LookupUser(ctx, email)
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, Email: email}
	}
	if !found {
		// Same KDF cost as a real verify so response time does not reveal
		// whether the email exists.
		deps.VerifyDummy(secret)
		return LoginResult{Failure: LoginFailureUnknownUser, Email: email}
	}

	state := deps.Lockout.Inspect(user.LockedUntil)
	if state.Locked {
		return LoginResult{
			Failure:    LoginFailureLocked,
			Email:      email,
			User:       user,
			RetryAfter: state.RetryAfter,
		}
	}
	if state.Elapsed {
		if err := deps.Lockout.Reset(ctx, user.ID); err != nil {
			return LoginResult{Failure: LoginFailureBackend, Err: err, Email: email, User: user}
		}
		user.LockedUntil = nil
	}

	// A malformed stored hash or oversized input counts as a failed
	// attempt; the caller still only sees invalid credentials.
	ok, err := deps.VerifyPassword(secret, user.PasswordHash)
	if err != nil {
		ok = false
	}
	if !ok {
		out, lockErr := deps.Lockout.RecordFailure(ctx, user.ID)
		if lockErr != nil {
			return LoginResult{Failure: LoginFailureBackend, Err: lockErr, Email: email, User: user}
		}
		if out.Locked {
			return LoginResult{
				Failure:    LoginFailureLocked,
				Email:      email,
				User:       user,
				RetryAfter: out.RetryAfter,
			}
		}
		return LoginResult{
			Failure:     LoginFailureBadPassword,
			Err:         err,
			Email:       email,
			User:        user,
			LockedNow:   out.LockedNow,
			LockedUntil: out.Until,
		}
	}

	if !user.Active || (deps.RequireVerifiedEmail && !user.EmailVerified) {
		// No success write follows, so a lock set by a concurrent failure
		// is checked here to keep the answer the same as a wrong guess.
		if retry, locked := currentLock(ctx, email, deps); locked {
			return LoginResult{Failure: LoginFailureLocked, Email: email, User: user, RetryAfter: retry}
		}
		if !user.Active {
			return LoginResult{Failure: LoginFailureInactive, Email: email, User: user}
		}
		return LoginResult{Failure: LoginFailureUnverified, Email: email, User: user}
	}

	if err := deps.RecordSuccess(ctx, user.ID, deps.Now()); err != nil {
		if deps.ErrLocked != nil && errors.Is(err, deps.ErrLocked) {
			return LoginResult{
				Failure:    LoginFailureLocked,
				Email:      email,
				User:       user,
				RetryAfter: lockedRetryAfter(ctx, email, deps),
			}
		}
		return LoginResult{Failure: LoginFailureBackend, Err: err, Email: email, User: user}
	}

	upgraded := false
	if deps.UpgradeOnLogin {
		upgraded = upgradeHash(ctx, user, secret, deps)
	}

	return LoginResult{Failure: LoginFailureNone, Email: email, User: user, Upgraded: upgraded}
}

// currentLock re-reads the user for a lock that appeared during
// verification. A failed re-read reports no lock.
func currentLock(ctx context.Context, email string, deps LoginDeps) (time.Duration, bool) {
	user, found, err := deps.LookupUser(ctx, email)
	if err != nil || !found {
		return 0, false
	}
	state := deps.Lockout.Inspect(user.LockedUntil)
	return state.RetryAfter, state.Locked
}

// lockedRetryAfter reports the remaining lock after the success write was
// refused, falling back to the full window.
func lockedRetryAfter(ctx context.Context, email string, deps LoginDeps) time.Duration {
	if retry, locked := currentLock(ctx, email, deps); locked {
		return retry
	}
	return deps.Lockout.Config().Window
}

// upgradeHash is best-effort; failures are logged and never fail the login.
func upgradeHash(ctx context.Context, user LoginUser, secret string, deps LoginDeps) bool {
	needs, err := deps.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return false
	}
	hash, err := deps.HashPassword(secret)
	if err != nil {
		warn(deps.Warn, "password hash upgrade generation failed", err)
		return false
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		warn(deps.Warn, "password hash upgrade update failed", err)
		return false
	}
	return true
}

func warn(fn func(string, error), msg string, err error) {
	if fn != nil {
		fn(msg, err)
	}
}
