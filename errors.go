package shopauth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Caller-facing failures. Apart from ErrUnavailable and the configuration
// errors from Build, every Engine error matches one of these with errors.Is.
var (
	// ErrValidation is malformed input. See ValidationError for field detail.
	ErrValidation = errors.New("validation error")
	// ErrInvalidCredentials is deliberately generic: unknown email, wrong
	// password and inactive account are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while lockedUntil is in the future. The
	// concrete error is *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrUnauthenticated covers a missing, malformed, badly signed or
	// expired access token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is a valid identity lacking the required permissions or
	// roles.
	ErrForbidden = errors.New("forbidden")
	// ErrRefreshInvalid covers an absent, expired, revoked or reused refresh
	// token.
	ErrRefreshInvalid = errors.New("invalid refresh token")

	// ErrUnavailable wraps store and signing failures. It is never returned
	// in place of one of the outcomes above.
	ErrUnavailable = errors.New("auth backend unavailable")

	ErrAccountUnverified    = errors.New("account unverified")
	ErrRegistrationDisabled = errors.New("registration disabled")
	ErrEngineNotReady       = errors.New("engine not initialized")
)

// Store-level sentinels. Store implementations return these; the engine maps
// them onto the caller-facing set above.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrRefreshConsumed means the record is revoked or already replaced.
	ErrRefreshConsumed = errors.New("refresh token already consumed")
	ErrRefreshExpired  = errors.New("refresh token expired")
	// ErrRefreshMismatch means the id exists but the presented secret does
	// not hash to the stored value.
	ErrRefreshMismatch = errors.New("refresh token secret mismatch")
)

// ValidationError carries per-field messages. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// LockedError reports how long until the account accepts logins again. It
// matches ErrAccountLocked.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrAccountLocked, e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryAfter extracts the remaining lock duration from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked.RetryAfter, true
	}
	return 0, false
}
