package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LockoutConfig is the failed-login policy. Both values are required;
// there are no implicit defaults.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

var (
	// ErrLockoutUnavailable wraps credential-store failures while counting.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
	// ErrLockoutConfig is returned by NewLockout for a non-positive policy.
	ErrLockoutConfig = errors.New("lockout threshold and window must be positive")
)

// LockoutStore is the persistent counter the policy drives. Implementations
// must make IncrementFailedAttempts atomic, return lockedUntil as it stands
// after the increment, and have LockUser reset the counter in the same
// write.
type LockoutStore interface {
	IncrementFailedAttempts(ctx context.Context, userID string) (int, *time.Time, error)
	LockUser(ctx context.Context, userID string, until time.Time) error
	ClearLockout(ctx context.Context, userID string) error
}

// Lockout tracks failed logins per user and locks the account once the
// threshold is reached.
type Lockout struct {
	store  LockoutStore
	config LockoutConfig
	now    func() time.Time
}

// NewLockout builds the policy. now may be nil.
func NewLockout(store LockoutStore, cfg LockoutConfig, now func() time.Time) (*Lockout, error) {
	if cfg.Threshold <= 0 || cfg.Window <= 0 {
		return nil, ErrLockoutConfig
	}
	if now == nil {
		now = time.Now
	}
	return &Lockout{store: store, config: cfg, now: now}, nil
}

// LockState is the result of inspecting a user's lockedUntil.
type LockState struct {
	Locked     bool
	RetryAfter time.Duration
	// Elapsed is set when a lock existed but has run out; the caller must
	// clear it before verifying credentials.
	Elapsed bool
}

// Inspect classifies lockedUntil against the current time.
func (l *Lockout) Inspect(lockedUntil *time.Time) LockState {
	if lockedUntil == nil || lockedUntil.IsZero() {
		return LockState{}
	}
	now := l.now()
	if lockedUntil.After(now) {
		return LockState{Locked: true, RetryAfter: lockedUntil.Sub(now)}
	}
	return LockState{Elapsed: true}
}

// FailureOutcome is the result of counting one failed attempt.
type FailureOutcome struct {
	// LockedNow is set on the attempt whose count reached the threshold.
	LockedNow bool
	// Locked is set when a lock was already in force, or when the count
	// was past the threshold because concurrent failures got there first.
	Locked     bool
	Until      time.Time
	RetryAfter time.Duration
}

// RecordFailure counts one failed attempt. When the count reaches the
// threshold the user is locked until now+Window and the counter resets.
// Attempts racing past the threshold re-assert the lock and report Locked.
func (l *Lockout) RecordFailure(ctx context.Context, userID string) (FailureOutcome, error) {
	count, lockedUntil, err := l.store.IncrementFailedAttempts(ctx, userID)
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	now := l.now()
	if lockedUntil != nil && lockedUntil.After(now) {
		return FailureOutcome{Locked: true, Until: *lockedUntil, RetryAfter: lockedUntil.Sub(now)}, nil
	}
	if count < l.config.Threshold {
		return FailureOutcome{}, nil
	}

	until := now.Add(l.config.Window)
	if err := l.store.LockUser(ctx, userID, until); err != nil {
		return FailureOutcome{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if count == l.config.Threshold {
		return FailureOutcome{LockedNow: true, Until: until}, nil
	}
	return FailureOutcome{Locked: true, Until: until, RetryAfter: l.config.Window}, nil
}

// Reset clears the counter and any lock, after a successful login, an
// elapsed lock, or an administrative unlock.
func (l *Lockout) Reset(ctx context.Context, userID string) error {
	if err := l.store.ClearLockout(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Config returns the active policy.
func (l *Lockout) Config() LockoutConfig {
	return l.config
}
