// Package limiters holds the persistent failed-login lockout policy.
//
// [Lockout] decides when to lock; the credential store owns the counter and
// lockedUntil columns and must update them atomically.
//
// # What this package must NOT do
//
//   - Import shopauth or any store package.
//   - Decide what the caller is told; flows map outcomes to errors.
package limiters
