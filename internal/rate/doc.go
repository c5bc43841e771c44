// Package rate provides in-process per-key token buckets (golang.org/x/time/rate)
// used to throttle the login, register and refresh endpoints by client IP.
//
// The account lockout in internal/limiters is the durable defense; these
// buckets only blunt bursts from a single address.
package rate
