// Package audit delivers authentication events to sinks without blocking
// the request that produced them.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, zap, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full semantics.
//   - [Event]: one login, lockout, refresh, revoke or authorization record.
//
// This package does not decide which events to emit; the Engine does.
package audit
