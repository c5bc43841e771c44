// Package internal holds helpers private to shopauth: refresh-token
// generation and codec.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: login, refresh and authorize orchestration used by the Engine
//   - limiters: persistent failed-login lockout policy
//   - rate: per-key token buckets for the HTTP credential endpoints
//   - config: daemon configuration loading
//   - logger: zap construction and context propagation
//   - httpapi: REST surface served by cmd/shopauthd
package internal
