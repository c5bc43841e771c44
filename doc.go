// Package shopauth is the session authentication and authorization core of
// the back-office API: credential verification with temporary lockout,
// signed access tokens with rotating single-use refresh tokens, permission
// resolution from a role graph, and a per-operation decision point with
// ANY/ALL match semantics.
//
// Build an [Engine] once with [New] and share it; methods are safe for
// concurrent use and keep no per-request state. Persistence is supplied
// through [UserStore], [RefreshTokenStore] and permission.Graph; see the
// store/ packages for memory, Postgres and Redis implementations.
//
// # Architecture boundaries
//
// shopauth is the public surface. Flow orchestration, the lockout policy,
// refresh-token encoding and audit dispatch live under internal/ and are
// never exported. HTTP concerns live in middleware/ and internal/httpapi;
// the client side (single-flight refresh, capability gate) lives in client/.
//
// # What this package must NOT do
//
//   - Cache effective permissions beyond one request or one access token.
//   - Let an audit sink failure change an authentication outcome.
//   - Distinguish unknown email from wrong password in anything returned to
//     the caller.
package shopauth
