// Package middleware exposes the HTTP decision point built on
// shopauth.Engine.Authorize.
//
// # Guards
//
//   - [Require] evaluates a permission.Requirement per route.
//   - [Authenticate] only demands a valid access token.
//   - [RequireLive] forces live role resolution for critical operations.
//
// Each guard reads the Authorization header, calls Engine.Authorize, and
// injects the resulting identity into the request context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Tell the caller which permission was missing.
package middleware
