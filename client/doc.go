// Package client is the admin web client's side of the session: it keeps
// the token pair, attaches the access token to outgoing calls, refreshes it
// once on behalf of every concurrent caller that hit a 401, and answers
// show/hide questions for UI elements from the last known permission
// snapshot.
//
// A Coordinator owns the session. Its Transport wraps any
// http.RoundTripper; its Gate evaluates permission.Requirement values the
// same way the server does.
package client
