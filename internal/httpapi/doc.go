// Package httpapi is shopauthd's REST surface: the /api/auth endpoints,
// the admin account endpoints, /metrics and /healthz, routed with chi.
//
// Every engine error is translated to a status code in writeEngineError
// and nowhere else.
package httpapi
