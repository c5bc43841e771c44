// Package flows holds the orchestration behind each Engine operation:
// RunLogin, RunRefresh, RunAuthorize and RunRevoke.
//
// Every flow takes a typed dependency struct of functions and sentinels and
// returns a result carrying a failure kind. The root package maps kinds to
// its public errors, metrics and audit events, so flows never import it.
//
// Flows hold no state between calls and perform no I/O except through
// their dependencies.
package flows
