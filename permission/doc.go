// Package permission resolves and evaluates role/permission sets for the
// back-office authorization layer.
//
// # Model
//
// Permission codes are flat namespaced strings ("module.action", for example
// "categories.delete"); role names are short identifiers ("admin"). Both are
// opaque: this package only performs membership, union, and intersection
// over them.
//
// A user's effective set is the union of permission codes reachable through
// active UserRole edges to active Roles. [Resolver] computes it from a
// [Graph]; [Requirement] evaluates it with ANY/ALL match semantics.
//
// # Architecture boundaries
//
// This package performs no I/O of its own. Storage is reached only through
// the [Graph] interface, implemented by the store packages.
//
// # What this package must NOT do
//
//   - Cache resolved sets beyond a single request.
//   - Import shopauth, jwt, or any store package.
//   - Interpret individual codes.
package permission
