// Package postgres implements the shopauth credential, refresh-token and
// role-graph stores on PostgreSQL through database/sql and the pgx stdlib
// driver. Schema changes are goose migrations embedded in the binary.
//
// Refresh rotation runs in one transaction: the parent row is locked with
// SELECT ... FOR UPDATE and consumed with a conditional UPDATE, so two
// concurrent rotations of one token cannot both succeed.
package postgres
