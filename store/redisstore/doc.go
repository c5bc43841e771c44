// Package redisstore is a Redis-backed shopauth.RefreshTokenStore.
//
// Each token is a hash under "{<prefix>}:rt:<id>" and every token a user
// holds is indexed in the set "{<prefix>}:rtu:<userID>". The braces are a
// cluster hash tag: all of a store's keys live in one slot, so the store
// works on Redis Cluster through a redis.UniversalClient, at the cost of
// not spreading refresh tokens across shards. Rotation runs as one Lua
// script, so two concurrent rotations of the same parent cannot both
// succeed. Records outlive their expiry by Options.Retention so reuse of a
// consumed token is still recognized after it would have expired.
package redisstore
