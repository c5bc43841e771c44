package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/shopauth"
)

// ErrRedisUnavailable wraps every transport-level failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRecordCorrupt is returned when a stored hash is missing fields.
var ErrRecordCorrupt = errors.New("refresh record corrupt")

var _ shopauth.RefreshTokenStore = (*Store)(nil)

const (
	defaultPrefix    = "shopauth"
	defaultRetention = 24 * time.Hour
)

const (
	rotateStatusNotFound  int64 = 0
	rotateStatusExpired   int64 = 1
	rotateStatusMismatch  int64 = 2
	rotateStatusConsumed  int64 = 3
	rotateStatusRotated   int64 = 4
	rotateStatusWrongUser int64 = 5
)

const rotateScript = `
local raw = redis.call("HGETALL", KEYS[1])
if #raw == 0 then
  return {0}
end
local f = {}
for i = 1, #raw, 2 do
  f[raw[i]] = raw[i + 1]
end

if f.user ~= ARGV[9] then
  return {5, raw}
end
if f.hash ~= ARGV[1] then
  return {2, raw}
end
if f.revoked == "1" or (f.replaced_by ~= nil and f.replaced_by ~= "") then
  return {3, raw}
end
if tonumber(f.expires) <= tonumber(ARGV[2]) then
  return {1, raw}
end

redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[2], "replaced_by", ARGV[3])
redis.call("HSET", KEYS[2],
  "id", ARGV[3], "hash", ARGV[4], "user", f.user, "family", f.family,
  "issued", ARGV[5], "expires", ARGV[6], "revoked", "0", "ip", ARGV[7])
redis.call("PEXPIREAT", KEYS[2], ARGV[8])
redis.call("SADD", KEYS[3], ARGV[3])
redis.call("PEXPIREAT", KEYS[3], ARGV[8])
return {4, raw}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// revokeAllScript revokes the token keys passed after the user index. It
// returns -1 without writing when the index holds a member the caller did
// not declare, so the caller re-reads the index and retries.
const revokeAllScript = `
local declared = {}
for i = 2, #KEYS do
  declared[ARGV[i]] = true
end
for _, id in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  if not declared[id] then
    return -1
  end
end

local n = 0
for i = 2, #KEYS do
  local key = KEYS[i]
  if redis.call("EXISTS", key) == 1 then
    if redis.call("HGET", key, "revoked") ~= "1" then
      redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[1])
      n = n + 1
    end
  else
    redis.call("SREM", KEYS[1], ARGV[i])
  end
end
return n
`

const revokeAllAttempts = 5

var revokeAllLua = redis.NewScript(revokeAllScript)

// Options tunes key layout and record lifetime. Zero values take defaults.
type Options struct {
	Prefix string
	// Retention is how long a record is kept past ExpiresAt.
	Retention time.Duration
}

// Store keeps refresh tokens in Redis. Every key carries the {prefix} hash
// tag, so a store's keys share one cluster slot and each script declares all
// the keys it touches.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// New returns a Store over client.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	return &Store{redis: client, prefix: opts.Prefix, retention: opts.Retention}
}

func (s *Store) tokenPrefix() string          { return "{" + s.prefix + "}:rt:" }
func (s *Store) userPrefix() string           { return "{" + s.prefix + "}:rtu:" }
func (s *Store) key(id string) string         { return s.tokenPrefix() + id }
func (s *Store) userKey(userID string) string { return s.userPrefix() + userID }

func (s *Store) deadline(t shopauth.RefreshToken) time.Time {
	return t.ExpiresAt.Add(s.retention)
}

// Save stores t and indexes it under its user.
func (s *Store) Save(ctx context.Context, t shopauth.RefreshToken) error {
	key := s.key(t.ID)
	userKey := s.userKey(t.UserID)
	deadline := s.deadline(t)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encode(t))
		pipe.PExpireAt(ctx, key, deadline)
		pipe.SAdd(ctx, userKey, t.ID)
		pipe.PExpireAt(ctx, userKey, deadline)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (shopauth.RefreshToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return shopauth.RefreshToken{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return shopauth.RefreshToken{}, shopauth.ErrRefreshNotFound
	}
	return decode(id, fields)
}

// RotateRefreshToken validates and consumes id and stores next in a single
// script run. The parent is returned whenever it exists.
//
// The owner is read first so the script can declare the user index key; a
// record's owner never changes, and the script re-checks it.
func (s *Store) RotateRefreshToken(ctx context.Context, id, secretHash string, next shopauth.RefreshToken, now time.Time) (shopauth.RefreshToken, error) {
	userID, err := s.redis.HGet(ctx, s.key(id), "user").Result()
	if errors.Is(err, redis.Nil) {
		return shopauth.RefreshToken{}, shopauth.ErrRefreshNotFound
	}
	if err != nil {
		return shopauth.RefreshToken{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.key(id), s.key(next.ID), s.userKey(userID)},
		secretHash,
		now.UnixMilli(),
		next.ID,
		next.Hash,
		next.IssuedAt.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		next.IssuedIP,
		s.deadline(next).UnixMilli(),
		userID,
	).Slice()
	if err != nil {
		return shopauth.RefreshToken{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return shopauth.RefreshToken{}, ErrRecordCorrupt
	}

	status, ok := res[0].(int64)
	if !ok {
		return shopauth.RefreshToken{}, ErrRecordCorrupt
	}
	if status == rotateStatusNotFound {
		return shopauth.RefreshToken{}, shopauth.ErrRefreshNotFound
	}
	if len(res) < 2 {
		return shopauth.RefreshToken{}, ErrRecordCorrupt
	}
	parent, err := decodeFlat(id, res[1])
	if err != nil {
		return shopauth.RefreshToken{}, err
	}

	switch status {
	case rotateStatusRotated:
		return parent, nil
	case rotateStatusMismatch:
		return parent, shopauth.ErrRefreshMismatch
	case rotateStatusConsumed:
		return parent, shopauth.ErrRefreshConsumed
	case rotateStatusExpired:
		return parent, shopauth.ErrRefreshExpired
	case rotateStatusWrongUser:
		return parent, fmt.Errorf("%w: owner changed during rotation", ErrRecordCorrupt)
	default:
		return parent, ErrRecordCorrupt
	}
}

func (s *Store) Revoke(ctx context.Context, id string, at time.Time) error {
	n, err := revokeLua.Run(ctx, s.redis, []string{s.key(id)}, at.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return shopauth.ErrRefreshNotFound
	}
	return nil
}

// RevokeAllForUser revokes every indexed token of userID and prunes index
// entries whose records have expired out of Redis. A rotation that adds to
// the index between the read and the script makes the script refuse; the
// index is then read again.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	userKey := s.userKey(userID)
	for attempt := 0; attempt < revokeAllAttempts; attempt++ {
		ids, err := s.redis.SMembers(ctx, userKey).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		// ARGV[i] names the token behind KEYS[i]; ARGV[1] is the time.
		keys := make([]string, 0, len(ids)+1)
		args := make([]any, 0, len(ids)+1)
		keys = append(keys, userKey)
		args = append(args, at.UnixMilli())
		for _, id := range ids {
			keys = append(keys, s.key(id))
			args = append(args, id)
		}

		n, err := revokeAllLua.Run(ctx, s.redis, keys, args...).Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if n >= 0 {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: token index for %s kept changing", ErrRedisUnavailable, userID)
}

// ActiveCount returns how many indexed tokens of userID are still
// rotatable at now.
func (s *Store) ActiveCount(ctx context.Context, userID string, now time.Time) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	active := 0
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, shopauth.ErrRefreshNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if t.Rotatable(now) {
			active++
		}
	}
	return active, nil
}

func encode(t shopauth.RefreshToken) map[string]any {
	m := map[string]any{
		"id":      t.ID,
		"hash":    t.Hash,
		"user":    t.UserID,
		"family":  t.FamilyID,
		"issued":  t.IssuedAt.UnixMilli(),
		"expires": t.ExpiresAt.UnixMilli(),
		"revoked": "0",
		"ip":      t.IssuedIP,
	}
	if t.Revoked {
		m["revoked"] = "1"
	}
	if t.RevokedAt != nil {
		m["revoked_at"] = t.RevokedAt.UnixMilli()
	}
	if t.ReplacedBy != "" {
		m["replaced_by"] = t.ReplacedBy
	}
	return m
}

func decode(id string, f map[string]string) (shopauth.RefreshToken, error) {
	issued, err := strconv.ParseInt(f["issued"], 10, 64)
	if err != nil {
		return shopauth.RefreshToken{}, ErrRecordCorrupt
	}
	expires, err := strconv.ParseInt(f["expires"], 10, 64)
	if err != nil {
		return shopauth.RefreshToken{}, ErrRecordCorrupt
	}

	t := shopauth.RefreshToken{
		ID:         id,
		Hash:       f["hash"],
		UserID:     f["user"],
		FamilyID:   f["family"],
		IssuedAt:   time.UnixMilli(issued).UTC(),
		ExpiresAt:  time.UnixMilli(expires).UTC(),
		Revoked:    f["revoked"] == "1",
		ReplacedBy: f["replaced_by"],
		IssuedIP:   f["ip"],
	}
	if v := f["revoked_at"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return shopauth.RefreshToken{}, ErrRecordCorrupt
		}
		at := time.UnixMilli(ms).UTC()
		t.RevokedAt = &at
	}
	if t.UserID == "" {
		return shopauth.RefreshToken{}, ErrRecordCorrupt
	}
	return t, nil
}

// decodeFlat reads an HGETALL reply returned from a script.
func decodeFlat(id string, raw any) (shopauth.RefreshToken, error) {
	items, ok := raw.([]any)
	if !ok || len(items)%2 != 0 {
		return shopauth.RefreshToken{}, ErrRecordCorrupt
	}
	fields := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, ok1 := items[i].(string)
		v, ok2 := items[i+1].(string)
		if !ok1 || !ok2 {
			return shopauth.RefreshToken{}, ErrRecordCorrupt
		}
		fields[k] = v
	}
	return decode(id, fields)
}
