package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no entry exists for a token ID.
var ErrNotFound = errors.New("registry entry not found")

// ErrRevoked is returned when the target entry has already been consumed
// or revoked.
var ErrRevoked = errors.New("registry entry revoked")

// ErrExpired is returned when the target entry's validity window has passed.
var ErrExpired = errors.New("registry entry expired")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	consumeStatusNotFound    int64 = 0
	consumeStatusExpired     int64 = 1
	consumeStatusRevoked     int64 = 2
	consumeStatusConsumed    int64 = 3
	consumeStatusInvalidBlob int64 = 4
)

// consumeScript flips the revoked byte of a live entry exactly once.
// Concurrent consumers of the same token race through Redis's single
// command queue, so at most one caller observes revoked == 0 and wins.
// The flipped entry keeps its remaining TTL; replays see it as revoked
// until it falls out naturally.
const consumeScript = `
local function read_be64(s, i)
  local v = 0
  for j = 0, 7 do
    local b = string.byte(s, i + j)
    if not b then
      return nil
    end
    v = v * 256 + b
  end
  return v
end

local entry_key = KEYS[1]
local now_unix = tonumber(ARGV[1])

local data = redis.call("GET", entry_key)
if not data then
  return {0}
end

if #data < 20 or string.byte(data, 1) ~= 1 then
  return {4}
end

local revoked = string.byte(data, 2)
if revoked == 1 then
  return {2}
end
if revoked ~= 0 then
  return {4}
end

local expires_at = read_be64(data, 11)
if not expires_at then
  return {4}
end
if expires_at <= now_unix then
  redis.call("DEL", entry_key)
  return {1}
end

local ttl = redis.call("PTTL", entry_key)
if ttl <= 0 then
  redis.call("DEL", entry_key)
  return {1}
end

local updated = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
redis.call("SET", entry_key, updated, "PX", ttl)

return {3, updated}
`

var consumeLua = redis.NewScript(consumeScript)

// revokeScript marks an entry revoked in place, preserving its TTL.
// Missing or already revoked entries are left untouched.
const revokeScript = `
local entry_key = KEYS[1]

local data = redis.call("GET", entry_key)
if not data then
  return 0
end
if #data < 2 or string.byte(data, 2) == 1 then
  return 0
end

local ttl = redis.call("PTTL", entry_key)
if ttl <= 0 then
  redis.call("DEL", entry_key)
  return 0
end

local updated = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
redis.call("SET", entry_key, updated, "PX", ttl)
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Store is the Redis-backed refresh-token registry. Each live refresh
// token has one entry keyed by its token ID, plus membership in a
// per-account index set used for bulk revocation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a registry [Store] backed by the given Redis client.
// prefix sets the Redis key namespace for entries.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "areg"
	}
	return &Store{redis: redis, prefix: prefix}
}

func (s *Store) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Register persists a new entry with the given TTL and adds it to the
// account index. The index set's TTL is refreshed so it outlives every
// member entry.
func (s *Store) Register(ctx context.Context, e *Entry, ttl time.Duration) error {
	if e == nil || e.TokenID == "" {
		return ErrCorruptEntry
	}
	data, err := Encode(e)
	if err != nil {
		return err
	}

	entryKey := s.key(e.TokenID)
	acctKey := s.accountKey(e.AccountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey, data, ttl)
		pipe.SAdd(ctx, acctKey, e.TokenID)
		pipe.Expire(ctx, acctKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches an entry without mutating any Redis state.
func (s *Store) Get(ctx context.Context, tokenID string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	e, err := Decode(data)
	if err != nil {
		return nil, err
	}
	e.TokenID = tokenID

	return e, nil
}

// Consume atomically marks a live entry revoked and returns it. Exactly
// one of any set of concurrent callers for the same token succeeds; the
// rest get [ErrRevoked]. The revoked entry persists on its original TTL
// so later replays still map to [ErrRevoked] rather than [ErrNotFound].
func (s *Store) Consume(ctx context.Context, tokenID string) (*Entry, error) {
	key := s.key(tokenID)
	result, err := consumeLua.Run(ctx, s.redis, []string{key}, time.Now().Unix()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid consume script status", ErrRedisUnavailable)
	}

	switch code {
	case consumeStatusNotFound:
		return nil, ErrNotFound
	case consumeStatusExpired:
		return nil, ErrExpired
	case consumeStatusRevoked:
		return nil, ErrRevoked
	case consumeStatusConsumed:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing consumed entry payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid consumed entry payload", ErrRedisUnavailable)
		}

		e, decErr := Decode(blob)
		if decErr != nil {
			return nil, decErr
		}
		e.TokenID = tokenID
		return e, nil
	case consumeStatusInvalidBlob:
		return nil, ErrCorruptEntry
	default:
		return nil, fmt.Errorf("%w: unknown consume script status", ErrRedisUnavailable)
	}
}

// Revoke marks a single entry revoked, preserving its TTL. Revoking a
// missing or already revoked entry is a no-op.
func (s *Store) Revoke(ctx context.Context, tokenID string) error {
	if err := revokeLua.Run(ctx, s.redis, []string{s.key(tokenID)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAllForAccount marks every tracked entry for an account revoked
// and returns how many live entries were flipped.
//
// ATOMICITY NOTE: this reads the account index (SMembers) and then
// revokes each member individually. An entry registered between the two
// phases is not captured; it will be caught by the next call or expire
// naturally. Callers needing a hard cutover can invoke this twice.
func (s *Store) RevokeAllForAccount(ctx context.Context, accountID string) (int, error) {
	tokenIDs, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var revoked int
	for _, tokenID := range tokenIDs {
		flipped, runErr := revokeLua.Run(ctx, s.redis, []string{s.key(tokenID)}).Int64()
		if runErr != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, runErr)
		}
		if flipped == 1 {
			revoked++
		}
	}

	return revoked, nil
}

// ActiveTokenIDs returns the tracked token IDs for an account, including
// revoked entries that have not yet expired.
func (s *Store) ActiveTokenIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
