package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errResetGrantNotFound         = errors.New("reset grant not found")
	errResetGrantRedisUnavailable = errors.New("reset grant redis unavailable")
)

// resetGrantStore bridges the two halves of a password reset: confirming
// the OTP mints a short-lived single-use grant, and the actual password
// change redeems it. GETDEL makes redemption single-use without a
// transaction.
type resetGrantStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newResetGrantStore(redisClient redis.UniversalClient) *resetGrantStore {
	return &resetGrantStore{redis: redisClient, prefix: "arpg"}
}

func (s *resetGrantStore) key(grantID string) string {
	return s.prefix + ":" + grantID
}

func (s *resetGrantStore) Save(ctx context.Context, grantID, accountID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(grantID), accountID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errResetGrantRedisUnavailable, err)
	}
	return nil
}

// Consume redeems a grant and returns the account it was minted for.
// A second redemption of the same grant fails.
func (s *resetGrantStore) Consume(ctx context.Context, grantID string) (string, error) {
	accountID, err := s.redis.GetDel(ctx, s.key(grantID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errResetGrantNotFound
		}
		return "", fmt.Errorf("%w: %v", errResetGrantRedisUnavailable, err)
	}
	return accountID, nil
}
