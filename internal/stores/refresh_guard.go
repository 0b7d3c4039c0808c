package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRefreshGuardBackend = errors.New("refresh guard backend unavailable")

// RefreshGuard remembers refresh token ids that were already rotated. Entries
// live until the token would have expired anyway.
type RefreshGuard struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshGuard(redisClient redis.UniversalClient, prefix string) *RefreshGuard {
	if prefix == "" {
		prefix = "prr"
	}
	return &RefreshGuard{redis: redisClient, prefix: prefix}
}

// MarkUsed records jti and reports whether this was its first use. A
// non-positive ttl means the token already expired; it is reported as used.
func (g *RefreshGuard) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" || ttl <= 0 {
		return false, nil
	}
	ok, err := g.redis.SetNX(ctx, g.prefix+":"+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRefreshGuardBackend, err)
	}
	return ok, nil
}
