package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// UsageTTL is the lifetime of a usage counter after its last increment.
const UsageTTL = 7 * 24 * time.Hour

// UsageKey returns the redis key of a user's usage counter.
func UsageKey(userID string) string {
	return fmt.Sprintf("usage:%s", userID)
}

// UsageCounter counts processed turns per user.
type UsageCounter struct {
	redis   redis.Cmdable
	timeout time.Duration
	logger  *zap.Logger
}

// NewUsageCounter creates a usage counter.
func NewUsageCounter(client redis.Cmdable, timeout time.Duration, logger *zap.Logger) *UsageCounter {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &UsageCounter{
		redis:   client,
		timeout: timeout,
		logger:  logger.Named("usage"),
	}
}

// Increment adds one turn to the user's counter and refreshes its TTL. It
// returns the new count, or 0 when redis is unavailable.
func (u *UsageCounter) Increment(ctx context.Context, userID string) int64 {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	key := UsageKey(userID)
	pipe := u.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, UsageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		u.logger.Error("Failed to increment usage counter",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0
	}
	return incr.Val()
}

// Count returns the user's current counter value.
func (u *UsageCounter) Count(ctx context.Context, userID string) int64 {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	n, err := u.redis.Get(ctx, UsageKey(userID)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			u.logger.Error("Failed to read usage counter",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return 0
	}
	return n
}
