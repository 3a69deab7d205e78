package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrTurnInProgress is returned when another turn for the same user holds
// the lock for longer than the caller is willing to wait.
var ErrTurnInProgress = errors.New("turn already in progress for user")

const (
	// DefaultLockTTL is the lock lifetime; the holder renews it every TTL/3.
	DefaultLockTTL = 15 * time.Second
	lockPollEvery  = 50 * time.Millisecond
)

// releaseScript deletes the lock only when it still holds our token, so a
// lock that expired and was taken by another turn is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TurnLockKey returns the redis key of a user's turn lock.
func TurnLockKey(userID string) string {
	return fmt.Sprintf("lock:turn:%s", userID)
}

// TurnLock is a held per-user lock.
type TurnLock struct {
	redis     redis.Cmdable
	key       string
	token     string
	ttl       time.Duration
	renewTick *time.Ticker
	done      chan struct{}
	logger    *zap.Logger
	userID    string
}

// Release releases the lock. It is safe to call more than once.
func (l *TurnLock) Release() {
	if l == nil || l.done == nil {
		return
	}
	close(l.done)
	l.done = nil
	if l.renewTick != nil {
		l.renewTick.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultStoreTimeout)
	defer cancel()
	if err := releaseScript.Run(ctx, l.redis, []string{l.key}, l.token).Err(); err != nil {
		l.logger.Warn("Failed to release turn lock", zap.String("user_id", l.userID), zap.Error(err))
		return
	}
	l.logger.Debug("Turn lock released", zap.String("user_id", l.userID))
}

func (l *TurnLock) renew(done <-chan struct{}) {
	for {
		select {
		case <-l.renewTick.C:
			ctx, cancel := context.WithTimeout(context.Background(), DefaultStoreTimeout)
			l.redis.Expire(ctx, l.key, l.ttl)
			cancel()
		case <-done:
			return
		}
	}
}

// TurnLocker serializes turns of the same user across instances, giving the
// state store's read-merge-write the at-most-one-writer guarantee it needs.
type TurnLocker struct {
	redis  redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewTurnLocker creates a turn locker.
func NewTurnLocker(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *TurnLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &TurnLocker{
		redis:  client,
		ttl:    ttl,
		logger: logger.Named("turnlock"),
	}
}

// Acquire takes the user's turn lock, polling for up to wait while another
// turn holds it. Redis errors are returned as-is; a lock that stays busy
// yields ErrTurnInProgress.
func (tl *TurnLocker) Acquire(ctx context.Context, userID string, wait time.Duration) (*TurnLock, error) {
	key := TurnLockKey(userID)
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		acquired, err := tl.redis.SetNX(ctx, key, token, tl.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquisition failed: %w", err)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrTurnInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollEvery):
		}
	}

	lock := &TurnLock{
		redis:     tl.redis,
		key:       key,
		token:     token,
		ttl:       tl.ttl,
		renewTick: time.NewTicker(tl.ttl / 3),
		done:      make(chan struct{}),
		logger:    tl.logger,
		userID:    userID,
	}
	go lock.renew(lock.done)

	tl.logger.Debug("Turn lock acquired",
		zap.String("user_id", userID),
		zap.Duration("ttl", tl.ttl))
	return lock, nil
}
