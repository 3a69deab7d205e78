package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/creatorbot/intent-kernel/internal/jsonx"
)

const (
	// StateTTL is how long a state record survives without writes.
	StateTTL = 48 * time.Hour
	// DefaultStoreTimeout bounds every redis round trip made by the stores.
	DefaultStoreTimeout = 1500 * time.Millisecond
)

// StateKey returns the redis key of a user's state record.
func StateKey(userID string) string {
	return fmt.Sprintf("state:%s", userID)
}

// Store reads and merges dialogue state records.
//
// Get may answer from a process-local cache and can lag behind writes made
// by other instances. Load and Set always go to the backing store, so a turn
// running under the TurnLocker sees and merges over the latest record.
//
// Set is a read-merge-write and is not atomic: two concurrent Set calls for
// the same user can lose one of the updates. Callers must run at most one
// turn per user at a time (see TurnLocker).
type Store interface {
	Get(ctx context.Context, userID string) State
	Load(ctx context.Context, userID string) State
	Set(ctx context.Context, userID string, patch Patch) State
}

// StoreConfig configures a RedisStore.
type StoreConfig struct {
	TTL     time.Duration
	Timeout time.Duration
}

// DefaultStoreConfig returns sensible defaults
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TTL:     StateTTL,
		Timeout: DefaultStoreTimeout,
	}
}

// RedisStore keeps state records as JSON documents in redis. Failures never
// reach the caller: reads degrade to DefaultState and writes are dropped,
// both logged.
type RedisStore struct {
	redis  redis.Cmdable
	near   *NearCache
	config StoreConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStore creates a state store. near may be nil.
func NewRedisStore(client redis.Cmdable, near *NearCache, cfg StoreConfig, logger *zap.Logger) *RedisStore {
	if cfg.TTL <= 0 {
		cfg.TTL = StateTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStoreTimeout
	}
	return &RedisStore{
		redis:  client,
		near:   near,
		config: cfg,
		logger: logger.Named("state"),
		now:    time.Now,
	}
}

// SetClock overrides the clock used to stamp lastInteraction.
func (s *RedisStore) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns the user's state, or DefaultState when the record is missing,
// corrupt or redis is unreachable. A near cache hit is served without a
// round trip.
func (s *RedisStore) Get(ctx context.Context, userID string) State {
	if s.near != nil {
		if st, ok := s.near.Get(userID); ok {
			return st
		}
	}
	return s.Load(ctx, userID)
}

// Load is Get without the near cache. The record read refreshes the cache.
func (s *RedisStore) Load(ctx context.Context, userID string) State {
	st, err := s.read(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to read dialogue state, using defaults",
			zap.String("user_id", userID),
			zap.Error(err))
		return DefaultState()
	}
	if s.near != nil {
		s.near.Set(userID, st)
	}
	return st
}

// read fetches the record from redis. A missing or malformed record yields
// DefaultState and no error; only an unreachable or failing redis is an
// error.
func (s *RedisStore) read(ctx context.Context, userID string) (State, error) {
	if s.redis == nil {
		return DefaultState(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	data, err := s.redis.Get(ctx, StateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), err
	}

	st, err := decodeState(data)
	if err != nil {
		s.logger.Warn("Malformed dialogue state, using defaults",
			zap.String("user_id", userID),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return DefaultState(), nil
	}
	return st, nil
}

// Set merges patch over the record currently in redis and writes the result
// back with the store TTL. When the current record cannot be read the write
// is dropped so that the stored record is never replaced by defaults. It
// returns the merged record even when nothing was written.
func (s *RedisStore) Set(ctx context.Context, userID string, patch Patch) State {
	current, err := s.read(ctx, userID)
	merged := patch.Apply(current, s.now())
	if err != nil {
		s.logger.Error("Failed to read dialogue state before merge, update dropped",
			zap.String("user_id", userID),
			zap.Error(err))
		return merged
	}

	data, err := jsonx.Marshal(merged)
	if err != nil {
		s.logger.Error("Failed to encode dialogue state",
			zap.String("user_id", userID),
			zap.Error(err))
		return merged
	}

	if s.near != nil {
		s.near.Delete(userID)
	}

	if s.redis == nil {
		return merged
	}

	wctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.redis.Set(wctx, StateKey(userID), data, s.config.TTL).Err(); err != nil {
		s.logger.Error("Failed to write dialogue state, update dropped",
			zap.String("user_id", userID),
			zap.Error(err))
		return merged
	}

	if s.near != nil {
		s.near.Set(userID, merged)
	}

	s.logger.Debug("Dialogue state updated",
		zap.String("user_id", userID),
		zap.Int("bytes", len(data)))
	return merged
}
