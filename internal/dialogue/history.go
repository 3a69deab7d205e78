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
	// HistoryTTL matches the state record TTL.
	HistoryTTL = 48 * time.Hour
	// DefaultHistoryTurns is how many turns a history document keeps.
	DefaultHistoryTurns = 20
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryKey returns the redis key of a user's history document.
func HistoryKey(userID string) string {
	return fmt.Sprintf("history:%s", userID)
}

// HistoryStore keeps the most recent turns of each user as one JSON array.
// Like the state store it is read-modify-write and fails open.
type HistoryStore struct {
	redis    redis.Cmdable
	maxTurns int
	ttl      time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHistoryStore creates a history store keeping at most maxTurns turns.
func NewHistoryStore(client redis.Cmdable, maxTurns int, timeout time.Duration, logger *zap.Logger) *HistoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryTurns
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &HistoryStore{
		redis:    client,
		maxTurns: maxTurns,
		ttl:      HistoryTTL,
		timeout:  timeout,
		logger:   logger.Named("history"),
	}
}

// Recent returns the stored turns, oldest first. A missing or corrupt
// document yields an empty history.
func (h *HistoryStore) Recent(ctx context.Context, userID string) []Turn {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	data, err := h.redis.Get(ctx, HistoryKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			h.logger.Error("Failed to read history", zap.String("user_id", userID), zap.Error(err))
		}
		return []Turn{}
	}

	var turns []Turn
	if err := jsonx.Unmarshal(data, &turns); err != nil {
		h.logger.Warn("Malformed history document, starting fresh",
			zap.String("user_id", userID),
			zap.Error(err))
		return []Turn{}
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns
}

// Append adds turns to the user's history, dropping the oldest entries once
// the document holds more than the configured number of turns.
func (h *HistoryStore) Append(ctx context.Context, userID string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}

	history := append(h.Recent(ctx, userID), turns...)
	if len(history) > h.maxTurns {
		history = history[len(history)-h.maxTurns:]
	}

	data, err := jsonx.Marshal(history)
	if err != nil {
		h.logger.Error("Failed to encode history", zap.String("user_id", userID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.redis.Set(ctx, HistoryKey(userID), data, h.ttl).Err(); err != nil {
		h.logger.Error("Failed to write history, turns dropped",
			zap.String("user_id", userID),
			zap.Int("turns", len(turns)),
			zap.Error(err))
	}
}
