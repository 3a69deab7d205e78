// Package pipeline runs one conversational turn end to end: it loads the
// user's dialogue state, resolves the intent and writes back state, history
// and usage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/intent"
	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

var (
	// ErrDuplicateMessage is returned for a message ID seen recently.
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrMissingUser is returned for a message without a user ID.
	ErrMissingUser = errors.New("message has no user id")
)

// Message is one inbound user message.
type Message struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	Text     string `json:"text"`
	Greeting string `json:"greeting,omitempty"`
}

// Outcome is the result of a handled turn.
type Outcome struct {
	TurnID     string        `json:"turnId"`
	MessageID  string        `json:"messageId,omitempty"`
	UserID     string        `json:"userId"`
	Result     intent.Result `json:"result"`
	ReceivedAt time.Time     `json:"receivedAt"`
	Latency    time.Duration `json:"latencyNs"`
}

// ResponseRecord describes the reply the assistant sent for a turn. It
// becomes the short-term context of the next turn.
type ResponseRecord struct {
	Content              string          `json:"content"`
	Topic                string          `json:"topic,omitempty"`
	Entities             []string        `json:"entities,omitempty"`
	WasQuestion          bool            `json:"wasQuestion"`
	QuestionType         string          `json:"questionType,omitempty"`
	PendingActionContext json.RawMessage `json:"pendingActionContext,omitempty"`
}

// Deps are the collaborators of a Pipeline. History, Usage, Locker and
// Deduper are optional.
type Deps struct {
	Engine  *intent.Engine
	States  dialogue.Store
	History *dialogue.HistoryStore
	Usage   *dialogue.UsageCounter
	Locker  *dialogue.TurnLocker
	Deduper *Deduper
}

// Config configures a Pipeline.
type Config struct {
	TurnLockWait time.Duration
}

// Pipeline handles turns. It is safe for concurrent use; turns of the same
// user are serialized through the turn lock when one is configured.
type Pipeline struct {
	engine   *intent.Engine
	states   dialogue.Store
	history  *dialogue.HistoryStore
	usage    *dialogue.UsageCounter
	locker   *dialogue.TurnLocker
	deduper  *Deduper
	lockWait time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("pipeline: engine is required")
	}
	if deps.States == nil {
		return nil, fmt.Errorf("pipeline: state store is required")
	}
	if cfg.TurnLockWait <= 0 {
		cfg.TurnLockWait = 2 * time.Second
	}
	return &Pipeline{
		engine:   deps.Engine,
		states:   deps.States,
		history:  deps.History,
		usage:    deps.Usage,
		locker:   deps.Locker,
		deduper:  deps.Deduper,
		lockWait: cfg.TurnLockWait,
		logger:   logger.Named("pipeline"),
		now:      time.Now,
	}, nil
}

// Engine returns the intent engine.
func (p *Pipeline) Engine() *intent.Engine {
	return p.engine
}

// Handle processes one message. Store failures never fail the turn; the
// only errors are duplicates, a missing user and a cancelled context.
func (p *Pipeline) Handle(ctx context.Context, msg Message) (Outcome, error) {
	if msg.UserID == "" {
		return Outcome{}, ErrMissingUser
	}
	receivedAt := p.now()

	if p.deduper != nil && !p.deduper.FirstSeen(msg.ID) {
		p.logger.Info("Duplicate message dropped",
			zap.String("message_id", msg.ID),
			zap.String("user_id", msg.UserID))
		return Outcome{}, ErrDuplicateMessage
	}

	release, err := p.lockTurn(ctx, msg.UserID)
	if err != nil {
		if p.deduper != nil {
			p.deduper.Forget(msg.ID)
		}
		return Outcome{}, err
	}
	defer release()

	state := p.states.Load(ctx, msg.UserID)
	user := intent.User{ID: msg.UserID, Name: msg.UserName}
	res := p.engine.DetermineIntent(textnorm.Normalize(msg.Text), user, msg.Text, state, msg.Greeting, msg.UserID)

	// A pending question is answered (or abandoned) by this turn either way.
	patch := dialogue.Patch{}
	if state.PendingQuestion() != "" {
		patch = dialogue.ClearPendingAction()
	}
	p.states.Set(ctx, msg.UserID, patch)

	if p.history != nil {
		turns := []dialogue.Turn{{Role: dialogue.RoleUser, Content: msg.Text}}
		if res.IsSpecial() {
			turns = append(turns, dialogue.Turn{Role: dialogue.RoleAssistant, Content: res.Response})
		}
		p.history.Append(ctx, msg.UserID, turns...)
	}
	if p.usage != nil {
		p.usage.Increment(ctx, msg.UserID)
	}

	out := Outcome{
		TurnID:     uuid.NewString(),
		MessageID:  msg.ID,
		UserID:     msg.UserID,
		Result:     res,
		ReceivedAt: receivedAt,
		Latency:    p.now().Sub(receivedAt),
	}
	p.logger.Info("Turn handled",
		zap.String("turn_id", out.TurnID),
		zap.String("user_id", msg.UserID),
		zap.String("type", string(res.Type)),
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("latency", out.Latency))
	return out, nil
}

// lockTurn takes the user's turn lock. A lock that cannot be obtained is
// logged and the turn proceeds unserialized; only a cancelled context
// aborts it.
func (p *Pipeline) lockTurn(ctx context.Context, userID string) (func(), error) {
	if p.locker == nil {
		return func() {}, nil
	}

	lock, err := p.locker.Acquire(ctx, userID, p.lockWait)
	switch {
	case err == nil:
		return lock.Release, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, dialogue.ErrTurnInProgress):
		p.logger.Warn("Previous turn still running, proceeding without lock",
			zap.String("user_id", userID),
			zap.Duration("waited", p.lockWait))
	default:
		p.logger.Error("Turn lock unavailable, proceeding without lock",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return func() {}, nil
}

// RecordResponse stores what the assistant answered so the next turn can
// resolve follow-ups against it.
func (p *Pipeline) RecordResponse(ctx context.Context, userID string, rec ResponseRecord) (dialogue.State, error) {
	if userID == "" {
		return dialogue.State{}, ErrMissingUser
	}

	rc := &dialogue.ResponseContext{
		Entities:    rec.Entities,
		WasQuestion: rec.WasQuestion,
		Timestamp:   p.now().UnixMilli(),
	}
	if rec.Topic != "" {
		rc.Topic = dialogue.StringPtr(rec.Topic)
	}

	patch := dialogue.Patch{
		LastResponseContext: dialogue.Some(rc),
	}
	if rec.QuestionType != "" {
		patch.LastAIQuestionType = dialogue.Some(dialogue.StringPtr(rec.QuestionType))
		patch.PendingActionContext = dialogue.Some(rec.PendingActionContext)
	}

	state := p.states.Set(ctx, userID, patch)
	if p.history != nil && rec.Content != "" {
		p.history.Append(ctx, userID, dialogue.Turn{Role: dialogue.RoleAssistant, Content: rec.Content})
	}
	return state, nil
}

// State returns the user's dialogue state. With a near cache it can lag
// behind writes made by other instances for up to the cache TTL.
func (p *Pipeline) State(ctx context.Context, userID string) dialogue.State {
	return p.states.Get(ctx, userID)
}

// UpdateState merges patch into the user's dialogue state.
func (p *Pipeline) UpdateState(ctx context.Context, userID string, patch dialogue.Patch) dialogue.State {
	return p.states.Set(ctx, userID, patch)
}

// History returns the user's recent turns, or nil without a history store.
func (p *Pipeline) History(ctx context.Context, userID string) []dialogue.Turn {
	if p.history == nil {
		return nil
	}
	return p.history.Recent(ctx, userID)
}

// Usage returns the user's turn count, or 0 without a usage counter.
func (p *Pipeline) Usage(ctx context.Context, userID string) int64 {
	if p.usage == nil {
		return 0
	}
	return p.usage.Count(ctx, userID)
}
