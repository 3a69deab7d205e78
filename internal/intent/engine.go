package intent

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

// Engine resolves intents. It is safe for concurrent use: all tables are
// built in NewEngine and only read afterwards, and DetermineIntent performs
// no I/O.
type Engine struct {
	cfg        Config
	logger     *zap.Logger
	tables     *keywordTables
	extractors map[Intent]*phraseExtractor
	cascade    []cascadeRule
	pick       func(n int) int
	now        func() time.Time

	total      atomic.Int64
	pending    atomic.Int64
	trivial    atomic.Int64
	extracted  atomic.Int64
	contextual atomic.Int64
	keyword    atomic.Int64
	general    atomic.Int64
	recovered  atomic.Int64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithPicker sets the function choosing a canned reply out of n. It must
// return a value in [0, n); out-of-range values select the first reply.
func WithPicker(pick func(n int) int) Option {
	return func(e *Engine) {
		if pick != nil {
			e.pick = pick
		}
	}
}

// WithClock sets the clock used to age the dialogue context.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine. Keyword tables and extractor patterns are
// normalized and compiled here, once.
func NewEngine(cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:        cfg,
		logger:     logger.Named("intent"),
		tables:     newKeywordTables(cfg.AssistantName),
		extractors: buildExtractors(cfg.AssistantName),
		cascade:    newCascade(),
		pick:       rand.IntN,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.logger.Info("Intent engine initialized",
		zap.Bool("contextual_logic", cfg.ContextualLogicEnabled),
		zap.Duration("context_validity", cfg.ValidityWindow()),
		zap.String("assistant_name", cfg.AssistantName))
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Classify normalizes rawText and calls DetermineIntent.
func (e *Engine) Classify(rawText string, user User, state dialogue.State, greeting string) Result {
	return e.DetermineIntent(textnorm.Normalize(rawText), user, rawText, state, greeting, user.ID)
}

// DetermineIntent classifies one user message. normalizedText must be
// textnorm.Normalize(rawText). userID is only used for logging.
//
// The stages run in a fixed order and the first one that resolves wins:
// pending yes/no answer, trivial interaction, personal-info extraction,
// contextual follow-up, keyword cascade, relaxed contextual follow-up and
// finally General. It never fails; any input yields exactly one Result.
func (e *Engine) DetermineIntent(normalizedText string, user User, rawText string, state dialogue.State, greeting string, userID string) (res Result) {
	e.total.Add(1)

	defer func() {
		if r := recover(); r != nil {
			e.recovered.Add(1)
			e.logger.Error("Intent resolution panicked, falling back to general",
				zap.String("user_id", userID),
				zap.Any("panic", r))
			res = determined(General, GeneralConfidence)
		}
	}()

	res = e.determine(textnorm.Normalize(normalizedText), user, rawText, state, greeting)

	e.logger.Debug("Intent resolved",
		zap.String("user_id", userID),
		zap.String("type", string(res.Type)),
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence))
	return res
}

func (e *Engine) determine(text string, user User, rawText string, state dialogue.State, greeting string) Result {
	words := textnorm.Words(text)

	if res, ok := e.resolvePending(words, state); ok {
		e.pending.Add(1)
		return res
	}

	if res, kind, ok := e.handleTrivial(words, user, greeting); ok {
		e.trivial.Add(1)
		e.logger.Debug("Trivial interaction handled", zap.String("kind", string(kind)))
		return res
	}

	if res, ok := e.extractPersonalInfo(rawText); ok {
		e.extracted.Add(1)
		return res
	}

	now := e.now()
	if e.cfg.ContextualLogicEnabled {
		if res, ok := e.resolveContext(text, words, state, now, strictBounds); ok {
			e.contextual.Add(1)
			return res
		}
	}

	if intent := e.classifyKeywords(text); intent != General {
		e.keyword.Add(1)
		return determined(intent, ConfidenceFor(intent))
	}

	if e.cfg.ContextualLogicEnabled {
		if res, ok := e.resolveContext(text, words, state, now, relaxedBounds); ok {
			e.contextual.Add(1)
			return res
		}
	}

	e.general.Add(1)
	return determined(General, GeneralConfidence)
}

// choose returns a reply index in [0, n).
func (e *Engine) choose(n int) int {
	if n <= 1 {
		return 0
	}
	i := e.pick(n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}

// Stats counts how many messages each stage resolved.
type Stats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Trivial    int64 `json:"trivial"`
	Extracted  int64 `json:"extracted"`
	Contextual int64 `json:"contextual"`
	Keyword    int64 `json:"keyword"`
	General    int64 `json:"general"`
	Recovered  int64 `json:"recovered"`
}

// Stats returns a snapshot of the stage counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Total:      e.total.Load(),
		Pending:    e.pending.Load(),
		Trivial:    e.trivial.Load(),
		Extracted:  e.extracted.Load(),
		Contextual: e.contextual.Load(),
		Keyword:    e.keyword.Load(),
		General:    e.general.Load(),
		Recovered:  e.recovered.Load(),
	}
}
