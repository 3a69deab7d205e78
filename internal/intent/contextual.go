package intent

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

// contextBounds limits how long a reply may be for each contextual rule.
type contextBounds struct {
	questionMaxWords     int // free-form answer to the assistant's question
	continuationMaxWords int // "me fala mais" style follow-up
	summaryMaxWords      int // any rule of the summary tier
}

var (
	strictBounds  = contextBounds{questionMaxWords: 35, continuationMaxWords: 15, summaryMaxWords: 7}
	relaxedBounds = contextBounds{questionMaxWords: 60, continuationMaxWords: 30, summaryMaxWords: 15}
)

// tierConfidence holds the confidences of one contextual tier.
type tierConfidence struct {
	clarification float64
	metricDetail  float64
	dataSource    float64
	questionReply float64
	continuation  float64
}

var (
	shortTermConfidence = tierConfidence{
		clarification: 0.74,
		metricDetail:  0.76,
		dataSource:    0.72,
		questionReply: 0.70,
		continuation:  0.68,
	}
	longTermConfidence = tierConfidence{
		clarification: 0.65,
		metricDetail:  0.67,
		dataSource:    0.64,
		questionReply: 0.60,
		continuation:  0.60,
	}
)

const summaryTopicMaxRunes = 120

// contextSource is what one tier knows about the previous exchange.
type contextSource struct {
	topic       string
	subjectText string // normalized text checked for the metrics gate
	wasQuestion bool
	maxWords    int // 0 = no overall bound
	confidence  tierConfidence
}

// resolveContext runs the short-term tier and, if that does not resolve,
// the long-term tier.
func (e *Engine) resolveContext(text string, words []string, state dialogue.State, now time.Time, bounds contextBounds) (Result, bool) {
	window := e.cfg.ValidityWindow()

	if src, ok := shortTermSource(state, now, window); ok {
		if res, ok := e.matchContext(text, words, src, bounds); ok {
			return res, true
		}
	}
	if src, ok := longTermSource(state, now, window, bounds); ok {
		if res, ok := e.matchContext(text, words, src, bounds); ok {
			return res, true
		}
	}
	return Result{}, false
}

func shortTermSource(state dialogue.State, now time.Time, window time.Duration) (contextSource, bool) {
	rc := state.LastResponseContext
	if !rc.HasSignal() || !fresh(rc.Time(), now, window) {
		return contextSource{}, false
	}

	topic := rc.TopicOrEmpty()
	if topic == "" && len(rc.Entities) > 0 {
		topic = strings.Join(rc.Entities, ", ")
	}
	subject := textnorm.Normalize(rc.TopicOrEmpty() + " " + strings.Join(rc.Entities, " "))

	return contextSource{
		topic:       topic,
		subjectText: subject,
		wasQuestion: rc.WasQuestion || state.PendingQuestion() != "",
		confidence:  shortTermConfidence,
	}, true
}

func longTermSource(state dialogue.State, now time.Time, window time.Duration, bounds contextBounds) (contextSource, bool) {
	summary := strings.TrimSpace(state.Summary())
	if summary == "" || !fresh(state.LastInteractionTime(), now, window) {
		return contextSource{}, false
	}
	return contextSource{
		topic:       summaryTopic(summary),
		subjectText: textnorm.Normalize(summary),
		wasQuestion: state.PendingQuestion() != "",
		maxWords:    bounds.summaryMaxWords,
		confidence:  longTermConfidence,
	}, true
}

func fresh(at, now time.Time, window time.Duration) bool {
	if at.IsZero() {
		return false
	}
	return now.Sub(at) < window
}

// summaryTopic returns the first sentence of the summary, capped in length.
func summaryTopic(summary string) string {
	topic := summary
	if i := strings.IndexAny(topic, ".!?\n"); i > 0 {
		topic = topic[:i]
	}
	topic = strings.TrimSpace(topic)
	if utf8.RuneCountInString(topic) > summaryTopicMaxRunes {
		topic = strings.TrimSpace(string([]rune(topic)[:summaryTopicMaxRunes]))
	}
	return topic
}

func (e *Engine) matchContext(text string, words []string, src contextSource, bounds contextBounds) (Result, bool) {
	n := len(words)
	if src.maxWords > 0 && n > src.maxWords {
		return Result{}, false
	}

	kt := e.tables
	withTopic := func(intent Intent, confidence float64) (Result, bool) {
		res := determined(intent, confidence)
		res.ResolvedContextTopic = src.topic
		return res, true
	}

	if textnorm.ContainsAny(text, kt.clarification) {
		return withTopic(AskClarificationPreviousResponse, src.confidence.clarification)
	}

	if textnorm.ContainsAny(src.subjectText, kt.metricTopic) {
		if textnorm.ContainsAny(text, kt.metricDetail) {
			return withTopic(RequestMetricDetailsFromContext, src.confidence.metricDetail)
		}
		if textnorm.ContainsAny(text, kt.dataSource) {
			return withTopic(ExplainDataSourceForAnalysis, src.confidence.dataSource)
		}
	}

	if src.wasQuestion && n > 0 && n <= bounds.questionMaxWords &&
		!kt.isSimpleAffirmative(words) && !kt.isSimpleNegative(words) {
		return withTopic(ContinuePreviousTopic, src.confidence.questionReply)
	}

	if n > 0 && n <= bounds.continuationMaxWords && textnorm.ContainsAny(text, kt.continuation) {
		return withTopic(ContinuePreviousTopic, src.confidence.continuation)
	}

	return Result{}, false
}
