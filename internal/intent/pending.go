package intent

import (
	"unicode/utf8"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

const (
	confirmConfidence = 0.92
	denyConfidence    = 0.90
)

// shortReplyShape describes how short a yes/no reply must be.
type shortReplyShape struct {
	maxWords      int // reply may contain a keyword plus filler up to this many words
	maxExactWords int // reply may be exactly a keyword of up to this many words
	maxFillerLen  int // filler words must be at most this many runes
}

func (s shortReplyShape) maxLen() int {
	if s.maxExactWords > s.maxWords {
		return s.maxExactWords
	}
	return s.maxWords
}

var (
	affirmativeShape = shortReplyShape{maxWords: 3, maxExactWords: 2, maxFillerLen: 4}
	negativeShape    = shortReplyShape{maxWords: 4, maxExactWords: 3, maxFillerLen: 4}
)

func (kt *keywordTables) matchesShortReply(words []string, keywords []string, shape shortReplyShape) bool {
	if len(words) == 0 || len(words) > shape.maxLen() {
		return false
	}
	if len(words) <= shape.maxExactWords && isExactly(words, keywords) {
		return true
	}
	if len(words) > shape.maxWords {
		return false
	}
	matched, rest := textnorm.MatchPhrases(words, keywords)
	if len(matched) == 0 {
		return false
	}
	for _, w := range rest {
		if utf8.RuneCountInString(w) > shape.maxFillerLen && !kt.isName(w) {
			return false
		}
	}
	return true
}

// isSimpleAffirmative reports whether words form a short "yes". A reply
// containing a negative keyword never counts ("não pode" is a denial).
func (kt *keywordTables) isSimpleAffirmative(words []string) bool {
	if len(words) == 0 || len(words) > affirmativeShape.maxLen() {
		return false
	}
	if matched, _ := textnorm.MatchPhrases(words, kt.negative); len(matched) > 0 {
		return false
	}
	return kt.matchesShortReply(words, kt.affirmative, affirmativeShape)
}

// isSimpleNegative reports whether words form a short "no".
func (kt *keywordTables) isSimpleNegative(words []string) bool {
	return kt.matchesShortReply(words, kt.negative, negativeShape)
}

// resolvePending answers an outstanding yes/no question. It only applies
// when the state carries a pending question.
func (e *Engine) resolvePending(words []string, state dialogue.State) (Result, bool) {
	if state.PendingQuestion() == "" {
		return Result{}, false
	}

	var res Result
	switch {
	case e.tables.isSimpleAffirmative(words):
		res = determined(UserConfirmsPendingAction, confirmConfidence)
	case e.tables.isSimpleNegative(words):
		res = determined(UserDeniesPendingAction, denyConfidence)
	default:
		return Result{}, false
	}
	if len(state.PendingActionContext) > 0 {
		res.PendingActionContext = append([]byte(nil), state.PendingActionContext...)
	}
	return res, true
}
