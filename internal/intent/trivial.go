package intent

import (
	"strings"
	"unicode/utf8"

	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

const trivialConfidence = 0.80

// trivialShape bounds a message that only greets, thanks or says goodbye.
type trivialShape struct {
	maxWords     int
	maxFillerLen int
}

var (
	greetingShape = trivialShape{maxWords: 4, maxFillerLen: 2}
	closingShape  = trivialShape{maxWords: 5, maxFillerLen: 3}
)

// Reply pools. {greeting} is the caller's pre-rendered greeting and {name}
// becomes ", <first name>" or nothing.
var (
	greetingReplies = []string{
		"{greeting}{name}! Como posso te ajudar com seu conteúdo hoje?",
		"{greeting}{name}! Bora criar algo incrível hoje? Me conta o que você precisa.",
		"{greeting}{name}! Estou por aqui. Quer ideias, uma análise das suas métricas ou um roteiro?",
		"{greeting}{name}! Que bom te ver por aqui. No que posso ajudar?",
	}
	thanksReplies = []string{
		"Imagina{name}! Se precisar de mais alguma coisa, é só chamar.",
		"Por nada{name}! Fico feliz em ajudar.",
		"Disponha{name}! Estou aqui sempre que precisar.",
	}
	farewellReplies = []string{
		"Até mais{name}! Boa criação de conteúdo.",
		"Tchau{name}! Quando quiser, é só me chamar.",
		"Até logo{name}! Sucesso nos próximos posts.",
	}
)

// GreetingReplies, ThanksReplies and FarewellReplies return copies of the
// reply templates, mainly for callers asserting pool membership.
func GreetingReplies() []string { return append([]string(nil), greetingReplies...) }
func ThanksReplies() []string   { return append([]string(nil), thanksReplies...) }
func FarewellReplies() []string { return append([]string(nil), farewellReplies...) }

func (kt *keywordTables) onlyKeywords(words []string, keywords []string, shape trivialShape) bool {
	if len(words) == 0 || len(words) > shape.maxWords {
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

// classifyTrivial returns Greeting, Thanks or Farewell when the message is
// nothing but that, and "" otherwise.
func (kt *keywordTables) classifyTrivial(words []string) Intent {
	switch {
	case kt.onlyKeywords(words, kt.greeting, greetingShape):
		return Greeting
	case kt.onlyKeywords(words, kt.thanks, closingShape):
		return Thanks
	case kt.onlyKeywords(words, kt.farewell, closingShape):
		return Farewell
	}
	return ""
}

// RenderReply fills a reply template.
func RenderReply(template, greeting string, user User) string {
	if strings.TrimSpace(greeting) == "" {
		greeting = "Olá"
	}
	name := ""
	if first := user.FirstName(); first != "" {
		name = ", " + first
	}
	return strings.NewReplacer("{greeting}", greeting, "{name}", name).Replace(template)
}

func (e *Engine) handleTrivial(words []string, user User, greeting string) (Result, Intent, bool) {
	kind := e.tables.classifyTrivial(words)

	var pool []string
	switch kind {
	case Greeting:
		pool = greetingReplies
	case Thanks:
		pool = thanksReplies
	case Farewell:
		pool = farewellReplies
	default:
		return Result{}, "", false
	}

	template := pool[e.choose(len(pool))]
	return special(RenderReply(template, greeting, user), trivialConfidence), kind, true
}
