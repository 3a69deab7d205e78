package intent

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

const (
	memoryUpdateConfidence = 0.82
	preferenceConfidence   = 0.80
	goalConfidence         = 0.78
	factConfidence         = 0.78
)

// anchor is a phrase that introduces personal information. When keepAnchor
// is set the phrase is part of the captured payload ("moro em Recife"),
// otherwise only what follows it is kept.
type anchor struct {
	phrase     string
	keepAnchor bool
}

func anchors(keep bool, phrases ...string) []anchor {
	out := make([]anchor, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, anchor{phrase: p, keepAnchor: keep})
	}
	return out
}

var memoryUpdateAnchors = anchors(false,
	"lembre-se que", "lembre-se de que", "lembre que", "lembra que", "lembrar que",
	"anote que", "anota que", "anote aí que", "guarde que", "guarda que",
	"salve que", "salva que", "não esqueça que", "não esquece que", "grave que",
	"registre que", "registra que", "memorize que", "quero que você lembre que",
	"quero que você saiba que", "pode anotar que", "pode lembrar que",
)

var goalAnchors = anchors(false,
	"meu objetivo é", "meu objetivo principal é", "minha meta é", "meu sonho é",
	"meu foco é", "meu plano é", "tenho como objetivo", "tenho como meta",
	"pretendo", "quero conseguir", "quero alcançar", "quero chegar a",
	"busco", "estou buscando", "estou tentando", "almejo", "planejo", "desejo",
)

var factAnchors = append(anchors(false,
	"um fato importante sobre mim é que", "fato importante sobre mim é que",
	"um fato sobre mim é que", "fato sobre mim é que", "algo importante sobre mim é que",
	"algo sobre mim é que", "uma coisa sobre mim é que", "saiba que",
),
	anchors(true,
		"moro em", "minha empresa é", "minha empresa se chama", "minha marca é",
		"trabalho com", "trabalho como", "sou formado em", "sou formada em",
		"minha profissão é", "meu nicho é", "meu público é", "tenho uma empresa de",
		"tenho um negócio de", "sou de", "nasci em", "tenho filhos", "sou mãe",
		"sou pai",
	)...,
)

// phraseExtractor captures the text that follows one of its anchors.
type phraseExtractor struct {
	intent            Intent
	confidence        float64
	minRunes          int
	minWords          int
	guardSecondPerson bool
	fallback          bool

	prefixed []anchoredPattern
	floating []anchoredPattern
}

type anchoredPattern struct {
	re         *regexp.Regexp
	keepAnchor bool
}

// extractorDef is the declarative form of a phraseExtractor.
type extractorDef struct {
	intent            Intent
	confidence        float64
	anchors           []anchor
	minRunes          int
	minWords          int
	allowPolitePrefix bool
	guardSecondPerson bool
	fallback          bool
}

var extractorDefs = []extractorDef{
	{
		intent:            UserRequestsMemoryUpdate,
		confidence:        memoryUpdateConfidence,
		anchors:           memoryUpdateAnchors,
		minRunes:          5,
		minWords:          2,
		allowPolitePrefix: true,
	},
	{
		intent:            UserSharedGoal,
		confidence:        goalConfidence,
		anchors:           goalAnchors,
		minRunes:          8,
		minWords:          2,
		guardSecondPerson: true,
		fallback:          true,
	},
	{
		intent:            UserMentionedKeyFact,
		confidence:        factConfidence,
		anchors:           factAnchors,
		minRunes:          2,
		minWords:          1,
		guardSecondPerson: true,
	},
}

func buildExtractors(assistantName string) map[Intent]*phraseExtractor {
	namePrefix := ""
	if name := textnorm.Canonical(textnorm.Normalize(assistantName)); name != "" {
		namePrefix = `(?:` + accentPattern(name) + `[\s,:!\-]*)?`
	}

	out := make(map[Intent]*phraseExtractor, len(extractorDefs))
	for _, def := range extractorDefs {
		px := &phraseExtractor{
			intent:            def.intent,
			confidence:        def.confidence,
			minRunes:          def.minRunes,
			minWords:          def.minWords,
			guardSecondPerson: def.guardSecondPerson,
			fallback:          def.fallback,
		}

		lead := namePrefix
		if def.allowPolitePrefix {
			lead += `(?:por\s+favor[\s,]*)?`
		}
		lead += `(?:eu\s+)?`

		// longer anchors first so "meu objetivo principal é" wins over "meu objetivo é"
		ordered := append([]anchor(nil), def.anchors...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return len(ordered[i].phrase) > len(ordered[j].phrase)
		})

		for _, a := range ordered {
			phrase := accentPattern(textnorm.Canonical(textnorm.Normalize(a.phrase)))
			px.prefixed = append(px.prefixed, anchoredPattern{
				re:         regexp.MustCompile(`(?is)^\s*` + lead + `(` + phrase + `)(?:[\s:,\-]+|$)(.*)$`),
				keepAnchor: a.keepAnchor,
			})
			if def.fallback {
				px.floating = append(px.floating, anchoredPattern{
					re:         regexp.MustCompile(`(?is)(?:^|[^\pL\pN])(` + phrase + `)(?:[\s:,\-]+|$)(.*)$`),
					keepAnchor: a.keepAnchor,
				})
			}
		}
		out[def.intent] = px
	}
	return out
}

// extract returns the captured payload, or "" when nothing qualifies.
func (px *phraseExtractor) extract(raw string, tables *keywordTables) string {
	for _, p := range px.prefixed {
		if content, ok := px.capture(p, raw, tables); ok {
			return content
		}
	}
	for _, p := range px.floating {
		if content, ok := px.capture(p, raw, tables); ok {
			return content
		}
	}
	return ""
}

func (px *phraseExtractor) capture(p anchoredPattern, raw string, tables *keywordTables) (string, bool) {
	m := p.re.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	content := cleanCapture(m[2])
	// "meu público é mais masculino ou feminino?" asks, it does not tell
	if strings.HasSuffix(content, "?") {
		return "", false
	}
	if !px.qualifies(content, tables) {
		return "", false
	}
	if p.keepAnchor {
		content = strings.TrimSpace(m[1]) + " " + content
	}
	return content, true
}

func (px *phraseExtractor) qualifies(content string, tables *keywordTables) bool {
	if utf8.RuneCountInString(content) < px.minRunes {
		return false
	}
	words := textnorm.Words(textnorm.Normalize(content))
	if len(words) < px.minWords {
		return false
	}
	if px.guardSecondPerson {
		for _, p := range tables.secondPerson {
			if words[0] == p {
				return false
			}
		}
	}
	return true
}

func cleanCapture(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!;, \t\n")
	return strings.TrimSpace(s)
}

// accentPattern turns a normalized phrase into a regexp fragment matching
// the phrase with or without diacritics. Word gaps accept spaces and
// hyphens ("lembre-se").
func accentPattern(phrase string) string {
	var b strings.Builder
	for i, word := range strings.Fields(phrase) {
		if i > 0 {
			b.WriteString(`[\s\-]+`)
		}
		for _, r := range word {
			if class, ok := accentClasses[r]; ok {
				b.WriteString(class)
				continue
			}
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

var accentClasses = map[rune]string{
	'a': `[aáàâãä]`,
	'e': `[eéèêë]`,
	'i': `[iíìîï]`,
	'o': `[oóòôõö]`,
	'u': `[uúùûü]`,
	'c': `[cç]`,
	'n': `[nñ]`,
}

// Preference families.

// wordEnd closes a capture group on a word boundary. \b is ASCII-only in
// RE2 and misfires next to accented letters.
const wordEnd = `(?:[^\pL\pN]|$)`

type prefFamily struct {
	field     PreferenceField
	re        *regexp.Regexp
	canonical func(captured string) string
	negatable bool
}

var preferenceFamilies = []prefFamily{
	{
		field: PreferenceTone,
		re: regexp.MustCompile(`(?i)(?:prefiro|gosto\s+mais\s+de|gosto\s+de|meu\s+tom\s+(?:é|e|:)?)\s*` +
			`(?:um\s+|uma\s+|o\s+)?(?:tom\s+|linguagem\s+|estilo\s+|jeito\s+)?(?:de\s+|mais\s+)?` +
			`(mais\s+formal|formal|direto\s+ao\s+ponto|mais\s+direto|direto|objetivo|` +
			`super\s+descontra[ií]do|mais\s+descontra[ií]do|descontra[ií]do|informal|leve)` + wordEnd),
		canonical: canonicalTone,
		negatable: true,
	},
	{
		field: PreferenceFormats,
		re: regexp.MustCompile(`(?i)(?:prefiro|gosto\s+mais\s+de|gosto\s+de|quero)\s+` +
			`(?:fazer\s+|criar\s+|postar\s+|produzir\s+|gravar\s+)?` +
			`(reels?|v[ií]deos?\s+longos?|v[ií]deos?\s+curtos?|carross[eé]is|carrossel|` +
			`stories|story|lives?|fotos?|posts?\s+est[aá]ticos?|shorts)` + wordEnd),
		canonical: canonicalFormat,
		negatable: true,
	},
	{
		field: PreferenceDislikedTopics,
		re: regexp.MustCompile(`(?i)(?:n[aã]o\s+gosto\s+de\s+(?:falar\s+(?:sobre|de)\s+)?|` +
			`evite\s+(?:falar\s+(?:sobre|de)\s+)?|n[aã]o\s+quero\s+falar\s+(?:sobre|de)\s+|` +
			`odeio\s+falar\s+(?:sobre|de)\s+)([^.!?,;\n]{3,80})`),
		canonical: strings.ToLower,
	},
}

func canonicalTone(captured string) string {
	n := textnorm.Canonical(textnorm.Normalize(captured))
	switch {
	case strings.Contains(n, "formal") && !strings.Contains(n, "informal"):
		return "mais_formal"
	case strings.Contains(n, "direto"), strings.Contains(n, "objetivo"):
		return "direto_ao_ponto"
	default:
		return "super_descontraido"
	}
}

func canonicalFormat(captured string) string {
	n := textnorm.Canonical(textnorm.Normalize(captured))
	switch {
	case strings.HasPrefix(n, "reel"):
		return "Reels"
	case strings.HasPrefix(n, "video") && strings.Contains(n, "longo"):
		return "Vídeo Longo"
	case strings.HasPrefix(n, "video"):
		return "Vídeo Curto"
	case strings.HasPrefix(n, "carross"):
		return "Carrossel"
	case strings.HasPrefix(n, "stor"):
		return "Stories"
	case strings.HasPrefix(n, "live"):
		return "Live"
	case strings.HasPrefix(n, "foto"):
		return "Foto"
	case strings.HasPrefix(n, "post"):
		return "Post Estático"
	case n == "shorts":
		return "Shorts"
	}
	return n
}

var negationTail = regexp.MustCompile(`(?i)(?:^|[^\pL])(?:n[aã]o|nunca|jamais)\s*$`)

// negationWindow is how many bytes before a match are searched for a
// negation word.
const negationWindow = 24

// negated reports whether the word right before offset end is a negation.
// Only a short window is inspected so that many negated matches in one
// message stay linear.
func negated(raw string, end int) bool {
	start := end - negationWindow
	if start <= 0 {
		return negationTail.MatchString(raw[:end])
	}
	// start the window on a word boundary so ^ in negationTail is one
	i := strings.IndexAny(raw[start:end], " \t\n")
	if i < 0 {
		return false
	}
	return negationTail.MatchString(raw[start+i : end])
}

func extractPreference(raw string) *PreferenceDetail {
	for _, fam := range preferenceFamilies {
		for _, idx := range fam.re.FindAllStringSubmatchIndex(raw, -1) {
			if fam.negatable && negated(raw, idx[0]) {
				continue
			}
			captured := cleanCapture(raw[idx[2]:idx[3]])
			if captured == "" {
				continue
			}
			return &PreferenceDetail{
				Field:    fam.field,
				Value:    fam.canonical(captured),
				RawValue: strings.TrimSpace(raw[idx[0]:idx[3]]),
			}
		}
	}
	return nil
}

// extractPersonalInfo runs the extractors in their fixed order and returns
// the first match.
func (e *Engine) extractPersonalInfo(raw string) (Result, bool) {
	if content := e.extractors[UserRequestsMemoryUpdate].extract(raw, e.tables); content != "" {
		res := determined(UserRequestsMemoryUpdate, memoryUpdateConfidence)
		res.MemoryUpdateRequestContent = content
		return res, true
	}

	if pref := extractPreference(raw); pref != nil {
		res := determined(UserStatedPreference, preferenceConfidence)
		res.ExtractedPreference = pref
		return res, true
	}

	if content := e.extractors[UserSharedGoal].extract(raw, e.tables); content != "" {
		res := determined(UserSharedGoal, goalConfidence)
		res.ExtractedGoal = content
		return res, true
	}

	if content := e.extractors[UserMentionedKeyFact].extract(raw, e.tables); content != "" {
		res := determined(UserMentionedKeyFact, factConfidence)
		res.ExtractedFact = content
		return res, true
	}

	return Result{}, false
}
