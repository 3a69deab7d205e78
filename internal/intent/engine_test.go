package intent

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, contextual bool, opts ...Option) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ContextualLogicEnabled = contextual
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewEngine(cfg, zaptest.NewLogger(t), opts...)
}

func classify(e *Engine, raw string, state dialogue.State) Result {
	return e.DetermineIntent(textnorm.Normalize(raw), User{ID: "u1", Name: "Ana Souza"}, raw, state, "Bom dia", "u1")
}

func pendingState(question string, ctx string) dialogue.State {
	st := dialogue.DefaultState()
	st.LastAIQuestionType = dialogue.StringPtr(question)
	if ctx != "" {
		st.PendingActionContext = json.RawMessage(ctx)
	}
	return st
}

func freshContext(topic string, age time.Duration, wasQuestion bool) dialogue.State {
	st := dialogue.DefaultState()
	st.LastResponseContext = &dialogue.ResponseContext{
		Topic:       dialogue.StringPtr(topic),
		WasQuestion: wasQuestion,
		Timestamp:   testNow.Add(-age).UnixMilli(),
	}
	st.LastInteraction = testNow.Add(-age).UnixMilli()
	return st
}

func TestScenarioConfirmPendingAction(t *testing.T) {
	e := newTestEngine(t, false)

	res := classify(e, "sim", pendingState("confirm_fetch_day_stats", `{"day":"monday"}`))

	assert.Equal(t, IntentDetermined, res.Type)
	assert.Equal(t, UserConfirmsPendingAction, res.Intent)
	assert.Equal(t, 0.92, res.Confidence)
	assert.JSONEq(t, `{"day":"monday"}`, string(res.PendingActionContext))
}

func TestScenarioGreeting(t *testing.T) {
	e := newTestEngine(t, false, WithPicker(func(n int) int { return 1 }))
	user := User{ID: "u1", Name: "Ana Souza"}

	res := classify(e, "oi, bom dia!", dialogue.DefaultState())

	require.True(t, res.IsSpecial())
	assert.Equal(t, 0.80, res.Confidence)
	assert.Equal(t, RenderReply(greetingReplies[1], "Bom dia", user), res.Response)
	assert.Equal(t, "Bom dia, Ana! Bora criar algo incrível hoje? Me conta o que você precisa.", res.Response)
}

func TestScenarioSharedGoal(t *testing.T) {
	e := newTestEngine(t, false)

	res := classify(e, "meu objetivo é crescer 10 mil seguidores em 3 meses", dialogue.DefaultState())

	assert.Equal(t, UserSharedGoal, res.Intent)
	assert.Equal(t, "crescer 10 mil seguidores em 3 meses", res.ExtractedGoal)
	assert.Equal(t, 0.78, res.Confidence)
}

func TestScenarioBestTime(t *testing.T) {
	e := newTestEngine(t, true)

	res := classify(e, "quais os melhores horários para postar?", dialogue.DefaultState())

	assert.Equal(t, AskBestTime, res.Intent)
	assert.Equal(t, 0.75, res.Confidence)
}

func TestScenarioContinuePreviousTopic(t *testing.T) {
	e := newTestEngine(t, true)

	res := classify(e, "e sobre isso, me fala mais", freshContext("análise de engajamento", 2*time.Minute, false))

	assert.Equal(t, ContinuePreviousTopic, res.Intent)
	assert.Equal(t, "análise de engajamento", res.ResolvedContextTopic)
	assert.Equal(t, 0.68, res.Confidence)
}

func TestScenarioGibberish(t *testing.T) {
	e := newTestEngine(t, true)

	res := classify(e, "xkcd qwerty zzzz", dialogue.DefaultState())

	assert.Equal(t, IntentDetermined, res.Type)
	assert.Equal(t, General, res.Intent)
	assert.Equal(t, GeneralConfidence, res.Confidence)
}

func TestTotality(t *testing.T) {
	inputs := map[string]string{
		"empty":        "",
		"whitespace":   "   \t\n ",
		"punctuation":  "?!...,,;",
		"emoji":        "🙂🙂🙂",
		"invalid utf8": "\xff\xfe\x00abc",
		"very long":    strings.Repeat("blá blá ", 20000),
		"long anchor":  "meu objetivo é " + strings.Repeat("crescer ", 5000),
		"long denial":  strings.Repeat("não ", 40000),
		"long negated": strings.Repeat("não prefiro formal ", 5000),
	}
	states := map[string]dialogue.State{
		"default": dialogue.DefaultState(),
		"pending": pendingState("confirm_plan", `{"x":1}`),
		"context": freshContext("métricas de alcance", time.Minute, true),
	}

	for _, contextual := range []bool{false, true} {
		e := newTestEngine(t, contextual)
		for in, raw := range inputs {
			for sn, st := range states {
				t.Run(in+"/"+sn, func(t *testing.T) {
					var res Result
					require.NotPanics(t, func() { res = classify(e, raw, st) })
					assert.Contains(t, []ResultType{IntentDetermined, SpecialHandled}, res.Type)
					assert.GreaterOrEqual(t, res.Confidence, 0.0)
					assert.LessOrEqual(t, res.Confidence, 1.0)
					if res.Type == IntentDetermined {
						assert.NotEmpty(t, res.Intent)
					} else {
						assert.NotEmpty(t, res.Response)
					}
				})
			}
		}
	}
}

func TestLongRepliesResolveInLinearTime(t *testing.T) {
	e := newTestEngine(t, true)
	st := pendingState("confirm_plan", `{"x":1}`)
	st.LastResponseContext = freshContext("métricas de alcance", time.Minute, true).LastResponseContext

	for _, raw := range []string{
		strings.Repeat("não ", 100000),
		strings.Repeat("sim ", 100000),
		strings.Repeat("não prefiro formal ", 20000),
	} {
		start := time.Now()
		res := classify(e, raw, st)
		assert.Less(t, time.Since(start), 3*time.Second)
		assert.NotEqual(t, UserConfirmsPendingAction, res.Intent)
		assert.NotEqual(t, UserDeniesPendingAction, res.Intent)
	}
}

func TestEmptyReplyToQuestionIsGeneral(t *testing.T) {
	e := newTestEngine(t, true)

	res := classify(e, "", freshContext("nicho do perfil", time.Minute, true))

	assert.Equal(t, General, res.Intent)
}

func TestPendingActionPrecedence(t *testing.T) {
	e := newTestEngine(t, true)
	st := pendingState("confirm_generate_ideas", `{"count":3}`)
	st.LastResponseContext = &dialogue.ResponseContext{
		Topic:       dialogue.StringPtr("ideias de reels"),
		WasQuestion: true,
		Timestamp:   testNow.Add(-time.Minute).UnixMilli(),
	}

	for _, text := range []string{"sim", "Sim!", "pode ser", "claro", "claro que sim", "sim, top 5", "claro, meme", "sim tuca"} {
		t.Run(text, func(t *testing.T) {
			res := classify(e, text, st)
			assert.Equal(t, UserConfirmsPendingAction, res.Intent)
			assert.Equal(t, 0.92, res.Confidence)
			assert.JSONEq(t, `{"count":3}`, string(res.PendingActionContext))
		})
	}

	for _, text := range []string{"não", "nao", "agora não", "não pode", "não, obrigado"} {
		t.Run(text, func(t *testing.T) {
			res := classify(e, text, st)
			assert.Equal(t, UserDeniesPendingAction, res.Intent)
			assert.Equal(t, 0.90, res.Confidence)
		})
	}
}

func TestShortRepliesWithoutPendingQuestion(t *testing.T) {
	e := newTestEngine(t, false)

	assert.Equal(t, General, classify(e, "sim", dialogue.DefaultState()).Intent)
	assert.Equal(t, RankingRequest, classify(e, "sim, top 5", dialogue.DefaultState()).Intent)
}

func TestCascadeDisambiguation(t *testing.T) {
	e := newTestEngine(t, false)

	tests := []struct {
		text       string
		intent     Intent
		confidence float64
	}{
		{"me escreve um roteiro de humor", HumorScriptRequest, 0.80},
		{"quero um roteiro engraçado sobre academia", HumorScriptRequest, 0.80},
		{"faz um roteiro para reels", ScriptRequest, 0.85},
		{"me mostra inspirações da comunidade", AskCommunityInspiration, 0.80},
		{"me dá ideias de posts", ContentIdeas, 0.80},
		{"monta um calendário editorial pra mim", ContentPlan, 0.90},
		{"qual foi meu melhor post do mês", AskBestPerformer, 0.75},
		{"qual a faixa etária de quem me segue", DemographicQuery, 0.80},
		{"faz um ranking dos formatos", RankingRequest, 0.80},
		{"gera um relatório do meu perfil", Report, 0.90},
		{"como funciona o algoritmo", SocialQuery, 0.70},
		{"quem é você afinal", MetaQueryPersonal, 0.65},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := classify(e, tt.text, dialogue.DefaultState())
			assert.Equal(t, tt.intent, res.Intent)
			assert.Equal(t, tt.confidence, res.Confidence)
		})
	}
}

func TestTrivialInteractions(t *testing.T) {
	e := newTestEngine(t, false, WithPicker(func(n int) int { return 0 }))

	res := classify(e, "Obrigado, Tuca!", dialogue.DefaultState())
	require.True(t, res.IsSpecial())
	assert.Equal(t, "Imagina, Ana! Se precisar de mais alguma coisa, é só chamar.", res.Response)

	res = classify(e, "tchau", dialogue.DefaultState())
	require.True(t, res.IsSpecial())
	assert.Equal(t, "Até mais, Ana! Boa criação de conteúdo.", res.Response)

	res = classify(e, "oi, tudo bem? preciso de ideias", dialogue.DefaultState())
	assert.False(t, res.IsSpecial())
	assert.Equal(t, ContentIdeas, res.Intent)
}

func TestGreetingPoolMembership(t *testing.T) {
	user := User{Name: "Ana Souza"}
	var pool []string
	for _, tmpl := range GreetingReplies() {
		pool = append(pool, RenderReply(tmpl, "Bom dia", user))
	}

	for _, picked := range []int{0, 1, 2, 3, 99, -1} {
		e := newTestEngine(t, false, WithPicker(func(n int) int { return picked }))
		res := classify(e, "olá", dialogue.DefaultState())
		require.True(t, res.IsSpecial())
		assert.Contains(t, pool, res.Response)
	}

	e := newTestEngine(t, false)
	for i := 0; i < 50; i++ {
		assert.Contains(t, pool, classify(e, "oi", dialogue.DefaultState()).Response)
	}
}

func TestRenderReplyFallbacks(t *testing.T) {
	assert.Equal(t, "Olá! Como posso te ajudar com seu conteúdo hoje?",
		RenderReply(greetingReplies[0], "", User{}))
	assert.Equal(t, "Boa tarde, João! Como posso te ajudar com seu conteúdo hoje?",
		RenderReply(greetingReplies[0], "Boa tarde", User{Name: " João  Silva "}))
}

func TestContextualQuestionReply(t *testing.T) {
	e := newTestEngine(t, true)
	st := freshContext("nicho do perfil", time.Minute, true)

	res := classify(e, "trabalho principalmente com moda sustentável", st)

	assert.Equal(t, ContinuePreviousTopic, res.Intent)
	assert.Equal(t, 0.70, res.Confidence)
	assert.Equal(t, "nicho do perfil", res.ResolvedContextTopic)
}

func TestContextualMetricsGate(t *testing.T) {
	e := newTestEngine(t, true)

	res := classify(e, "quero mais detalhes", freshContext("métricas de alcance", time.Minute, false))
	assert.Equal(t, RequestMetricDetailsFromContext, res.Intent)
	assert.Equal(t, 0.76, res.Confidence)

	res = classify(e, "de onde saiu isso", freshContext("análise de engajamento", time.Minute, false))
	assert.Equal(t, ExplainDataSourceForAnalysis, res.Intent)
	assert.Equal(t, 0.72, res.Confidence)

	res = classify(e, "como assim?", freshContext("ideias de reels", time.Minute, false))
	assert.Equal(t, AskClarificationPreviousResponse, res.Intent)
	assert.Equal(t, 0.74, res.Confidence)
	assert.Equal(t, "ideias de reels", res.ResolvedContextTopic)
}

func TestContextualLongTermTier(t *testing.T) {
	e := newTestEngine(t, true)
	st := dialogue.DefaultState()
	st.ConversationSummary = dialogue.StringPtr("Conversamos sobre métricas de alcance. Depois sobre reels.")
	st.LastInteraction = testNow.Add(-10 * time.Minute).UnixMilli()

	res := classify(e, "de onde vem isso?", st)

	assert.Equal(t, ExplainDataSourceForAnalysis, res.Intent)
	assert.Equal(t, 0.64, res.Confidence)
	assert.Equal(t, "Conversamos sobre métricas de alcance", res.ResolvedContextTopic)
}

func TestContextualStaleOrDisabled(t *testing.T) {
	stale := freshContext("análise de engajamento", 5*time.Hour, false)
	assert.Equal(t, General, classify(newTestEngine(t, true), "me fala mais", stale).Intent)

	fresh := freshContext("análise de engajamento", time.Minute, false)
	assert.Equal(t, General, classify(newTestEngine(t, false), "me fala mais", fresh).Intent)
}

func TestContextualRelaxedSecondPass(t *testing.T) {
	e := newTestEngine(t, true)
	text := "e sobre isso que você comentou antes eu fiquei pensando bastante e queria entender melhor como aplicar no dia a dia"
	require.Greater(t, textnorm.WordCount(text), strictBounds.continuationMaxWords)

	res := classify(e, text, freshContext("reels de humor", time.Minute, false))

	assert.Equal(t, ContinuePreviousTopic, res.Intent)
	assert.Equal(t, 0.68, res.Confidence)
	assert.Equal(t, "reels de humor", res.ResolvedContextTopic)
}

func TestSummaryTopic(t *testing.T) {
	assert.Equal(t, "Falamos de reels", summaryTopic("Falamos de reels. E de lives."))
	long := strings.Repeat("a", 300)
	assert.Len(t, []rune(summaryTopic(long)), summaryTopicMaxRunes)
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, GeneralConfidence, ConfidenceFor("something_else"))
	for _, rule := range newCascade() {
		c := ConfidenceFor(rule.intent)
		assert.Greater(t, c, GeneralConfidence, rule.intent)
		assert.LessOrEqual(t, c, 1.0, rule.intent)
	}
}

func TestPanicFallsBackToGeneral(t *testing.T) {
	e := newTestEngine(t, false, WithPicker(func(int) int { panic("boom") }))

	res := classify(e, "oi", dialogue.DefaultState())

	assert.Equal(t, General, res.Intent)
	assert.Equal(t, GeneralConfidence, res.Confidence)
	assert.EqualValues(t, 1, e.Stats().Recovered)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, false)
	classify(e, "sim", pendingState("confirm", ""))
	classify(e, "oi", dialogue.DefaultState())
	classify(e, "moro em Recife", dialogue.DefaultState())
	classify(e, "me dá ideias", dialogue.DefaultState())
	classify(e, "xkcd", dialogue.DefaultState())

	assert.Equal(t, Stats{Total: 5, Pending: 1, Trivial: 1, Extracted: 1, Keyword: 1, General: 1}, e.Stats())
}
