package intent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
)

func TestMemoryUpdateExtraction(t *testing.T) {
	e := newTestEngine(t, false)

	tests := []struct {
		text    string
		content string
	}{
		{"Tuca, lembre-se que eu gravo sempre às terças", "eu gravo sempre às terças"},
		{"por favor, anote que meu público é 70% feminino.", "meu público é 70% feminino"},
		{"lembra que minha loja abre só em dezembro", "minha loja abre só em dezembro"},
		{"Nao esqueca que eu odeio dancinhas!", "eu odeio dancinhas"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := classify(e, tt.text, dialogue.DefaultState())
			assert.Equal(t, UserRequestsMemoryUpdate, res.Intent)
			assert.Equal(t, 0.82, res.Confidence)
			assert.Equal(t, tt.content, res.MemoryUpdateRequestContent)
		})
	}

	res := classify(e, "lembre que sim", dialogue.DefaultState())
	assert.NotEqual(t, UserRequestsMemoryUpdate, res.Intent)
}

func TestPreferenceExtraction(t *testing.T) {
	e := newTestEngine(t, false)

	tests := []struct {
		text  string
		field PreferenceField
		value string
		raw   string
	}{
		{"prefiro um tom mais formal", PreferenceTone, "mais_formal", "prefiro um tom mais formal"},
		{"Gosto de um jeito direto ao ponto", PreferenceTone, "direto_ao_ponto", "Gosto de um jeito direto ao ponto"},
		{"meu tom é super descontraído, tá?", PreferenceTone, "super_descontraido", "meu tom é super descontraído"},
		{"prefiro fazer carrosséis", PreferenceFormats, "Carrossel", "prefiro fazer carrosséis"},
		{"quero reels", PreferenceFormats, "Reels", "quero reels"},
		{"gosto mais de vídeos longos", PreferenceFormats, "Vídeo Longo", "gosto mais de vídeos longos"},
		{"não gosto de reels", PreferenceDislikedTopics, "reels", "não gosto de reels"},
		{"Evite falar sobre Política, por favor", PreferenceDislikedTopics, "política", "Evite falar sobre Política"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := classify(e, tt.text, dialogue.DefaultState())
			require.Equal(t, UserStatedPreference, res.Intent)
			assert.Equal(t, 0.80, res.Confidence)
			require.NotNil(t, res.ExtractedPreference)
			assert.Equal(t, tt.field, res.ExtractedPreference.Field)
			assert.Equal(t, tt.value, res.ExtractedPreference.Value)
			assert.Equal(t, tt.raw, res.ExtractedPreference.RawValue)
		})
	}

	for _, text := range []string{
		"gosto de formalidades nos contratos",
		"prefiro objetivos claros para o mês",
		"gosto de diretores de cinema",
		"quero fotografar paisagens",
		"quero postar storytelling",
		"não prefiro formal",
		strings.Repeat("blá ", 50) + "nunca prefiro formal",
	} {
		t.Run("no preference/"+text, func(t *testing.T) {
			res := classify(e, text, dialogue.DefaultState())
			assert.NotEqual(t, UserStatedPreference, res.Intent)
			assert.Nil(t, res.ExtractedPreference)
		})
	}

	res := classify(e, strings.Repeat("blá ", 50)+"prefiro formal", dialogue.DefaultState())
	require.Equal(t, UserStatedPreference, res.Intent)
	assert.Equal(t, "mais_formal", res.ExtractedPreference.Value)
}

func TestGoalExtraction(t *testing.T) {
	e := newTestEngine(t, false)

	res := classify(e, "Eu pretendo lançar um curso online", dialogue.DefaultState())
	assert.Equal(t, UserSharedGoal, res.Intent)
	assert.Equal(t, "lançar um curso online", res.ExtractedGoal)

	res = classify(e, "Olha, meu objetivo é chegar a 50 mil seguidores", dialogue.DefaultState())
	assert.Equal(t, UserSharedGoal, res.Intent)
	assert.Equal(t, "chegar a 50 mil seguidores", res.ExtractedGoal)

	res = classify(e, "Busco você me ajudar com ideias", dialogue.DefaultState())
	assert.Equal(t, ContentIdeas, res.Intent)
	assert.Empty(t, res.ExtractedGoal)

	res = classify(e, "pretendo crescer", dialogue.DefaultState())
	assert.NotEqual(t, UserSharedGoal, res.Intent)
}

func TestFactExtraction(t *testing.T) {
	e := newTestEngine(t, false)

	res := classify(e, "Moro em Recife", dialogue.DefaultState())
	assert.Equal(t, UserMentionedKeyFact, res.Intent)
	assert.Equal(t, 0.78, res.Confidence)
	assert.Equal(t, "Moro em Recife", res.ExtractedFact)

	res = classify(e, "Um fato importante sobre mim é que sou vegana", dialogue.DefaultState())
	assert.Equal(t, UserMentionedKeyFact, res.Intent)
	assert.Equal(t, "sou vegana", res.ExtractedFact)

	res = classify(e, "tuca: minha empresa se chama Doce Lar", dialogue.DefaultState())
	assert.Equal(t, UserMentionedKeyFact, res.Intent)
	assert.Equal(t, "minha empresa se chama Doce Lar", res.ExtractedFact)

	res = classify(e, "Trabalho com você há meses", dialogue.DefaultState())
	assert.NotEqual(t, UserMentionedKeyFact, res.Intent)

	res = classify(e, "sou desenvolvedora", dialogue.DefaultState())
	assert.NotEqual(t, UserMentionedKeyFact, res.Intent)

	res = classify(e, "meu público é mais masculino ou feminino?", dialogue.DefaultState())
	assert.Equal(t, DemographicQuery, res.Intent)
	assert.Empty(t, res.ExtractedFact)

	res = classify(e, "meu nicho é moda ou beleza?", dialogue.DefaultState())
	assert.NotEqual(t, UserMentionedKeyFact, res.Intent)
}

func TestAccentPattern(t *testing.T) {
	p := accentPattern("nao esqueca que")
	assert.Equal(t, `[nñ][aáàâãä][oóòôõö][\s\-]+[eéèêë]sq[uúùûü][eéèêë][cç][aáàâãä][\s\-]+q[uúùûü][eéèêë]`, p)
}
