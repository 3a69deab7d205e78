package intent

import (
	"strings"

	"github.com/creatorbot/intent-kernel/internal/textnorm"
)

// Phrase lists are written the way users type them and normalized once when
// the engine is built.

var affirmativeKeywords = []string{
	"sim", "s", "ss", "claro", "claro que sim", "pode", "pode sim", "pode ser",
	"ok", "okay", "beleza", "blz", "bora", "vamos", "vamos la", "quero",
	"quero sim", "com certeza", "certeza", "isso", "isso mesmo", "manda",
	"manda ver", "positivo", "fechado", "certo", "yes", "uhum", "aham",
	"perfeito", "ótimo", "otimo", "show", "top", "sim por favor", "faz isso",
	"pode fazer", "por favor",
}

var negativeKeywords = []string{
	"não", "nao", "n", "nn", "nope", "agora não", "não quero", "nao precisa",
	"não precisa", "deixa", "deixa pra lá", "deixa para lá", "dispenso",
	"negativo", "melhor não", "não obrigado", "não obrigada",
	"nem", "nada", "cancela", "esquece", "depois",
}

var greetingKeywords = []string{
	"oi", "oii", "oiii", "olá", "ola", "opa", "e aí", "eai", "eae", "bom dia",
	"boa tarde", "boa noite", "hey", "hello", "hi", "salve", "fala", "tudo bem",
	"tudo bom", "como vai",
}

var thanksKeywords = []string{
	"obrigado", "obrigada", "muito obrigado", "muito obrigada", "obg", "brigado",
	"brigada", "valeu", "vlw", "agradeço", "agradecido", "agradecida", "thanks",
	"thank you", "grato", "grata",
}

var farewellKeywords = []string{
	"tchau", "tchauzinho", "até mais", "até logo", "até amanhã", "até a próxima",
	"até breve", "falou", "flw", "fui", "bye", "adeus", "boa noite e tchau",
	"xau",
}

var clarificationKeywords = []string{
	"como assim", "não entendi", "nao entendi", "explica melhor", "explique melhor",
	"o que você quis dizer", "o que quis dizer", "o que isso quer dizer",
	"pode explicar", "não ficou claro", "em outras palavras", "o que significa",
	"que significa", "como é isso", "não compreendi", "explica de novo",
	"pode repetir", "ué",
}

var metricTopicKeywords = []string{
	"métrica", "métricas", "análise", "analise", "engajamento", "alcance",
	"seguidores", "desempenho", "performance", "estatística", "estatísticas",
	"dados", "visualizações", "views", "curtidas", "salvamentos",
	"compartilhamentos", "comentários", "taxa", "impressões", "relatório",
	"resultado", "resultados", "crescimento",
}

var metricDetailKeywords = []string{
	"mais detalhes", "detalha", "detalhe", "detalhar", "detalhes", "quais métricas",
	"quais números", "que números", "me mostra os números", "números exatos",
	"por post", "por formato", "qual foi a taxa", "quanto foi", "aprofunda",
	"aprofundar", "abre os números", "quebra por", "média de", "qual a média",
	"quantas visualizações", "quantos seguidores",
}

var dataSourceKeywords = []string{
	"de onde", "fonte", "fontes", "como você calculou", "como calculou",
	"como chegou", "como você chegou", "baseado em que", "com base em que",
	"quais dados você usou", "que dados", "qual período", "período analisado",
	"de onde vem", "de onde saiu", "de onde tirou", "esses dados são confiáveis",
	"metodologia",
}

var continuationKeywords = []string{
	"me fala mais", "fala mais", "conta mais", "me conta mais", "continua",
	"continue", "e sobre isso", "sobre isso", "e depois", "e aí", "e então",
	"mais sobre", "prossiga", "pode continuar", "e o resto", "e mais",
	"quero saber mais", "e agora", "que mais", "o que mais",
}

var secondPersonPrefixes = []string{
	"você", "voce", "vc", "tu", "seu", "sua", "seus", "suas", "te", "ti",
}

// Cascade category phrase lists.

var humorScriptKeywords = []string{
	"roteiro de humor", "roteiro engraçado", "roteiro cômico", "script de humor",
	"esquete", "sketch", "vídeo de humor", "vídeo engraçado", "piada", "piadas",
	"conteúdo de humor", "comédia", "roteiro de comédia", "humorístico",
	"stand up", "meme", "memes", "trend de humor",
}

var bestTimeKeywords = []string{
	"melhor horário", "melhores horários", "melhor hora", "melhores horas",
	"que horas postar", "que horas devo postar", "horário para postar",
	"horário de postar", "horário ideal", "melhor dia para postar",
	"melhores dias para postar", "quando postar", "quando devo postar",
	"qual horário", "hora certa de postar",
}

var contentPlanKeywords = []string{
	"planejamento", "plano de conteúdo", "calendário de conteúdo",
	"calendário editorial", "cronograma", "planejar a semana", "plano semanal",
	"planner", "programação de posts", "grade de conteúdo",
	"plano para a semana", "planeja", "planejar", "plano de postagens",
}

var scriptKeywords = []string{
	"roteiro", "roteiros", "script", "scripts", "roteirizar", "texto para vídeo",
	"legenda", "legendas", "copy", "gancho", "hook", "fala para o vídeo",
	"escreve um texto", "escreva um texto", "narração",
}

var bestPerformerKeywords = []string{
	"melhor post", "melhores posts", "post que mais", "posts que mais",
	"conteúdo que mais", "conteúdos que mais", "qual performou melhor",
	"melhor desempenho", "melhor performance", "maior engajamento",
	"mais viralizou", "top post", "qual formato performa", "que mais deu certo",
	"mais bombou",
}

var demographicKeywords = []string{
	"demografia", "demográfico", "demográficos", "demográfica", "meu público",
	"minha audiência", "quem me segue", "meus seguidores são", "idade dos seguidores",
	"faixa etária", "gênero dos seguidores", "de onde são meus seguidores",
	"perfil do público", "perfil da audiência", "público alvo",
}

var communityInspirationKeywords = []string{
	"inspiração da comunidade", "inspirações da comunidade", "comunidade",
	"outros criadores", "outras criadoras", "o que outros criadores",
	"exemplos de outros", "referências de outros", "posts da comunidade",
	"inspiração de outros", "cases de sucesso", "benchmark",
	"criadores parecidos", "perfis parecidos",
}

var contentIdeasKeywords = []string{
	"ideia", "ideias", "sugestão de conteúdo", "sugestões de conteúdo",
	"sugere um post", "sugira", "sugere", "o que postar", "sobre o que postar",
	"inspiração", "inspirações", "pauta", "pautas", "tema para post",
	"temas para posts", "o que devo postar", "me dá ideias", "sem criatividade",
}

var rankingKeywords = []string{
	"ranking", "rankear", "ranqueie", "ranquear", "top 3", "top 5", "top 10",
	"classifica", "classifique", "ordene", "ordenar", "do melhor para o pior",
	"lista dos melhores", "dos maiores para os menores",
}

var reportKeywords = []string{
	"relatório", "relatórios", "análise completa", "análise geral",
	"analisa meu perfil", "analise meu perfil", "análise do meu perfil",
	"como estou indo", "como está meu desempenho", "resumo do mês",
	"resumo da semana", "balanço", "métricas", "meus números",
	"minhas estatísticas", "desempenho geral", "diagnóstico",
}

var socialKeywords = []string{
	"como ganhar seguidores", "ganhar seguidores", "crescer no instagram",
	"algoritmo", "viralizar", "engajamento", "alcance", "tiktok", "instagram",
	"youtube", "hashtag", "hashtags", "stories", "collab", "parceria", "publi",
	"monetizar", "monetização", "rede social", "redes sociais",
}

var metaPersonalKeywords = []string{
	"quem é você", "o que você faz", "o que você sabe", "como você funciona",
	"você é uma ia", "você é um robô", "o que você sabe sobre mim",
	"o que você lembra", "seu nome", "quem te criou", "você consegue",
	"para que você serve", "pra que você serve", "o que você pode fazer",
}

// keywordTables holds every phrase list in normalized form.
type keywordTables struct {
	affirmative   []string
	negative      []string
	greeting      []string
	thanks        []string
	farewell      []string
	clarification []string
	metricTopic   []string
	metricDetail  []string
	dataSource    []string
	continuation  []string
	secondPerson  []string
	nameTokens    map[string]struct{}
}

func newKeywordTables(assistantName string) *keywordTables {
	kt := &keywordTables{
		affirmative:   normalizeAll(affirmativeKeywords),
		negative:      normalizeAll(negativeKeywords),
		greeting:      normalizeAll(greetingKeywords),
		thanks:        normalizeAll(thanksKeywords),
		farewell:      normalizeAll(farewellKeywords),
		clarification: normalizeAll(clarificationKeywords),
		metricTopic:   normalizeAll(metricTopicKeywords),
		metricDetail:  normalizeAll(metricDetailKeywords),
		dataSource:    normalizeAll(dataSourceKeywords),
		continuation:  normalizeAll(continuationKeywords),
		secondPerson:  normalizeAll(secondPersonPrefixes),
		nameTokens:    make(map[string]struct{}),
	}
	for _, w := range textnorm.Words(textnorm.Normalize(assistantName)) {
		kt.nameTokens[w] = struct{}{}
	}
	return kt
}

func (kt *keywordTables) isName(word string) bool {
	_, ok := kt.nameTokens[word]
	return ok
}

// normalizeAll normalizes and deduplicates phrases and orders them longest
// first, as textnorm.MatchPhrases expects.
func normalizeAll(phrases []string) []string {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		n := textnorm.Canonical(textnorm.Normalize(p))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	textnorm.SortLongestFirst(out)
	return out
}

// isExactly reports whether the whole word sequence equals one of phrases.
func isExactly(words []string, phrases []string) bool {
	joined := strings.Join(words, " ")
	for _, p := range phrases {
		if joined == p {
			return true
		}
	}
	return false
}

