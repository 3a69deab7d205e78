package intent

import "github.com/creatorbot/intent-kernel/internal/textnorm"

// cascadeRule maps a keyword set to an intent. A rule is skipped when the
// text also matches one of its excludes.
type cascadeRule struct {
	intent   Intent
	keywords []string
	excludes [][]string
}

func newCascade() []cascadeRule {
	humor := normalizeAll(humorScriptKeywords)
	community := normalizeAll(communityInspirationKeywords)

	return []cascadeRule{
		{intent: HumorScriptRequest, keywords: humor},
		{intent: AskBestTime, keywords: normalizeAll(bestTimeKeywords)},
		{intent: ContentPlan, keywords: normalizeAll(contentPlanKeywords)},
		{intent: ScriptRequest, keywords: normalizeAll(scriptKeywords), excludes: [][]string{humor}},
		{intent: AskBestPerformer, keywords: normalizeAll(bestPerformerKeywords)},
		{intent: DemographicQuery, keywords: normalizeAll(demographicKeywords)},
		{intent: AskCommunityInspiration, keywords: community},
		{intent: ContentIdeas, keywords: normalizeAll(contentIdeasKeywords), excludes: [][]string{community}},
		{intent: RankingRequest, keywords: normalizeAll(rankingKeywords)},
		{intent: Report, keywords: normalizeAll(reportKeywords)},
		{intent: SocialQuery, keywords: normalizeAll(socialKeywords)},
		{intent: MetaQueryPersonal, keywords: normalizeAll(metaPersonalKeywords)},
	}
}

func (r cascadeRule) matches(text string) bool {
	if !textnorm.ContainsAny(text, r.keywords) {
		return false
	}
	for _, ex := range r.excludes {
		if textnorm.ContainsAny(text, ex) {
			return false
		}
	}
	return true
}

// classifyKeywords returns the first cascade intent matching text, or
// General.
func (e *Engine) classifyKeywords(text string) Intent {
	for _, rule := range e.cascade {
		if rule.matches(text) {
			return rule.intent
		}
	}
	return General
}
