// Package intent resolves what a creator wants from a chat message. It runs a
// deterministic cascade of lexical heuristics over the message and the
// user's dialogue state: pending yes/no answers, trivial greetings, personal
// information the user is sharing, follow-ups to the previous answer and
// finally a keyword classifier with a fixed confidence per intent.
package intent

import (
	"encoding/json"
	"strings"
	"time"
)

// Intent is a closed-set label describing what the user wants from a turn.
type Intent string

const (
	UserConfirmsPendingAction Intent = "user_confirms_pending_action"
	UserDeniesPendingAction   Intent = "user_denies_pending_action"
	UserRequestsMemoryUpdate  Intent = "user_requests_memory_update"
	UserStatedPreference      Intent = "user_stated_preference"
	UserSharedGoal            Intent = "user_shared_goal"
	UserMentionedKeyFact      Intent = "user_mentioned_key_fact"

	AskClarificationPreviousResponse Intent = "ASK_CLARIFICATION_PREVIOUS_RESPONSE"
	RequestMetricDetailsFromContext  Intent = "REQUEST_METRIC_DETAILS_FROM_CONTEXT"
	ExplainDataSourceForAnalysis     Intent = "EXPLAIN_DATA_SOURCE_FOR_ANALYSIS"
	ContinuePreviousTopic            Intent = "CONTINUE_PREVIOUS_TOPIC"

	HumorScriptRequest      Intent = "humor_script_request"
	AskBestTime             Intent = "ASK_BEST_TIME"
	ContentPlan             Intent = "content_plan"
	ScriptRequest           Intent = "script_request"
	AskBestPerformer        Intent = "ASK_BEST_PERFORMER"
	DemographicQuery        Intent = "demographic_query"
	AskCommunityInspiration Intent = "ask_community_inspiration"
	ContentIdeas            Intent = "content_ideas"
	RankingRequest          Intent = "ranking_request"
	Report                  Intent = "report"
	SocialQuery             Intent = "social_query"
	MetaQueryPersonal       Intent = "meta_query_personal"
	General                 Intent = "general"

	// Labels of trivial interactions. They never appear in a Result; they
	// only tag diagnostics and stats.
	Greeting Intent = "greeting"
	Thanks   Intent = "thanks"
	Farewell Intent = "farewell"
)

// ResultType tags the variant held by a Result.
type ResultType string

const (
	IntentDetermined ResultType = "intent_determined"
	SpecialHandled   ResultType = "special_handled"
)

// PreferenceField names the profile field a stated preference updates.
type PreferenceField string

const (
	PreferenceTone           PreferenceField = "tone"
	PreferenceFormats        PreferenceField = "formats"
	PreferenceDislikedTopics PreferenceField = "dislikedTopics"
)

// PreferenceDetail is a preference extracted from the user's own words.
type PreferenceDetail struct {
	Field    PreferenceField `json:"field"`
	Value    string          `json:"value"`
	RawValue string          `json:"rawValue,omitempty"`
}

// Result is the outcome of one classification. Type selects the variant:
// intent_determined carries Intent and the optional extractions,
// special_handled carries a final Response. Confidence is set for both.
type Result struct {
	Type       ResultType `json:"type"`
	Intent     Intent     `json:"intent,omitempty"`
	Confidence float64    `json:"confidence"`
	Response   string     `json:"response,omitempty"`

	PendingActionContext       json.RawMessage   `json:"pendingActionContext,omitempty"`
	ExtractedPreference        *PreferenceDetail `json:"extractedPreference,omitempty"`
	ExtractedGoal              string            `json:"extractedGoal,omitempty"`
	ExtractedFact              string            `json:"extractedFact,omitempty"`
	MemoryUpdateRequestContent string            `json:"memoryUpdateRequestContent,omitempty"`
	ResolvedContextTopic       string            `json:"resolvedContextTopic,omitempty"`
}

// IsSpecial reports whether the result is a final canned reply.
func (r Result) IsSpecial() bool {
	return r.Type == SpecialHandled
}

func determined(intent Intent, confidence float64) Result {
	return Result{Type: IntentDetermined, Intent: intent, Confidence: clampConfidence(confidence)}
}

func special(response string, confidence float64) Result {
	return Result{Type: SpecialHandled, Response: response, Confidence: clampConfidence(confidence)}
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// User is the minimal identity used to personalize canned replies.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FirstName returns the first word of the user's name.
func (u User) FirstName() string {
	fields := strings.Fields(u.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// DefaultContextValidityMinutes is used when the configured window is unset
// or not positive.
const DefaultContextValidityMinutes = 240

// Config holds engine configuration. It is resolved once at process start;
// the engine never reads the environment itself.
type Config struct {
	// ContextualLogicEnabled gates the contextual topic resolver.
	ContextualLogicEnabled bool
	// ContextValidityMinutes bounds how old the short-term context and the
	// last interaction may be for the contextual tiers to apply.
	ContextValidityMinutes int
	// AssistantName is the name users address the assistant by. It never
	// counts against the word-shape rules of short replies.
	AssistantName string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ContextualLogicEnabled: false,
		ContextValidityMinutes: DefaultContextValidityMinutes,
		AssistantName:          "tuca",
	}
}

// ValidityWindow returns the contextual validity window.
func (c Config) ValidityWindow() time.Duration {
	minutes := c.ContextValidityMinutes
	if minutes <= 0 {
		minutes = DefaultContextValidityMinutes
	}
	return time.Duration(minutes) * time.Minute
}
