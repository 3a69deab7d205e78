package intent

// GeneralConfidence is the baseline for messages nothing else recognized.
const GeneralConfidence = 0.35

// confidences is the fixed trust weight of each intent. Downstream callers
// compare it against a threshold to decide whether to ask for
// clarification; it is not a probability.
var confidences = map[Intent]float64{
	UserConfirmsPendingAction: confirmConfidence,
	UserDeniesPendingAction:   denyConfidence,
	UserRequestsMemoryUpdate:  memoryUpdateConfidence,
	UserStatedPreference:      preferenceConfidence,
	UserSharedGoal:            goalConfidence,
	UserMentionedKeyFact:      factConfidence,

	AskClarificationPreviousResponse: 0.74,
	RequestMetricDetailsFromContext:  0.76,
	ExplainDataSourceForAnalysis:     0.72,
	ContinuePreviousTopic:            0.70,

	HumorScriptRequest:      0.80,
	AskBestTime:             0.75,
	ContentPlan:             0.90,
	ScriptRequest:           0.85,
	AskBestPerformer:        0.75,
	DemographicQuery:        0.80,
	AskCommunityInspiration: 0.80,
	ContentIdeas:            0.80,
	RankingRequest:          0.80,
	Report:                  0.90,
	SocialQuery:             0.70,
	MetaQueryPersonal:       0.65,
	General:                 GeneralConfidence,

	Greeting: trivialConfidence,
	Thanks:   trivialConfidence,
	Farewell: trivialConfidence,
}

// ConfidenceFor returns the fixed confidence of intent. Unknown intents get
// the general baseline.
func ConfidenceFor(intent Intent) float64 {
	if c, ok := confidences[intent]; ok {
		return c
	}
	return GeneralConfidence
}
