// Package dialogue holds the per-user dialogue state record and the redis
// backed stores for it: state, conversation history, usage counters and the
// per-user turn lock.
package dialogue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/creatorbot/intent-kernel/internal/jsonx"
)

// ResponseContext is the short-term memory of the assistant's previous turn.
type ResponseContext struct {
	Topic       *string  `json:"topic"`
	Entities    []string `json:"entities"`
	WasQuestion bool     `json:"wasQuestion"`
	Timestamp   int64    `json:"timestamp"` // unix milliseconds
}

// HasSignal reports whether the context carries a topic, entities or a
// question marker. A context with none of those is ignored by resolvers.
func (rc *ResponseContext) HasSignal() bool {
	if rc == nil {
		return false
	}
	return (rc.Topic != nil && *rc.Topic != "") || len(rc.Entities) > 0 || rc.WasQuestion
}

// TopicOrEmpty returns the stored topic or "".
func (rc *ResponseContext) TopicOrEmpty() string {
	if rc == nil || rc.Topic == nil {
		return ""
	}
	return *rc.Topic
}

// Time returns the context timestamp.
func (rc *ResponseContext) Time() time.Time {
	if rc == nil || rc.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(rc.Timestamp)
}

// State is the dialogue record kept for each user. Every field is always
// present; nil pointers and nil raw messages are encoded as JSON null.
//
// Only LastAIQuestionType, PendingActionContext, ConversationSummary,
// LastResponseContext and LastInteraction are interpreted by the intent
// engine. The remaining fields belong to other collaborators and are passed
// through untouched.
type State struct {
	LastInteraction               int64            `json:"lastInteraction"` // unix milliseconds, 0 = never
	LastAIQuestionType            *string          `json:"lastAIQuestionType"`
	PendingActionContext          json.RawMessage  `json:"pendingActionContext"`
	ConversationSummary           *string          `json:"conversationSummary"`
	LastResponseContext           *ResponseContext `json:"lastResponseContext"`
	CurrentTask                   json.RawMessage  `json:"currentTask"`
	SummaryTurnCounter            int              `json:"summaryTurnCounter"`
	ExpertiseInferenceTurnCounter int              `json:"expertiseInferenceTurnCounter"`
}

// DefaultState returns the record used for users without stored state.
func DefaultState() State {
	return State{}
}

// PendingQuestion returns the tag of the outstanding yes/no question, or "".
func (s State) PendingQuestion() string {
	if s.LastAIQuestionType == nil {
		return ""
	}
	return *s.LastAIQuestionType
}

// Summary returns the conversation summary, or "".
func (s State) Summary() string {
	if s.ConversationSummary == nil {
		return ""
	}
	return *s.ConversationSummary
}

// LastInteractionTime returns LastInteraction as a time, zero when unset.
func (s State) LastInteractionTime() time.Time {
	if s.LastInteraction == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastInteraction)
}

// decodeState parses a stored record. Fields missing from the document keep
// their defaults.
func decodeState(data []byte) (State, error) {
	st := DefaultState()
	if err := jsonx.UnmarshalObject(data, &st); err != nil {
		return DefaultState(), err
	}
	return st, nil
}

// UnmarshalJSON decodes a record over the current values. Null opaque
// payloads decode to nil.
func (s *State) UnmarshalJSON(data []byte) error {
	type record State
	r := record(*s)
	if err := jsonx.Unmarshal(data, &r); err != nil {
		return err
	}
	*s = State(r)
	if isNullJSON(s.PendingActionContext) {
		s.PendingActionContext = nil
	}
	if isNullJSON(s.CurrentTask) {
		s.CurrentTask = nil
	}
	return nil
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Optional marks a Patch field as present. The zero value is absent.
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// Patch is a partial State. Present fields replace the stored ones during a
// shallow merge; absent fields keep their stored values.
type Patch struct {
	LastInteraction               Optional[int64]
	LastAIQuestionType            Optional[*string]
	PendingActionContext          Optional[json.RawMessage]
	ConversationSummary           Optional[*string]
	LastResponseContext           Optional[*ResponseContext]
	CurrentTask                   Optional[json.RawMessage]
	SummaryTurnCounter            Optional[int]
	ExpertiseInferenceTurnCounter Optional[int]
}

// ClearPendingAction returns a patch that resets the pending question and
// its payload.
func ClearPendingAction() Patch {
	return Patch{
		LastAIQuestionType:   Some[*string](nil),
		PendingActionContext: Some[json.RawMessage](nil),
	}
}

// Apply merges p over s. LastInteraction is set to now unless p sets it.
func (p Patch) Apply(s State, now time.Time) State {
	if p.LastInteraction.Valid {
		s.LastInteraction = p.LastInteraction.Value
	} else {
		s.LastInteraction = now.UnixMilli()
	}
	if p.LastAIQuestionType.Valid {
		s.LastAIQuestionType = p.LastAIQuestionType.Value
	}
	if p.PendingActionContext.Valid {
		s.PendingActionContext = p.PendingActionContext.Value
		if isNullJSON(s.PendingActionContext) {
			s.PendingActionContext = nil
		}
	}
	if p.ConversationSummary.Valid {
		s.ConversationSummary = p.ConversationSummary.Value
	}
	if p.LastResponseContext.Valid {
		s.LastResponseContext = p.LastResponseContext.Value
	}
	if p.CurrentTask.Valid {
		s.CurrentTask = p.CurrentTask.Value
		if isNullJSON(s.CurrentTask) {
			s.CurrentTask = nil
		}
	}
	if p.SummaryTurnCounter.Valid {
		s.SummaryTurnCounter = p.SummaryTurnCounter.Value
	}
	if p.ExpertiseInferenceTurnCounter.Valid {
		s.ExpertiseInferenceTurnCounter = p.ExpertiseInferenceTurnCounter.Value
	}
	return s
}

// UnmarshalJSON decodes a partial record. Keys present in the document are
// marked as set, including keys whose value is null.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := jsonx.UnmarshalObject(data, &fields); err != nil {
		return err
	}

	for key, raw := range fields {
		var err error
		switch key {
		case "lastInteraction":
			var v int64
			if !isNullJSON(raw) {
				err = jsonx.Unmarshal(raw, &v)
			}
			p.LastInteraction = Some(v)
		case "lastAIQuestionType":
			var v *string
			err = jsonx.Unmarshal(raw, &v)
			p.LastAIQuestionType = Some(v)
		case "pendingActionContext":
			p.PendingActionContext = Some(append(json.RawMessage(nil), raw...))
		case "conversationSummary":
			var v *string
			err = jsonx.Unmarshal(raw, &v)
			p.ConversationSummary = Some(v)
		case "lastResponseContext":
			var v *ResponseContext
			err = jsonx.Unmarshal(raw, &v)
			p.LastResponseContext = Some(v)
		case "currentTask":
			p.CurrentTask = Some(append(json.RawMessage(nil), raw...))
		case "summaryTurnCounter":
			var v int
			err = jsonx.Unmarshal(raw, &v)
			p.SummaryTurnCounter = Some(v)
		case "expertiseInferenceTurnCounter":
			var v int
			err = jsonx.Unmarshal(raw, &v)
			p.ExpertiseInferenceTurnCounter = Some(v)
		}
		if err != nil {
			return fmt.Errorf("dialogue: field %s: %w", key, err)
		}
	}
	return nil
}
