package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

type UserMessagePayload struct {
	Content string `json:"content"`
}

func (UserMessagePayload) EventType() EventType { return EventUserMessage }

type IntentResolvedPayload struct {
	Tool       string         `json:"tool"`
	Confidence string         `json:"confidence"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (IntentResolvedPayload) EventType() EventType { return EventIntentResolved }

type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

type ToolCallPayload struct {
	Status    ToolStatus     `json:"status"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

type AssistantMessagePayload struct {
	Content     string `json:"content"`
	ActionTaken string `json:"action_taken"`
	Outcome     string `json:"outcome"`
}

func (AssistantMessagePayload) EventType() EventType { return EventAssistantMessage }

// ModelCallPayload reports one language-model round trip.
type ModelCallPayload struct {
	Phase        string `json:"phase"` // "request", "response" or "error"
	Model        string `json:"model"`
	MessageCount int    `json:"message_count,omitempty"`
	ToolCalls    int    `json:"tool_calls,omitempty"`
	TokensInput  int    `json:"tokens_input,omitempty"`
	TokensOutput int    `json:"tokens_output,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (ModelCallPayload) EventType() EventType { return EventModelCall }

// NewTypedEvent builds an event for userID in conversationID.
func NewTypedEvent(source EventSource, userID, conversationID string, payload EventPayload) Event {
	return Event{
		ID:             generateEventID(),
		UserID:         userID,
		ConversationID: conversationID,
		Type:           payload.EventType(),
		Timestamp:      time.Now(),
		Source:         source,
		Payload:        toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes the payload of e into T.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
