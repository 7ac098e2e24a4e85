// Package conversations keeps the append-only message log of each
// conversation and hands out the recent window used as model context.
package conversations

import (
	"errors"
	"time"

	"github.com/cloudwego/eino/schema"
)

// ErrNotFound is returned for unknown conversations and for conversations
// owned by another user.
var ErrNotFound = errors.New("conversation not found")

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation holds metadata about one conversation.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Active       bool      `json:"is_active"`
	MessageCount int       `json:"message_count"`
}

// Message is a single immutable turn, serialized to JSONL.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ToSchemaMessage converts a Message to an Eino schema.Message.
func (m Message) ToSchemaMessage() *schema.Message {
	role := schema.User
	if m.Role == RoleAssistant {
		role = schema.Assistant
	}
	return &schema.Message{Role: role, Content: m.Content}
}

// ToSchemaMessages converts a message window for the resolver.
func ToSchemaMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.ToSchemaMessage()
	}
	return out
}

// Store defines the persistence interface for conversations.
type Store interface {
	Create(userID string) (*Conversation, error)
	Get(id string) (*Conversation, error)
	// List returns every conversation of userID, most recently updated first.
	List(userID string) ([]*Conversation, error)
	SetActive(id string, active bool) error
	AppendMessage(id string, msg Message) error
	LoadMessages(id string) ([]Message, error)
}
