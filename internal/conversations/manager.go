package conversations

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager enforces ownership on top of a Store and implements the
// open-or-create policy used by the chat pipeline.
type Manager struct {
	store Store
	now   func() time.Time

	// opening serializes Open per user so a double submit cannot create
	// two conversations.
	mu      sync.Mutex
	opening map[string]*sync.Mutex
}

// NewManager creates a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now, opening: make(map[string]*sync.Mutex)}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.opening[userID]
	if !ok {
		l = &sync.Mutex{}
		m.opening[userID] = l
	}
	return l
}

// Open returns the conversation to use for a request. A supplied id must
// exist, belong to userID and be active. Without one, the user's most
// recently updated active conversation is reused, or a new one is created.
func (m *Manager) Open(userID, conversationID string) (*Conversation, error) {
	if conversationID = strings.TrimSpace(conversationID); conversationID != "" {
		c, err := m.Get(userID, conversationID)
		if err != nil {
			return nil, err
		}
		if !c.Active {
			return nil, fmt.Errorf("%s is inactive: %w", conversationID, ErrNotFound)
		}
		return c, nil
	}

	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	all, err := m.store.List(userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for _, c := range all {
		if c.Active {
			return c, nil
		}
	}

	c, err := m.store.Create(userID)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	slog.Debug("conversation created", "user_id", userID, "conversation_id", c.ID)
	return c, nil
}

// Get returns a conversation owned by userID, active or not.
func (m *Manager) Get(userID, conversationID string) (*Conversation, error) {
	c, err := m.store.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("%s: %w", conversationID, ErrNotFound)
	}
	return c, nil
}

// Append records a new turn. Messages are immutable once appended.
func (m *Manager) Append(userID, conversationID string, role Role, content string, metadata map[string]any) (*Message, error) {
	if _, err := m.Get(userID, conversationID); err != nil {
		return nil, err
	}
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      m.now().UTC(),
		Metadata:       metadata,
	}
	if err := m.store.AppendMessage(conversationID, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// Recent returns up to limit messages, most recent last. A limit <= 0
// returns the whole log.
func (m *Manager) Recent(userID, conversationID string, limit int) ([]Message, error) {
	if _, err := m.Get(userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := m.store.LoadMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// List returns the user's conversations, most recently updated first.
// Inactive conversations are only included when asked for.
func (m *Manager) List(userID string, includeInactive bool) ([]*Conversation, error) {
	all, err := m.store.List(userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]*Conversation, 0, len(all))
	for _, c := range all {
		if c.Active || includeInactive {
			out = append(out, c)
		}
	}
	return out, nil
}

// Deactivate archives a conversation. Its messages are kept.
func (m *Manager) Deactivate(userID, conversationID string) error {
	c, err := m.Get(userID, conversationID)
	if err != nil {
		return err
	}
	if !c.Active {
		return nil
	}
	if err := m.store.SetActive(conversationID, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("deactivate conversation: %w", err)
	}
	return nil
}
