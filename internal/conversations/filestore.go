package conversations

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/taskchat/internal/storage/dirstore"
)

const messagesFile = "messages.jsonl"

// FileStore persists conversations as directories with meta.json + messages.jsonl.
type FileStore struct {
	ds  *dirstore.DirStore
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{ds: dirstore.NewDirStore(baseDir, "conversation"), now: time.Now}
}

func generateID() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create initialises a new active conversation for userID.
func (fs *FileStore) Create(userID string) (*Conversation, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	now := fs.now().UTC()
	c := &Conversation{
		ID:        generateID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
	if err := fs.ds.EnsureDir(c.ID); err != nil {
		return nil, err
	}
	if err := fs.ds.WriteMeta(c.ID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get reads conversation metadata by id.
func (fs *FileStore) Get(id string) (*Conversation, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()
	return fs.readMeta(id)
}

func (fs *FileStore) List(userID string) ([]*Conversation, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	ids, err := fs.ds.ListDirs()
	if err != nil {
		return nil, err
	}
	var out []*Conversation
	for _, id := range ids {
		c, err := fs.readMeta(id)
		if err != nil {
			continue // skip corrupted conversations
		}
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// SetActive flips is_active. Messages are never removed.
func (fs *FileStore) SetActive(id string, active bool) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	c, err := fs.readMeta(id)
	if err != nil {
		return err
	}
	c.Active = active
	c.UpdatedAt = fs.now().UTC()
	return fs.ds.WriteMeta(id, c)
}

// AppendMessage appends msg to the log and bumps the conversation metadata.
func (fs *FileStore) AppendMessage(id string, msg Message) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	c, err := fs.readMeta(id)
	if err != nil {
		return err
	}
	if err := fs.ds.AppendJSONL(id, messagesFile, msg); err != nil {
		return err
	}
	c.MessageCount++
	c.UpdatedAt = msg.CreatedAt
	return fs.ds.WriteMeta(id, c)
}

// LoadMessages reads every message of a conversation in insertion order.
func (fs *FileStore) LoadMessages(id string) ([]Message, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	if _, err := fs.readMeta(id); err != nil {
		return nil, err
	}
	return dirstore.LoadJSONL[Message](fs.ds, id, messagesFile)
}

func (fs *FileStore) readMeta(id string) (*Conversation, error) {
	var c Conversation
	if err := fs.ds.ReadMeta(id, &c); err != nil {
		if errors.Is(err, dirstore.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}
