package storage

import (
	"log/slog"

	"github.com/dohr-michael/taskchat/internal/events"
	"github.com/dohr-michael/taskchat/internal/storage/dirstore"
)

const (
	eventLogFile   = "events.jsonl"
	unknownUserDir = "_unknown"
)

// EventLogger persists bus events as an audit trail, one JSONL file per user.
type EventLogger struct {
	ds          *dirstore.DirStore
	unsubscribe func()
}

// NewEventLogger subscribes to all bus events and appends them under dir.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{ds: dirstore.NewDirStore(dir, "event log")}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	if err := el.write(e); err != nil {
		slog.Warn("event log write failed", "type", e.Type, "error", err)
	}
}

func (el *EventLogger) write(e events.Event) error {
	el.ds.Lock()
	defer el.ds.Unlock()

	dir := userDir(e.UserID)
	if err := el.ds.EnsureDir(dir); err != nil {
		return err
	}
	return el.ds.AppendJSONL(dir, eventLogFile, e)
}

// Load returns the logged events of userID in write order.
func (el *EventLogger) Load(userID string) ([]events.Event, error) {
	el.ds.RLock()
	defer el.ds.RUnlock()
	return dirstore.LoadJSONL[events.Event](el.ds, userDir(userID), eventLogFile)
}

func userDir(userID string) string {
	if !dirstore.ValidID(userID) {
		return unknownUserDir
	}
	return userID
}
