package events

import (
	"time"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
)

// Type names the kind of session event.
type Type string

const (
	TypeTranscript   Type = "transcript"
	TypeBusy         Type = "busy"
	TypeNotification Type = "notification"
)

// Notification is a transient user-visible message.
type Notification struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Event is what observers of a session receive. Version is the session
// version the event describes; observers drop events older than one they
// already applied.
type Event struct {
	Type         Type           `json:"type"`
	Version      int64          `json:"version"`
	Snapshot     *chat.Snapshot `json:"snapshot,omitempty"`
	Busy         *bool          `json:"busy,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func TranscriptChanged(snapshot chat.Snapshot) Event {
	return Event{Type: TypeTranscript, Version: snapshot.Version, Snapshot: &snapshot, Timestamp: time.Now().UTC()}
}

func BusyChanged(busy bool, version int64) Event {
	return Event{Type: TypeBusy, Version: version, Busy: &busy, Timestamp: time.Now().UTC()}
}

func Notify(level, text string, version int64) Event {
	return Event{
		Type:         TypeNotification,
		Version:      version,
		Notification: &Notification{Level: level, Text: text},
		Timestamp:    time.Now().UTC(),
	}
}
