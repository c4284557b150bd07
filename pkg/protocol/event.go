package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by calremindd.
const (
	EventReminderDue = "calremind.reminder.due"
)

// Event is the envelope published on calremind.events.<kind>.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
	Signature string         `json:"signature,omitempty"`
}

// NewEvent creates an Event with a generated ID and the current time in
// epoch milliseconds.
func NewEvent(eventType, source string, payload map[string]any) Event {
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}
