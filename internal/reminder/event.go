// Package reminder decides which calendar events deserve a reminder, when,
// and makes sure each one is surfaced exactly once.
package reminder

import (
	"context"
	"time"
)

// UntitledEvent is the title used for events that have none.
const UntitledEvent = "Untitled Event"

// CalendarEvent is a single event as reported by a calendar source.
type CalendarEvent struct {
	ID    string
	Title string
	// Start is zero for all-day events.
	Start time.Time
	// StartRaw is the start exactly as the provider reported it. It is part
	// of the notification key, so a rescheduled event is a new target.
	StartRaw string
	AllDay   bool
	Date     string
	Location string
	HTMLLink string
}

// Timed reports whether the event has a concrete start time.
func (e CalendarEvent) Timed() bool {
	return !e.AllDay && !e.Start.IsZero()
}

// Key returns the dedup ledger key for the event.
func (e CalendarEvent) Key() string {
	return e.ID + "-" + e.StartRaw
}

// Notification is what gets presented to the user.
type Notification struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	Location string    `json:"location,omitempty"`
	Link     string    `json:"link,omitempty"`
	Test     bool      `json:"test,omitempty"`
}

// NotificationFor builds the notification for a due event.
func NotificationFor(e CalendarEvent) Notification {
	title := e.Title
	if title == "" {
		title = UntitledEvent
	}
	return Notification{
		ID:       e.ID,
		Title:    title,
		Start:    e.Start,
		Location: e.Location,
		Link:     e.HTMLLink,
	}
}

// Badge is the short time label shown with a notification.
func (n Notification) Badge() string {
	if n.Start.IsZero() {
		return "Starting soon"
	}
	return n.Start.Local().Format("15:04") + " start"
}

// TokenProvider hands out a currently valid access token.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// CalendarClient lists events starting within [start, end].
type CalendarClient interface {
	FetchEvents(ctx context.Context, token string, start, end time.Time) ([]CalendarEvent, error)
}

// Presenter surfaces a notification to the user.
type Presenter interface {
	Show(ctx context.Context, n Notification) error
}
