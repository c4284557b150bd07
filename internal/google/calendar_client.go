package google

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/sekia-ai/calremind/internal/reminder"
)

// CalendarClient lists events from one Google calendar.
type CalendarClient struct {
	calendarID string
	opts       []option.ClientOption
}

// NewCalendarClient creates a client for calendarID ("primary" when empty).
// Extra options are appended after the per-call HTTP client.
func NewCalendarClient(calendarID string, opts ...option.ClientOption) *CalendarClient {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarClient{calendarID: calendarID, opts: opts}
}

// FetchEvents returns single (expanded) events starting in [start, end],
// ordered by start time.
func (c *CalendarClient) FetchEvents(ctx context.Context, token string, start, end time.Time) ([]reminder.CalendarEvent, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.opts...)

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	call := svc.Events.List(c.calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		Context(ctx)

	var events []reminder.CalendarEvent
	err = call.Pages(ctx, func(resp *calendar.Events) error {
		for _, item := range resp.Items {
			events = append(events, mapCalendarItem(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func mapCalendarItem(item *calendar.Event) reminder.CalendarEvent {
	ev := reminder.CalendarEvent{
		ID:       item.Id,
		Title:    item.Summary,
		Location: item.Location,
		HTMLLink: item.HtmlLink,
	}
	if ev.Title == "" {
		ev.Title = reminder.UntitledEvent
	}

	if item.Start != nil {
		if item.Start.DateTime != "" {
			ev.StartRaw = item.Start.DateTime
			ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
		} else if item.Start.Date != "" {
			ev.AllDay = true
			ev.Date = item.Start.Date
		}
	}
	return ev
}
