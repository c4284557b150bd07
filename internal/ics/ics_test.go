package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calremind//test//EN
BEGIN:VEVENT
UID:single-1
SUMMARY:Design review
LOCATION:Room 7
DTSTART:20261019T093000Z
DTEND:20261019T103000Z
END:VEVENT
BEGIN:VEVENT
UID:daily-1
SUMMARY:Standup
DTSTART:20261015T090000Z
DTEND:20261015T091500Z
RRULE:FREQ=DAILY
EXDATE:20261020T090000Z
END:VEVENT
BEGIN:VEVENT
UID:holiday-1
SUMMARY:Holiday
DTSTART;VALUE=DATE:20261019
DTEND;VALUE=DATE:20261020
END:VEVENT
BEGIN:VEVENT
UID:cancelled-1
SUMMARY:Cancelled sync
STATUS:CANCELLED
DTSTART:20261019T100000Z
DTEND:20261019T110000Z
END:VEVENT
BEGIN:VEVENT
UID:untitled-1
DTSTART:20261019T120000Z
DTEND:20261019T130000Z
END:VEVENT
END:VCALENDAR
`

func icsBody() []byte {
	return []byte(strings.ReplaceAll(feed, "\n", "\r\n"))
}

func TestParseWindow(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)

	events, err := Parse(icsBody(), start, end)
	require.NoError(t, err)

	byID := map[string][]string{}
	for _, ev := range events {
		byID[ev.ID] = append(byID[ev.ID], ev.StartRaw)
	}

	assert.Equal(t, []string{"2026-10-19T09:30:00Z"}, byID["single-1"])
	assert.Equal(t, []string{"2026-10-19T09:00:00Z"}, byID["daily-1"])
	assert.Contains(t, byID, "holiday-1")
	assert.NotContains(t, byID, "cancelled-1")
	assert.Contains(t, byID, "untitled-1")

	for _, ev := range events {
		switch ev.ID {
		case "holiday-1":
			assert.True(t, ev.AllDay)
			assert.False(t, ev.Timed())
			assert.Equal(t, "2026-10-19", ev.Date)
		case "untitled-1":
			assert.Equal(t, "Untitled Event", ev.Title)
		case "single-1":
			assert.Equal(t, "Room 7", ev.Location)
			assert.Equal(t, "single-1-2026-10-19T09:30:00Z", ev.Key())
		}
	}
}

func TestParseHonorsExdate(t *testing.T) {
	start := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 21, 23, 0, 0, 0, time.UTC)

	events, err := Parse(icsBody(), start, end)
	require.NoError(t, err)

	var standups []string
	for _, ev := range events {
		if ev.ID == "daily-1" {
			standups = append(standups, ev.StartRaw)
		}
	}
	assert.Equal(t, []string{"2026-10-21T09:00:00Z"}, standups)
}

const overrideFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calremind//test//EN
BEGIN:VEVENT
UID:weekly-1
SUMMARY:Sync
DTSTART:20261015T090000Z
DTEND:20261015T093000Z
RRULE:FREQ=DAILY
END:VEVENT
BEGIN:VEVENT
UID:weekly-1
RECURRENCE-ID:20261019T090000Z
SUMMARY:Sync (moved)
DTSTART:20261019T100000Z
DTEND:20261019T103000Z
END:VEVENT
BEGIN:VEVENT
UID:weekly-1
RECURRENCE-ID:20261020T090000Z
SUMMARY:Sync
STATUS:CANCELLED
DTSTART:20261020T090000Z
DTEND:20261020T093000Z
END:VEVENT
BEGIN:VEVENT
UID:once-1
SUMMARY:Review
DTSTART:20261019T110000Z
DTEND:20261019T120000Z
END:VEVENT
BEGIN:VEVENT
UID:once-1
RECURRENCE-ID:20261019T110000Z
SUMMARY:Review (moved)
DTSTART:20261019T113000Z
DTEND:20261019T123000Z
END:VEVENT
END:VCALENDAR
`

func TestParseMovedInstanceReplacesSlot(t *testing.T) {
	body := []byte(strings.ReplaceAll(overrideFeed, "\n", "\r\n"))
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	events, err := Parse(body, start, start.Add(4*time.Hour))
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		got = append(got, ev.ID+" "+ev.Title+" "+ev.StartRaw)
	}
	assert.Equal(t, []string{
		"weekly-1 Sync (moved) 2026-10-19T10:00:00Z",
		"once-1 Review (moved) 2026-10-19T11:30:00Z",
	}, got)
}

func TestParseCancelledInstanceIsSkipped(t *testing.T) {
	body := []byte(strings.ReplaceAll(overrideFeed, "\n", "\r\n"))
	start := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	events, err := Parse(body, start, start.Add(36*time.Hour))
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		if ev.ID == "weekly-1" {
			got = append(got, ev.StartRaw)
		}
	}
	assert.Equal(t, []string{"2026-10-21T09:00:00Z"}, got)
}

func TestParseOrdersByStart(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	events, err := Parse(icsBody(), start, start.Add(6*time.Hour))
	require.NoError(t, err)

	var last time.Time
	for _, ev := range events {
		if !ev.Timed() {
			continue
		}
		assert.False(t, ev.Start.Before(last), "events out of order")
		last = ev.Start
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil, time.Now(), time.Now())
	assert.Error(t, err)
}

func TestFetchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cal.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		w.Write(icsBody())
	}))
	defer srv.Close()

	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	c := NewClient(srv.URL+"/cal.ics", zerolog.Nop())

	events, err := c.FetchEvents(context.Background(), "", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	c = NewClient(srv.URL+"/missing.ics", zerolog.Nop())
	_, err = c.FetchEvents(context.Background(), "", start, start.Add(time.Hour))
	assert.Error(t, err)
}

func TestAnonymousTokens(t *testing.T) {
	tok, err := AnonymousTokens{}.AccessToken(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, tok)
}
