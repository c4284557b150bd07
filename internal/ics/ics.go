// Package ics reads events from an iCalendar feed URL. It is an alternative
// calendar source for users who share a secret ICS link instead of signing
// in with Google.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/sekia-ai/calremind/internal/reminder"
)

const (
	maxOccurrences = 500

	propRecurrenceID ical.ComponentProperty = "RECURRENCE-ID"
)

// Client fetches and expands an ICS feed.
type Client struct {
	url    string
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a client for feedURL.
func NewClient(feedURL string, logger zerolog.Logger) *Client {
	return &Client{
		url:    feedURL,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger.With().Str("component", "ics").Logger(),
	}
}

// FetchEvents downloads the feed and returns occurrences starting in
// [start, end], ordered by start. The token is ignored; feeds are public
// or carry their secret in the URL.
func (c *Client) FetchEvents(ctx context.Context, _ string, start, end time.Time) ([]reminder.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	events, err := Parse(body, start, end)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Int("events", len(events)).Msg("feed parsed")
	return events, nil
}

// Parse decodes an ICS payload and expands it into events in [start, end].
func Parse(body []byte, start, end time.Time) ([]reminder.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ICS: %w", err)
	}

	// Instances moved or cancelled by a RECURRENCE-ID override replace the
	// slot their master would otherwise produce.
	overridden := make(map[string][]time.Time)
	var masters, overrides []*ical.VEvent
	for _, ve := range cal.Events() {
		rid := ve.GetProperty(propRecurrenceID)
		if rid == nil {
			masters = append(masters, ve)
			continue
		}
		t, err := parsePropTime(rid, time.UTC)
		if err != nil {
			continue
		}
		uid := prop(ve, ical.ComponentPropertyUniqueId)
		overridden[uid] = append(overridden[uid], t)
		overrides = append(overrides, ve)
	}

	var out []reminder.CalendarEvent
	for _, ve := range masters {
		out = append(out, expand(ve, overridden[prop(ve, ical.ComponentPropertyUniqueId)], start, end)...)
	}
	for _, ve := range overrides {
		out = append(out, expand(ve, nil, start, end)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i]).Before(sortKey(out[j]))
	})
	return out, nil
}

func sortKey(ev reminder.CalendarEvent) time.Time {
	if ev.AllDay {
		t, _ := time.ParseInLocation("2006-01-02", ev.Date, time.Local)
		return t
	}
	return ev.Start
}

// expand returns the occurrences of ve in [start, end], skipping the
// instances listed in skip.
func expand(ve *ical.VEvent, skip []time.Time, start, end time.Time) []reminder.CalendarEvent {
	uid := prop(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return nil
	}
	if strings.EqualFold(prop(ve, ical.ComponentPropertyStatus), "CANCELLED") {
		return nil
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return nil
	}
	evStart, err := ve.GetStartAt()
	if err != nil {
		return nil
	}
	allDay := isAllDay(dtStart)

	proto := reminder.CalendarEvent{
		ID:       uid,
		Title:    prop(ve, ical.ComponentPropertySummary),
		Location: prop(ve, ical.ComponentPropertyLocation),
		HTMLLink: prop(ve, ical.ComponentPropertyUrl),
		AllDay:   allDay,
	}
	if proto.Title == "" {
		proto.Title = reminder.UntitledEvent
	}

	var starts []time.Time
	if raw := prop(ve, ical.ComponentPropertyRrule); raw != "" {
		starts = occurrences(ve, raw, evStart, skip, start, end)
	} else if !containsInstant(skip, evStart) {
		starts = []time.Time{evStart}
	}

	var out []reminder.CalendarEvent
	for _, s := range starts {
		if allDay {
			day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.Local)
			if day.Add(24*time.Hour).Before(start) || day.After(end) {
				continue
			}
			ev := proto
			ev.Date = day.Format("2006-01-02")
			out = append(out, ev)
			continue
		}
		if s.Before(start) || s.After(end) {
			continue
		}
		ev := proto
		ev.Start = s
		ev.StartRaw = s.Format(time.RFC3339)
		out = append(out, ev)
	}
	return out
}

// occurrences expands an RRULE (minus EXDATEs) within [start, end].
func occurrences(ve *ical.VEvent, raw string, dtStart time.Time, skip []time.Time, start, end time.Time) []time.Time {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil
	}
	r.DTStart(dtStart)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), dtStart.Location()); err == nil {
				set.ExDate(t)
			}
		}
	}
	for _, t := range skip {
		set.ExDate(t.In(dtStart.Location()))
	}

	// Widen by a day so all-day instances overlapping the window are kept.
	times := set.Between(start.Add(-24*time.Hour).In(dtStart.Location()), end.In(dtStart.Location()), true)
	if len(times) > maxOccurrences {
		times = times[:maxOccurrences]
	}
	return times
}

func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func prop(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// parsePropTime parses a date or date-time property, honoring its TZID.
func parsePropTime(p *ical.IANAProperty, fallback *time.Location) (time.Time, error) {
	loc := fallback
	if ids, ok := p.ICalParameters["TZID"]; ok && len(ids) > 0 {
		if l, err := time.LoadLocation(ids[0]); err == nil {
			loc = l
		}
	}
	return parseICSTime(strings.TrimSpace(p.Value), loc)
}

func containsInstant(ts []time.Time, t time.Time) bool {
	for _, x := range ts {
		if x.Equal(t) {
			return true
		}
	}
	return false
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// AnonymousTokens satisfies reminder.TokenProvider for sources that need no sign-in.
type AnonymousTokens struct{}

func (AnonymousTokens) AccessToken(context.Context) (string, error) { return "", nil }
