package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func timedEvent(id string, start time.Time) CalendarEvent {
	return CalendarEvent{
		ID:       id,
		Title:    "Event " + id,
		Start:    start,
		StartRaw: start.Format(time.RFC3339),
	}
}

// recorder is a Presenter that captures notifications.
type recorder struct {
	ch  chan Notification
	err error
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Notification, 16)}
}

func (r *recorder) Show(_ context.Context, n Notification) error {
	r.ch <- n
	return r.err
}

func (r *recorder) wait(t *testing.T) Notification {
	t.Helper()
	select {
	case n := <-r.ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case n := <-r.ch:
		t.Fatalf("unexpected notification: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

type mockTokens struct {
	token string
	err   error
}

func (m *mockTokens) AccessToken(context.Context) (string, error) {
	return m.token, m.err
}

type fetchCall struct {
	token      string
	start, end time.Time
}

type mockCalendar struct {
	mu     sync.Mutex
	events []CalendarEvent
	err    error
	calls  []fetchCall
}

func (m *mockCalendar) FetchEvents(_ context.Context, token string, start, end time.Time) ([]CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fetchCall{token: token, start: start, end: end})
	if m.err != nil {
		return nil, m.err
	}
	return append([]CalendarEvent(nil), m.events...), nil
}

func (m *mockCalendar) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var errBoom = errors.New("boom")
