package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekia-ai/calremind/internal/google"
	"github.com/sekia-ai/calremind/internal/reminder"
	"github.com/sekia-ai/calremind/pkg/protocol"
)

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakePoller struct {
	events    []reminder.CalendarEvent
	err       error
	status    reminder.PollStatus
	gotWindow time.Duration
	gotLimit  int
}

func (f *fakePoller) Upcoming(_ context.Context, window time.Duration, limit int) ([]reminder.CalendarEvent, error) {
	f.gotWindow, f.gotLimit = window, limit
	if f.err != nil {
		return nil, f.err
	}
	events := f.events
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (f *fakePoller) Status() reminder.PollStatus { return f.status }

type fakeScheduler struct {
	pending []reminder.ScheduledReminder
	tooLate bool
	tests   int
}

func (f *fakeScheduler) Schedule(_ context.Context, req reminder.Request) (reminder.ScheduledReminder, error) {
	if f.tooLate {
		return reminder.ScheduledReminder{}, reminder.ErrScheduleTooLate
	}
	sr := reminder.ScheduledReminder{
		ID:       fmt.Sprintf("reminder-%d", len(f.pending)+1),
		Title:    req.Title,
		Start:    req.Start.UTC().Format(time.RFC3339),
		Location: req.Location,
		FireAt:   req.Start.Add(-reminder.OneOffLead).UnixMilli(),
	}
	f.pending = append(f.pending, sr)
	return sr, nil
}

func (f *fakeScheduler) List(context.Context) ([]reminder.ScheduledReminder, error) {
	return f.pending, nil
}

func (f *fakeScheduler) Test() string {
	f.tests++
	return "test-1"
}

type fakeSettings struct{ minutes int }

func (f *fakeSettings) LeadMinutes(context.Context) (int, error) { return f.minutes, nil }

func (f *fakeSettings) SetLeadMinutes(_ context.Context, m int) error {
	if err := reminder.ValidateLeadMinutes(m); err != nil {
		return err
	}
	f.minutes = m
	return nil
}

type fakeAuth struct {
	signedIn   bool
	loggedOut  bool
	loginCalls int
}

func (f *fakeAuth) Authenticated(context.Context) bool { return f.signedIn }

func (f *fakeAuth) StartLogin() (string, <-chan error, error) {
	f.loginCalls++
	done := make(chan error, 1)
	done <- nil
	return "https://accounts.example/auth?state=abc", done, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.loggedOut = true
	f.signedIn = false
	return nil
}

type fixture struct {
	poller    *fakePoller
	scheduler *fakeScheduler
	settings  *fakeSettings
	auth      *fakeAuth
	handler   http.Handler
}

func newFixture(t *testing.T, withAuth bool) *fixture {
	t.Helper()
	f := &fixture{
		poller:    &fakePoller{},
		scheduler: &fakeScheduler{},
		settings:  &fakeSettings{minutes: 5},
		auth:      &fakeAuth{signedIn: true},
	}
	deps := Deps{
		Poller:   f.poller,
		Deferred: f.scheduler,
		Settings: f.settings,
		Info: Info{
			StartedAt:      time.Now().Add(-time.Minute),
			NATSRunning:    true,
			StoreBackend:   "memory",
			CalendarSource: "google",
		},
	}
	if withAuth {
		deps.Auth = f.auth
	}
	f.handler = New(filepath.Join(t.TempDir(), "api.sock"), deps, zerolog.Nop()).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t, true)
	f.poller.status = reminder.PollStatus{LastTick: base, Ticks: 3, Notified: 2, LastError: "boom"}
	f.scheduler.pending = []reminder.ScheduledReminder{{ID: "reminder-1"}}

	rec := f.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[protocol.StatusResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Authenticated)
	assert.True(t, resp.NATSRunning)
	assert.Equal(t, "memory", resp.StoreBackend)
	assert.Equal(t, 5, resp.LeadMinutes)
	assert.Equal(t, int64(3), resp.Polls)
	assert.Equal(t, int64(2), resp.Notified)
	assert.Equal(t, "boom", resp.LastPollError)
	assert.Equal(t, 1, resp.PendingReminders)
	require.NotNil(t, resp.LastPoll)
	assert.True(t, resp.LastPoll.Equal(base))
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t, true)
	f.auth.signedIn = false

	resp := decode[protocol.AuthResponse](t, f.do(t, http.MethodGet, "/api/v1/auth", nil))
	assert.False(t, resp.Authenticated)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[protocol.LoginResponse](t, rec)
	assert.Contains(t, login.AuthURL, "state=abc")
	assert.Equal(t, 1, f.auth.loginCalls)

	f.auth.signedIn = true
	rec = f.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.auth.loggedOut)
}

func TestAuthWithoutSignInSource(t *testing.T) {
	f := newFixture(t, false)

	resp := decode[protocol.AuthResponse](t, f.do(t, http.MethodGet, "/api/v1/auth", nil))
	assert.True(t, resp.Authenticated)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEvents(t *testing.T) {
	f := newFixture(t, true)
	for i := range 7 {
		start := base.Add(time.Duration(i+1) * time.Hour)
		f.poller.events = append(f.poller.events, reminder.CalendarEvent{
			ID:       fmt.Sprintf("evt%d", i),
			Start:    start,
			StartRaw: start.Format(time.RFC3339),
		})
	}
	f.poller.events = append([]reminder.CalendarEvent{{ID: "holiday", Title: "Holiday", AllDay: true, Date: "2026-10-19"}}, f.poller.events...)

	rec := f.do(t, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.EventsResponse](t, rec)

	assert.Equal(t, 24*time.Hour, f.poller.gotWindow)
	assert.Equal(t, 5, f.poller.gotLimit)
	require.Len(t, resp.Events, 5)
	assert.True(t, resp.Events[0].AllDay)
	assert.Nil(t, resp.Events[0].Start)
	assert.Equal(t, "2026-10-19", resp.Events[0].Date)
	assert.Equal(t, reminder.UntitledEvent, resp.Events[1].Title)
	require.NotNil(t, resp.Events[1].Start)
}

func TestEventsQuery(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/v1/events?hours=2&limit=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2*time.Hour, f.poller.gotWindow)
	assert.Equal(t, 0, f.poller.gotLimit)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/events?hours=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/events?limit=x", nil).Code)
}

func TestEventsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not authenticated", fmt.Errorf("access token: %w", google.ErrNotAuthenticated), http.StatusUnauthorized},
		{"refresh failed", google.ErrRefreshFailed, http.StatusUnauthorized},
		{"fetch", fmt.Errorf("%w: %w", reminder.ErrFetch, errors.New("503")), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.poller.err = tt.err
			rec := f.do(t, http.MethodGet, "/api/v1/events", nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode[protocol.ErrorResponse](t, rec).Error)
		})
	}
}

func TestLeadTime(t *testing.T) {
	f := newFixture(t, true)

	resp := decode[protocol.LeadTime](t, f.do(t, http.MethodGet, "/api/v1/settings/lead-time", nil))
	assert.Equal(t, 5, resp.Minutes)

	rec := f.do(t, http.MethodPut, "/api/v1/settings/lead-time", protocol.LeadTime{Minutes: 15})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, f.settings.minutes)

	for _, bad := range []int{0, -3, 1441} {
		rec := f.do(t, http.MethodPut, "/api/v1/settings/lead-time", protocol.LeadTime{Minutes: bad})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "minutes=%d", bad)
	}
	assert.Equal(t, 15, f.settings.minutes)
}

func TestScheduleReminder(t *testing.T) {
	f := newFixture(t, true)
	start := base.Add(time.Hour)

	rec := f.do(t, http.MethodPost, "/api/v1/reminders", protocol.ScheduleReminderRequest{
		Start:    start.Format(time.RFC3339),
		Location: "Room 4",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[protocol.ScheduleReminderResponse](t, rec)
	assert.True(t, resp.Scheduled)
	require.NotNil(t, resp.Reminder)
	assert.Equal(t, reminder.UntitledEvent, resp.Reminder.Title)
	assert.True(t, resp.Reminder.FireAt.Equal(start.Add(-time.Minute)))

	list := decode[protocol.RemindersResponse](t, f.do(t, http.MethodGet, "/api/v1/reminders", nil))
	require.Len(t, list.Reminders, 1)
	assert.Equal(t, "Room 4", list.Reminders[0].Location)
}

func TestScheduleReminderTooLate(t *testing.T) {
	f := newFixture(t, true)
	f.scheduler.tooLate = true

	rec := f.do(t, http.MethodPost, "/api/v1/reminders", protocol.ScheduleReminderRequest{
		Title: "Standup",
		Start: base.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.ScheduleReminderResponse](t, rec)
	assert.False(t, resp.Scheduled)
	assert.Nil(t, resp.Reminder)
}

func TestScheduleReminderBadStart(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/v1/reminders", protocol.ScheduleReminderRequest{Start: "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.scheduler.pending)
}

func TestTestNotification(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/v1/notifications/test", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "test-1", decode[protocol.TestNotificationResponse](t, rec).ID)
	assert.Equal(t, 1, f.scheduler.tests)
}

func TestUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "calremind-api")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "api.sock")

	srv := New(sock, Deps{
		Poller:   &fakePoller{},
		Deferred: &fakeScheduler{},
		Settings: &fakeSettings{minutes: 5},
		Info:     Info{StartedAt: time.Now()},
	}, zerolog.Nop())
	go srv.Start()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sock)
		},
	}}

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = client.Get("http://calremindd/api/v1/status")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
