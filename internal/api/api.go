package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/google"
	"github.com/sekia-ai/calremind/internal/reminder"
	"github.com/sekia-ai/calremind/pkg/protocol"
)

const (
	defaultEventHours = 24
	defaultEventLimit = 5
	maxEventHours     = 24 * 31
)

// Poller is the part of the poll loop the API reads from.
type Poller interface {
	Upcoming(ctx context.Context, window time.Duration, limit int) ([]reminder.CalendarEvent, error)
	Status() reminder.PollStatus
}

// Scheduler manages one-off reminders.
type Scheduler interface {
	Schedule(ctx context.Context, req reminder.Request) (reminder.ScheduledReminder, error)
	List(ctx context.Context) ([]reminder.ScheduledReminder, error)
	Test() string
}

// LeadTimeSettings reads and writes the reminder lead time.
type LeadTimeSettings interface {
	LeadMinutes(ctx context.Context) (int, error)
	SetLeadMinutes(ctx context.Context, minutes int) error
}

// Authenticator drives calendar sign-in.
type Authenticator interface {
	Authenticated(ctx context.Context) bool
	StartLogin() (authURL string, done <-chan error, err error)
	Logout(ctx context.Context) error
}

// Info is static daemon information reported by /api/v1/status.
type Info struct {
	StartedAt      time.Time
	NATSRunning    bool
	StoreBackend   string
	CalendarSource string
}

// Deps are the components the API serves. Auth is nil for calendar
// sources that need no sign-in.
type Deps struct {
	Poller   Poller
	Deferred Scheduler
	Settings LeadTimeSettings
	Auth     Authenticator
	Info     Info
}

// Server serves the calremindd control API over a Unix socket.
type Server struct {
	socketPath string
	deps       Deps
	httpServer *http.Server
	logger     zerolog.Logger
}

func New(socketPath string, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		socketPath: socketPath,
		deps:       deps,
		logger:     logger.With().Str("component", "api").Logger(),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/auth", s.handleAuth)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Get("/events", s.handleEvents)

		r.Get("/settings/lead-time", s.handleGetLeadTime)
		r.Put("/settings/lead-time", s.handleSetLeadTime)

		r.Get("/reminders", s.handleListReminders)
		r.Post("/reminders", s.handleScheduleReminder)

		r.Post("/notifications/test", s.handleTestNotification)
	})
	return router
}

// Start begins listening on the Unix socket. Blocks until Shutdown.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return err
	}
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	os.Chmod(s.socketPath, 0600)

	s.logger.Info().Str("socket", s.socketPath).Msg("API server listening")
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the API server and removes the socket.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	os.Remove(s.socketPath)
	return err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) authenticated(ctx context.Context) bool {
	if s.deps.Auth == nil {
		return true
	}
	return s.deps.Auth.Authenticated(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := s.deps.Info
	poll := s.deps.Poller.Status()

	resp := protocol.StatusResponse{
		Status:         "ok",
		Uptime:         time.Since(info.StartedAt).Truncate(time.Second).String(),
		StartedAt:      info.StartedAt,
		NATSRunning:    info.NATSRunning,
		StoreBackend:   info.StoreBackend,
		CalendarSource: info.CalendarSource,
		Authenticated:  s.authenticated(ctx),
		LastPollError:  poll.LastError,
		Polls:          poll.Ticks,
		Notified:       poll.Notified,
	}
	if !poll.LastTick.IsZero() {
		last := poll.LastTick
		resp.LastPoll = &last
	}
	if lead, err := s.deps.Settings.LeadMinutes(ctx); err == nil {
		resp.LeadMinutes = lead
	} else {
		s.logger.Warn().Err(err).Msg("read lead time")
	}
	if pending, err := s.deps.Deferred.List(ctx); err == nil {
		resp.PendingReminders = len(pending)
	} else {
		s.logger.Warn().Err(err).Msg("list reminders")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.AuthResponse{Authenticated: s.authenticated(r.Context())})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		writeError(w, http.StatusConflict, "calendar source does not use sign-in")
		return
	}
	// The outcome is logged by the token store; clients poll /auth.
	authURL, _, err := s.deps.Auth.StartLogin()
	if err != nil {
		s.logger.Error().Err(err).Msg("start login")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, protocol.LoginResponse{AuthURL: authURL})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		writeError(w, http.StatusConflict, "calendar source does not use sign-in")
		return
	}
	if err := s.deps.Auth.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, protocol.AuthResponse{Authenticated: false})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", defaultEventHours)
	if err != nil || hours < 1 || hours > maxEventHours {
		writeError(w, http.StatusBadRequest, "hours must be between 1 and "+strconv.Itoa(maxEventHours))
		return
	}
	limit, err := queryInt(r, "limit", defaultEventLimit)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	events, err := s.deps.Poller.Upcoming(r.Context(), time.Duration(hours)*time.Hour, limit)
	switch {
	case err == nil:
	case errors.Is(err, google.ErrNotAuthenticated), errors.Is(err, google.ErrRefreshFailed):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, reminder.ErrFetch):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := protocol.EventsResponse{Events: make([]protocol.EventInfo, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, eventInfo(ev))
	}
	writeJSON(w, http.StatusOK, resp)
}

func eventInfo(ev reminder.CalendarEvent) protocol.EventInfo {
	info := protocol.EventInfo{
		ID:       ev.ID,
		Title:    ev.Title,
		StartRaw: ev.StartRaw,
		AllDay:   ev.AllDay,
		Date:     ev.Date,
		Location: ev.Location,
		Link:     ev.HTMLLink,
	}
	if info.Title == "" {
		info.Title = reminder.UntitledEvent
	}
	if ev.Timed() {
		start := ev.Start
		info.Start = &start
	}
	return info
}

func (s *Server) handleGetLeadTime(w http.ResponseWriter, r *http.Request) {
	lead, err := s.deps.Settings.LeadMinutes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, protocol.LeadTime{Minutes: lead})
}

func (s *Server) handleSetLeadTime(w http.ResponseWriter, r *http.Request) {
	var req protocol.LeadTime
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	err := s.deps.Settings.SetLeadMinutes(r.Context(), req.Minutes)
	switch {
	case errors.Is(err, reminder.ErrInvalidLeadTime):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().Int("minutes", req.Minutes).Msg("lead time updated")
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	pending, err := s.deps.Deferred.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := protocol.RemindersResponse{Reminders: make([]protocol.ReminderInfo, 0, len(pending))}
	for _, sr := range pending {
		resp.Reminders = append(resp.Reminders, reminderInfo(sr))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScheduleReminder(w http.ResponseWriter, r *http.Request) {
	var req protocol.ScheduleReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be an RFC 3339 time")
		return
	}
	title := req.Title
	if title == "" {
		title = reminder.UntitledEvent
	}

	sr, err := s.deps.Deferred.Schedule(r.Context(), reminder.Request{
		Title:    title,
		Start:    start,
		Location: req.Location,
	})
	switch {
	case errors.Is(err, reminder.ErrScheduleTooLate):
		writeJSON(w, http.StatusOK, protocol.ScheduleReminderResponse{Scheduled: false})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	info := reminderInfo(sr)
	writeJSON(w, http.StatusCreated, protocol.ScheduleReminderResponse{Scheduled: true, Reminder: &info})
}

func reminderInfo(sr reminder.ScheduledReminder) protocol.ReminderInfo {
	return protocol.ReminderInfo{
		ID:       sr.ID,
		Title:    sr.Title,
		Start:    sr.Start,
		Location: sr.Location,
		FireAt:   time.UnixMilli(sr.FireAt).UTC(),
	}
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	id := s.deps.Deferred.Test()
	writeJSON(w, http.StatusAccepted, protocol.TestNotificationResponse{ID: id})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}
