package protocol

import "time"

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Status           string     `json:"status"`
	Uptime           string     `json:"uptime"`
	StartedAt        time.Time  `json:"started_at"`
	NATSRunning      bool       `json:"nats_running"`
	StoreBackend     string     `json:"store_backend"`
	CalendarSource   string     `json:"calendar_source"`
	Authenticated    bool       `json:"authenticated"`
	LeadMinutes      int        `json:"lead_minutes"`
	LastPoll         *time.Time `json:"last_poll,omitempty"`
	LastPollError    string     `json:"last_poll_error,omitempty"`
	Polls            int64      `json:"polls"`
	Notified         int64      `json:"notified"`
	PendingReminders int        `json:"pending_reminders"`
}

// AuthResponse is returned by GET /api/v1/auth.
type AuthResponse struct {
	Authenticated bool `json:"authenticated"`
}

// LoginResponse is returned by POST /api/v1/auth/login.
type LoginResponse struct {
	AuthURL string `json:"auth_url"`
}

// EventInfo is one entry in the GET /api/v1/events response.
type EventInfo struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Start    *time.Time `json:"start,omitempty"`
	StartRaw string     `json:"start_raw,omitempty"`
	AllDay   bool       `json:"all_day"`
	Date     string     `json:"date,omitempty"`
	Location string     `json:"location,omitempty"`
	Link     string     `json:"link,omitempty"`
}

// EventsResponse is returned by GET /api/v1/events.
type EventsResponse struct {
	Events []EventInfo `json:"events"`
}

// LeadTime is the body of GET and PUT /api/v1/settings/lead-time.
type LeadTime struct {
	Minutes int `json:"minutes"`
}

// ScheduleReminderRequest is the body of POST /api/v1/reminders.
type ScheduleReminderRequest struct {
	Title string `json:"title"`
	// Start is the event start in RFC 3339.
	Start    string `json:"start"`
	Location string `json:"location,omitempty"`
}

// ReminderInfo describes a pending one-off reminder.
type ReminderInfo struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    string    `json:"start"`
	Location string    `json:"location,omitempty"`
	FireAt   time.Time `json:"fire_at"`
}

// ScheduleReminderResponse is returned by POST /api/v1/reminders. Scheduled
// is false when the event starts too soon for a one-minute reminder.
type ScheduleReminderResponse struct {
	Scheduled bool          `json:"scheduled"`
	Reminder  *ReminderInfo `json:"reminder,omitempty"`
}

// RemindersResponse is returned by GET /api/v1/reminders.
type RemindersResponse struct {
	Reminders []ReminderInfo `json:"reminders"`
}

// TestNotificationResponse is returned by POST /api/v1/notifications/test.
type TestNotificationResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
