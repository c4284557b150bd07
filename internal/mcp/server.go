package mcp

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/pkg/client"
	"github.com/sekia-ai/calremind/pkg/protocol"
)

const recentLimit = 20

// DaemonAPI is the part of the calremindd API the tools use.
// Implemented by *client.Client; tests can provide a mock.
type DaemonAPI interface {
	Status(ctx context.Context) (*protocol.StatusResponse, error)
	Events(ctx context.Context, hours, limit int) (*protocol.EventsResponse, error)
	LeadTime(ctx context.Context) (int, error)
	SetLeadTime(ctx context.Context, minutes int) error
	Reminders(ctx context.Context) (*protocol.RemindersResponse, error)
	ScheduleReminder(ctx context.Context, req protocol.ScheduleReminderRequest) (*protocol.ScheduleReminderResponse, error)
	TestNotification(ctx context.Context) (*protocol.TestNotificationResponse, error)
}

var _ DaemonAPI = (*client.Client)(nil)

// MCPServer exposes calremind to AI assistants via MCP.
type MCPServer struct {
	api         DaemonAPI
	logger      zerolog.Logger
	eventSecret string

	// Overridable for testing.
	natsOpts []nats.Option

	mu     sync.Mutex
	recent []protocol.Event
}

// New creates an MCPServer. Call Run() to start serving on stdio.
func New(cfg Config, logger zerolog.Logger) *MCPServer {
	s := &MCPServer{
		api:         client.New(cfg.Daemon.Socket),
		logger:      logger.With().Str("component", "mcp").Logger(),
		eventSecret: cfg.NATS.EventSecret,
	}
	if cfg.NATS.Token != "" {
		s.natsOpts = append(s.natsOpts, nats.Token(cfg.NATS.Token))
	}
	return s
}

// SetDaemonAPI overrides the daemon API client. Intended for testing with a mock.
func (s *MCPServer) SetDaemonAPI(api DaemonAPI) {
	s.api = api
}

// SetNATSOpts sets NATS connection options. Must be called before Run().
func (s *MCPServer) SetNATSOpts(opts []nats.Option) {
	s.natsOpts = opts
}

// Run registers the tools and serves on stdio until stdin closes or ctx is
// cancelled. With a NATS URL it also records reminder events as they fire.
func (s *MCPServer) Run(ctx context.Context, natsURL string) error {
	if natsURL != "" {
		nc, err := s.watch(natsURL)
		if err != nil {
			return err
		}
		defer nc.Close()
	}

	srv := mcpserver.NewMCPServer(
		"calremind",
		"0.1.0",
		mcpserver.WithRecovery(),
	)

	s.registerTools(srv)

	stdio := mcpserver.NewStdioServer(srv)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	s.logger.Info().Msg("MCP server starting on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// watch subscribes to reminder events and keeps the most recent ones.
func (s *MCPServer) watch(natsURL string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL, s.natsOpts...)
	if err != nil {
		return nil, err
	}
	if _, err := nc.Subscribe(protocol.SubjectReminders, s.onReminder); err != nil {
		nc.Close()
		return nil, err
	}
	return nc, nil
}

func (s *MCPServer) onReminder(msg *nats.Msg) {
	var ev protocol.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("malformed reminder event")
		return
	}
	if !protocol.VerifyEvent(&ev, s.eventSecret) {
		s.logger.Warn().Str("event_id", ev.ID).Msg("reminder event failed signature check")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, ev)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[len(s.recent)-recentLimit:]
	}
}

func (s *MCPServer) recentReminders() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Event, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *MCPServer) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(
		mcplib.NewTool("get_status",
			mcplib.WithDescription("Get calremindd status: uptime, sign-in state, lead time, last poll and pending reminders"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetStatus,
	)

	srv.AddTool(
		mcplib.NewTool("list_upcoming_events",
			mcplib.WithDescription("List upcoming calendar events"),
			mcplib.WithNumber("hours", mcplib.Description("How many hours ahead to look (default 24)")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum number of events (default 5, 0 for all)")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleListUpcomingEvents,
	)

	srv.AddTool(
		mcplib.NewTool("get_lead_time",
			mcplib.WithDescription("Get how many minutes before an event its reminder fires"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetLeadTime,
	)

	srv.AddTool(
		mcplib.NewTool("set_lead_time",
			mcplib.WithDescription("Set how many minutes before an event its reminder fires (1 to 1440)"),
			mcplib.WithNumber("minutes", mcplib.Required(), mcplib.Description("Lead time in minutes")),
		),
		s.handleSetLeadTime,
	)

	srv.AddTool(
		mcplib.NewTool("list_scheduled_reminders",
			mcplib.WithDescription("List pending one-off reminders"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleListScheduledReminders,
	)

	srv.AddTool(
		mcplib.NewTool("schedule_reminder",
			mcplib.WithDescription("Schedule a one-off reminder one minute before an event starts"),
			mcplib.WithString("title", mcplib.Required(), mcplib.Description("Event title")),
			mcplib.WithString("start", mcplib.Required(), mcplib.Description("Event start time in RFC 3339, e.g. 2026-10-19T14:00:00+02:00")),
			mcplib.WithString("location", mcplib.Description("Event location")),
		),
		s.handleScheduleReminder,
	)

	srv.AddTool(
		mcplib.NewTool("send_test_notification",
			mcplib.WithDescription("Show a test reminder after five seconds"),
		),
		s.handleSendTestNotification,
	)

	srv.AddTool(
		mcplib.NewTool("recent_reminders",
			mcplib.WithDescription("List reminder events published since this MCP server started"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleRecentReminders,
	)
}
