package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/sekia-ai/calremind/pkg/protocol"
)

func (s *MCPServer) handleGetStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status, err := s.api.Status(ctx)
	if err != nil {
		return textError("failed to get status: " + err.Error()), nil
	}
	return textJSON(status)
}

func (s *MCPServer) handleListUpcomingEvents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	hours := req.GetInt("hours", 24)
	limit := req.GetInt("limit", 5)

	events, err := s.api.Events(ctx, hours, limit)
	if err != nil {
		return textError("failed to list events: " + err.Error()), nil
	}
	return textJSON(events.Events)
}

func (s *MCPServer) handleGetLeadTime(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	minutes, err := s.api.LeadTime(ctx)
	if err != nil {
		return textError("failed to get lead time: " + err.Error()), nil
	}
	return textJSON(protocol.LeadTime{Minutes: minutes})
}

func (s *MCPServer) handleSetLeadTime(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	minutes, err := req.RequireFloat("minutes")
	if err != nil {
		return textError("missing required parameter: minutes"), nil
	}
	if minutes != float64(int(minutes)) {
		return textError("minutes must be a whole number"), nil
	}
	if err := s.api.SetLeadTime(ctx, int(minutes)); err != nil {
		return textError("failed to set lead time: " + err.Error()), nil
	}
	return textJSON(protocol.LeadTime{Minutes: int(minutes)})
}

func (s *MCPServer) handleListScheduledReminders(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	reminders, err := s.api.Reminders(ctx)
	if err != nil {
		return textError("failed to list reminders: " + err.Error()), nil
	}
	return textJSON(reminders.Reminders)
}

func (s *MCPServer) handleScheduleReminder(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return textError("missing required parameter: title"), nil
	}
	start, err := req.RequireString("start")
	if err != nil {
		return textError("missing required parameter: start"), nil
	}
	if _, err := time.Parse(time.RFC3339, start); err != nil {
		return textError(fmt.Sprintf("start %q is not an RFC 3339 time", start)), nil
	}

	resp, err := s.api.ScheduleReminder(ctx, protocol.ScheduleReminderRequest{
		Title:    title,
		Start:    start,
		Location: req.GetString("location", ""),
	})
	if err != nil {
		return textError("failed to schedule reminder: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleSendTestNotification(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	resp, err := s.api.TestNotification(ctx)
	if err != nil {
		return textError("failed to send test notification: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleRecentReminders(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return textJSON(s.recentReminders())
}

// textResult returns a successful text result.
func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

// textError returns an error text result.
func textError(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// textJSON marshals v to indented JSON and returns it as a text result.
func textJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textError("failed to marshal response: " + err.Error()), nil
	}
	return textResult(string(data)), nil
}
