// Package client talks to the calremindd control API over its Unix socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sekia-ai/calremind/pkg/protocol"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("calremindd returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("calremindd returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client is a calremindd API client.
type Client struct {
	socketPath string
	client     *http.Client
}

// New creates a Client connected to the daemon's Unix socket.
func New(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *Client) Status(ctx context.Context) (*protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Auth(ctx context.Context) (*protocol.AuthResponse, error) {
	var resp protocol.AuthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login starts sign-in and returns the URL the user must open.
func (c *Client) Login(ctx context.Context) (*protocol.LoginResponse, error) {
	var resp protocol.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// Events lists events starting within the next hours, at most limit of them.
func (c *Client) Events(ctx context.Context, hours, limit int) (*protocol.EventsResponse, error) {
	q := url.Values{}
	q.Set("hours", strconv.Itoa(hours))
	q.Set("limit", strconv.Itoa(limit))

	var resp protocol.EventsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/events?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) LeadTime(ctx context.Context) (int, error) {
	var resp protocol.LeadTime
	if err := c.do(ctx, http.MethodGet, "/api/v1/settings/lead-time", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Minutes, nil
}

func (c *Client) SetLeadTime(ctx context.Context, minutes int) error {
	return c.do(ctx, http.MethodPut, "/api/v1/settings/lead-time", protocol.LeadTime{Minutes: minutes}, nil)
}

func (c *Client) Reminders(ctx context.Context) (*protocol.RemindersResponse, error) {
	var resp protocol.RemindersResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/reminders", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ScheduleReminder(ctx context.Context, req protocol.ScheduleReminderRequest) (*protocol.ScheduleReminderResponse, error) {
	var resp protocol.ScheduleReminderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/reminders", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) TestNotification(ctx context.Context) (*protocol.TestNotificationResponse, error) {
	var resp protocol.TestNotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/notifications/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://calremindd"+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to calremindd at %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr protocol.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
