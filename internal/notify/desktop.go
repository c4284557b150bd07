// Package notify surfaces reminders to the user: desktop notifications via
// notify-send, a structured log line, or both.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/google"
	"github.com/sekia-ai/calremind/internal/reminder"
)

const (
	appName         = "calremind"
	defaultLink     = "https://calendar.google.com"
	actionWaitLimit = 10 * time.Minute
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Desktop shows notifications with notify-send. With actions enabled the
// notification carries an "Open calendar" button that opens the event link.
type Desktop struct {
	actions bool
	run     runFunc
	open    func(string) error
	logger  zerolog.Logger
}

var _ reminder.Presenter = (*Desktop)(nil)

func NewDesktop(actions bool, logger zerolog.Logger) *Desktop {
	return &Desktop{
		actions: actions,
		run:     runCommand,
		open:    google.OpenBrowser,
		logger:  logger.With().Str("component", "desktop").Logger(),
	}
}

// Show pops the notification. With actions enabled notify-send blocks until
// the user reacts, so it runs in the background and Show returns at once.
func (d *Desktop) Show(ctx context.Context, n reminder.Notification) error {
	args := []string{"--app-name=" + appName, "--urgency=critical"}
	if !d.actions {
		args = append(args, n.Title, Body(n))
		if out, err := d.run(ctx, "notify-send", args...); err != nil {
			return fmt.Errorf("notify-send failed: %w, output: %s", err, strings.TrimSpace(string(out)))
		}
		return nil
	}

	args = append(args, "--action", "default=Open calendar", "--wait", n.Title, Body(n))
	go d.awaitAction(n, args)
	return nil
}

func (d *Desktop) awaitAction(n reminder.Notification, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), actionWaitLimit)
	defer cancel()

	out, err := d.run(ctx, "notify-send", args...)
	if err != nil {
		d.logger.Warn().Err(err).Str("id", n.ID).Msg("notify-send failed")
		return
	}
	if strings.TrimSpace(string(out)) != "default" {
		return
	}
	link := n.Link
	if link == "" {
		link = defaultLink
	}
	if err := d.open(link); err != nil {
		d.logger.Warn().Err(err).Str("link", link).Msg("failed to open browser")
	}
}

// Body is the notification text: the start badge, then the location if any.
func Body(n reminder.Notification) string {
	if n.Location == "" {
		return n.Badge()
	}
	return n.Badge() + "\n" + n.Location
}
