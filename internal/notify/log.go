package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/reminder"
)

// Log writes each notification as a structured log line.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) Show(_ context.Context, n reminder.Notification) error {
	ev := l.logger.Info().
		Str("id", n.ID).
		Str("title", n.Title).
		Str("badge", n.Badge())
	if !n.Start.IsZero() {
		ev = ev.Time("start", n.Start)
	}
	if n.Location != "" {
		ev = ev.Str("location", n.Location)
	}
	if n.Test {
		ev = ev.Bool("test", true)
	}
	ev.Msg("reminder")
	return nil
}
