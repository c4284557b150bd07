// Package bus publishes reminder events and daemon heartbeats over NATS so
// other processes can observe what calremindd surfaces.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/reminder"
	"github.com/sekia-ai/calremind/pkg/protocol"
)

const heartbeatInterval = 30 * time.Second

// Config holds connection options for the publisher.
type Config struct {
	NATSUrl  string
	NATSOpts []nats.Option
	// Secret signs published events. Empty leaves them unsigned.
	Secret string
}

// Publisher implements reminder.Presenter by publishing each notification
// as a signed protocol.Event on calremind.events.reminders.
type Publisher struct {
	Name string

	nc     *nats.Conn
	secret string
	logger zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	published atomic.Int64
	errors    atomic.Int64
	lastEvent atomic.Value // stores time.Time
}

var _ reminder.Presenter = (*Publisher)(nil)

// Connect dials NATS and starts heartbeating under name.
func Connect(cfg Config, name string, logger zerolog.Logger) (*Publisher, error) {
	busLogger := logger.With().Str("component", "bus").Str("publisher", name).Logger()

	resilienceOpts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				busLogger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			busLogger.Info().Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			busLogger.Debug().Msg("NATS connection closed")
		}),
	}

	opts := append(resilienceOpts, cfg.NATSOpts...)
	nc, err := nats.Connect(cfg.NATSUrl, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}

	p := &Publisher{
		Name:   name,
		nc:     nc,
		secret: cfg.Secret,
		logger: busLogger,
		done:   make(chan struct{}),
	}
	p.lastEvent.Store(time.Time{})

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.heartbeatLoop(ctx)

	return p, nil
}

// Show publishes n. It does not wait for any subscriber.
func (p *Publisher) Show(_ context.Context, n reminder.Notification) error {
	payload := map[string]any{
		"id":    n.ID,
		"title": n.Title,
		"badge": n.Badge(),
	}
	if !n.Start.IsZero() {
		payload["start"] = n.Start.UTC().Format(time.RFC3339)
	}
	if n.Location != "" {
		payload["location"] = n.Location
	}
	if n.Link != "" {
		payload["link"] = n.Link
	}
	if n.Test {
		payload["test"] = true
	}

	ev := protocol.NewEvent(protocol.EventReminderDue, p.Name, payload)
	if err := protocol.SignEvent(&ev, p.secret); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("sign event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(protocol.SubjectReminders, data); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("publish %s: %w", protocol.SubjectReminders, err)
	}

	p.published.Add(1)
	p.lastEvent.Store(time.Now())
	p.logger.Debug().Str("event_id", ev.ID).Str("reminder", n.ID).Msg("reminder published")
	return nil
}

func (p *Publisher) heartbeatLoop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	p.sendHeartbeat("running")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sendHeartbeat("running")
		}
	}
}

func (p *Publisher) sendHeartbeat(status string) {
	hb := protocol.Heartbeat{
		Name:            p.Name,
		Status:          status,
		LastEvent:       p.lastEvent.Load().(time.Time),
		EventsPublished: p.published.Load(),
		Errors:          p.errors.Load(),
	}
	data, _ := json.Marshal(hb)
	if err := p.nc.Publish(protocol.SubjectHeartbeat(p.Name), data); err != nil {
		p.logger.Error().Err(err).Msg("failed to send heartbeat")
	}
}

// Published returns the number of events published so far.
func (p *Publisher) Published() int64 { return p.published.Load() }

// Close sends a final "stopped" heartbeat, stops the loop and drains.
func (p *Publisher) Close() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	p.sendHeartbeat("stopped")
	p.nc.Drain()
}
