package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/store"
)

// ErrFetch wraps calendar client failures.
var ErrFetch = errors.New("calendar fetch failed")

// PollerConfig tunes the poll loop.
type PollerConfig struct {
	Interval  time.Duration
	Lookahead time.Duration
	// Timeout bounds the token and calendar calls of one tick.
	Timeout time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Lookahead <= 0 {
		c.Lookahead = time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// PollStatus summarises recent poll activity.
type PollStatus struct {
	LastTick  time.Time
	LastError string
	Ticks     int64
	Notified  int64
}

// Poller periodically fetches upcoming events and presents due reminders.
type Poller struct {
	tokens   TokenProvider
	calendar CalendarClient
	settings *Settings
	store    store.Store
	show     Presenter
	clock    clock.Clock
	cfg      PollerConfig
	logger   zerolog.Logger

	mu     sync.Mutex
	status PollStatus
}

// NewPoller wires a poll loop. A nil clk uses the wall clock.
func NewPoller(cfg PollerConfig, tokens TokenProvider, cal CalendarClient, settings *Settings, s store.Store, show Presenter, clk clock.Clock, logger zerolog.Logger) *Poller {
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{
		tokens:   tokens,
		calendar: cal,
		settings: settings,
		store:    s,
		show:     show,
		clock:    clk,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Run ticks once immediately and then on every interval until ctx is
// cancelled. A tick never overlaps the previous one.
func (p *Poller) Run(ctx context.Context) error {
	cl := cronLogger{p.logger}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { p.Tick(ctx) }))

	c := cron.New(cron.WithLogger(cl))
	c.Schedule(cron.Every(p.cfg.Interval), job)

	p.logger.Info().
		Dur("interval", p.cfg.Interval).
		Dur("lookahead", p.cfg.Lookahead).
		Msg("poller started")

	job.Run()
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Tick runs one poll. Failures abort the tick, are logged and returned;
// the next tick is the retry.
func (p *Poller) Tick(ctx context.Context) error {
	now := p.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	notified, err := p.tick(ctx, now)

	p.mu.Lock()
	p.status.LastTick = now
	p.status.Ticks++
	p.status.Notified += int64(notified)
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
	p.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, ErrFetch):
		p.logger.Warn().Err(err).Msg("poll aborted")
	default:
		p.logger.Debug().Err(err).Msg("poll aborted")
	}
	return err
}

func (p *Poller) tick(ctx context.Context, now time.Time) (int, error) {
	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("access token: %w", err)
	}

	events, err := p.calendar.FetchEvents(ctx, token, now, now.Add(p.cfg.Lookahead))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	lead, err := p.settings.LeadMinutes(ctx)
	if err != nil {
		return 0, err
	}

	prev, err := p.readLedger(ctx)
	if err != nil {
		return 0, err
	}

	due, next := Evaluate(events, time.Duration(lead)*time.Minute, prev, now)
	for _, n := range due {
		if err := p.show.Show(ctx, n); err != nil {
			p.logger.Error().Err(err).Str("event_id", n.ID).Msg("present reminder")
		}
	}

	if err := store.SetJSON(ctx, p.store, store.KeyNotified, next); err != nil {
		return len(due), fmt.Errorf("write ledger: %w", err)
	}

	p.logger.Debug().
		Int("events", len(events)).
		Int("notified", len(due)).
		Int("ledger", len(next)).
		Int("lead_minutes", lead).
		Msg("poll complete")
	return len(due), nil
}

// readLedger returns the stored ledger. An unreadable value is discarded
// so the tick can overwrite it.
func (p *Poller) readLedger(ctx context.Context) (Ledger, error) {
	data, err := p.store.Get(ctx, store.KeyNotified)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var prev Ledger
	if err := json.Unmarshal(data, &prev); err != nil {
		p.logger.Warn().Err(err).Msg("discarding unreadable ledger")
		return nil, nil
	}
	return prev, nil
}

// Upcoming lists events starting within window, at most limit of them
// (all when limit <= 0). Unlike Tick, errors are returned to the caller.
func (p *Poller) Upcoming(ctx context.Context, window time.Duration, limit int) ([]CalendarEvent, error) {
	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	events, err := p.calendar.FetchEvents(ctx, token, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Status returns a snapshot of poll activity.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
