package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/store"
)

const (
	// OneOffLead is how long before the event start a deferred reminder fires.
	OneOffLead = time.Minute

	testDelay     = 5 * time.Second
	testLeadStart = 5 * time.Minute
	fireTimeout   = 30 * time.Second
)

// ErrScheduleTooLate is returned when the reminder would fire in the past.
// Callers treat it as a silent no-op.
var ErrScheduleTooLate = errors.New("reminder fire time already passed")

// Request asks for a reminder one minute before Start.
type Request struct {
	Title    string
	Start    time.Time
	Location string
}

// ScheduledReminder is a pending one-off reminder as persisted in the store.
type ScheduledReminder struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Start    string `json:"startTime"`
	Location string `json:"location"`
	FireAt   int64  `json:"fireAt"`
}

// Deferred schedules one-off reminders. Pending reminders live in the store
// under a single key; every read-modify-write of that key happens under mu,
// so concurrent firings and schedulings neither lose updates nor deliver twice.
type Deferred struct {
	mu     sync.Mutex
	store  store.Store
	show   Presenter
	clock  clock.Clock
	timers map[string]*clock.Timer
	logger zerolog.Logger

	stopped bool
}

// NewDeferred creates a scheduler. A nil clk uses the wall clock.
func NewDeferred(s store.Store, show Presenter, clk clock.Clock, logger zerolog.Logger) *Deferred {
	if clk == nil {
		clk = clock.New()
	}
	return &Deferred{
		store:  s,
		show:   show,
		clock:  clk,
		timers: make(map[string]*clock.Timer),
		logger: logger.With().Str("component", "deferred").Logger(),
	}
}

// Schedule persists the request and arms a timer for Start minus one minute.
func (d *Deferred) Schedule(ctx context.Context, req Request) (ScheduledReminder, error) {
	now := d.clock.Now()
	fireAt := req.Start.Add(-OneOffLead)
	if !fireAt.After(now) {
		return ScheduledReminder{}, ErrScheduleTooLate
	}

	r := ScheduledReminder{
		ID:       "reminder-" + uuid.NewString(),
		Title:    req.Title,
		Start:    req.Start.Format(time.RFC3339),
		Location: req.Location,
		FireAt:   fireAt.UnixMilli(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pending, err := d.load(ctx)
	if err != nil {
		return ScheduledReminder{}, err
	}
	pending[r.ID] = r
	if err := d.save(ctx, pending); err != nil {
		return ScheduledReminder{}, err
	}
	d.arm(r.ID, fireAt.Sub(now))

	d.logger.Info().
		Str("id", r.ID).
		Str("title", r.Title).
		Time("fire_at", fireAt).
		Msg("reminder scheduled")
	return r, nil
}

// Restore re-arms reminders persisted by a previous run. Reminders whose fire
// time passed while the daemon was down are delivered at once if their event
// has not started yet, and dropped otherwise.
func (d *Deferred) Restore(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending, err := d.load(ctx)
	if err != nil {
		return 0, err
	}

	now := d.clock.Now()
	armed, dropped := 0, 0
	for id, r := range pending {
		fireAt := time.UnixMilli(r.FireAt)
		start, perr := time.Parse(time.RFC3339, r.Start)
		switch {
		case fireAt.After(now):
			d.arm(id, fireAt.Sub(now))
			armed++
		case perr == nil && start.After(now):
			go d.fire(id)
			armed++
		default:
			delete(pending, id)
			dropped++
		}
	}
	if dropped > 0 {
		if err := d.save(ctx, pending); err != nil {
			return armed, err
		}
	}

	d.logger.Info().Int("armed", armed).Int("dropped", dropped).Msg("pending reminders restored")
	return armed, nil
}

// List returns pending reminders ordered by fire time.
func (d *Deferred) List(ctx context.Context) ([]ScheduledReminder, error) {
	d.mu.Lock()
	pending, err := d.load(ctx)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]ScheduledReminder, 0, len(pending))
	for _, r := range pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt < out[j].FireAt })
	return out, nil
}

// Test presents a sample notification after a short delay and returns its id.
func (d *Deferred) Test() string {
	now := d.clock.Now()
	n := Notification{
		ID:    "test-" + strconv.FormatInt(now.UnixMilli(), 10),
		Title: "Test Event",
		Start: now.Add(testLeadStart),
		Test:  true,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return n.ID
	}
	d.timers[n.ID] = d.clock.AfterFunc(testDelay, func() {
		d.mu.Lock()
		_, armed := d.timers[n.ID]
		delete(d.timers, n.ID)
		d.mu.Unlock()
		if !armed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
		defer cancel()
		d.present(ctx, n)
	})
	return n.ID
}

// Stop disarms all timers, including a pending test notification.
// Persisted reminders are kept for Restore.
func (d *Deferred) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// arm must be called with mu held.
func (d *Deferred) arm(id string, delay time.Duration) {
	if t, ok := d.timers[id]; ok {
		t.Stop()
	}
	d.timers[id] = d.clock.AfterFunc(delay, func() { d.fire(id) })
}

// fire takes the reminder out of the store and presents it. A reminder that
// is already gone is ignored.
func (d *Deferred) fire(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.timers, id)
	pending, err := d.load(ctx)
	if err != nil {
		d.mu.Unlock()
		d.logger.Error().Err(err).Str("id", id).Msg("load pending reminders")
		return
	}
	r, ok := pending[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(pending, id)
	err = d.save(ctx, pending)
	d.mu.Unlock()
	if err != nil {
		d.logger.Warn().Err(err).Str("id", id).Msg("failed to remove fired reminder")
	}

	start, _ := time.Parse(time.RFC3339, r.Start)
	d.present(ctx, Notification{
		ID:       r.ID,
		Title:    r.Title,
		Start:    start,
		Location: r.Location,
	})
}

func (d *Deferred) present(ctx context.Context, n Notification) {
	if err := d.show.Show(ctx, n); err != nil {
		d.logger.Error().Err(err).Str("id", n.ID).Msg("present reminder")
	}
}

func (d *Deferred) load(ctx context.Context) (map[string]ScheduledReminder, error) {
	pending := make(map[string]ScheduledReminder)
	if _, err := store.GetJSON(ctx, d.store, store.KeyScheduled, &pending); err != nil {
		return nil, fmt.Errorf("load scheduled reminders: %w", err)
	}
	if pending == nil {
		pending = make(map[string]ScheduledReminder)
	}
	return pending, nil
}

func (d *Deferred) save(ctx context.Context, pending map[string]ScheduledReminder) error {
	if err := store.SetJSON(ctx, d.store, store.KeyScheduled, pending); err != nil {
		return fmt.Errorf("save scheduled reminders: %w", err)
	}
	return nil
}
