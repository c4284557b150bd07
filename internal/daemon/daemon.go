// Package daemon wires the calremindd process: event bus, state store,
// calendar source, presenters, the poll loop and the control API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/calremind/internal/api"
	"github.com/sekia-ai/calremind/internal/bus"
	"github.com/sekia-ai/calremind/internal/google"
	"github.com/sekia-ai/calremind/internal/ics"
	"github.com/sekia-ai/calremind/internal/natsserver"
	"github.com/sekia-ai/calremind/internal/notify"
	"github.com/sekia-ai/calremind/internal/reminder"
	"github.com/sekia-ai/calremind/internal/store"
)

const publisherName = "calremindd"

// Daemon is the calremindd process.
type Daemon struct {
	cfg    Config
	logger zerolog.Logger

	nats      *natsserver.Server
	nc        *nats.Conn // external server only
	js        jetstream.JetStream
	natsURL   string
	natsOpts  []nats.Option
	store     store.Store
	publisher *bus.Publisher
	tokens    *google.TokenStore
	deferred  *reminder.Deferred
	poller    *reminder.Poller
	apiServer *api.Server

	startedAt time.Time
	cancel    context.CancelFunc
	pollDone  chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewDaemon creates a Daemon from config.
func NewDaemon(cfg Config, logger zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Run starts all subsystems and blocks until a signal is received or Stop is called.
func (d *Daemon) Run() error {
	d.startedAt = time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	if err := d.start(ctx); err != nil {
		d.shutdown()
		return err
	}

	apiErrCh := make(chan error, 1)
	go func() {
		apiErrCh <- d.apiServer.Start()
	}()

	d.logger.Info().
		Str("socket", d.cfg.Server.Socket).
		Str("store", d.cfg.Store.Backend).
		Str("source", d.cfg.Calendar.Source).
		Msg("calremindd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-d.stopCh:
		d.logger.Info().Msg("stop requested, shutting down")
	case err := <-apiErrCh:
		if err != nil {
			d.logger.Error().Err(err).Msg("API server error")
		}
	}

	return d.shutdown()
}

func (d *Daemon) start(ctx context.Context) error {
	if d.cfg.needsNATS() {
		if err := d.startNATS(); err != nil {
			return err
		}
	}

	st, err := d.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open %s store: %w", d.cfg.Store.Backend, err)
	}
	d.store = st

	settings := reminder.NewSettings(st, d.cfg.Reminder.DefaultLeadMinutes)
	seeded, err := settings.EnsureDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if seeded {
		d.logger.Info().Int("lead_minutes", d.cfg.Reminder.DefaultLeadMinutes).Msg("lead time initialised")
	}

	tokens, cal := d.calendarSource()

	presenter, err := d.presenters()
	if err != nil {
		return err
	}

	d.deferred = reminder.NewDeferred(st, presenter, nil, d.logger)
	restored, err := d.deferred.Restore(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("restore scheduled reminders")
	} else if restored > 0 {
		d.logger.Info().Int("count", restored).Msg("scheduled reminders restored")
	}

	d.poller = reminder.NewPoller(reminder.PollerConfig{
		Interval:  d.cfg.Calendar.PollInterval,
		Lookahead: d.cfg.Calendar.Lookahead,
	}, tokens, cal, settings, st, presenter, nil, d.logger)

	d.pollDone = make(chan struct{})
	go func() {
		defer close(d.pollDone)
		d.poller.Run(ctx)
	}()

	deps := api.Deps{
		Poller:   d.poller,
		Deferred: d.deferred,
		Settings: settings,
		Info: api.Info{
			StartedAt:      d.startedAt,
			NATSRunning:    d.nats != nil || d.nc != nil,
			StoreBackend:   d.cfg.Store.Backend,
			CalendarSource: d.cfg.Calendar.Source,
		},
	}
	if d.tokens != nil {
		deps.Auth = d.tokens
	}
	d.apiServer = api.New(d.cfg.Server.Socket, deps, d.logger)
	return nil
}

func (d *Daemon) startNATS() error {
	if d.cfg.NATS.URL == "" {
		ns, err := natsserver.Start(natsserver.Config{
			DataDir: d.cfg.NATS.DataDir,
			Host:    d.cfg.NATS.Host,
			Port:    d.cfg.NATS.Port,
			Token:   d.cfg.NATS.Token,
		}, d.logger)
		if err != nil {
			return fmt.Errorf("start nats: %w", err)
		}
		d.nats = ns
		d.js = ns.JetStream()
		d.natsURL = ns.ClientURL()
		d.natsOpts = ns.ConnectOptions()
		return nil
	}

	if d.cfg.NATS.Token != "" {
		d.natsOpts = append(d.natsOpts, nats.Token(d.cfg.NATS.Token))
	}
	nc, err := nats.Connect(d.cfg.NATS.URL, d.natsOpts...)
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", d.cfg.NATS.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("init jetstream: %w", err)
	}
	d.nc, d.js, d.natsURL = nc, js, d.cfg.NATS.URL
	d.logger.Info().Str("url", d.cfg.NATS.URL).Msg("connected to external NATS")
	return nil
}

func (d *Daemon) openStore(ctx context.Context) (store.Store, error) {
	switch d.cfg.Store.Backend {
	case BackendNATS:
		return store.OpenKV(ctx, d.js, d.cfg.Store.Bucket)
	case BackendSQLite:
		return store.OpenSQLite(ctx, d.cfg.Store.Path)
	case BackendMemory:
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", d.cfg.Store.Backend)
}

func (d *Daemon) calendarSource() (reminder.TokenProvider, reminder.CalendarClient) {
	if d.cfg.Calendar.Source == SourceICS {
		return ics.AnonymousTokens{}, ics.NewClient(d.cfg.Calendar.ICSURL, d.logger)
	}
	d.tokens = google.NewTokenStore(d.store, google.OAuthConfig(d.cfg.Google.ClientID, d.cfg.Google.ClientSecret), d.logger)
	return d.tokens, google.NewCalendarClient(d.cfg.Google.CalendarID)
}

func (d *Daemon) presenters() (reminder.Presenter, error) {
	presenters := notify.Multi{notify.NewLog(d.logger)}
	if d.cfg.Notify.Desktop {
		presenters = append(presenters, notify.NewDesktop(d.cfg.Notify.Actions, d.logger))
	}
	if d.cfg.Notify.Bus {
		pub, err := bus.Connect(bus.Config{
			NATSUrl:  d.natsURL,
			NATSOpts: d.natsOpts,
			Secret:   d.cfg.Notify.EventSecret,
		}, publisherName, d.logger)
		if err != nil {
			return nil, fmt.Errorf("connect event bus: %w", err)
		}
		d.publisher = pub
		presenters = append(presenters, pub)
	}
	return presenters, nil
}

// Stop signals the daemon to shut down. Safe to call from another goroutine
// and more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// NATSClientURL returns the URL other processes use to reach the bus.
func (d *Daemon) NATSClientURL() string {
	return d.natsURL
}

// NATSConnectOpts returns the options a client in this process needs.
func (d *Daemon) NATSConnectOpts() []nats.Option {
	return d.natsOpts
}

func (d *Daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if d.apiServer != nil {
		if err := d.apiServer.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.pollDone != nil {
		<-d.pollDone
	}
	if d.deferred != nil {
		d.deferred.Stop()
	}
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if d.nc != nil {
		d.nc.Drain()
	}
	if d.nats != nil {
		d.nats.Shutdown()
	}
	return errors.Join(errs...)
}
