package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sekia-ai/calremind/internal/reminder"
	"github.com/sekia-ai/calremind/internal/secrets"
	"github.com/sekia-ai/calremind/internal/store"
	"github.com/sekia-ai/calremind/pkg/sockpath"
)

// Store backends.
const (
	BackendNATS   = "nats"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Calendar sources.
const (
	SourceGoogle = "google"
	SourceICS    = "ics"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Store    StoreConfig    `mapstructure:"store"`
	Google   GoogleConfig   `mapstructure:"google"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds control socket settings.
type ServerConfig struct {
	Socket string `mapstructure:"socket"`
}

// NATSConfig selects an external NATS server or configures the embedded one.
type NATSConfig struct {
	// URL of an external server. Empty starts the embedded server.
	URL     string `mapstructure:"url"`
	DataDir string `mapstructure:"data_dir"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Token   string `mapstructure:"token"`
}

// StoreConfig selects where settings, the ledger and tokens live.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Path    string `mapstructure:"path"`
}

// GoogleConfig holds OAuth client credentials.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"` // #nosec G117 -- config deserialization, not hardcoded
	CalendarID   string `mapstructure:"calendar_id"`
}

// CalendarConfig controls where events come from and how often.
type CalendarConfig struct {
	Source       string        `mapstructure:"source"`
	ICSURL       string        `mapstructure:"ics_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Lookahead    time.Duration `mapstructure:"lookahead"`
}

type ReminderConfig struct {
	DefaultLeadMinutes int `mapstructure:"default_lead_minutes"`
}

// NotifyConfig selects presenters. The log presenter is always on.
type NotifyConfig struct {
	Desktop bool `mapstructure:"desktop"`
	// Actions adds an "Open calendar" button to desktop notifications.
	Actions bool `mapstructure:"actions"`
	Bus     bool `mapstructure:"bus"`
	// EventSecret signs reminder events published on the bus.
	EventSecret string `mapstructure:"event_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig reads configuration from file and env, then opens any
// ENC[...] values.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "calremind")

	v.SetDefault("server.socket", sockpath.DefaultSocketPath())
	v.SetDefault("nats.data_dir", filepath.Join(dataDir, "nats"))
	v.SetDefault("store.backend", BackendNATS)
	v.SetDefault("store.bucket", store.DefaultBucket)
	v.SetDefault("store.path", filepath.Join(dataDir, "calremind.db"))
	v.SetDefault("google.calendar_id", "primary")
	v.SetDefault("calendar.source", SourceGoogle)
	v.SetDefault("calendar.poll_interval", time.Minute)
	v.SetDefault("calendar.lookahead", time.Hour)
	v.SetDefault("reminder.default_lead_minutes", reminder.DefaultLeadMinutes)
	v.SetDefault("notify.desktop", true)
	v.SetDefault("notify.actions", false)
	v.SetDefault("notify.bus", true)
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("calremind")
		v.AddConfigPath("/etc/calremind")
		v.AddConfigPath("$HOME/.config/calremind")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CALREMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("google.client_id", "CALREMIND_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	v.BindEnv("google.client_secret", "CALREMIND_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")
	v.BindEnv("nats.token", "CALREMIND_NATS_TOKEN")
	v.BindEnv("notify.event_secret", "CALREMIND_EVENT_SECRET")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist; the search path is optional.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := secrets.DecryptConfig(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.NATS.DataDir = expandHome(cfg.NATS.DataDir)
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Server.Socket = expandHome(cfg.Server.Socket)

	return cfg, cfg.Validate()
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendNATS, BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want nats, sqlite or memory", c.Store.Backend))
	}

	switch c.Calendar.Source {
	case SourceGoogle:
		if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
			errs = append(errs, errors.New("google.client_id and google.client_secret are required for the google source"))
		}
	case SourceICS:
		if c.Calendar.ICSURL == "" {
			errs = append(errs, errors.New("calendar.ics_url is required for the ics source"))
		}
	default:
		errs = append(errs, fmt.Errorf("calendar.source %q: want google or ics", c.Calendar.Source))
	}

	if c.Calendar.PollInterval <= 0 {
		errs = append(errs, errors.New("calendar.poll_interval must be positive"))
	}
	if c.Calendar.Lookahead <= 0 {
		errs = append(errs, errors.New("calendar.lookahead must be positive"))
	}
	if err := reminder.ValidateLeadMinutes(c.Reminder.DefaultLeadMinutes); err != nil {
		errs = append(errs, fmt.Errorf("reminder.default_lead_minutes: %w", err))
	}
	if c.Server.Socket == "" {
		errs = append(errs, errors.New("server.socket is required"))
	}
	return errors.Join(errs...)
}

// needsNATS reports whether any component uses the bus or its KV store.
func (c Config) needsNATS() bool {
	return c.Store.Backend == BackendNATS || c.Notify.Bus
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, rest)
}
