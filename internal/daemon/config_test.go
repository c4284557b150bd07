package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekia-ai/calremind/internal/secrets"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calremind.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"CALREMIND_GOOGLE_CLIENT_ID", "CALREMIND_GOOGLE_CLIENT_SECRET",
		secrets.EnvAgeKey, secrets.EnvAgeKeyFile,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
[google]
client_id = "abc.apps.googleusercontent.com"
client_secret = "GOCSPX-secret"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendNATS, cfg.Store.Backend)
	assert.Equal(t, "calremind", cfg.Store.Bucket)
	assert.Equal(t, SourceGoogle, cfg.Calendar.Source)
	assert.Equal(t, "primary", cfg.Google.CalendarID)
	assert.Equal(t, time.Minute, cfg.Calendar.PollInterval)
	assert.Equal(t, time.Hour, cfg.Calendar.Lookahead)
	assert.Equal(t, 5, cfg.Reminder.DefaultLeadMinutes)
	assert.True(t, cfg.Notify.Desktop)
	assert.True(t, cfg.Notify.Bus)
	assert.NotEmpty(t, cfg.Server.Socket)
	assert.True(t, strings.HasSuffix(cfg.NATS.DataDir, filepath.Join("calremind", "nats")))
}

func TestLoadConfigFileValues(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
[store]
backend = "sqlite"
path = "~/state/calremind.db"

[calendar]
source = "ics"
ics_url = "https://calendar.example/basic.ics"
poll_interval = "30s"
lookahead = "2h"

[reminder]
default_lead_minutes = 10
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "state", "calremind.db"), cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Calendar.PollInterval)
	assert.Equal(t, 2*time.Hour, cfg.Calendar.Lookahead)
	assert.Equal(t, 10, cfg.Reminder.DefaultLeadMinutes)
}

func TestLoadConfigGoogleEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "env-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")

	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "env-id", cfg.Google.ClientID)
	assert.Equal(t, "env-secret", cfg.Google.ClientSecret)
}

func TestLoadConfigDecryptsSecrets(t *testing.T) {
	isolateEnv(t)
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	t.Setenv(secrets.EnvAgeKey, id.String())

	sealed, err := secrets.Encrypt("GOCSPX-sealed", id.Recipient())
	require.NoError(t, err)

	cfg, err := LoadConfig(writeConfig(t, `
[google]
client_id = "abc"
client_secret = "`+sealed+`"
`))
	require.NoError(t, err)
	assert.Equal(t, "GOCSPX-sealed", cfg.Google.ClientSecret)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	isolateEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Server:   ServerConfig{Socket: "/tmp/calremindd.sock"},
		Store:    StoreConfig{Backend: BackendMemory},
		Calendar: CalendarConfig{Source: SourceICS, ICSURL: "https://x", PollInterval: time.Minute, Lookahead: time.Hour},
		Reminder: ReminderConfig{DefaultLeadMinutes: 5},
	}
	require.NoError(t, valid.Validate())

	tests := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.Store.Backend = "redis" },
		"sqlite no path":    func(c *Config) { c.Store.Backend = BackendSQLite },
		"google no creds":   func(c *Config) { c.Calendar.Source = SourceGoogle },
		"ics no url":        func(c *Config) { c.Calendar.ICSURL = "" },
		"unknown source":    func(c *Config) { c.Calendar.Source = "outlook" },
		"zero interval":     func(c *Config) { c.Calendar.PollInterval = 0 },
		"zero lookahead":    func(c *Config) { c.Calendar.Lookahead = 0 },
		"lead out of range": func(c *Config) { c.Reminder.DefaultLeadMinutes = 0 },
		"no socket":         func(c *Config) { c.Server.Socket = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNeedsNATS(t *testing.T) {
	assert.True(t, Config{Store: StoreConfig{Backend: BackendNATS}}.needsNATS())
	assert.True(t, Config{Store: StoreConfig{Backend: BackendMemory}, Notify: NotifyConfig{Bus: true}}.needsNATS())
	assert.False(t, Config{Store: StoreConfig{Backend: BackendSQLite}}.needsNATS())
}
