package mcp

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/sekia-ai/calremind/internal/secrets"
	"github.com/sekia-ai/calremind/pkg/sockpath"
)

// Config holds all configuration for the MCP server.
type Config struct {
	NATS   NATSConfig   `mapstructure:"nats"`
	Daemon DaemonConfig `mapstructure:"daemon"`
}

// NATSConfig holds settings for watching reminder events. An empty URL
// disables the recent_reminders tool.
type NATSConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
	// EventSecret verifies reminder event signatures.
	EventSecret string `mapstructure:"event_secret"`
}

// DaemonConfig holds settings for connecting to the calremindd API.
type DaemonConfig struct {
	Socket string `mapstructure:"socket"`
}

// LoadConfig reads the MCP server configuration from file, env vars, and defaults.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("nats.url", "")
	v.SetDefault("daemon.socket", sockpath.DefaultSocketPath())

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("calremind-mcp")
		v.AddConfigPath("/etc/calremind")
		v.AddConfigPath("$HOME/.config/calremind")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CALREMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.BindEnv("nats.url", "CALREMIND_NATS_URL")
	v.BindEnv("nats.token", "CALREMIND_NATS_TOKEN")
	v.BindEnv("nats.event_secret", "CALREMIND_EVENT_SECRET")
	v.BindEnv("daemon.socket", "CALREMIND_DAEMON_SOCKET")

	_ = v.ReadInConfig() // config file is optional

	if err := secrets.DecryptConfig(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
