package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/spf13/viper"
)

const (
	// EnvAgeKey holds a raw AGE-SECRET-KEY-1... identity.
	EnvAgeKey = "CALREMIND_AGE_KEY"
	// EnvAgeKeyFile holds a path to an identity file.
	EnvAgeKeyFile = "CALREMIND_AGE_KEY_FILE"
	// ConfigIdentityKey is the config key naming an identity file.
	ConfigIdentityKey = "secrets.identity"
)

// DefaultKeyPath is ~/.config/calremind/age.key.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "age.key"
	}
	return filepath.Join(home, ".config", "calremind", "age.key")
}

// GenerateKey creates a new X25519 identity and writes it to path with
// mode 0600. An existing file is never overwritten.
func GenerateKey(path string) (*age.X25519Identity, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create key file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# public key: %s\n%s\n", id.Recipient(), id)
	return id, nil
}

// ParseIdentity parses a raw AGE-SECRET-KEY-1... string.
func ParseIdentity(raw string) (*age.X25519Identity, error) {
	return age.ParseX25519Identity(strings.TrimSpace(raw))
}

// ParseRecipient parses an age1... public key.
func ParseRecipient(raw string) (*age.X25519Recipient, error) {
	return age.ParseX25519Recipient(strings.TrimSpace(raw))
}

// LoadIdentities reads every identity in an age key file.
func LoadIdentities(path string) ([]age.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	return ids, nil
}

// Resolve locates the identities used to open sealed config values, checking
// CALREMIND_AGE_KEY, CALREMIND_AGE_KEY_FILE, secrets.identity and finally
// DefaultKeyPath. It returns nil without error when none is configured.
func Resolve(v *viper.Viper) ([]age.Identity, error) {
	if raw := os.Getenv(EnvAgeKey); raw != "" {
		id, err := ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvAgeKey, err)
		}
		return []age.Identity{id}, nil
	}
	if path := os.Getenv(EnvAgeKeyFile); path != "" {
		return LoadIdentities(path)
	}
	if v != nil {
		if path := v.GetString(ConfigIdentityKey); path != "" {
			return LoadIdentities(expandHome(path))
		}
	}

	ids, err := LoadIdentities(DefaultKeyPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return ids, err
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
