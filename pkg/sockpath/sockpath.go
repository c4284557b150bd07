// Package sockpath provides the default Unix socket path for calremindd.
// calremindd, calremindctl and calremind-mcp all use it to agree on the default.
package sockpath

import (
	"os"
	"path/filepath"
)

// DefaultSocketPath prefers $XDG_RUNTIME_DIR/calremind/calremindd.sock and
// falls back to ~/.config/calremind/calremindd.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "calremind", "calremindd.sock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "calremind", "calremindd.sock")
}
