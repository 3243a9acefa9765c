// Package store persists tunctl's local state: accounts and zones in
// config.json, tunnel records in tunnels.json, plus per-tunnel credential
// blobs, generated cloudflared configs, and daemon logs. Both JSON documents
// are replaced atomically (write-temp-then-rename) so a crash mid-operation
// never leaves a partial file.
package store

import (
	"os"
	"path/filepath"

	"github.com/koltyakov/tunctl/internal/domain"
)

// Dir returns the state root, ~/.tunctl by default. TUNCTL_HOME overrides it
// (tests point it at a temp directory).
func Dir() string {
	if v := os.Getenv("TUNCTL_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".tunctl")
}

// ConfigPath returns the accounts/zones document path.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.json")
}

// TunnelsPath returns the tunnel records document path.
func TunnelsPath() string {
	return filepath.Join(Dir(), "tunnels.json")
}

// HistoryPath returns the sqlite metric-history database path.
func HistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}

// CredentialsPath returns the credentials blob path for a remote tunnel id.
func CredentialsPath(tunnelID string) string {
	return filepath.Join(Dir(), "credentials", tunnelID+".json")
}

// DaemonConfigPath returns the generated cloudflared config path for a tunnel.
func DaemonConfigPath(t *domain.Tunnel) string {
	return filepath.Join(Dir(), "tunnel-configs", t.Account+"-"+t.Name+".yml")
}

// LogPath returns the daemon log redirection target for a tunnel.
func LogPath(t *domain.Tunnel) string {
	return filepath.Join(Dir(), "logs", t.Account+"-"+t.Name+".log")
}
