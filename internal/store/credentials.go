package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/koltyakov/tunctl/internal/domain"
)

// SaveCredentials writes the cloudflared credentials blob for a tunnel id
// with owner-only permissions.
func SaveCredentials(creds domain.Credentials) error {
	path := CredentialsPath(creds.TunnelID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// HasCredentials reports whether a credentials blob exists for the tunnel id.
func HasCredentials(tunnelID string) bool {
	_, err := os.Stat(CredentialsPath(tunnelID))
	return err == nil
}

// RemoveCredentials deletes the blob; absence is not an error.
func RemoveCredentials(tunnelID string) error {
	err := os.Remove(CredentialsPath(tunnelID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// WriteDaemonConfig generates and writes the cloudflared config for a tunnel.
// The file is a regenerable cache of the tunnel record, never a source of
// truth, so it is overwritten unconditionally.
func WriteDaemonConfig(t *domain.Tunnel, targetURL string) (string, error) {
	path := DaemonConfigPath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	content := DaemonConfig(t, targetURL)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// DaemonConfig renders the cloudflared config document: the tunnel id, its
// credentials file, and a single ingress rule with a 404 fallback.
func DaemonConfig(t *domain.Tunnel, targetURL string) string {
	return fmt.Sprintf(`tunnel: %s
credentials-file: %s
ingress:
  - hostname: %s
    service: %s
  - service: http_status:404
`, t.TunnelID, CredentialsPath(t.TunnelID), t.Hostname, targetURL)
}

// RemoveDaemonArtifacts deletes the generated config and log file for a
// tunnel; absence of either is not an error.
func RemoveDaemonArtifacts(t *domain.Tunnel) {
	_ = os.Remove(DaemonConfigPath(t))
	_ = os.Remove(LogPath(t))
}

// EnsureLogDir creates the daemon log directory.
func EnsureLogDir() error {
	return os.MkdirAll(filepath.Join(Dir(), "logs"), 0o700)
}
