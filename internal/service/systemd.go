package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/store"
)

// systemdManager drives systemd user units via `systemctl --user`.
type systemdManager struct {
	run runner
	// unitDir overrides the unit directory in tests.
	unitDir string
}

func (m *systemdManager) dir() string {
	if m.unitDir != "" {
		return m.unitDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "systemd", "user")
}

func (m *systemdManager) unitPath(t *domain.Tunnel) string {
	return filepath.Join(m.dir(), unitName(t)+".service")
}

// cloudflaredPath resolves the daemon binary. systemd requires an absolute
// ExecStart path. Variable so tests can stub the lookup.
var cloudflaredPath = func() (string, error) {
	path, err := exec.LookPath("cloudflared")
	if err != nil {
		return "", fmt.Errorf("%w: cloudflared not found in PATH", domain.ErrServiceFailure)
	}
	return path, nil
}

func systemdUnit(t *domain.Tunnel, binary, configPath string) string {
	logPath := store.LogPath(t)
	return fmt.Sprintf(`[Unit]
Description=tunctl tunnel %s/%s
After=network-online.target

[Service]
ExecStart=%s tunnel --config %s --metrics %s run
Restart=on-failure
RestartSec=5
StandardOutput=append:%s
StandardError=append:%s

[Install]
WantedBy=default.target
`, t.Account, t.Name, binary, configPath, t.MetricsAddr(), logPath, logPath)
}

func (m *systemdManager) Install(ctx context.Context, t *domain.Tunnel, configPath string) error {
	binary, err := cloudflaredPath()
	if err != nil {
		return err
	}
	if err := store.EnsureLogDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir(), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(m.unitPath(t), []byte(systemdUnit(t, binary, configPath)), 0o644); err != nil {
		return err
	}
	if out, err := m.run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return serviceErr("daemon-reload", t, out, err)
	}
	return nil
}

func (m *systemdManager) Remove(ctx context.Context, t *domain.Tunnel) error {
	if _, err := os.Stat(m.unitPath(t)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// Best effort: a dead unit must not block removal.
	_, _ = m.run(ctx, "systemctl", "--user", "stop", unitName(t))
	_, _ = m.run(ctx, "systemctl", "--user", "disable", unitName(t))
	if err := os.Remove(m.unitPath(t)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if out, err := m.run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return serviceErr("daemon-reload", t, out, err)
	}
	return nil
}

func (m *systemdManager) Start(ctx context.Context, t *domain.Tunnel) error {
	if out, err := m.run(ctx, "systemctl", "--user", "start", unitName(t)); err != nil {
		return serviceErr("start", t, out, err)
	}
	return nil
}

func (m *systemdManager) Stop(ctx context.Context, t *domain.Tunnel) error {
	out, err := m.run(ctx, "systemctl", "--user", "stop", unitName(t))
	if err != nil {
		// Stopping a unit that is not loaded is success.
		if strings.Contains(out, "not loaded") {
			return nil
		}
		return serviceErr("stop", t, out, err)
	}
	return nil
}

func (m *systemdManager) IsActive(ctx context.Context, t *domain.Tunnel) (bool, error) {
	out, err := m.run(ctx, "systemctl", "--user", "is-active", unitName(t))
	if err != nil {
		// is-active exits non-zero for every inactive state and still
		// prints the state name.
		switch out {
		case "inactive", "failed", "activating", "deactivating", "":
			return false, nil
		}
		if strings.Contains(out, "not loaded") || strings.Contains(out, "could not be found") {
			return false, nil
		}
		return false, serviceErr("is-active", t, out, err)
	}
	return out == "active", nil
}

func (m *systemdManager) SetAutoStart(ctx context.Context, t *domain.Tunnel, enabled bool) error {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	if out, err := m.run(ctx, "systemctl", "--user", verb, unitName(t)); err != nil {
		return serviceErr(verb, t, out, err)
	}
	return nil
}
