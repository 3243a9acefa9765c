package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/store"
)

// launchdManager drives launchd agents via `launchctl`.
type launchdManager struct {
	run runner
	// agentDir overrides the LaunchAgents directory in tests.
	agentDir string
}

func (m *launchdManager) dir() string {
	if m.agentDir != "" {
		return m.agentDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, "Library", "LaunchAgents")
}

func launchdLabel(t *domain.Tunnel) string {
	return "com.tunctl." + t.Account + "." + t.Name
}

func (m *launchdManager) plistPath(t *domain.Tunnel) string {
	return filepath.Join(m.dir(), launchdLabel(t)+".plist")
}

func launchdPlist(t *domain.Tunnel, binary, configPath string, autoStart bool) string {
	logPath := store.LogPath(t)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>tunnel</string>
		<string>--config</string>
		<string>%s</string>
		<string>--metrics</string>
		<string>%s</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<%t/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
	<key>StandardOutPath</key>
	<string>%s</string>
	<key>StandardErrorPath</key>
	<string>%s</string>
</dict>
</plist>
`, launchdLabel(t), binary, configPath, t.MetricsAddr(), autoStart, logPath, logPath)
}

// writePlist renders and writes the agent plist without loading it.
func (m *launchdManager) writePlist(t *domain.Tunnel, configPath string, autoStart bool) error {
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
	return os.WriteFile(m.plistPath(t), []byte(launchdPlist(t, binary, configPath, autoStart)), 0o644)
}

func (m *launchdManager) Install(ctx context.Context, t *domain.Tunnel, configPath string) error {
	return m.writePlist(t, configPath, t.AutoStart)
}

func (m *launchdManager) Remove(ctx context.Context, t *domain.Tunnel) error {
	if _, err := os.Stat(m.plistPath(t)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	_, _ = m.run(ctx, "launchctl", "unload", m.plistPath(t))
	if err := os.Remove(m.plistPath(t)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (m *launchdManager) Start(ctx context.Context, t *domain.Tunnel) error {
	// load -w starts the agent and clears any Disabled override.
	if out, err := m.run(ctx, "launchctl", "load", "-w", m.plistPath(t)); err != nil {
		if strings.Contains(out, "already loaded") {
			return nil
		}
		return serviceErr("load", t, out, err)
	}
	return nil
}

func (m *launchdManager) Stop(ctx context.Context, t *domain.Tunnel) error {
	out, err := m.run(ctx, "launchctl", "unload", m.plistPath(t))
	if err != nil {
		if strings.Contains(out, "Could not find") || strings.Contains(out, "not loaded") {
			return nil
		}
		return serviceErr("unload", t, out, err)
	}
	return nil
}

func (m *launchdManager) IsActive(ctx context.Context, t *domain.Tunnel) (bool, error) {
	out, err := m.run(ctx, "launchctl", "list", launchdLabel(t))
	if err != nil {
		// list exits non-zero when the agent is not loaded.
		return false, nil
	}
	// A loaded agent without a live process reports "PID" absent or "-".
	return strings.Contains(out, `"PID"`), nil
}

func (m *launchdManager) SetAutoStart(ctx context.Context, t *domain.Tunnel, enabled bool) error {
	// RunAtLoad lives inside the plist, so the toggle is a rewrite. The
	// config path is deterministic from the tunnel record.
	copy := *t
	copy.AutoStart = enabled
	return m.writePlist(&copy, store.DaemonConfigPath(t), enabled)
}
