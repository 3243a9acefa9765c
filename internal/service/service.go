// Package service manages per-tunnel daemon supervision through the host OS
// service manager: systemd user units on Linux, launchd agents on macOS.
// Every tunnel gets its own unit so tunnels start, stop, and crash-restart
// independently.
package service

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/koltyakov/tunctl/internal/domain"
)

// Manager installs and drives the OS service unit for a tunnel daemon.
type Manager interface {
	// Install writes the unit referencing the given cloudflared config path
	// and registers it with the service manager. Reinstalling over an
	// existing unit is fine.
	Install(ctx context.Context, t *domain.Tunnel, configPath string) error
	// Remove stops and deregisters the unit and deletes its file. An absent
	// unit is success.
	Remove(ctx context.Context, t *domain.Tunnel) error
	Start(ctx context.Context, t *domain.Tunnel) error
	Stop(ctx context.Context, t *domain.Tunnel) error
	// IsActive reports whether the daemon process is currently running.
	IsActive(ctx context.Context, t *domain.Tunnel) (bool, error)
	// SetAutoStart toggles whether the unit starts at login.
	SetAutoStart(ctx context.Context, t *domain.Tunnel, enabled bool) error
}

// runner executes a service-manager command and returns combined output.
// Tests substitute a fake.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// New returns the manager for the current platform.
func New() (Manager, error) {
	switch runtime.GOOS {
	case "linux":
		return &systemdManager{run: execRunner}, nil
	case "darwin":
		return &launchdManager{run: execRunner}, nil
	default:
		return nil, fmt.Errorf("%w: no service manager support on %s", domain.ErrServiceFailure, runtime.GOOS)
	}
}

// unitName returns the service identifier for a tunnel, namespaced by
// account so same-named tunnels under different accounts never collide.
func unitName(t *domain.Tunnel) string {
	return "tunctl-" + t.Account + "-" + t.Name
}

func serviceErr(action string, t *domain.Tunnel, out string, err error) error {
	msg := strings.TrimSpace(out)
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%w: %s %s: %s", domain.ErrServiceFailure, action, unitName(t), msg)
}
