package engine

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/netutil"
	"github.com/koltyakov/tunctl/internal/store"
)

// RunRequest describes an ephemeral tunnel: same remote registration and
// DNS as Add, but the daemon runs as a supervised foreground child with no
// OS service, and the remote side is torn down on exit.
type RunRequest struct {
	Name    string
	Account string
	Target  string
	Zone    string
	// Keep converts the tunnel into a persistent record on exit instead of
	// tearing down its remote registration.
	Keep bool
}

// DaemonRunner runs the tunnel daemon in the foreground until it exits or
// the context is cancelled.
type DaemonRunner func(ctx context.Context, configPath, metricsAddr string, stdout, stderr io.Writer) error

// WithDaemonRunner overrides how the foreground daemon is executed.
func WithDaemonRunner(r DaemonRunner) Option {
	return func(e *Engine) { e.runDaemon = r }
}

func execDaemon(ctx context.Context, configPath, metricsAddr string, stdout, stderr io.Writer) error {
	bin, err := exec.LookPath("cloudflared")
	if err != nil {
		return fmt.Errorf("%w: cloudflared not found in PATH", domain.ErrServiceFailure)
	}
	cmd := exec.CommandContext(ctx, bin, "tunnel", "--config", configPath, "--metrics", metricsAddr, "run")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err = cmd.Run()
	// Cancellation kills the child; that is the intended shutdown, not a
	// daemon failure.
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// RunEphemeral registers and runs a tunnel in the foreground, blocking
// until the daemon exits or ctx is cancelled, then tears the remote side
// down. Interruption triggers the same teardown as a clean exit.
func (e *Engine) RunEphemeral(ctx context.Context, req RunRequest, stdout, stderr io.Writer) (*Report, error) {
	rep := &Report{}

	target, err := netutil.NormalizeTarget(req.Target)
	if err != nil {
		return rep, err
	}
	_, acct, err := loadAccount(req.Account)
	if err != nil {
		return rep, err
	}
	name, zone, err := resolveName(acct, req.Name, req.Zone)
	if err != nil {
		return rep, err
	}

	ts, err := store.LoadTunnels()
	if err != nil {
		return rep, err
	}
	if ts.Find(name, acct.Name) != nil {
		return rep, fmt.Errorf("tunnel %q already exists for account %q; use start instead", name, acct.Name)
	}

	tun := domain.Tunnel{
		Name:     name,
		Account:  acct.Name,
		Target:   target,
		ZoneID:   zone.ID,
		ZoneName: zone.Name,
		Hostname: name + "." + zone.Name,
	}
	rep.Tunnel = tun

	release, err := e.acquire(tun.Key())
	if err != nil {
		return rep, err
	}
	defer release()

	remote := e.newRemote(acct.APIToken)

	res, err := remote.EnsureTunnel(ctx, acct.AccountID, domain.RemoteName(tun.Name))
	if err == nil {
		err = requireCredentials(res)
	}
	if rep.step("ensure-tunnel", err) != nil {
		return rep, err
	}
	tun.TunnelID = res.TunnelID
	if res.Created {
		if err := store.SaveCredentials(res.Credentials); err != nil {
			rep.step("save-credentials", err)
			return rep, err
		}
	}
	err = remote.EnsureDNSRecord(ctx, tun.ZoneID, tun.Hostname, tun.TunnelID)
	if rep.step("dns-record", err) != nil {
		e.teardown(rep, remote, acct, &tun)
		return rep, err
	}
	configPath, err := store.WriteDaemonConfig(&tun, tun.Target)
	if rep.step("daemon-config", err) != nil {
		e.teardown(rep, remote, acct, &tun)
		return rep, err
	}
	rep.Tunnel = tun

	e.log.Info("ephemeral tunnel up", "tunnel", tun.Key(), "url", tun.PublicURL())
	runErr := e.runDaemon(ctx, configPath, tun.MetricsAddr(), stdout, stderr)
	rep.step("run-daemon", runErr)

	if req.Keep {
		if err := upsertTunnel(ts, tun); err != nil {
			return rep, err
		}
		e.log.Info("ephemeral tunnel imported", "tunnel", tun.Key())
		return rep, runErr
	}

	e.teardown(rep, remote, acct, &tun)
	if err := rep.Err(); err != nil && runErr == nil {
		return rep, err
	}
	return rep, runErr
}

// teardown undoes the remote registration of an ephemeral tunnel. Runs on
// a fresh context so an interrupt that cancelled the run still cleans up.
func (e *Engine) teardown(rep *Report, remote Remote, acct *domain.Account, tun *domain.Tunnel) {
	ctx := context.Background()
	rep.step("dns-remove", remote.DeleteDNSRecord(ctx, tun.ZoneID, tun.Hostname))
	if tun.TunnelID != "" {
		rep.step("tunnel-remove", remote.DeleteTunnel(ctx, acct.AccountID, tun.TunnelID))
	}
	if err := store.RemoveCredentials(tun.TunnelID); err != nil {
		rep.step("remove-credentials", err)
	}
	store.RemoveDaemonArtifacts(tun)
}
