package engine

import (
	"context"
	"fmt"

	"github.com/koltyakov/tunctl/internal/cloudflare"
	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/netutil"
	"github.com/koltyakov/tunctl/internal/store"
)

// AddRequest describes a new persistent tunnel.
type AddRequest struct {
	Name    string
	Account string // empty means the default account
	Target  string
	Zone    string // zone name; empty means the account's default zone
	// AutoStart registers the service for start-at-login.
	AutoStart bool
	// Start also starts the service once installed.
	Start bool
}

// EditRequest carries the mutable fields of a tunnel. Empty fields keep
// their current value.
type EditRequest struct {
	Target string
	Zone   string
}

// loadAccount resolves the named (or default) account from the config.
func loadAccount(name string) (*store.Config, *domain.Account, error) {
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	acct := cfg.Account(name)
	if acct == nil {
		if name == "" {
			return nil, nil, fmt.Errorf("no accounts configured: %w", domain.ErrNotInitialized)
		}
		return nil, nil, fmt.Errorf("account %q: %w", name, domain.ErrNotFound)
	}
	return cfg, acct, nil
}

// resolveName splits a requested tunnel name into its label and zone. A
// fully qualified name under one of the account's zones ("app.example.com")
// selects that zone; otherwise the explicit or default zone applies and the
// name must be a bare label.
func resolveName(acct *domain.Account, rawName, rawZone string) (string, domain.Zone, error) {
	name := netutil.NormalizeHost(rawName)
	if rawZone == "" {
		for _, z := range acct.Zones {
			label := netutil.SubdomainLabel(name, z.Name)
			if label == name {
				continue
			}
			if !netutil.ValidSubdomainLabel(label) {
				return "", domain.Zone{}, fmt.Errorf("invalid tunnel name %q", rawName)
			}
			return label, z, nil
		}
	}
	zone, err := resolveZone(acct, rawZone)
	if err != nil {
		return "", domain.Zone{}, err
	}
	name = netutil.SubdomainLabel(name, zone.Name)
	if !netutil.ValidSubdomainLabel(name) {
		return "", domain.Zone{}, fmt.Errorf("invalid tunnel name %q", rawName)
	}
	return name, zone, nil
}

// resolveZone picks the zone by name from the account's cached zone list,
// falling back to the account default.
func resolveZone(acct *domain.Account, name string) (domain.Zone, error) {
	if name == "" {
		if acct.DefaultZoneID == "" {
			return domain.Zone{}, fmt.Errorf("account %q has no default zone: %w", acct.Name, domain.ErrNotFound)
		}
		return domain.Zone{ID: acct.DefaultZoneID, Name: acct.DefaultZoneName}, nil
	}
	for _, z := range acct.Zones {
		if z.Name == name || z.ID == name {
			return z, nil
		}
	}
	return domain.Zone{}, fmt.Errorf("zone %q: %w", name, domain.ErrNotFound)
}

// Add creates a persistent tunnel: remote registration, DNS, config, and
// service install. Re-running an Add whose DNS step previously failed
// resumes at DNS instead of re-registering.
func (e *Engine) Add(ctx context.Context, req AddRequest) (*Report, error) {
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
	existing := ts.Find(name, acct.Name)
	if existing != nil && !existing.DNSPending {
		return rep, fmt.Errorf("tunnel %q already exists for account %q", name, acct.Name)
	}

	tun := domain.Tunnel{
		Name:      name,
		Account:   acct.Name,
		Target:    target,
		ZoneID:    zone.ID,
		ZoneName:  zone.Name,
		Hostname:  name + "." + zone.Name,
		AutoStart: req.AutoStart,
	}
	if existing != nil {
		// Resume a partially-added tunnel: keep its remote identity.
		tun = *existing
		tun.Target = target
		tun.AutoStart = req.AutoStart
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

	// The record is persisted before DNS so a DNS failure leaves a
	// resumable trace of the remote registration.
	tun.DNSPending = true
	if err := upsertTunnel(ts, tun); err != nil {
		return rep, err
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	err = remote.EnsureDNSRecord(ctx, tun.ZoneID, tun.Hostname, tun.TunnelID)
	if rep.step("dns-record", err) != nil {
		return rep, err
	}
	tun.DNSPending = false
	if err := upsertTunnel(ts, tun); err != nil {
		return rep, err
	}
	rep.Tunnel = tun

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	configPath, err := store.WriteDaemonConfig(&tun, tun.Target)
	if rep.step("daemon-config", err) != nil {
		return rep, err
	}
	if err := rep.step("install-service", e.svc.Install(ctx, &tun, configPath)); err != nil {
		return rep, err
	}
	if err := rep.step("auto-start", e.svc.SetAutoStart(ctx, &tun, tun.AutoStart)); err != nil {
		return rep, err
	}

	if req.Start {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := rep.step("start-service", e.svc.Start(ctx, &tun)); err != nil {
			return rep, err
		}
		tun.Enabled = true
		if err := upsertTunnel(ts, tun); err != nil {
			return rep, err
		}
		rep.Tunnel = tun
	}

	e.log.Info("tunnel added", "tunnel", tun.Key(), "hostname", tun.Hostname, "started", req.Start)
	return rep, nil
}

// Start brings a tunnel up: DNS re-asserted (self-heal for out-of-band
// removal), config regenerated, service reinstalled and started.
func (e *Engine) Start(ctx context.Context, name, account string) (*Report, error) {
	return e.start(ctx, name, account, false)
}

// Restart is Start preceded by a service stop.
func (e *Engine) Restart(ctx context.Context, name, account string) (*Report, error) {
	return e.start(ctx, name, account, true)
}

func (e *Engine) start(ctx context.Context, name, account string, restart bool) (*Report, error) {
	rep := &Report{}

	_, acct, err := loadAccount(account)
	if err != nil {
		return rep, err
	}
	ts, err := store.LoadTunnels()
	if err != nil {
		return rep, err
	}
	existing := ts.Find(name, acct.Name)
	if existing == nil {
		return rep, fmt.Errorf("tunnel %q: %w", name, domain.ErrNotFound)
	}
	tun := *existing
	rep.Tunnel = tun

	release, err := e.acquire(tun.Key())
	if err != nil {
		return rep, err
	}
	defer release()

	if restart {
		if err := rep.step("stop-service", e.svc.Stop(ctx, &tun)); err != nil {
			return rep, err
		}
	}

	remote := e.newRemote(acct.APIToken)
	err = remote.EnsureDNSRecord(ctx, tun.ZoneID, tun.Hostname, tun.TunnelID)
	if rep.step("dns-record", err) != nil {
		return rep, err
	}
	if tun.DNSPending {
		tun.DNSPending = false
		if err := upsertTunnel(ts, tun); err != nil {
			return rep, err
		}
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	configPath, err := store.WriteDaemonConfig(&tun, tun.Target)
	if rep.step("daemon-config", err) != nil {
		return rep, err
	}
	if err := rep.step("install-service", e.svc.Install(ctx, &tun, configPath)); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if err := rep.step("start-service", e.svc.Start(ctx, &tun)); err != nil {
		return rep, err
	}

	tun.Enabled = true
	if err := upsertTunnel(ts, tun); err != nil {
		return rep, err
	}
	rep.Tunnel = tun
	e.log.Info("tunnel started", "tunnel", tun.Key(), "restart", restart)
	return rep, nil
}

// Stop stops the service only. The remote tunnel and DNS record stay,
// which is what keeps the hostname stable across stop/start cycles.
func (e *Engine) Stop(ctx context.Context, name, account string) (*Report, error) {
	rep := &Report{}

	_, acct, err := loadAccount(account)
	if err != nil {
		return rep, err
	}
	ts, err := store.LoadTunnels()
	if err != nil {
		return rep, err
	}
	existing := ts.Find(name, acct.Name)
	if existing == nil {
		return rep, fmt.Errorf("tunnel %q: %w", name, domain.ErrNotFound)
	}
	tun := *existing
	rep.Tunnel = tun

	release, err := e.acquire(tun.Key())
	if err != nil {
		return rep, err
	}
	defer release()

	if err := rep.step("stop-service", e.svc.Stop(ctx, &tun)); err != nil {
		return rep, err
	}
	tun.Enabled = false
	if err := upsertTunnel(ts, tun); err != nil {
		return rep, err
	}
	rep.Tunnel = tun
	e.log.Info("tunnel stopped", "tunnel", tun.Key())
	return rep, nil
}

// Delete tears a tunnel down across all three systems. Every step runs and
// is reported individually; the local record is removed only when all
// steps succeeded (absence counting as success), so a failed delete keeps
// the remote identifier needed to retry.
func (e *Engine) Delete(ctx context.Context, name, account string) (*Report, error) {
	rep := &Report{}

	_, acct, err := loadAccount(account)
	if err != nil {
		return rep, err
	}
	ts, err := store.LoadTunnels()
	if err != nil {
		return rep, err
	}
	existing := ts.Find(name, acct.Name)
	if existing == nil {
		return rep, fmt.Errorf("tunnel %q: %w", name, domain.ErrNotFound)
	}
	tun := *existing
	rep.Tunnel = tun

	release, err := e.acquire(tun.Key())
	if err != nil {
		return rep, err
	}
	defer release()

	remote := e.newRemote(acct.APIToken)

	rep.step("stop-service", e.svc.Stop(ctx, &tun))
	rep.step("remove-service", e.svc.Remove(ctx, &tun))
	rep.step("dns-remove", remote.DeleteDNSRecord(ctx, tun.ZoneID, tun.Hostname))
	if tun.TunnelID != "" {
		rep.step("tunnel-remove", remote.DeleteTunnel(ctx, acct.AccountID, tun.TunnelID))
	}

	if err := rep.Err(); err != nil {
		e.log.Warn("delete incomplete, record retained",
			"tunnel", tun.Key(), "step", rep.FailedStep(), "error", err)
		return rep, err
	}

	if err := store.RemoveCredentials(tun.TunnelID); err != nil {
		rep.step("remove-credentials", err)
		return rep, err
	}
	store.RemoveDaemonArtifacts(&tun)
	if e.hist != nil {
		_ = e.hist.Forget(ctx, tun.TunnelID)
	}
	ts.Remove(tun.Name, tun.Account)
	if err := store.SaveTunnels(ts); err != nil {
		return rep, err
	}
	e.log.Info("tunnel deleted", "tunnel", tun.Key())
	return rep, nil
}

// Edit updates the target and/or zone of an existing tunnel without
// re-creating its remote identifier, then reconverges DNS, config, and the
// service. A running tunnel is restarted to pick up the new config.
func (e *Engine) Edit(ctx context.Context, name, account string, req EditRequest) (*Report, error) {
	rep := &Report{}

	_, acct, err := loadAccount(account)
	if err != nil {
		return rep, err
	}
	ts, err := store.LoadTunnels()
	if err != nil {
		return rep, err
	}
	existing := ts.Find(name, acct.Name)
	if existing == nil {
		return rep, fmt.Errorf("tunnel %q: %w", name, domain.ErrNotFound)
	}
	tun := *existing
	oldZoneID, oldHostname := tun.ZoneID, tun.Hostname

	if req.Target != "" {
		target, err := netutil.NormalizeTarget(req.Target)
		if err != nil {
			return rep, err
		}
		tun.Target = target
	}
	if req.Zone != "" {
		zone, err := resolveZone(acct, req.Zone)
		if err != nil {
			return rep, err
		}
		tun.ZoneID = zone.ID
		tun.ZoneName = zone.Name
		tun.Hostname = tun.Name + "." + zone.Name
	}
	rep.Tunnel = tun

	release, err := e.acquire(tun.Key())
	if err != nil {
		return rep, err
	}
	defer release()

	remote := e.newRemote(acct.APIToken)

	zoneMoved := tun.Hostname != oldHostname || tun.ZoneID != oldZoneID
	if zoneMoved {
		tun.DNSPending = true
		if err := upsertTunnel(ts, tun); err != nil {
			return rep, err
		}
		err = remote.EnsureDNSRecord(ctx, tun.ZoneID, tun.Hostname, tun.TunnelID)
		if rep.step("dns-record", err) != nil {
			return rep, err
		}
		tun.DNSPending = false
		// The old hostname must stop resolving once the move succeeded.
		rep.step("dns-remove-old", remote.DeleteDNSRecord(ctx, oldZoneID, oldHostname))
	}
	if err := upsertTunnel(ts, tun); err != nil {
		return rep, err
	}
	rep.Tunnel = tun

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	configPath, err := store.WriteDaemonConfig(&tun, tun.Target)
	if rep.step("daemon-config", err) != nil {
		return rep, err
	}
	if err := rep.step("install-service", e.svc.Install(ctx, &tun, configPath)); err != nil {
		return rep, err
	}
	if tun.Enabled {
		if err := rep.step("restart-service", e.restartService(ctx, &tun)); err != nil {
			return rep, err
		}
	}
	e.log.Info("tunnel edited", "tunnel", tun.Key(), "target", tun.Target, "hostname", tun.Hostname)
	return rep, nil
}

func (e *Engine) restartService(ctx context.Context, t *domain.Tunnel) error {
	if err := e.svc.Stop(ctx, t); err != nil {
		return err
	}
	return e.svc.Start(ctx, t)
}

// SetAutoStart toggles start-at-login for a tunnel.
func (e *Engine) SetAutoStart(ctx context.Context, name, account string, enabled bool) error {
	_, acct, err := loadAccount(account)
	if err != nil {
		return err
	}
	ts, err := store.LoadTunnels()
	if err != nil {
		return err
	}
	existing := ts.Find(name, acct.Name)
	if existing == nil {
		return fmt.Errorf("tunnel %q: %w", name, domain.ErrNotFound)
	}
	tun := *existing

	release, err := e.acquire(tun.Key())
	if err != nil {
		return err
	}
	defer release()

	if err := e.svc.SetAutoStart(ctx, &tun, enabled); err != nil {
		return err
	}
	tun.AutoStart = enabled
	return upsertTunnel(ts, tun)
}

// requireCredentials guards the reuse path of EnsureTunnel: credentials are
// issued once at creation, so reusing a remote tunnel is only valid when its
// blob is already on this machine. Without this check the daemon config
// would point at a nonexistent credentials file and cloudflared would fail
// at runtime with nothing actionable from this tool.
func requireCredentials(res cloudflare.EnsureResult) error {
	if res.Created || store.HasCredentials(res.TunnelID) {
		return nil
	}
	return fmt.Errorf("remote tunnel %s exists but its credentials are not on this machine (expected %s); delete the remote tunnel or restore the file",
		res.TunnelID, store.CredentialsPath(res.TunnelID))
}

// upsertTunnel replaces or inserts the record and persists the set.
func upsertTunnel(ts *store.Tunnels, tun domain.Tunnel) error {
	if existing := ts.Find(tun.Name, tun.Account); existing != nil {
		*existing = tun
	} else if err := ts.Add(tun); err != nil {
		return err
	}
	return store.SaveTunnels(ts)
}
