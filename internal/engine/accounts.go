package engine

import (
	"context"
	"fmt"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/store"
)

// RefreshZones re-fetches the zone list for an account and updates the
// cached copy, including the default zone when none was chosen yet.
func (e *Engine) RefreshZones(ctx context.Context, account string) ([]domain.Zone, error) {
	cfg, acct, err := loadAccount(account)
	if err != nil {
		return nil, err
	}
	remote := e.newRemote(acct.APIToken)
	infos, err := remote.ListZones(ctx)
	if err != nil {
		return nil, err
	}

	// A fresh account learns its remote id from the first zone it can see.
	if acct.AccountID == "" && len(infos) > 0 {
		acct.AccountID = infos[0].AccountID
	}
	zones := make([]domain.Zone, 0, len(infos))
	for _, zi := range infos {
		if acct.AccountID != "" && zi.AccountID != acct.AccountID {
			continue
		}
		zones = append(zones, zi.Zone)
	}
	acct.Zones = zones
	if acct.DefaultZoneID == "" && len(zones) > 0 {
		acct.DefaultZoneID = zones[0].ID
		acct.DefaultZoneName = zones[0].Name
	}
	if err := store.SaveConfig(cfg); err != nil {
		return nil, err
	}
	return zones, nil
}

// SelectDefaultZone changes the account's default zone.
func (e *Engine) SelectDefaultZone(account, zoneName string) error {
	cfg, acct, err := loadAccount(account)
	if err != nil {
		return err
	}
	zone, err := resolveZone(acct, zoneName)
	if err != nil {
		return err
	}
	acct.DefaultZoneID = zone.ID
	acct.DefaultZoneName = zone.Name
	return store.SaveConfig(cfg)
}

// RemoveAccount deletes an account and the local records of every tunnel it
// owns. Services are stopped and uninstalled; remote tunnels and DNS
// records are deliberately left intact since the token is being discarded
// along with the account.
func (e *Engine) RemoveAccount(ctx context.Context, name string) error {
	cfg, err := store.LoadConfig()
	if err != nil {
		return err
	}
	acct := cfg.Account(name)
	if acct == nil {
		return fmt.Errorf("account %q: %w", name, domain.ErrNotFound)
	}

	ts, err := store.LoadTunnels()
	if err != nil {
		return err
	}
	for _, tun := range ts.ForAccount(acct.Name) {
		release, err := e.acquire(tun.Key())
		if err != nil {
			return err
		}
		_ = e.svc.Stop(ctx, &tun)
		_ = e.svc.Remove(ctx, &tun)
		_ = store.RemoveCredentials(tun.TunnelID)
		store.RemoveDaemonArtifacts(&tun)
		if e.hist != nil {
			_ = e.hist.Forget(ctx, tun.TunnelID)
		}
		ts.Remove(tun.Name, tun.Account)
		release()
	}
	if err := store.SaveTunnels(ts); err != nil {
		return err
	}

	if err := cfg.RemoveAccount(acct.Name); err != nil {
		return err
	}
	if err := store.SaveConfig(cfg); err != nil {
		return err
	}
	e.log.Info("account removed", "account", acct.Name)
	return nil
}
