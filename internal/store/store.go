package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/koltyakov/tunctl/internal/domain"
)

// Config is the accounts/zones snapshot persisted in config.json.
type Config struct {
	Version        int              `json:"version"`
	DefaultAccount string           `json:"defaultAccount"`
	Accounts       []domain.Account `json:"accounts"`
}

// Tunnels is the tunnel-records snapshot persisted in tunnels.json.
type Tunnels struct {
	Version int             `json:"version"`
	Tunnels []domain.Tunnel `json:"tunnels"`
}

const formatVersion = 1

// LoadConfig reads config.json. A missing file is ErrNotInitialized, an
// unparseable one is ErrStoreCorrupt; callers must not fabricate defaults
// for either.
func LoadConfig() (*Config, error) {
	raw, err := os.ReadFile(ConfigPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotInitialized
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStoreCorrupt, ConfigPath(), err)
	}
	if len(cfg.Accounts) > 0 && cfg.Account(cfg.DefaultAccount) == nil {
		return nil, fmt.Errorf("%w: default account %q does not exist", domain.ErrStoreCorrupt, cfg.DefaultAccount)
	}
	return &cfg, nil
}

// SaveConfig atomically replaces config.json.
func SaveConfig(cfg *Config) error {
	cfg.Version = formatVersion
	return writeJSON(ConfigPath(), cfg, 0o600)
}

// Account returns the named account, or the default when name is empty.
// Returns nil when no such account exists.
func (c *Config) Account(name string) *domain.Account {
	if name == "" {
		name = c.DefaultAccount
	}
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i]
		}
	}
	return nil
}

// AddAccount appends a new account. The first account added becomes the
// default, preserving the exactly-one-default invariant.
func (c *Config) AddAccount(acct domain.Account) error {
	if c.Account(acct.Name) != nil {
		return fmt.Errorf("account %q already exists", acct.Name)
	}
	c.Accounts = append(c.Accounts, acct)
	if len(c.Accounts) == 1 {
		c.DefaultAccount = acct.Name
	}
	return nil
}

// SelectAccount marks the named account as default.
func (c *Config) SelectAccount(name string) error {
	if c.Account(name) == nil {
		return fmt.Errorf("account %q: %w", name, domain.ErrNotFound)
	}
	c.DefaultAccount = name
	return nil
}

// RemoveAccount deletes the named account. Removing the last account or the
// current default without a replacement is rejected; the default moves to
// the first remaining account when the default itself is removed.
func (c *Config) RemoveAccount(name string) error {
	if len(c.Accounts) == 1 {
		return errors.New("cannot remove the last account; use `tunctl reset`")
	}
	idx := -1
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("account %q: %w", name, domain.ErrNotFound)
	}
	c.Accounts = append(c.Accounts[:idx], c.Accounts[idx+1:]...)
	if c.DefaultAccount == name {
		c.DefaultAccount = c.Accounts[0].Name
	}
	return nil
}

// RemoveAccountForce deletes the named account even when it is the last
// one. Used to roll back a half-added account during setup.
func (c *Config) RemoveAccountForce(name string) error {
	if len(c.Accounts) == 1 && c.Accounts[0].Name == name {
		c.Accounts = nil
		c.DefaultAccount = ""
		return nil
	}
	return c.RemoveAccount(name)
}

// LoadTunnels reads tunnels.json. A missing file is an empty set (tunnels
// are created lazily); an unparseable one is ErrStoreCorrupt.
func LoadTunnels() (*Tunnels, error) {
	raw, err := os.ReadFile(TunnelsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Tunnels{Version: formatVersion}, nil
		}
		return nil, err
	}
	var ts Tunnels
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStoreCorrupt, TunnelsPath(), err)
	}
	return &ts, nil
}

// SaveTunnels atomically replaces tunnels.json.
func SaveTunnels(ts *Tunnels) error {
	ts.Version = formatVersion
	return writeJSON(TunnelsPath(), ts, 0o600)
}

// Find returns the tunnel with the given name under the given account.
func (ts *Tunnels) Find(name, account string) *domain.Tunnel {
	for i := range ts.Tunnels {
		if ts.Tunnels[i].Name == name && ts.Tunnels[i].Account == account {
			return &ts.Tunnels[i]
		}
	}
	return nil
}

// ForAccount returns copies of all tunnels owned by the account.
func (ts *Tunnels) ForAccount(account string) []domain.Tunnel {
	var out []domain.Tunnel
	for _, t := range ts.Tunnels {
		if t.Account == account {
			out = append(out, t)
		}
	}
	return out
}

// Add appends a tunnel record.
func (ts *Tunnels) Add(t domain.Tunnel) error {
	if ts.Find(t.Name, t.Account) != nil {
		return fmt.Errorf("tunnel %q already exists for account %q", t.Name, t.Account)
	}
	ts.Tunnels = append(ts.Tunnels, t)
	return nil
}

// Remove deletes the record and returns it, or nil when absent.
func (ts *Tunnels) Remove(name, account string) *domain.Tunnel {
	for i := range ts.Tunnels {
		if ts.Tunnels[i].Name == name && ts.Tunnels[i].Account == account {
			removed := ts.Tunnels[i]
			ts.Tunnels = append(ts.Tunnels[:i], ts.Tunnels[i+1:]...)
			return &removed
		}
	}
	return nil
}

// writeJSON marshals v and replaces path atomically: the document is written
// to a temp file in the same directory, fsynced, then renamed over path.
func writeJSON(path string, v any, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
