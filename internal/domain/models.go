// Package domain defines the core data types shared across the tunctl
// store, engine, poller, and presentation layers.
package domain

import (
	"fmt"
	"strings"
)

// Account is one Cloudflare credential scope. Exactly one account is the
// default whenever at least one account exists.
type Account struct {
	Name            string `json:"name"`
	APIToken        string `json:"apiToken"`
	AccountID       string `json:"accountID"`
	DefaultZoneID   string `json:"defaultZoneID"`
	DefaultZoneName string `json:"defaultZoneName"`
	Zones           []Zone `json:"zones"`
}

// Zone is a DNS domain available under an account. It is a read-only cache
// of remote truth, refreshed on demand.
type Zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tunnel is a persistent tunnel record. Name is unique per account and is
// the stable local key; TunnelID is the Cloudflare-assigned identifier,
// immutable once set.
type Tunnel struct {
	Name        string `json:"name"`
	Account     string `json:"account"`
	Target      string `json:"target"`
	ZoneID      string `json:"zoneID"`
	ZoneName    string `json:"zoneName"`
	Hostname    string `json:"hostname"`
	TunnelID    string `json:"tunnelID"`
	Enabled     bool   `json:"enabled"`
	AutoStart   bool   `json:"autoStart"`
	MetricsPort int    `json:"metricsPort,omitempty"`

	// DNSPending marks a partially-completed Add/Edit: the tunnel is
	// registered remotely but its CNAME has not been applied yet. A retry
	// resumes at the DNS step instead of re-creating the tunnel.
	DNSPending bool `json:"dnsPending,omitempty"`
}

// RemoteName returns the Cloudflare-side tunnel name for a local tunnel name.
func RemoteName(name string) string {
	return "tunctl-" + name
}

// Key returns the per-account identity used for in-flight operation guards.
func (t *Tunnel) Key() string {
	return t.Account + "/" + t.Name
}

// PublicURL returns the browsable URL for the tunnel hostname.
func (t *Tunnel) PublicURL() string {
	return "https://" + t.Hostname
}

// MetricsAddr returns the local cloudflared metrics listen address. The port
// is derived from the tunnel name when not explicitly set, so regenerated
// service units always agree with previously installed ones.
func (t *Tunnel) MetricsAddr() string {
	return fmt.Sprintf("localhost:%d", t.EffectiveMetricsPort())
}

// MetricsURL returns the scrape URL for the local metrics endpoint.
func (t *Tunnel) MetricsURL() string {
	return fmt.Sprintf("http://%s/metrics", t.MetricsAddr())
}

// EffectiveMetricsPort returns MetricsPort, or a stable name-derived port in
// 21000-21999 (clear of cloudflared's own 20241-20245 defaults).
func (t *Tunnel) EffectiveMetricsPort() int {
	if t.MetricsPort != 0 {
		return t.MetricsPort
	}
	var h uint32
	for i := 0; i < len(t.Name); i++ {
		h = (h + uint32(t.Name[i])) * 31
	}
	return 21000 + int(h%1000)
}

// RuntimeState is the observed lifecycle state of a tunnel. It is derived
// every poll cycle and never persisted.
type RuntimeState int

const (
	StateUnknown RuntimeState = iota
	StateStopped
	StateStarting
	StateRunning
	StateStopping
	StateUnhealthy
	StateError
)

// String returns the lower-case state name for display and logs.
func (s RuntimeState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateUnhealthy:
		return "unhealthy"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Symbol returns the one-rune status marker used by list output and the
// dashboard.
func (s RuntimeState) Symbol() string {
	switch s {
	case StateRunning:
		return "●"
	case StateUnhealthy:
		return "◐"
	case StateError:
		return "✗"
	case StateStarting, StateStopping:
		return "…"
	default:
		return "○"
	}
}

// Health classifies reachability of the public hostname, as distinct from
// OS-reported liveness of the daemon process.
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthUnreachable
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MetricsSnapshot holds counters scraped from a running cloudflared's
// Prometheus endpoint. A nil *MetricsSnapshot means no data was available;
// counters are never fabricated.
type MetricsSnapshot struct {
	TotalRequests      uint64
	RequestErrors      uint64
	ConcurrentRequests uint64
	EdgeConnections    uint64
	EdgeLocations      []string
	ResponseCodes      map[int]uint64
}

// LocationsString joins the connected edge locations for display.
func (m *MetricsSnapshot) LocationsString() string {
	if m == nil || len(m.EdgeLocations) == 0 {
		return "none"
	}
	return strings.Join(m.EdgeLocations, ", ")
}

// Credentials is the opaque authentication blob cloudflared needs to run a
// tunnel. Field names follow the cloudflared credentials-file format.
type Credentials struct {
	AccountTag   string `json:"AccountTag"`
	TunnelID     string `json:"TunnelID"`
	TunnelSecret string `json:"TunnelSecret"`
}

// TunnelStatus is one immutable per-tunnel entry of a poller snapshot.
type TunnelStatus struct {
	Tunnel  Tunnel
	State   RuntimeState
	Reason  string
	Health  Health
	Metrics *MetricsSnapshot
}
