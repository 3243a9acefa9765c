// Package poller refreshes liveness, health, and metrics for the full
// tunnel set on a fixed cadence and publishes immutable status snapshots.
// Tunnels with an operation in flight are skipped for that cycle so the
// poller never reads torn intermediate state.
package poller

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/history"
	"github.com/koltyakov/tunctl/internal/probe"
	"github.com/koltyakov/tunctl/internal/service"
	"github.com/koltyakov/tunctl/internal/store"
)

const (
	defaultLivenessEvery = 3 * time.Second
	defaultHealthEvery   = 30 * time.Second
)

// Poller drives the recurring status refresh. Construct with New, then run
// Run in its own goroutine and consume Snapshots.
type Poller struct {
	log   *slog.Logger
	svc   service.Manager
	probe *probe.Prober
	hist  *history.DB
	// busy reports whether an engine operation holds the tunnel key.
	busy func(key string) bool

	livenessEvery time.Duration
	healthEvery   time.Duration

	snapshots chan []domain.TunnelStatus

	// carried between cycles: health is probed less often than liveness,
	// and busy tunnels keep their previous entry.
	lastHealth map[string]domain.Health
	lastStatus map[string]domain.TunnelStatus
}

// Option adjusts poller construction.
type Option func(*Poller)

// WithIntervals overrides the liveness and health cadences.
func WithIntervals(liveness, health time.Duration) Option {
	return func(p *Poller) {
		p.livenessEvery = liveness
		p.healthEvery = health
	}
}

// New builds a poller. hist may be nil to skip sample recording.
func New(logger *slog.Logger, svc service.Manager, prober *probe.Prober, busy func(string) bool, hist *history.DB, opts ...Option) *Poller {
	p := &Poller{
		log:           logger,
		svc:           svc,
		probe:         prober,
		hist:          hist,
		busy:          busy,
		livenessEvery: defaultLivenessEvery,
		healthEvery:   defaultHealthEvery,
		snapshots:     make(chan []domain.TunnelStatus, 1),
		lastHealth:    map[string]domain.Health{},
		lastStatus:    map[string]domain.TunnelStatus{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshots delivers one immutable status slice per completed cycle. Only
// the latest snapshot is retained when the consumer lags.
func (p *Poller) Snapshots() <-chan []domain.TunnelStatus {
	return p.snapshots
}

// PollOnce runs a single poll cycle synchronously and returns the
// snapshot. Used by one-shot CLI commands that want live status without a
// background loop.
func (p *Poller) PollOnce(ctx context.Context, withHealth bool) []domain.TunnelStatus {
	return p.cycle(ctx, withHealth)
}

// Run polls until ctx is cancelled. The first cycle runs immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.livenessEvery)
	defer ticker.Stop()

	lastHealthProbe := time.Time{}
	for {
		withHealth := time.Since(lastHealthProbe) >= p.healthEvery
		if withHealth {
			lastHealthProbe = time.Now()
		}
		p.publish(p.cycle(ctx, withHealth))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle polls every known tunnel once and returns the snapshot.
func (p *Poller) cycle(ctx context.Context, withHealth bool) []domain.TunnelStatus {
	ts, err := store.LoadTunnels()
	if err != nil {
		p.log.Warn("poll: load tunnels", "error", err)
		return nil
	}

	out := make([]domain.TunnelStatus, 0, len(ts.Tunnels))
	live := make([]string, 0, len(ts.Tunnels))
	for _, tun := range ts.Tunnels {
		if tun.TunnelID != "" {
			live = append(live, tun.TunnelID)
		}
		key := tun.Key()
		if p.busy != nil && p.busy(key) {
			if prev, ok := p.lastStatus[key]; ok {
				out = append(out, prev)
			}
			continue
		}
		st := p.pollOne(ctx, tun, withHealth)
		p.lastStatus[key] = st
		out = append(out, st)
	}

	p.forgetDeleted(ts)
	if p.hist != nil && withHealth {
		if err := p.hist.Prune(ctx, live); err != nil {
			p.log.Warn("poll: prune history", "error", err)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Tunnel, out[j].Tunnel
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		return a.Name < b.Name
	})
	return out
}

// pollOne derives the runtime state of a single tunnel from service
// liveness, the metrics endpoint, and (on health cycles) the public probe.
func (p *Poller) pollOne(ctx context.Context, tun domain.Tunnel, withHealth bool) domain.TunnelStatus {
	st := domain.TunnelStatus{Tunnel: tun, Health: p.lastHealth[tun.Key()]}

	active, err := p.svc.IsActive(ctx, &tun)
	if err != nil {
		st.State = domain.StateError
		st.Reason = err.Error()
		return st
	}

	switch {
	case !active && tun.Enabled:
		// Expected running but the OS says otherwise: crashed or killed.
		st.State = domain.StateError
		st.Reason = "service not running"
		return st
	case !active:
		st.State = domain.StateStopped
		return st
	}

	if snap, err := p.probe.Metrics(ctx, &tun); err == nil {
		st.Metrics = &snap
		p.record(ctx, tun.TunnelID, &snap)
	}

	if withHealth {
		st.Health = p.probe.Health(ctx, &tun)
		p.lastHealth[tun.Key()] = st.Health
	}

	if st.Health == domain.HealthUnreachable {
		// Process is live but the hostname does not answer.
		st.State = domain.StateUnhealthy
		st.Reason = "public hostname unreachable"
		return st
	}
	st.State = domain.StateRunning
	return st
}

func (p *Poller) record(ctx context.Context, tunnelID string, snap *domain.MetricsSnapshot) {
	if p.hist == nil || tunnelID == "" {
		return
	}
	err := p.hist.Append(ctx, tunnelID, history.Sample{
		TakenAt:       time.Now(),
		TotalRequests: snap.TotalRequests,
		RequestErrors: snap.RequestErrors,
	})
	if err != nil {
		p.log.Warn("poll: record sample", "tunnel", tunnelID, "error", err)
	}
}

// forgetDeleted drops carried state for tunnels that no longer exist.
func (p *Poller) forgetDeleted(ts *store.Tunnels) {
	known := map[string]bool{}
	for _, tun := range ts.Tunnels {
		known[tun.Key()] = true
	}
	for key := range p.lastStatus {
		if !known[key] {
			delete(p.lastStatus, key)
			delete(p.lastHealth, key)
		}
	}
}

// publish replaces any undelivered snapshot with the latest one.
func (p *Poller) publish(snap []domain.TunnelStatus) {
	if snap == nil {
		return
	}
	for {
		select {
		case p.snapshots <- snap:
			return
		default:
			select {
			case <-p.snapshots:
			default:
			}
		}
	}
}
