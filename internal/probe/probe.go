// Package probe inspects running tunnels from the outside: an HTTP health
// check against the public hostname and a scrape of the daemon's local
// metrics endpoint.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koltyakov/tunctl/internal/domain"
)

const (
	healthTimeout  = 5 * time.Second
	metricsTimeout = 2 * time.Second
)

// Prober performs health and metrics probes. The zero value is not usable;
// construct with New.
type Prober struct {
	health  *http.Client
	metrics *http.Client
	// scheme for public URLs, overridden to http by httptest-backed tests.
	scheme string
}

// New returns a prober with the default timeouts.
func New() *Prober {
	return &Prober{
		health:  &http.Client{Timeout: healthTimeout},
		metrics: &http.Client{Timeout: metricsTimeout},
		scheme:  "https",
	}
}

// Health checks whether the tunnel's public hostname answers over HTTPS.
// Transport failures and 5xx responses are both Unreachable: with the
// daemon down the edge still serves the hostname as a 530 error page, so a
// server error means the tunnel is not actually delivering. 4xx comes from
// a live origin and counts as Healthy.
func (p *Prober) Health(ctx context.Context, t *domain.Tunnel) domain.Health {
	url := p.scheme + "://" + t.Hostname
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return domain.HealthUnreachable
	}
	resp, err := p.health.Do(req)
	if err != nil {
		// Some origins reject HEAD outright; retry once with GET before
		// declaring the tunnel unreachable.
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.HealthUnreachable
		}
		resp, err = p.health.Do(req)
		if err != nil {
			return domain.HealthUnreachable
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 500 {
		return domain.HealthUnreachable
	}
	return domain.HealthHealthy
}

// Metrics scrapes the daemon's Prometheus endpoint. A scrape failure means
// the daemon is not answering locally, reported as ErrDaemonUnreachable.
func (p *Prober) Metrics(ctx context.Context, t *domain.Tunnel) (domain.MetricsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.MetricsURL(), nil)
	if err != nil {
		return domain.MetricsSnapshot{}, err
	}
	resp, err := p.metrics.Do(req)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: %s: %v", domain.ErrDaemonUnreachable, t.MetricsAddr(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: %s: status %d", domain.ErrDaemonUnreachable, t.MetricsAddr(), resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: %s: %v", domain.ErrDaemonUnreachable, t.MetricsAddr(), err)
	}
	return ParseMetrics(string(raw)), nil
}
