package poller

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/probe"
	"github.com/koltyakov/tunctl/internal/service"
	"github.com/koltyakov/tunctl/internal/store"
)

type fakeService struct {
	active map[string]bool
}

func (f *fakeService) Install(ctx context.Context, t *domain.Tunnel, configPath string) error {
	return nil
}
func (f *fakeService) Remove(ctx context.Context, t *domain.Tunnel) error { return nil }
func (f *fakeService) Start(ctx context.Context, t *domain.Tunnel) error  { return nil }
func (f *fakeService) Stop(ctx context.Context, t *domain.Tunnel) error   { return nil }
func (f *fakeService) SetAutoStart(ctx context.Context, t *domain.Tunnel, enabled bool) error {
	return nil
}
func (f *fakeService) IsActive(ctx context.Context, t *domain.Tunnel) (bool, error) {
	return f.active[t.Key()], nil
}

var _ service.Manager = (*fakeService)(nil)

func saveTunnels(t *testing.T, tunnels ...domain.Tunnel) {
	t.Helper()
	ts := &store.Tunnels{Tunnels: tunnels}
	if err := store.SaveTunnels(ts); err != nil {
		t.Fatal(err)
	}
}

func newPoller(svc service.Manager, busy func(string) bool) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, svc, probe.New(), busy, nil)
}

func TestCycleDerivesStates(t *testing.T) {
	t.Setenv("TUNCTL_HOME", t.TempDir())

	// A live metrics endpoint makes "running" scrape real counters.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("cloudflared_tunnel_total_requests 7\n"))
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	saveTunnels(t,
		domain.Tunnel{Name: "up", Account: "work", Enabled: true, TunnelID: "t1", MetricsPort: port},
		domain.Tunnel{Name: "down", Account: "work", Enabled: false, TunnelID: "t2", MetricsPort: 1},
		domain.Tunnel{Name: "crashed", Account: "work", Enabled: true, TunnelID: "t3", MetricsPort: 1},
	)

	svc := &fakeService{active: map[string]bool{"work/up": true}}
	p := newPoller(svc, nil)

	snap := p.cycle(context.Background(), false)
	if len(snap) != 3 {
		t.Fatalf("snapshot size: %d", len(snap))
	}

	byName := map[string]domain.TunnelStatus{}
	for _, st := range snap {
		byName[st.Tunnel.Name] = st
	}

	if st := byName["up"]; st.State != domain.StateRunning {
		t.Fatalf("up: %v (%s)", st.State, st.Reason)
	}
	if st := byName["up"]; st.Metrics == nil || st.Metrics.TotalRequests != 7 {
		t.Fatalf("up metrics: %+v", st.Metrics)
	}
	if st := byName["down"]; st.State != domain.StateStopped {
		t.Fatalf("down: %v", st.State)
	}
	if st := byName["crashed"]; st.State != domain.StateError || st.Reason == "" {
		t.Fatalf("crashed: %v (%q)", st.State, st.Reason)
	}
}

func TestUnhealthyWhenHostnameUnreachable(t *testing.T) {
	t.Setenv("TUNCTL_HOME", t.TempDir())

	// Liveness says running, but the public hostname refuses connections.
	saveTunnels(t, domain.Tunnel{
		Name: "myapp", Account: "work", Enabled: true, TunnelID: "t1",
		Hostname: "127.0.0.1:1", MetricsPort: 1,
	})
	svc := &fakeService{active: map[string]bool{"work/myapp": true}}
	p := newPoller(svc, nil)

	snap := p.cycle(context.Background(), true)
	if len(snap) != 1 || snap[0].State != domain.StateUnhealthy {
		t.Fatalf("snapshot: %+v", snap)
	}
	if snap[0].Health != domain.HealthUnreachable {
		t.Fatalf("health: %v", snap[0].Health)
	}
}

func TestBusyTunnelSkipped(t *testing.T) {
	t.Setenv("TUNCTL_HOME", t.TempDir())

	saveTunnels(t,
		domain.Tunnel{Name: "busy", Account: "work", Enabled: true, TunnelID: "t1", MetricsPort: 1},
		domain.Tunnel{Name: "idle", Account: "work", TunnelID: "t2", MetricsPort: 1},
	)
	svc := &fakeService{active: map[string]bool{}}
	p := newPoller(svc, func(key string) bool { return key == "work/busy" })

	// First cycle: the busy tunnel has no prior status, so it is absent.
	snap := p.cycle(context.Background(), false)
	if len(snap) != 1 || snap[0].Tunnel.Name != "idle" {
		t.Fatalf("snapshot: %+v", snap)
	}

	// Once polled, a newly busy tunnel keeps its previous entry.
	p2 := newPoller(svc, nil)
	_ = p2.cycle(context.Background(), false)
	busyNow := "work/busy"
	p2.busy = func(key string) bool { return key == busyNow }
	snap = p2.cycle(context.Background(), false)
	if len(snap) != 2 {
		t.Fatalf("carried snapshot: %+v", snap)
	}
}

func TestPublishKeepsLatestOnly(t *testing.T) {
	p := newPoller(&fakeService{}, nil)

	first := []domain.TunnelStatus{{Tunnel: domain.Tunnel{Name: "a"}}}
	second := []domain.TunnelStatus{{Tunnel: domain.Tunnel{Name: "b"}}}
	p.publish(first)
	p.publish(second)

	got := <-p.Snapshots()
	if len(got) != 1 || got[0].Tunnel.Name != "b" {
		t.Fatalf("got %+v, want the latest snapshot", got)
	}
}

func TestForgetDeleted(t *testing.T) {
	t.Setenv("TUNCTL_HOME", t.TempDir())

	saveTunnels(t, domain.Tunnel{Name: "gone", Account: "work", TunnelID: "t1", MetricsPort: 1})
	svc := &fakeService{active: map[string]bool{}}
	p := newPoller(svc, nil)

	_ = p.cycle(context.Background(), false)
	if _, ok := p.lastStatus["work/gone"]; !ok {
		t.Fatal("status must be carried after a cycle")
	}

	saveTunnels(t)
	_ = p.cycle(context.Background(), false)
	if _, ok := p.lastStatus["work/gone"]; ok {
		t.Fatal("deleted tunnels must be forgotten")
	}
}
