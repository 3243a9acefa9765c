package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/koltyakov/tunctl/internal/cloudflare"
	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/store"
)

// fakeRemote is an in-memory registry: tunnels keyed by name, DNS records
// by hostname. Individual calls can be scripted to fail.
type fakeRemote struct {
	tunnels map[string]string // remote name -> tunnel id
	dns     map[string]string // hostname -> cname target
	nextID  int

	failDNS    error
	failEnsure error
	failDelete error

	calls []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tunnels: map[string]string{}, dns: map[string]string{}}
}

func (f *fakeRemote) ListZones(ctx context.Context) ([]cloudflare.ZoneInfo, error) {
	f.calls = append(f.calls, "list-zones")
	return []cloudflare.ZoneInfo{
		{Zone: domain.Zone{ID: "z1", Name: "example.com"}, AccountID: "acc1"},
	}, nil
}

func (f *fakeRemote) EnsureTunnel(ctx context.Context, accountID, name string) (cloudflare.EnsureResult, error) {
	f.calls = append(f.calls, "ensure-tunnel")
	if f.failEnsure != nil {
		return cloudflare.EnsureResult{}, f.failEnsure
	}
	if id, ok := f.tunnels[name]; ok {
		return cloudflare.EnsureResult{TunnelID: id}, nil
	}
	f.nextID++
	id := "tid-" + string(rune('0'+f.nextID))
	f.tunnels[name] = id
	return cloudflare.EnsureResult{
		TunnelID: id,
		Created:  true,
		Credentials: domain.Credentials{
			AccountTag: accountID, TunnelID: id, TunnelSecret: "c2VjcmV0",
		},
	}, nil
}

func (f *fakeRemote) EnsureDNSRecord(ctx context.Context, zoneID, hostname, tunnelID string) error {
	f.calls = append(f.calls, "ensure-dns")
	if f.failDNS != nil {
		return f.failDNS
	}
	f.dns[hostname] = cloudflare.TunnelCNAMETarget(tunnelID)
	return nil
}

func (f *fakeRemote) DeleteDNSRecord(ctx context.Context, zoneID, hostname string) error {
	f.calls = append(f.calls, "delete-dns")
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.dns, hostname)
	return nil
}

func (f *fakeRemote) DeleteTunnel(ctx context.Context, accountID, tunnelID string) error {
	f.calls = append(f.calls, "delete-tunnel")
	if f.failDelete != nil {
		return f.failDelete
	}
	for name, id := range f.tunnels {
		if id == tunnelID {
			delete(f.tunnels, name)
		}
	}
	return nil
}

// fakeService records service-manager actions per tunnel key.
type fakeService struct {
	actions   []string
	active    map[string]bool
	failStart error
}

func newFakeService() *fakeService {
	return &fakeService{active: map[string]bool{}}
}

func (f *fakeService) Install(ctx context.Context, t *domain.Tunnel, configPath string) error {
	f.actions = append(f.actions, "install:"+t.Key())
	return nil
}

func (f *fakeService) Remove(ctx context.Context, t *domain.Tunnel) error {
	f.actions = append(f.actions, "remove:"+t.Key())
	delete(f.active, t.Key())
	return nil
}

func (f *fakeService) Start(ctx context.Context, t *domain.Tunnel) error {
	f.actions = append(f.actions, "start:"+t.Key())
	if f.failStart != nil {
		return f.failStart
	}
	f.active[t.Key()] = true
	return nil
}

func (f *fakeService) Stop(ctx context.Context, t *domain.Tunnel) error {
	f.actions = append(f.actions, "stop:"+t.Key())
	f.active[t.Key()] = false
	return nil
}

func (f *fakeService) IsActive(ctx context.Context, t *domain.Tunnel) (bool, error) {
	return f.active[t.Key()], nil
}

func (f *fakeService) SetAutoStart(ctx context.Context, t *domain.Tunnel, enabled bool) error {
	f.actions = append(f.actions, "autostart:"+t.Key())
	return nil
}

func testEngine(t *testing.T) (*Engine, *fakeRemote, *fakeService) {
	t.Helper()
	t.Setenv("TUNCTL_HOME", t.TempDir())

	cfg := &store.Config{}
	err := cfg.AddAccount(domain.Account{
		Name: "work", APIToken: "tok", AccountID: "acc1",
		DefaultZoneID: "z1", DefaultZoneName: "example.com",
		Zones: []domain.Zone{
			{ID: "z1", Name: "example.com"},
			{ID: "z2", Name: "example.org"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveConfig(cfg); err != nil {
		t.Fatal(err)
	}

	remote := newFakeRemote()
	svc := newFakeService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(logger, svc, nil, WithRemoteFactory(func(string) Remote { return remote }))
	return e, remote, svc
}

func TestAddStart(t *testing.T) {
	e, remote, svc := testEngine(t)

	rep, err := e.Add(context.Background(), AddRequest{
		Name: "myapp", Target: "localhost:3000", Start: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Tunnel.Hostname != "myapp.example.com" {
		t.Fatalf("hostname: %q", rep.Tunnel.Hostname)
	}
	if rep.Tunnel.DNSPending {
		t.Fatal("completed add must clear the pending flag")
	}
	if got := remote.dns["myapp.example.com"]; got != cloudflare.TunnelCNAMETarget(rep.Tunnel.TunnelID) {
		t.Fatalf("dns record: %q", got)
	}
	if !svc.active["work/myapp"] {
		t.Fatal("service must be started")
	}
	if !store.HasCredentials(rep.Tunnel.TunnelID) {
		t.Fatal("credentials must be saved for a created tunnel")
	}

	ts, err := store.LoadTunnels()
	if err != nil {
		t.Fatal(err)
	}
	rec := ts.Find("myapp", "work")
	if rec == nil || !rec.Enabled || rec.Target != "http://localhost:3000" {
		t.Fatalf("persisted record: %+v", rec)
	}
}

func TestAddQualifiedNameSelectsZone(t *testing.T) {
	e, remote, _ := testEngine(t)

	// A fully qualified name under a non-default account zone picks that
	// zone and is stored by its bare label.
	rep, err := e.Add(context.Background(), AddRequest{
		Name: "App.Example.Org.", Target: "localhost:3000",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Tunnel.Name != "app" || rep.Tunnel.ZoneID != "z2" {
		t.Fatalf("resolved tunnel: %+v", rep.Tunnel)
	}
	if rep.Tunnel.Hostname != "app.example.org" {
		t.Fatalf("hostname: %q", rep.Tunnel.Hostname)
	}
	if remote.dns["app.example.org"] == "" {
		t.Fatal("dns record must use the selected zone")
	}

	// An explicit zone flag pins the zone; a mismatched qualified name is
	// rejected rather than silently split.
	_, err = e.Add(context.Background(), AddRequest{
		Name: "web.example.org", Target: "localhost:3000", Zone: "example.com",
	})
	if err == nil {
		t.Fatal("qualified name under a different zone must be rejected")
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:4000"}); err == nil {
		t.Fatal("second add of the same name must be rejected")
	}
}

func TestAddReusedTunnelRequiresCredentials(t *testing.T) {
	e, remote, _ := testEngine(t)
	ctx := context.Background()

	// The remote name is taken (registered from another machine), so
	// EnsureTunnel reuses it without issuing credentials.
	remote.tunnels["tunctl-myapp"] = "tid-remote"

	rep, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"})
	if err == nil {
		t.Fatal("add must fail when the reused tunnel has no local credentials")
	}
	if rep.FailedStep() != "ensure-tunnel" {
		t.Fatalf("failed step: %q", rep.FailedStep())
	}
	ts, _ := store.LoadTunnels()
	if ts.Find("myapp", "work") != nil {
		t.Fatal("no record may be persisted for an unusable tunnel")
	}
}

func TestRunEphemeralReusedTunnelRequiresCredentials(t *testing.T) {
	e, remote, _ := testEngine(t)
	remote.tunnels["tunctl-demo"] = "tid-remote"

	ran := false
	e.runDaemon = func(ctx context.Context, configPath, metricsAddr string, stdout, stderr io.Writer) error {
		ran = true
		return nil
	}

	_, err := e.RunEphemeral(context.Background(), RunRequest{
		Name: "demo", Target: "localhost:8080",
	}, io.Discard, io.Discard)
	if err == nil {
		t.Fatal("run must fail when the reused tunnel has no local credentials")
	}
	if ran {
		t.Fatal("daemon must not start without credentials")
	}
}

func TestAddDNSFailureResumes(t *testing.T) {
	e, remote, _ := testEngine(t)
	ctx := context.Background()

	remote.failDNS = errors.New("zone api down")
	rep, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"})
	if err == nil {
		t.Fatal("expected dns failure")
	}
	if rep.FailedStep() != "dns-record" {
		t.Fatalf("failed step: %q", rep.FailedStep())
	}

	ts, _ := store.LoadTunnels()
	rec := ts.Find("myapp", "work")
	if rec == nil || !rec.DNSPending || rec.TunnelID == "" {
		t.Fatalf("partial add must persist a pending record: %+v", rec)
	}
	firstID := rec.TunnelID

	// Retry completes DNS without registering a second remote tunnel.
	remote.failDNS = nil
	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"}); err != nil {
		t.Fatal(err)
	}
	if len(remote.tunnels) != 1 {
		t.Fatalf("retry must not duplicate the remote tunnel: %v", remote.tunnels)
	}
	ts, _ = store.LoadTunnels()
	rec = ts.Find("myapp", "work")
	if rec.DNSPending || rec.TunnelID != firstID {
		t.Fatalf("resumed record: %+v", rec)
	}
}

func TestStopStartKeepsIdentity(t *testing.T) {
	e, _, svc := testEngine(t)
	ctx := context.Background()

	rep, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000", Start: true})
	if err != nil {
		t.Fatal(err)
	}
	id := rep.Tunnel.TunnelID

	if _, err := e.Stop(ctx, "myapp", ""); err != nil {
		t.Fatal(err)
	}
	if svc.active["work/myapp"] {
		t.Fatal("service must be stopped")
	}

	rep, err = e.Start(ctx, "myapp", "")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Tunnel.TunnelID != id || rep.Tunnel.Hostname != "myapp.example.com" {
		t.Fatalf("identity must survive stop/start: %+v", rep.Tunnel)
	}
}

func TestStartSelfHealsDNS(t *testing.T) {
	e, remote, _ := testEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"}); err != nil {
		t.Fatal(err)
	}
	// Out-of-band removal of the record.
	delete(remote.dns, "myapp.example.com")

	if _, err := e.Start(ctx, "myapp", ""); err != nil {
		t.Fatal(err)
	}
	if remote.dns["myapp.example.com"] == "" {
		t.Fatal("start must re-assert the DNS record")
	}
}

func TestDeleteToleratesAbsentDNS(t *testing.T) {
	e, remote, _ := testEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"}); err != nil {
		t.Fatal(err)
	}
	delete(remote.dns, "myapp.example.com")

	if _, err := e.Delete(ctx, "myapp", ""); err != nil {
		t.Fatal(err)
	}
	ts, _ := store.LoadTunnels()
	if ts.Find("myapp", "work") != nil {
		t.Fatal("record must be removed")
	}
	if len(remote.tunnels) != 0 {
		t.Fatal("remote tunnel must be removed")
	}
}

func TestDeleteFailureRetainsRecord(t *testing.T) {
	e, remote, _ := testEngine(t)
	ctx := context.Background()

	rep, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"})
	if err != nil {
		t.Fatal(err)
	}
	remote.failDelete = errors.New("api down")

	if _, err := e.Delete(ctx, "myapp", ""); err == nil {
		t.Fatal("expected delete failure")
	}
	ts, _ := store.LoadTunnels()
	rec := ts.Find("myapp", "work")
	if rec == nil || rec.TunnelID != rep.Tunnel.TunnelID {
		t.Fatal("failed delete must retain the record and its remote id")
	}

	remote.failDelete = nil
	if _, err := e.Delete(ctx, "myapp", ""); err != nil {
		t.Fatal(err)
	}
	ts, _ = store.LoadTunnels()
	if ts.Find("myapp", "work") != nil {
		t.Fatal("retried delete must complete")
	}
}

func TestBusyRejection(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"}); err != nil {
		t.Fatal(err)
	}

	release, err := e.acquire("work/myapp")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := e.Start(ctx, "myapp", ""); !errors.Is(err, domain.ErrOperationBusy) {
		t.Fatalf("got %v, want ErrOperationBusy", err)
	}
	if !e.Busy("work/myapp") {
		t.Fatal("key must report busy while held")
	}
}

func TestEditZoneMove(t *testing.T) {
	e, remote, _ := testEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000"}); err != nil {
		t.Fatal(err)
	}

	rep, err := e.Edit(ctx, "myapp", "", EditRequest{Zone: "example.org"})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Tunnel.Hostname != "myapp.example.org" || rep.Tunnel.ZoneID != "z2" {
		t.Fatalf("moved tunnel: %+v", rep.Tunnel)
	}
	if _, ok := remote.dns["myapp.example.com"]; ok {
		t.Fatal("old hostname record must be removed")
	}
	if remote.dns["myapp.example.org"] == "" {
		t.Fatal("new hostname record must exist")
	}

	ts, _ := store.LoadTunnels()
	if rec := ts.Find("myapp", "work"); rec.Hostname != "myapp.example.org" {
		t.Fatalf("persisted hostname: %q", rec.Hostname)
	}
}

func TestEditTargetRestartsRunning(t *testing.T) {
	e, _, svc := testEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000", Start: true}); err != nil {
		t.Fatal(err)
	}
	svc.actions = nil

	if _, err := e.Edit(ctx, "myapp", "", EditRequest{Target: "localhost:4000"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"install:work/myapp", "stop:work/myapp", "start:work/myapp"}
	if len(svc.actions) != len(want) {
		t.Fatalf("actions: %v", svc.actions)
	}
	for i, a := range want {
		if svc.actions[i] != a {
			t.Fatalf("actions: %v, want %v", svc.actions, want)
		}
	}
}

func TestRunEphemeralTeardown(t *testing.T) {
	e, remote, _ := testEngine(t)

	ran := false
	e.runDaemon = func(ctx context.Context, configPath, metricsAddr string, stdout, stderr io.Writer) error {
		ran = true
		return nil
	}

	rep, err := e.RunEphemeral(context.Background(), RunRequest{
		Name: "demo", Target: "localhost:8080",
	}, io.Discard, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("daemon must run")
	}
	if len(remote.tunnels) != 0 || len(remote.dns) != 0 {
		t.Fatalf("ephemeral exit must tear down remote state: %v %v", remote.tunnels, remote.dns)
	}
	if store.HasCredentials(rep.Tunnel.TunnelID) {
		t.Fatal("credentials must be removed on teardown")
	}

	ts, _ := store.LoadTunnels()
	if ts.Find("demo", "work") != nil {
		t.Fatal("ephemeral run must not persist a record")
	}
}

func TestRunEphemeralKeep(t *testing.T) {
	e, remote, _ := testEngine(t)
	e.runDaemon = func(ctx context.Context, configPath, metricsAddr string, stdout, stderr io.Writer) error {
		return nil
	}

	if _, err := e.RunEphemeral(context.Background(), RunRequest{
		Name: "demo", Target: "localhost:8080", Keep: true,
	}, io.Discard, io.Discard); err != nil {
		t.Fatal(err)
	}
	if len(remote.tunnels) != 1 {
		t.Fatal("kept tunnel must stay registered")
	}
	ts, _ := store.LoadTunnels()
	if ts.Find("demo", "work") == nil {
		t.Fatal("kept tunnel must be persisted")
	}
}

func TestRemoveAccountLeavesRemote(t *testing.T) {
	e, remote, svc := testEngine(t)
	ctx := context.Background()

	cfg, _ := store.LoadConfig()
	_ = cfg.AddAccount(domain.Account{Name: "personal", APIToken: "tok2", AccountID: "acc2"})
	_ = store.SaveConfig(cfg)

	if _, err := e.Add(ctx, AddRequest{Name: "myapp", Target: "localhost:3000", Start: true}); err != nil {
		t.Fatal(err)
	}

	if err := e.RemoveAccount(ctx, "work"); err != nil {
		t.Fatal(err)
	}

	ts, _ := store.LoadTunnels()
	if ts.Find("myapp", "work") != nil {
		t.Fatal("owned tunnel records must be removed")
	}
	if svc.active["work/myapp"] {
		t.Fatal("owned services must be stopped")
	}
	// Remote state stays; the discarded token cannot manage it anyway.
	if len(remote.tunnels) != 1 {
		t.Fatal("remote tunnels must be left intact")
	}

	cfg, err := store.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Account("work") != nil || cfg.DefaultAccount != "personal" {
		t.Fatalf("config after removal: %+v", cfg)
	}
}
