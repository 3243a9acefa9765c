package cloudflare

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koltyakov/tunctl/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New("test-token", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	c.retryDelay = time.Millisecond
	return c
}

func ok(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": result})
}

func apiFail(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"errors":  []map[string]any{{"code": 1000, "message": msg}},
	})
}

func TestListZones(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization header: %q", got)
		}
		if r.URL.Path != "/zones" {
			t.Errorf("path: %q", r.URL.Path)
		}
		ok(w, []map[string]any{
			{"id": "z1", "name": "example.com", "account": map[string]string{"id": "acc1"}},
			{"id": "z2", "name": "example.org", "account": map[string]string{"id": "acc1"}},
		})
	}))

	zones, err := c.ListZones(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(zones) != 2 || zones[0].Name != "example.com" || zones[0].AccountID != "acc1" {
		t.Fatalf("unexpected zones: %+v", zones)
	}
}

func TestUnauthorizedNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		apiFail(w, http.StatusForbidden, "invalid token")
	}))

	_, err := c.ListZones(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("auth failures must not be retried, got %d calls", calls.Load())
	}
}

func TestServerErrorRetriedThenTransient(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.ListZones(context.Background())
	if !errors.Is(err, domain.ErrRemoteTransient) {
		t.Fatalf("got %v, want ErrRemoteTransient", err)
	}
	if calls.Load() != maxAttempts {
		t.Fatalf("got %d calls, want %d", calls.Load(), maxAttempts)
	}
}

func TestServerErrorRecoversMidRetry(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ok(w, []map[string]any{})
	}))

	if _, err := c.ListZones(context.Background()); err != nil {
		t.Fatalf("expected recovery after retry, got %v", err)
	}
}

func TestAPIRejectionSurfaces(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiFail(w, http.StatusBadRequest, "zone is held")
	}))

	_, err := c.ListZones(context.Background())
	if !errors.Is(err, domain.ErrRemoteRejected) {
		t.Fatalf("got %v, want ErrRemoteRejected", err)
	}
}

func TestEnsureTunnelReusesExisting(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		ok(w, []map[string]any{
			{"id": "tid-old", "name": "tunctl-myapp", "deleted_at": nil},
		})
	}))

	res, err := c.EnsureTunnel(context.Background(), "acc1", "tunctl-myapp")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created || res.TunnelID != "tid-old" {
		t.Fatalf("existing tunnel must be reused: %+v", res)
	}
}

func TestEnsureTunnelCreates(t *testing.T) {
	var createBody struct {
		Name         string `json:"name"`
		TunnelSecret string `json:"tunnel_secret"`
	}
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			ok(w, []map[string]any{})
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&createBody); err != nil {
				t.Fatal(err)
			}
			ok(w, map[string]any{"id": "tid-new", "name": createBody.Name})
		}
	}))

	res, err := c.EnsureTunnel(context.Background(), "acc1", "tunctl-myapp")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.TunnelID != "tid-new" {
		t.Fatalf("unexpected result: %+v", res)
	}
	secret, err := base64.StdEncoding.DecodeString(createBody.TunnelSecret)
	if err != nil || len(secret) != 32 {
		t.Fatalf("tunnel secret must be 32 random bytes base64-encoded, got %q", createBody.TunnelSecret)
	}
	if res.Credentials.TunnelSecret != createBody.TunnelSecret || res.Credentials.AccountTag != "acc1" {
		t.Fatalf("credentials must mirror the created tunnel: %+v", res.Credentials)
	}
}

func TestDeleteTunnelToleratesAbsence(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiFail(w, http.StatusNotFound, "tunnel not found")
	}))

	if err := c.DeleteTunnel(context.Background(), "acc1", "tid-gone"); err != nil {
		t.Fatalf("absent tunnel must delete cleanly, got %v", err)
	}
}

func TestEnsureDNSRecord(t *testing.T) {
	target := TunnelCNAMETarget("tid-1")

	tests := []struct {
		name       string
		existing   []map[string]any
		wantMethod string
	}{
		{"absent creates", nil, http.MethodPost},
		{"correct is noop", []map[string]any{
			{"id": "r1", "type": "CNAME", "name": "myapp.example.com", "content": target, "proxied": true},
		}, ""},
		{"stale is updated", []map[string]any{
			{"id": "r1", "type": "CNAME", "name": "myapp.example.com", "content": "old.cfargotunnel.com", "proxied": true},
		}, http.MethodPut},
		{"unproxied is updated", []map[string]any{
			{"id": "r1", "type": "CNAME", "name": "myapp.example.com", "content": target, "proxied": false},
		}, http.MethodPut},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var mutated string
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					ok(w, tc.existing)
					return
				}
				mutated = r.Method
				var rec dnsRecord
				if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
					t.Fatal(err)
				}
				if rec.Type != "CNAME" || rec.Content != target || !rec.Proxied {
					t.Errorf("unexpected record payload: %+v", rec)
				}
				ok(w, rec)
			}))

			if err := c.EnsureDNSRecord(context.Background(), "z1", "myapp.example.com", "tid-1"); err != nil {
				t.Fatal(err)
			}
			if mutated != tc.wantMethod {
				t.Fatalf("mutation: got %q, want %q", mutated, tc.wantMethod)
			}
		})
	}
}

func TestDeleteDNSRecordToleratesAbsence(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			ok(w, []map[string]any{})
			return
		}
		t.Errorf("no mutation expected, got %s", r.Method)
	}))

	if err := c.DeleteDNSRecord(context.Background(), "z1", "gone.example.com"); err != nil {
		t.Fatal(err)
	}
}
