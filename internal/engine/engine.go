// Package engine sequences multi-step tunnel operations across the remote
// registry, the DNS zone, the local store, and the OS service manager.
//
// Operations run their steps strictly in order. A failed step stops the
// sequence; completed steps are never unwound. The store records exactly
// what succeeded so re-running the same command resumes through the
// idempotent remote calls instead of duplicating work.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/koltyakov/tunctl/internal/cloudflare"
	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/history"
	"github.com/koltyakov/tunctl/internal/service"
)

// Remote is the slice of the registry client the engine drives. Satisfied by
// *cloudflare.Client; tests substitute a fake.
type Remote interface {
	ListZones(ctx context.Context) ([]cloudflare.ZoneInfo, error)
	EnsureTunnel(ctx context.Context, accountID, name string) (cloudflare.EnsureResult, error)
	EnsureDNSRecord(ctx context.Context, zoneID, hostname, tunnelID string) error
	DeleteDNSRecord(ctx context.Context, zoneID, hostname string) error
	DeleteTunnel(ctx context.Context, accountID, tunnelID string) error
}

// Engine owns the per-tunnel operation serialization and the collaborator
// handles. One Engine per process.
type Engine struct {
	log       *slog.Logger
	svc       service.Manager
	hist      *history.DB
	newRemote func(token string) Remote
	runDaemon DaemonRunner

	mu   sync.Mutex
	busy map[string]bool
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithRemoteFactory overrides how registry clients are built per account
// token.
func WithRemoteFactory(f func(token string) Remote) Option {
	return func(e *Engine) { e.newRemote = f }
}

// New builds an engine. hist may be nil when metric history is not wanted
// (plain CLI invocations).
func New(logger *slog.Logger, svc service.Manager, hist *history.DB, opts ...Option) *Engine {
	e := &Engine{
		log:       logger,
		svc:       svc,
		hist:      hist,
		busy:      map[string]bool{},
		runDaemon: execDaemon,
		newRemote: func(token string) Remote {
			return cloudflare.New(token)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// acquire claims the single-writer slot for a tunnel key. The returned
// release must be called exactly once.
func (e *Engine) acquire(key string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[key] {
		return nil, fmt.Errorf("%w: %s", domain.ErrOperationBusy, key)
	}
	e.busy[key] = true
	return func() {
		e.mu.Lock()
		delete(e.busy, key)
		e.mu.Unlock()
	}, nil
}

// Busy reports whether an operation is in flight for the tunnel key. The
// poller uses this to skip tunnels mid-operation.
func (e *Engine) Busy(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy[key]
}
