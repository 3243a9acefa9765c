package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestAppendAndRecent(t *testing.T) {
	h := openTest(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		err := h.Append(ctx, "tid-1", Sample{
			TakenAt:       base.Add(time.Duration(i) * 3 * time.Second),
			TotalRequests: uint64(100 * (i + 1)),
			RequestErrors: uint64(i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	// Another tunnel's samples must not bleed in.
	if err := h.Append(ctx, "tid-2", Sample{TakenAt: base, TotalRequests: 9999}); err != nil {
		t.Fatal(err)
	}

	samples, err := h.Recent(ctx, "tid-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if !samples[0].TakenAt.Before(samples[2].TakenAt) {
		t.Fatal("samples must be chronological")
	}
	if samples[2].TotalRequests != 500 {
		t.Fatalf("newest sample: %+v", samples[2])
	}
}

func TestAppendDuplicateTimestampOverwrites(t *testing.T) {
	h := openTest(t)
	ctx := context.Background()
	ts := time.Now().Truncate(time.Second)

	if err := h.Append(ctx, "tid-1", Sample{TakenAt: ts, TotalRequests: 10}); err != nil {
		t.Fatal(err)
	}
	if err := h.Append(ctx, "tid-1", Sample{TakenAt: ts, TotalRequests: 20}); err != nil {
		t.Fatal(err)
	}

	samples, err := h.Recent(ctx, "tid-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || samples[0].TotalRequests != 20 {
		t.Fatalf("duplicate timestamp must overwrite: %+v", samples)
	}
}

func TestPrune(t *testing.T) {
	h := openTest(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	_ = h.Append(ctx, "live", Sample{TakenAt: now.Add(-48 * time.Hour), TotalRequests: 1})
	_ = h.Append(ctx, "live", Sample{TakenAt: now, TotalRequests: 2})
	_ = h.Append(ctx, "dead", Sample{TakenAt: now, TotalRequests: 3})

	if err := h.Prune(ctx, []string{"live"}); err != nil {
		t.Fatal(err)
	}

	live, err := h.Recent(ctx, "live", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 1 || live[0].TotalRequests != 2 {
		t.Fatalf("retention prune: %+v", live)
	}
	dead, err := h.Recent(ctx, "dead", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 0 {
		t.Fatalf("samples of deleted tunnels must be pruned: %+v", dead)
	}
}

func TestForget(t *testing.T) {
	h := openTest(t)
	ctx := context.Background()

	_ = h.Append(ctx, "tid-1", Sample{TakenAt: time.Now(), TotalRequests: 1})
	if err := h.Forget(ctx, "tid-1"); err != nil {
		t.Fatal(err)
	}
	samples, err := h.Recent(ctx, "tid-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 0 {
		t.Fatalf("forget must drop all samples: %+v", samples)
	}
}
