// Package history persists per-tunnel metric samples in a local sqlite
// database. The poller appends one sample per scrape; the dashboard reads
// recent windows to draw request-rate sparklines.
package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	tunnel_id       TEXT    NOT NULL,
	taken_at        INTEGER NOT NULL,
	total_requests  INTEGER NOT NULL,
	request_errors  INTEGER NOT NULL,
	PRIMARY KEY (tunnel_id, taken_at)
);
CREATE INDEX IF NOT EXISTS idx_samples_taken_at ON samples (taken_at);
`

// retention bounds how far back samples are kept; Prune enforces it.
const retention = 24 * time.Hour

// Sample is one scraped metrics observation.
type Sample struct {
	TakenAt       time.Time
	TotalRequests uint64
	RequestErrors uint64
}

// DB is the sample store. Safe for concurrent use.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close releases the underlying database.
func (h *DB) Close() error {
	return h.db.Close()
}

// Append records one sample. A duplicate (tunnel, timestamp) pair is
// overwritten rather than erroring, so poll-loop hiccups never poison the
// store.
func (h *DB) Append(ctx context.Context, tunnelID string, s Sample) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO samples (tunnel_id, taken_at, total_requests, request_errors)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tunnel_id, taken_at) DO UPDATE SET
			total_requests = excluded.total_requests,
			request_errors = excluded.request_errors`,
		tunnelID, s.TakenAt.Unix(), s.TotalRequests, s.RequestErrors)
	return err
}

// Recent returns up to limit samples for a tunnel, oldest first.
func (h *DB) Recent(ctx context.Context, tunnelID string, limit int) ([]Sample, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT taken_at, total_requests, request_errors
		FROM samples WHERE tunnel_id = ?
		ORDER BY taken_at DESC LIMIT ?`, tunnelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var ts int64
		var s Sample
		if err := rows.Scan(&ts, &s.TotalRequests, &s.RequestErrors); err != nil {
			return nil, err
		}
		s.TakenAt = time.Unix(ts, 0)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Prune drops samples older than the retention window and samples belonging
// to deleted tunnels.
func (h *DB) Prune(ctx context.Context, liveTunnelIDs []string) error {
	cutoff := time.Now().Add(-retention).Unix()
	if _, err := h.db.ExecContext(ctx, `DELETE FROM samples WHERE taken_at < ?`, cutoff); err != nil {
		return err
	}
	if len(liveTunnelIDs) == 0 {
		_, err := h.db.ExecContext(ctx, `DELETE FROM samples`)
		return err
	}

	// Tunnel sets are small; an IN list is fine.
	query := `DELETE FROM samples WHERE tunnel_id NOT IN (?` +
		strings.Repeat(",?", len(liveTunnelIDs)-1) + `)`
	args := make([]any, len(liveTunnelIDs))
	for i, id := range liveTunnelIDs {
		args[i] = id
	}
	_, err := h.db.ExecContext(ctx, query, args...)
	return err
}

// Forget removes all samples for one tunnel.
func (h *DB) Forget(ctx context.Context, tunnelID string) error {
	_, err := h.db.ExecContext(ctx, `DELETE FROM samples WHERE tunnel_id = ?`, tunnelID)
	return err
}
