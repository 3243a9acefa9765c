package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/engine"
)

// snapshotMsg carries one immutable poller snapshot into the update loop.
type snapshotMsg struct {
	statuses []domain.TunnelStatus
}

// opDoneMsg is sent when an asynchronous engine operation completes.
type opDoneMsg struct {
	verb   string
	tunnel string // tunnel key, "" for account-level operations
	report *engine.Report
	err    error
}

// healthMsg is the result of an on-demand health check.
type healthMsg struct {
	tunnel string
	health domain.Health
}

// sparklineMsg delivers the recent request-rate series for the selected
// tunnel.
type sparklineMsg struct {
	tunnelID string
	deltas   []float64
}

// logTailMsg delivers the trailing daemon log lines of the selected tunnel.
type logTailMsg struct {
	tunnel string
	lines  []string
}

// noticeFadeMsg clears the status-line notice after a delay.
type noticeFadeMsg struct{ seq int }

// ephemeralDoneMsg is sent when a foreground ephemeral session exits.
type ephemeralDoneMsg struct {
	name string
	err  error
}

const noticeFadeDelay = 4 * time.Second

func fadeNotice(seq int) tea.Cmd {
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{seq: seq}
	})
}
