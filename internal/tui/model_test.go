package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/history"
)

func testModel() Model {
	return Model{
		keys:           DefaultKeyMap,
		inFlight:       map[string]string{},
		accounts:       []string{"work", "home"},
		defaultAccount: "work",
	}
}

func testSnapshot() []domain.TunnelStatus {
	return []domain.TunnelStatus{
		{
			Tunnel: domain.Tunnel{
				Name: "api", Account: "work",
				Hostname: "api.example.com", Target: "http://localhost:3000",
				TunnelID: "tid-api", Enabled: true,
			},
			State:   domain.StateRunning,
			Metrics: &domain.MetricsSnapshot{TotalRequests: 42},
		},
		{
			Tunnel: domain.Tunnel{
				Name: "blog", Account: "home",
				Hostname: "blog.example.org", Target: "http://localhost:8080",
				TunnelID: "tid-blog",
			},
			State: domain.StateStopped,
		},
	}
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestSnapshotReanchorsSelection(t *testing.T) {
	m := testModel()

	updated, _ := m.Update(snapshotMsg{statuses: testSnapshot()})
	m = updated.(Model)

	// Select the second tunnel.
	updated, _ = m.Update(keyRune('j'))
	m = updated.(Model)
	if m.selectedKey != "home/blog" {
		t.Fatalf("selectedKey = %q, want home/blog", m.selectedKey)
	}

	// A snapshot that reorders the list keeps the same tunnel selected.
	snap := testSnapshot()
	snap[0], snap[1] = snap[1], snap[0]
	updated, _ = m.Update(snapshotMsg{statuses: snap})
	m = updated.(Model)

	sel := m.selected()
	if sel == nil || sel.Tunnel.Key() != "home/blog" {
		t.Fatalf("selection lost across reorder: %+v", sel)
	}
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0 after reorder", m.cursor)
	}
}

func TestNavigationClampsToBounds(t *testing.T) {
	m := testModel()
	updated, _ := m.Update(snapshotMsg{statuses: testSnapshot()})
	m = updated.(Model)

	updated, _ = m.Update(keyRune('k'))
	m = updated.(Model)
	if m.cursor != 0 {
		t.Errorf("cursor after k at top = %d, want 0", m.cursor)
	}

	for i := 0; i < 5; i++ {
		updated, _ = m.Update(keyRune('j'))
		m = updated.(Model)
	}
	if m.cursor != 1 {
		t.Errorf("cursor after repeated j = %d, want last row 1", m.cursor)
	}
}

func TestAccountFilterCycle(t *testing.T) {
	m := testModel()
	updated, _ := m.Update(snapshotMsg{statuses: testSnapshot()})
	m = updated.(Model)

	updated, _ = m.Update(keyRune('A'))
	m = updated.(Model)
	if m.accountFilter != "work" {
		t.Fatalf("first cycle = %q, want work", m.accountFilter)
	}
	if got := len(m.visible()); got != 1 {
		t.Fatalf("visible with work filter = %d, want 1", got)
	}

	updated, _ = m.Update(keyRune('A'))
	m = updated.(Model)
	if m.accountFilter != "home" {
		t.Fatalf("second cycle = %q, want home", m.accountFilter)
	}

	updated, _ = m.Update(keyRune('A'))
	m = updated.(Model)
	if m.accountFilter != "" {
		t.Fatalf("third cycle = %q, want all accounts", m.accountFilter)
	}
}

func TestBusyTunnelGetsNoticeNotSecondOp(t *testing.T) {
	m := testModel()
	updated, _ := m.Update(snapshotMsg{statuses: testSnapshot()})
	m = updated.(Model)
	m.inFlight["work/api"] = "restart"

	updated, cmd := m.Update(keyRune('s'))
	m = updated.(Model)

	if !strings.Contains(m.notice, "busy") {
		t.Errorf("notice = %q, want busy warning", m.notice)
	}
	if m.inFlight["work/api"] != "restart" {
		t.Errorf("in-flight verb overwritten: %q", m.inFlight["work/api"])
	}
	if cmd == nil {
		t.Error("expected a fade command for the notice")
	}
}

func TestOpDoneReportsFailedStep(t *testing.T) {
	m := testModel()
	m.inFlight["work/api"] = "start"

	updated, _ := m.Update(opDoneMsg{
		verb:   "start",
		tunnel: "work/api",
		err:    domain.ErrServiceFailure,
	})
	m = updated.(Model)

	if _, still := m.inFlight["work/api"]; still {
		t.Error("in-flight entry not cleared after completion")
	}
	if !strings.Contains(m.notice, "start failed") {
		t.Errorf("notice = %q, want start failure", m.notice)
	}
}

func TestNoticeFadeIgnoresStaleSeq(t *testing.T) {
	m := testModel()
	m.setNotice("first")
	m.setNotice("second")

	updated, _ := m.Update(noticeFadeMsg{seq: m.noticeSeq - 1})
	m = updated.(Model)
	if m.notice != "second" {
		t.Errorf("stale fade cleared notice: %q", m.notice)
	}

	updated, _ = m.Update(noticeFadeMsg{seq: m.noticeSeq})
	m = updated.(Model)
	if m.notice != "" {
		t.Errorf("current fade did not clear notice: %q", m.notice)
	}
}

func TestViewShowsTunnelsAndPendingVerb(t *testing.T) {
	m := testModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)
	updated, _ = m.Update(snapshotMsg{statuses: testSnapshot()})
	m = updated.(Model)
	m.inFlight["home/blog"] = "start"

	out := m.View()
	for _, want := range []string{"api", "api.example.com", "blog", "… start"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewEmptyState(t *testing.T) {
	m := testModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = updated.(Model)

	if out := m.View(); !strings.Contains(out, "No tunnels") {
		t.Errorf("empty view missing hint:\n%s", out)
	}
}

func TestDialogTabCyclesAndEscCloses(t *testing.T) {
	m := testModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = updated.(Model)

	updated, _ = m.Update(keyRune('a'))
	m = updated.(Model)
	if m.dialog == nil || m.dialog.mode != dialogAdd {
		t.Fatal("a did not open the add dialog")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)
	if m.dialog.focus != 1 {
		t.Errorf("focus after tab = %d, want 1", m.dialog.focus)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	if m.dialog != nil {
		t.Error("esc did not close the dialog")
	}
}

func TestRequestDeltas(t *testing.T) {
	base := time.Now()
	samples := []history.Sample{
		{TakenAt: base, TotalRequests: 100},
		{TakenAt: base.Add(30 * time.Second), TotalRequests: 130},
		{TakenAt: base.Add(60 * time.Second), TotalRequests: 130},
		// Counter reset after a daemon restart.
		{TakenAt: base.Add(90 * time.Second), TotalRequests: 5},
	}

	got := requestDeltas(samples)
	want := []float64{30, 0, 0}
	if len(got) != len(want) {
		t.Fatalf("deltas = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delta[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
