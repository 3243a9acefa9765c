// Package tui is the tunctl dashboard: a bubbletea program showing live
// tunnel status with full lifecycle control. Engine operations run as
// commands off the update loop; poller snapshots and operation results
// come back as messages, so the model itself is never blocked on I/O.
package tui

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/engine"
	"github.com/koltyakov/tunctl/internal/history"
	"github.com/koltyakov/tunctl/internal/probe"
	"github.com/koltyakov/tunctl/internal/store"
)

const logTailLines = 8

// Model is the top-level bubbletea model for the dashboard.
type Model struct {
	ctx    context.Context
	eng    *engine.Engine
	prober *probe.Prober
	hist   *history.DB
	keys   KeyMap

	width  int
	height int
	ready  bool

	// statuses is the latest full poller snapshot; accounts drives the
	// A-key filter cycle ("" shows everything).
	statuses       []domain.TunnelStatus
	accounts       []string
	defaultAccount string
	accountFilter  string

	cursor      int
	selectedKey string // stable selection across snapshot reordering

	// inFlight maps tunnel key to the verb currently running, mirrored in
	// the table as a pending marker and used for local busy notices.
	inFlight map[string]string

	notice    string
	noticeSeq int

	spark    []float64
	sparkFor string
	logLines []string
	logFor   string

	dialog   *Dialog
	showHelp bool

	// One ephemeral foreground session at a time.
	ephemeralName string
	ephemeralStop context.CancelFunc

	snapshots <-chan []domain.TunnelStatus
}

// NewModel wires the dashboard model. snapshots is the poller's channel.
func NewModel(ctx context.Context, eng *engine.Engine, prober *probe.Prober, hist *history.DB, snapshots <-chan []domain.TunnelStatus) Model {
	m := Model{
		ctx:       ctx,
		eng:       eng,
		prober:    prober,
		hist:      hist,
		keys:      DefaultKeyMap,
		inFlight:  map[string]string{},
		snapshots: snapshots,
	}
	if cfg, err := store.LoadConfig(); err == nil {
		m.defaultAccount = cfg.DefaultAccount
		for _, a := range cfg.Accounts {
			m.accounts = append(m.accounts, a.Name)
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return listenSnapshots(m.snapshots)
}

func listenSnapshots(ch <-chan []domain.TunnelStatus) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{statuses: snap}
	}
}

// visible returns the snapshot filtered by the account cycle.
func (m *Model) visible() []domain.TunnelStatus {
	if m.accountFilter == "" {
		return m.statuses
	}
	var out []domain.TunnelStatus
	for _, st := range m.statuses {
		if st.Tunnel.Account == m.accountFilter {
			out = append(out, st)
		}
	}
	return out
}

// selected returns the tunnel under the cursor, or nil when the table is
// empty.
func (m *Model) selected() *domain.TunnelStatus {
	vis := m.visible()
	if len(vis) == 0 {
		return nil
	}
	if m.cursor >= len(vis) {
		m.cursor = len(vis) - 1
	}
	return &vis[m.cursor]
}

// reanchor keeps the cursor on the same tunnel across snapshot updates.
func (m *Model) reanchor() {
	vis := m.visible()
	for i, st := range vis {
		if st.Tunnel.Key() == m.selectedKey {
			m.cursor = i
			return
		}
	}
	if m.cursor >= len(vis) {
		m.cursor = 0
	}
	if len(vis) > 0 {
		m.selectedKey = vis[m.cursor].Tunnel.Key()
	}
}

func (m *Model) setNotice(text string) tea.Cmd {
	m.notice = text
	m.noticeSeq++
	return fadeNotice(m.noticeSeq)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		return m, nil

	case snapshotMsg:
		m.statuses = msg.statuses
		m.reanchor()
		cmds := []tea.Cmd{listenSnapshots(m.snapshots)}
		if sel := m.selected(); sel != nil {
			cmds = append(cmds, m.loadSparkline(sel.Tunnel), m.loadLogTail(sel.Tunnel))
		}
		return m, tea.Batch(cmds...)

	case opDoneMsg:
		delete(m.inFlight, msg.tunnel)
		if msg.err != nil {
			step := ""
			if msg.report != nil && msg.report.FailedStep() != "" {
				step = " at step " + msg.report.FailedStep()
			}
			return m, m.setNotice(msg.verb + " failed" + step + ": " + msg.err.Error())
		}
		return m, m.setNotice(msg.verb + " done")

	case healthMsg:
		return m, m.setNotice("health of " + msg.tunnel + ": " + msg.health.String())

	case sparklineMsg:
		m.spark = msg.deltas
		m.sparkFor = msg.tunnelID
		return m, nil

	case logTailMsg:
		m.logLines = msg.lines
		m.logFor = msg.tunnel
		return m, nil

	case ephemeralDoneMsg:
		m.ephemeralName = ""
		m.ephemeralStop = nil
		if msg.err != nil {
			return m, m.setNotice("ephemeral " + msg.name + " failed: " + msg.err.Error())
		}
		return m, m.setNotice("ephemeral " + msg.name + " imported; start it with s")

	case noticeFadeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case clipboardFadeMsg:
		if m.notice == "Copied" {
			m.notice = ""
		}
		return m, nil

	case tea.KeyMsg:
		if m.dialog != nil {
			return m.updateDialog(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

// updateKeys handles table-level key input.
func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.ephemeralStop != nil {
			m.ephemeralStop()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m.onSelectionMoved()

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
		return m.onSelectionMoved()

	case key.Matches(msg, m.keys.Account):
		m.cycleAccount()
		m.cursor = 0
		return m.onSelectionMoved()

	case key.Matches(msg, m.keys.Add):
		m.dialog = newAddDialog(m.accountFilter)
		return m, m.dialog.Focus()

	case key.Matches(msg, m.keys.Run):
		if m.ephemeralStop != nil {
			m.ephemeralStop()
			return m, m.setNotice("stopping ephemeral " + m.ephemeralName)
		}
		m.dialog = newRunDialog(m.accountFilter)
		return m, m.dialog.Focus()

	case key.Matches(msg, m.keys.Edit):
		if sel := m.selected(); sel != nil {
			m.dialog = newEditDialog(&sel.Tunnel)
			return m, m.dialog.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if sel := m.selected(); sel != nil {
			m.dialog = newConfirmDialog(&sel.Tunnel)
		}
		return m, nil

	case key.Matches(msg, m.keys.Start):
		return m.dispatch("start")
	case key.Matches(msg, m.keys.Stop):
		return m.dispatch("stop")
	case key.Matches(msg, m.keys.Restart):
		return m.dispatch("restart")
	case key.Matches(msg, m.keys.AutoStart):
		return m.dispatch("auto-start")

	case key.Matches(msg, m.keys.CopyURL):
		if sel := m.selected(); sel != nil {
			m.notice = "Copied"
			return m, copyToClipboard(sel.Tunnel.PublicURL())
		}
		return m, nil

	case key.Matches(msg, m.keys.OpenBrowser):
		if sel := m.selected(); sel != nil {
			return m, openBrowser(sel.Tunnel.PublicURL())
		}
		return m, nil

	case key.Matches(msg, m.keys.HealthCheck):
		if sel := m.selected(); sel != nil {
			tun := sel.Tunnel
			return m, func() tea.Msg {
				return healthMsg{tunnel: tun.Name, health: m.prober.Health(m.ctx, &tun)}
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) onSelectionMoved() (tea.Model, tea.Cmd) {
	sel := m.selected()
	if sel == nil {
		m.selectedKey = ""
		return m, nil
	}
	m.selectedKey = sel.Tunnel.Key()
	return m, tea.Batch(m.loadSparkline(sel.Tunnel), m.loadLogTail(sel.Tunnel))
}

func (m *Model) cycleAccount() {
	if len(m.accounts) < 2 {
		return
	}
	if m.accountFilter == "" {
		m.accountFilter = m.accounts[0]
		return
	}
	for i, name := range m.accounts {
		if name == m.accountFilter {
			if i == len(m.accounts)-1 {
				m.accountFilter = ""
			} else {
				m.accountFilter = m.accounts[i+1]
			}
			return
		}
	}
	m.accountFilter = ""
}

// dispatch launches a lifecycle operation for the selected tunnel as a
// command, guarding against a second request while one is in flight.
func (m Model) dispatch(verb string) (tea.Model, tea.Cmd) {
	sel := m.selected()
	if sel == nil {
		return m, nil
	}
	tun := sel.Tunnel
	if v, busy := m.inFlight[tun.Key()]; busy {
		return m, m.setNotice(tun.Name + " is busy (" + v + ")")
	}
	m.inFlight[tun.Key()] = verb

	return m, func() tea.Msg {
		var rep *engine.Report
		var err error
		switch verb {
		case "start":
			rep, err = m.eng.Start(m.ctx, tun.Name, tun.Account)
		case "stop":
			rep, err = m.eng.Stop(m.ctx, tun.Name, tun.Account)
		case "restart":
			rep, err = m.eng.Restart(m.ctx, tun.Name, tun.Account)
		case "auto-start":
			err = m.eng.SetAutoStart(m.ctx, tun.Name, tun.Account, !tun.AutoStart)
		}
		return opDoneMsg{verb: verb, tunnel: tun.Key(), report: rep, err: err}
	}
}

// loadSparkline fetches the recent request-rate series for the tunnel.
func (m Model) loadSparkline(tun domain.Tunnel) tea.Cmd {
	if m.hist == nil || tun.TunnelID == "" {
		return nil
	}
	id := tun.TunnelID
	return func() tea.Msg {
		samples, err := m.hist.Recent(m.ctx, id, sparklineWidth+1)
		if err != nil {
			return nil
		}
		return sparklineMsg{tunnelID: id, deltas: requestDeltas(samples)}
	}
}

// loadLogTail reads the trailing daemon log lines for the tunnel.
func (m Model) loadLogTail(tun domain.Tunnel) tea.Cmd {
	t := tun
	return func() tea.Msg {
		raw, err := os.ReadFile(store.LogPath(&t))
		if err != nil {
			return logTailMsg{tunnel: t.Key()}
		}
		lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
		if len(lines) > logTailLines {
			lines = lines[len(lines)-logTailLines:]
		}
		return logTailMsg{tunnel: t.Key(), lines: lines}
	}
}

// requestDeltas converts cumulative request counters into per-interval
// rates for the sparkline.
func requestDeltas(samples []history.Sample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	deltas := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d := float64(samples[i].TotalRequests) - float64(samples[i-1].TotalRequests)
		if d < 0 {
			// Counter reset (daemon restart).
			d = 0
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func openBrowser(url string) tea.Cmd {
	return func() tea.Msg {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		_ = cmd.Start()
		return nil
	}
}
