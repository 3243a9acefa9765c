package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/koltyakov/tunctl/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236")).Foreground(lipgloss.Color("255"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	labelStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(24)
	focusedLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Width(24)
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	if m.dialog != nil {
		return m.centered(m.renderDialog())
	}
	if m.showHelp {
		return m.centered(m.renderHelp())
	}

	var b strings.Builder
	b.WriteString(m.renderTitleBar())
	b.WriteString("\n")
	b.WriteString(paneStyle.Width(m.width - 2).Render(m.renderTable()))
	b.WriteString("\n")

	if sel := m.selected(); sel != nil {
		detail := paneStyle.Width(m.width/2 - 2).Render(m.renderDetail(sel))
		logs := paneStyle.Width(m.width - m.width/2 - 2).Render(m.renderLogTail(sel))
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, detail, logs))
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusLine())
	return b.String()
}

func (m Model) renderTitleBar() string {
	title := titleStyle.Render("tunctl")
	scope := "all accounts"
	if m.accountFilter != "" {
		scope = "account: " + m.accountFilter
	}
	return title + "  " + dimStyle.Render(scope+"  (? for help)")
}

func (m Model) renderTable() string {
	vis := m.visible()
	if len(vis) == 0 {
		return dimStyle.Render("No tunnels. Press a to add one, or R to run an ephemeral session.")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-18s %-12s %-34s %-24s %-12s %s",
		"NAME", "ACCOUNT", "HOSTNAME", "TARGET", "STATE", "REQS")))
	b.WriteString("\n")

	for i, st := range vis {
		t := st.Tunnel
		state := st.State.String()
		if t.DNSPending {
			state += " (dns pending)"
		}
		reqs := ""
		if st.Metrics != nil {
			reqs = fmt.Sprintf("%d", st.Metrics.TotalRequests)
		}

		row := fmt.Sprintf("%s %-18s %-12s %-34s %-24s %-12s %s",
			st.State.Symbol(), t.Name, t.Account, t.Hostname, t.Target, state, reqs)

		if verb, busy := m.inFlight[t.Key()]; busy {
			row = pendingStyle.Render(row + "  … " + verb)
		} else if i == m.cursor {
			row = selectedStyle.Render(row)
		}
		b.WriteString(row)
		if i < len(vis)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderDetail(sel *domain.TunnelStatus) string {
	t := sel.Tunnel
	var b strings.Builder

	b.WriteString(titleStyle.Render(t.Name))
	b.WriteString(dimStyle.Render("  " + t.PublicURL()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("health: "))
	b.WriteString(sel.Health.String())
	if sel.Reason != "" {
		b.WriteString(dimStyle.Render("  " + sel.Reason))
	}
	if t.Name == m.ephemeralName {
		b.WriteString(pendingStyle.Render("  [ephemeral session]"))
	}
	b.WriteString("\n\n")

	if sel.Metrics == nil {
		b.WriteString(dimStyle.Render("metrics unavailable (daemon not running)"))
		return b.String()
	}

	mt := sel.Metrics
	b.WriteString(fmt.Sprintf("requests %-10d errors %-8d active %-6d edge %d",
		mt.TotalRequests, mt.RequestErrors, mt.ConcurrentRequests, mt.EdgeConnections))
	if len(mt.EdgeLocations) > 0 {
		b.WriteString(dimStyle.Render("  via " + mt.LocationsString()))
	}
	b.WriteString("\n")

	if len(mt.ResponseCodes) > 0 {
		codes := make([]int, 0, len(mt.ResponseCodes))
		for c := range mt.ResponseCodes {
			codes = append(codes, c)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, c := range codes {
			parts = append(parts, fmt.Sprintf("%d:%d", c, mt.ResponseCodes[c]))
		}
		b.WriteString(dimStyle.Render("codes " + strings.Join(parts, "  ")))
		b.WriteString("\n")
	}

	if m.sparkFor == t.TunnelID && len(m.spark) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("req/s "))
		b.WriteString(renderSparkline(m.spark, sparklineWidth))
	}
	return b.String()
}

func (m Model) renderLogTail(sel *domain.TunnelStatus) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("daemon log"))
	b.WriteString("\n")
	if m.logFor != sel.Tunnel.Key() || len(m.logLines) == 0 {
		b.WriteString(dimStyle.Render("(no log output)"))
		return b.String()
	}
	for i, line := range m.logLines {
		if len(line) > m.width/2-6 && m.width > 12 {
			line = line[:m.width/2-6]
		}
		b.WriteString(dimStyle.Render(line))
		if i < len(m.logLines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderStatusLine() string {
	if m.notice != "" {
		return noticeStyle.Render(" " + m.notice)
	}
	hints := "a add  s start  S stop  r restart  d delete  e edit  c copy url  o open  R run  A account  q quit"
	return dimStyle.Render(" " + hints)
}

func (m Model) renderDialog() string {
	d := m.dialog
	var b strings.Builder
	b.WriteString(titleStyle.Render(d.title()))
	b.WriteString("\n\n")

	if d.mode == dialogConfirmDelete {
		t := d.tunnel
		b.WriteString("This removes the remote tunnel, its hostname\n")
		b.WriteString(t.Hostname + " and the local service.\n\n")
		b.WriteString(dimStyle.Render("y to confirm, any other key to cancel"))
		return dialogStyle.Render(b.String())
	}

	for i, in := range d.inputs {
		style := labelStyle
		if i == d.focus {
			style = focusedLabelStyle
		}
		b.WriteString(style.Render(d.labels[i]))
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("enter next/submit  tab move  esc cancel"))
	return dialogStyle.Render(b.String())
}

func (m Model) renderHelp() string {
	rows := [][2]string{
		{"↑/k ↓/j", "move selection"},
		{"a", "add tunnel"},
		{"e", "edit target or zone"},
		{"s / S / r", "start / stop / restart"},
		{"R", "run ephemeral session (again to stop)"},
		{"d", "delete tunnel"},
		{"m", "toggle auto-start"},
		{"c", "copy public URL"},
		{"o", "open in browser"},
		{"h", "check origin health"},
		{"A", "cycle account filter"},
		{"?", "help"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Keys"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(focusedLabelStyle.Width(12).Render(r[0]))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("press any key to close"))
	return dialogStyle.Render(b.String())
}

func (m Model) centered(content string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}
