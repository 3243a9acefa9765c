package tui

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/engine"
)

type dialogMode int

const (
	dialogAdd dialogMode = iota
	dialogEdit
	dialogRun
	dialogConfirmDelete
)

// Dialog is a modal overlay: a small form for add/edit/run, or a yes/no
// confirmation for delete.
type Dialog struct {
	mode    dialogMode
	tunnel  *domain.Tunnel // edit/delete target
	account string         // account filter at open time, "" = default

	inputs []textinput.Model
	labels []string
	focus  int
}

func newFormInput(placeholder, value string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.SetValue(value)
	in.CharLimit = 120
	in.Width = 36
	return in
}

func newAddDialog(account string) *Dialog {
	return &Dialog{
		mode:    dialogAdd,
		account: account,
		labels:  []string{"Name", "Target", "Zone (empty = default)"},
		inputs: []textinput.Model{
			newFormInput("myapp", ""),
			newFormInput("localhost:3000", ""),
			newFormInput("example.com", ""),
		},
	}
}

func newRunDialog(account string) *Dialog {
	d := newAddDialog(account)
	d.mode = dialogRun
	return d
}

func newEditDialog(t *domain.Tunnel) *Dialog {
	return &Dialog{
		mode:   dialogEdit,
		tunnel: t,
		labels: []string{"Target", "Zone"},
		inputs: []textinput.Model{
			newFormInput("localhost:3000", t.Target),
			newFormInput("example.com", t.ZoneName),
		},
	}
}

func newConfirmDialog(t *domain.Tunnel) *Dialog {
	return &Dialog{mode: dialogConfirmDelete, tunnel: t}
}

// Focus activates the first input.
func (d *Dialog) Focus() tea.Cmd {
	if len(d.inputs) == 0 {
		return nil
	}
	return d.inputs[0].Focus()
}

// title returns the dialog heading.
func (d *Dialog) title() string {
	switch d.mode {
	case dialogAdd:
		return "Add tunnel"
	case dialogRun:
		return "Run ephemeral tunnel (imported on exit)"
	case dialogEdit:
		return "Edit " + d.tunnel.Name
	default:
		return "Delete " + d.tunnel.Name + "? (y/N)"
	}
}

// updateDialog routes key input to the active dialog. Submission closes
// the dialog and returns the engine command.
func (m Model) updateDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.dialog

	if d.mode == dialogConfirmDelete {
		switch msg.String() {
		case "y", "Y":
			tun := *d.tunnel
			m.dialog = nil
			m.inFlight[tun.Key()] = "delete"
			return m, func() tea.Msg {
				rep, err := m.eng.Delete(m.ctx, tun.Name, tun.Account)
				return opDoneMsg{verb: "delete", tunnel: tun.Key(), report: rep, err: err}
			}
		default:
			m.dialog = nil
			return m, nil
		}
	}

	switch msg.String() {
	case "esc":
		m.dialog = nil
		return m, nil
	case "tab", "down":
		return m, d.moveFocus(1)
	case "shift+tab", "up":
		return m, d.moveFocus(-1)
	case "enter":
		if d.focus < len(d.inputs)-1 {
			return m, d.moveFocus(1)
		}
		return m.submitDialog()
	}

	var cmd tea.Cmd
	d.inputs[d.focus], cmd = d.inputs[d.focus].Update(msg)
	return m, cmd
}

func (d *Dialog) moveFocus(delta int) tea.Cmd {
	d.inputs[d.focus].Blur()
	d.focus = (d.focus + delta + len(d.inputs)) % len(d.inputs)
	return d.inputs[d.focus].Focus()
}

// submitDialog validates the form and launches the engine operation.
func (m Model) submitDialog() (tea.Model, tea.Cmd) {
	d := m.dialog
	m.dialog = nil

	switch d.mode {
	case dialogAdd:
		req := engine.AddRequest{
			Name:    d.inputs[0].Value(),
			Account: d.account,
			Target:  d.inputs[1].Value(),
			Zone:    d.inputs[2].Value(),
		}
		if req.Name == "" || req.Target == "" {
			return m, m.setNotice("name and target are required")
		}
		key := m.accountKey(d.account, req.Name)
		m.inFlight[key] = "add"
		return m, func() tea.Msg {
			rep, err := m.eng.Add(m.ctx, req)
			return opDoneMsg{verb: "add", tunnel: key, report: rep, err: err}
		}

	case dialogEdit:
		tun := *d.tunnel
		req := engine.EditRequest{Target: d.inputs[0].Value(), Zone: d.inputs[1].Value()}
		if req.Zone == tun.ZoneName {
			req.Zone = ""
		}
		m.inFlight[tun.Key()] = "edit"
		return m, func() tea.Msg {
			rep, err := m.eng.Edit(m.ctx, tun.Name, tun.Account, req)
			return opDoneMsg{verb: "edit", tunnel: tun.Key(), report: rep, err: err}
		}

	case dialogRun:
		req := engine.RunRequest{
			Name:    d.inputs[0].Value(),
			Account: d.account,
			Target:  d.inputs[1].Value(),
			Zone:    d.inputs[2].Value(),
			Keep:    true,
		}
		if req.Name == "" || req.Target == "" {
			return m, m.setNotice("name and target are required")
		}
		runCtx, cancel := context.WithCancel(m.ctx)
		m.ephemeralName = req.Name
		m.ephemeralStop = cancel
		return m, tea.Batch(
			m.setNotice("ephemeral "+req.Name+" running; press R to stop"),
			func() tea.Msg {
				_, err := m.eng.RunEphemeral(runCtx, req, io.Discard, io.Discard)
				return ephemeralDoneMsg{name: req.Name, err: err}
			},
		)
	}
	return m, nil
}

// accountKey mirrors domain.Tunnel.Key for a not-yet-persisted tunnel.
func (m *Model) accountKey(account, name string) string {
	if account == "" {
		account = m.defaultAccount
	}
	return account + "/" + name
}
