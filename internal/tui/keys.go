package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the dashboard.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	Add       key.Binding
	Edit      key.Binding
	Start     key.Binding
	Stop      key.Binding
	Restart   key.Binding
	Run       key.Binding // Ephemeral foreground session, imported on exit.
	Delete    key.Binding
	AutoStart key.Binding

	CopyURL     key.Binding
	OpenBrowser key.Binding
	HealthCheck key.Binding
	Account     key.Binding // Cycle the account filter.

	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Add: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "add tunnel"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit"),
	),
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	Stop: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "stop"),
	),
	Restart: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "restart"),
	),
	Run: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "run ephemeral"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "delete"),
	),
	AutoStart: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "toggle auto-start"),
	),
	CopyURL: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "copy URL"),
	),
	OpenBrowser: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "open in browser"),
	),
	HealthCheck: key.NewBinding(
		key.WithKeys("h"),
		key.WithHelp("h", "health check now"),
	),
	Account: key.NewBinding(
		key.WithKeys("A"),
		key.WithHelp("A", "cycle account"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
