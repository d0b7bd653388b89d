package app

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	ToggleFocus key.Binding
	Devices     key.Binding
	Help        key.Binding
	Quit        key.Binding
}

var GlobalKeys = KeyMap{
	ToggleFocus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "toggle focus"),
	),
	Devices: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "serial device"),
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

// BenchKeyMap holds the run control keys used on the tray.
type BenchKeyMap struct {
	Start  key.Binding
	Pause  key.Binding
	Resume key.Binding
	Cancel key.Binding
}

var BenchKeys = BenchKeyMap{
	Start:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
	Pause:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Resume: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
	Cancel: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
}
