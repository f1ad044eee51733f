package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap lists the batch view's bindings.
type KeyMap struct {
	Retry  key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns r to retry, c to cancel and q to quit.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "run again"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cancel batch"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Retry, k.Cancel, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// setRunning enables cancel while a batch runs and retry once it is over.
func (k *KeyMap) setRunning(running bool) {
	k.Cancel.SetEnabled(running)
	k.Retry.SetEnabled(!running)
}
