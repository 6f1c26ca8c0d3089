package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Lower   key.Binding
	Raise   key.Binding
	Zero    key.Binding
	Reset   key.Binding
	Analyze key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev field")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next field")),
		Lower:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "reduce")),
		Raise:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "restore")),
		Zero:    key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "zero field")),
		Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset all")),
		Analyze: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "analyze")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Lower, k.Raise, k.Analyze, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Lower, k.Raise},
		{k.Zero, k.Reset, k.Analyze},
		{k.Help, k.Quit},
	}
}
