package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Talk   key.Binding
	Cancel key.Binding
	Resume key.Binding
	Up     key.Binding
	Down   key.Binding
	Tap    key.Binding
	Stop   key.Binding
	Copy   key.Binding
	New    key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Talk:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "talk / send")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Resume: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
		Tap:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "translate / replay")),
		Stop:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop bubble")),
		Copy:   key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy")),
		New:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new conversation")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Talk, k.Cancel, k.Tap, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Talk, k.Cancel, k.Resume},
		{k.Up, k.Down, k.Tap, k.Stop},
		{k.Copy, k.New, k.Help, k.Quit},
	}
}
