package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the viewer's bindings. Content scrolling keys not listed
// here are handled by the viewport.
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Top       key.Binding
	Bottom    key.Binding
	NextHead  key.Binding
	PrevHead  key.Binding
	Select    key.Binding
	Focus     key.Binding
	ToggleTOC key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k", "ctrl+p"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j", "ctrl+n"), key.WithHelp("↓/j", "down")),
		Top:       key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
		Bottom:    key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
		NextHead:  key.NewBinding(key.WithKeys("]", "n"), key.WithHelp("]", "next heading")),
		PrevHead:  key.NewBinding(key.WithKeys("[", "p"), key.WithHelp("[", "prev heading")),
		Select:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "jump")),
		Focus:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "toc/content")),
		ToggleTOC: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle toc")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Focus, k.Select, k.NextHead, k.PrevHead, k.ToggleTOC, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.NextHead, k.PrevHead, k.Select, k.Focus},
		{k.ToggleTOC, k.Quit},
	}
}
