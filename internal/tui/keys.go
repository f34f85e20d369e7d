package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	enter   key.Binding
	esc     key.Binding
	tab     key.Binding
	backtab key.Binding
	mode    key.Binding
	quit    key.Binding
	refresh key.Binding
	up      key.Binding
	down    key.Binding
}

var keys = keyMap{
	enter:   key.NewBinding(key.WithKeys("enter")),
	esc:     key.NewBinding(key.WithKeys("esc")),
	tab:     key.NewBinding(key.WithKeys("tab")),
	backtab: key.NewBinding(key.WithKeys("shift+tab")),
	mode:    key.NewBinding(key.WithKeys("ctrl+r")),
	quit:    key.NewBinding(key.WithKeys("ctrl+c", "ctrl+q")),
	refresh: key.NewBinding(key.WithKeys("ctrl+l")),
	up:      key.NewBinding(key.WithKeys("pgup")),
	down:    key.NewBinding(key.WithKeys("pgdown")),
}
