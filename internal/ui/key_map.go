package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	enter    key.Binding
	back     key.Binding
	preview  key.Binding
	refresh  key.Binding
	sync     key.Binding
	discard  key.Binding
	use      key.Binding
	generate key.Binding
	publish  key.Binding
	feed     key.Binding
	like     key.Binding
	next     key.Binding
	prev     key.Binding
	submit   key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		preview:  key.NewBinding(key.WithKeys("p", "enter"), key.WithHelp("p", "preview")),
		refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		sync:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
		discard:  key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "discard")),
		use:      key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "use")),
		generate: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "generate")),
		publish:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "create")),
		feed:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "feed")),
		like:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "like")),
		next:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
		prev:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous field")),
		submit:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "publish")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.preview, k.refresh, k.sync},
		{k.discard, k.use, k.generate, k.publish, k.feed},
		{k.back, k.quit},
	}
}
