package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the progress view's key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// keyBarText renders the key hint line shown under the step list.
func keyBarText() string {
	return keyStyle.Render("q") + keyDescStyle.Render(":quit")
}
