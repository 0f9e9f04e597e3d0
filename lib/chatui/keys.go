// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the chat surface.
type KeyMap struct {
	Submit key.Binding // Send the typed message.
	Cancel key.Binding // Tear down the in-flight session.

	// Transcript scrolling (the input line keeps keyboard focus; the
	// transcript scrolls with dedicated keys).
	ScrollUp   key.Binding
	ScrollDown key.Binding

	ToggleThinking key.Binding // Toggle extended reasoning per message.
	TogglePanel    key.Binding // Show or hide the visualization panel.

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("ctrl+u", "pgup"),
		key.WithHelp("C-u", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("ctrl+d", "pgdown"),
		key.WithHelp("C-d", "scroll down"),
	),
	ToggleThinking: key.NewBinding(
		key.WithKeys("ctrl+t"),
		key.WithHelp("C-t", "thinking"),
	),
	TogglePanel: key.NewBinding(
		key.WithKeys("ctrl+v"),
		key.WithHelp("C-v", "panel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}
