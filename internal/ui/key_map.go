package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the bindings handled by the model. List navigation and filtering belong to [list.Model].
type keyMap struct {
	enter   key.Binding
	back    key.Binding
	yes     key.Binding
	no      key.Binding
	restart key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "sync")),
		no:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "cancel")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "pick another")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// helpFor lists the bindings shown under a view. picker is false for a run started from the command line.
func (k keyMap) helpFor(view ViewState, picker bool) []key.Binding {
	switch view {
	case CollectionListView:
		return []key.Binding{k.enter, k.quit}
	case ConfirmView:
		return []key.Binding{k.yes, k.no, k.quit}
	case ResultView:
		if picker {
			return []key.Binding{k.restart, k.quit}
		}
		return []key.Binding{k.quit}
	default:
		return []key.Binding{k.quit}
	}
}
