package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/storefront-checkout/internal/reconciler"
)

// StatusMsg carries a status change into the view.
type StatusMsg reconciler.Update

type updatesClosedMsg struct{}

func waitForUpdate(updates <-chan reconciler.Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return StatusMsg(update)
	}
}
