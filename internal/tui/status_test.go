package tui

import (
	"context"
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/reconciler"
	"github.com/Veraticus/storefront-checkout/internal/tui/themes"
)

func newTestModel(updates chan reconciler.Update) StatusModel {
	return NewStatusModel(StatusConfig{
		Updates:       updates,
		Theme:         themes.Plain,
		TransactionID: "tx-1",
		Details:       []string{"Coffee grinder x2"},
	})
}

func TestStatusModel_StartsPending(t *testing.T) {
	m := newTestModel(make(chan reconciler.Update))

	assert.Equal(t, model.StatusPending, m.Status())
	assert.NotNil(t, m.Init())

	view := m.View()
	assert.Contains(t, view, "tx-1")
	assert.Contains(t, view, "Coffee grinder x2")
	assert.Contains(t, view, "Waiting for the payment processor")
}

func TestStatusModel_TerminalUpdate(t *testing.T) {
	m := newTestModel(make(chan reconciler.Update))

	updated, cmd := m.Update(StatusMsg{Status: model.StatusApproved, TransactionID: "tx-1"})
	sm := updated.(StatusModel)

	assert.Equal(t, model.StatusApproved, sm.Status())
	assert.Nil(t, cmd, "no more listening after a terminal status")
	assert.Contains(t, sm.View(), "Payment approved")
	assert.Contains(t, sm.View(), "enter done")
}

func TestStatusModel_IgnoresOtherTransactions(t *testing.T) {
	m := newTestModel(make(chan reconciler.Update))

	updated, cmd := m.Update(StatusMsg{Status: model.StatusDeclined, TransactionID: "tx-9"})
	sm := updated.(StatusModel)

	assert.Equal(t, model.StatusPending, sm.Status())
	assert.NotNil(t, cmd)
}

func TestStatusModel_WaitForUpdate(t *testing.T) {
	updates := make(chan reconciler.Update, 1)
	updates <- reconciler.Update{Status: model.StatusDeclined, TransactionID: "tx-1"}

	msg := waitForUpdate(updates)()
	assert.Equal(t, StatusMsg{Status: model.StatusDeclined, TransactionID: "tx-1"}, msg)

	close(updates)
	assert.Equal(t, updatesClosedMsg{}, waitForUpdate(updates)())
}

func TestStatusModel_Keys(t *testing.T) {
	tests := []struct {
		name    string
		status  model.Status
		key     tea.KeyMsg
		outcome Outcome
		quits   bool
	}{
		{
			name:    "enter while pending does nothing",
			status:  model.StatusPending,
			key:     tea.KeyMsg{Type: tea.KeyEnter},
			outcome: OutcomeDetached,
			quits:   false,
		},
		{
			name:    "enter after resolution acknowledges",
			status:  model.StatusDeclined,
			key:     tea.KeyMsg{Type: tea.KeyEnter},
			outcome: OutcomeAcknowledged,
			quits:   true,
		},
		{
			name:    "q detaches while pending",
			status:  model.StatusPending,
			key:     tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}},
			outcome: OutcomeDetached,
			quits:   true,
		},
		{
			name:    "ctrl+c detaches after resolution",
			status:  model.StatusApproved,
			key:     tea.KeyMsg{Type: tea.KeyCtrlC},
			outcome: OutcomeDetached,
			quits:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewStatusModel(StatusConfig{
				Updates:       make(chan reconciler.Update),
				Theme:         themes.Plain,
				TransactionID: "tx-1",
				Status:        tt.status,
			})

			updated, cmd := m.Update(tt.key)
			sm := updated.(StatusModel)

			assert.Equal(t, tt.outcome, sm.Outcome())
			if !tt.quits {
				assert.Nil(t, cmd)
				return
			}
			require.NotNil(t, cmd)
			assert.Equal(t, tea.Quit(), cmd())
			assert.Empty(t, sm.View())
		})
	}
}

func TestStatusModel_TerminalStartDoesNotListen(t *testing.T) {
	m := NewStatusModel(StatusConfig{
		Theme:  themes.Plain,
		Status: model.StatusError,
	})

	assert.Nil(t, m.Init())
	assert.Contains(t, m.View(), "Payment failed (ERROR)")
}

func TestRunStatusView_CancelledContextDetaches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := RunStatusView(ctx, StatusConfig{
		Updates:       make(chan reconciler.Update),
		Theme:         themes.Plain,
		TransactionID: "tx-1",
	}, tea.WithInput(nil), tea.WithOutput(io.Discard))

	require.NoError(t, err)
	assert.Equal(t, OutcomeDetached, outcome)
}
