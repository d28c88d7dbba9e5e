// Package tui renders the live status of a submitted payment.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/reconciler"
	"github.com/Veraticus/storefront-checkout/internal/tui/themes"
)

// Outcome is how the user left the status view.
type Outcome int

// Outcomes.
const (
	OutcomeDetached Outcome = iota
	OutcomeAcknowledged
)

// StatusConfig configures the status view.
type StatusConfig struct {
	Updates       <-chan reconciler.Update
	Theme         themes.Theme
	TransactionID string
	Status        model.Status
	Details       []string
}

// StatusModel is the bubbletea model for the result step.
type StatusModel struct {
	updates       <-chan reconciler.Update
	theme         themes.Theme
	keymap        KeyMap
	spinner       spinner.Model
	transactionID string
	status        model.Status
	details       []string
	width         int
	outcome       Outcome
	quitting      bool
}

// NewStatusModel creates the status view.
func NewStatusModel(cfg StatusConfig) StatusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cfg.Theme.Spinner

	status := cfg.Status
	if status == "" {
		status = model.StatusPending
	}

	return StatusModel{
		updates:       cfg.Updates,
		theme:         cfg.Theme,
		keymap:        DefaultKeyMap(),
		spinner:       s,
		transactionID: cfg.TransactionID,
		status:        status,
		details:       cfg.Details,
	}
}

// Init starts the spinner and listens for updates.
func (m StatusModel) Init() tea.Cmd {
	if m.status.IsTerminal() {
		return nil
	}
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

// Update handles messages.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatusMsg:
		if m.transactionID == "" {
			m.transactionID = msg.TransactionID
		}
		if msg.TransactionID != m.transactionID {
			return m, waitForUpdate(m.updates)
		}
		m.status = msg.Status
		if m.status.IsTerminal() {
			return m, nil
		}
		return m, waitForUpdate(m.updates)

	case updatesClosedMsg:
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.ForceQuit), key.Matches(msg, m.keymap.Detach):
			m.outcome = OutcomeDetached
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Acknowledge) && m.status.IsTerminal():
			m.outcome = OutcomeAcknowledged
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if m.status.IsTerminal() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the model.
func (m StatusModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render("Payment status"))
	b.WriteString("\n")

	if m.transactionID != "" {
		b.WriteString(m.theme.Subtitle.Render("Transaction "))
		b.WriteString(m.theme.Code.Render(m.transactionID))
		b.WriteString("\n")
	}
	for _, line := range m.details {
		b.WriteString(m.theme.Normal.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.status.IsTerminal() {
		b.WriteString(m.outcomeLine())
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(m.theme.StatusPending.Render("Waiting for the payment processor..."))
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Help.Render(m.helpLine()))

	box := m.theme.RoundedBox
	if m.width > 4 {
		box = box.MaxWidth(m.width)
	}
	return box.Render(b.String())
}

// Outcome reports how the user left the view.
func (m StatusModel) Outcome() Outcome {
	return m.outcome
}

// Status is the last status shown.
func (m StatusModel) Status() model.Status {
	return m.status
}

func (m StatusModel) outcomeLine() string {
	switch m.status {
	case model.StatusApproved:
		return m.theme.StatusSuccess.Render("✓ Payment approved")
	case model.StatusDeclined:
		return m.theme.StatusError.Render("✗ Payment declined")
	case model.StatusVoided:
		return m.theme.StatusWarning.Render("Payment voided")
	default:
		return m.theme.StatusError.Render(fmt.Sprintf("✗ Payment failed (%s)", m.status))
	}
}

func (m StatusModel) helpLine() string {
	if m.status.IsTerminal() {
		return "enter done • q leave for later"
	}
	return "q leave for later • the payment keeps processing"
}
