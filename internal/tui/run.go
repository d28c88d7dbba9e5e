package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// RunStatusView shows the status view until the user leaves it. Cancelling
// ctx leaves it as a detach.
func RunStatusView(ctx context.Context, cfg StatusConfig, opts ...tea.ProgramOption) (Outcome, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	program := tea.NewProgram(NewStatusModel(cfg), opts...)

	final, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return OutcomeDetached, nil
	}
	if err != nil {
		return OutcomeDetached, fmt.Errorf("status view failed: %w", err)
	}

	m, ok := final.(StatusModel)
	if !ok {
		return OutcomeDetached, nil
	}
	return m.Outcome(), nil
}
