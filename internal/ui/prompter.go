package ui

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"mend/internal/expect"
	"mend/internal/prompt"
)

// Terminal is a prompt.Prompter that runs one Bubble Tea program per review
// round on the controlling terminal.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

// NewTerminal wires a terminal prompter to the given streams.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// Prompt blocks until the reviewer picks a decision.
func (t *Terminal) Prompt(view prompt.View) (expect.Decision, error) {
	model := NewReviewModel(view)
	opts := []tea.ProgramOption{}
	if t.in != nil {
		opts = append(opts, tea.WithInput(t.in))
	}
	if t.out != nil {
		opts = append(opts, tea.WithOutput(t.out))
	}
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return expect.DecisionSkip, fmt.Errorf("review prompt: %w", err)
	}
	m, ok := final.(*ReviewModel)
	if !ok {
		return expect.DecisionSkip, fmt.Errorf("review prompt: unexpected model %T", final)
	}
	if d, decided := m.Decision(); decided {
		return d, nil
	}
	return expect.DecisionSkip, nil
}
