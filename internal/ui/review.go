// Package ui renders one review round as a Bubble Tea program: the call
// site, the recorded-vs-proposed diff in a scrollable viewport, the
// assertion's decision history, and the accept/reject/skip/navigate keys.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"mend/internal/diffview"
	"mend/internal/expect"
	"mend/internal/prompt"
)

type keyMap struct {
	Accept key.Binding
	Reject key.Binding
	Skip   key.Binding
	Next   key.Binding
	Prev   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Accept: key.NewBinding(key.WithKeys("a", "enter"), key.WithHelp("a", "accept")),
		Reject: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reject")),
		Skip:   key.NewBinding(key.WithKeys("s", "q", "ctrl+c"), key.WithHelp("s", "skip")),
		Next:   key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next form")),
		Prev:   key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev form")),
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	deleteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	insertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	historyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// ReviewModel presents one candidate of one assertion. The program quits on
// every decision; navigation is handled by the caller re-prompting with the
// neighboring candidate.
type ReviewModel struct {
	view     prompt.View
	keys     keyMap
	vp       viewport.Model
	width    int
	decision expect.Decision
	decided  bool
}

// NewReviewModel builds the model for one prompt round.
func NewReviewModel(view prompt.View) *ReviewModel {
	vp := viewport.New(78, 12)
	m := &ReviewModel{
		view:  view,
		keys:  defaultKeyMap(),
		vp:    vp,
		width: 80,
	}
	m.vp.SetContent(m.renderDiff())
	return m
}

// Decision returns the reviewer's choice once the program has quit.
func (m *ReviewModel) Decision() (expect.Decision, bool) {
	return m.decision, m.decided
}

func (m *ReviewModel) Init() tea.Cmd {
	return nil
}

func (m *ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Accept):
			return m.decide(expect.DecisionAccept)
		case key.Matches(msg, m.keys.Reject):
			return m.decide(expect.DecisionReject)
		case key.Matches(msg, m.keys.Skip):
			return m.decide(expect.DecisionSkip)
		case key.Matches(msg, m.keys.Next):
			return m.decide(expect.DecisionNext)
		case key.Matches(msg, m.keys.Prev):
			return m.decide(expect.DecisionPrev)
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.vp.Width = msg.Width - 2
		}
		if msg.Height > 8 {
			m.vp.Height = msg.Height - 8
		}
		return m, nil
	}
	return m, nil
}

func (m *ReviewModel) decide(d expect.Decision) (tea.Model, tea.Cmd) {
	m.decision = d
	m.decided = true
	return m, tea.Quit
}

func (m *ReviewModel) View() string {
	var b strings.Builder

	a := m.view.Assertion
	header := fmt.Sprintf("%s %s", m.view.Path, stageStyle.Render("["+a.Stage.String()+"]"))
	if m.view.CandidateCount > 1 {
		header += fmt.Sprintf(" (form %d/%d)", m.view.CandidateIdx+1, m.view.CandidateCount)
	}
	b.WriteString(titleStyle.Render(truncate(header, m.width)))
	b.WriteString("\n")
	b.WriteString(truncate(a.ID.Test, m.width))
	b.WriteString("\n\n")

	b.WriteString(m.vp.View())
	b.WriteString("\n")

	if len(m.view.History) > 0 {
		b.WriteString(historyStyle.Render("previously: " + strings.Join(m.view.History, "; ")))
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render("a accept · r reject · s skip · n/p other form"))
	b.WriteString("\n")
	return b.String()
}

func (m *ReviewModel) renderDiff() string {
	var b strings.Builder
	for _, line := range m.view.Diff {
		switch line.Kind {
		case diffview.KindDelete:
			b.WriteString(deleteStyle.Render("- " + line.Text))
		case diffview.KindInsert:
			b.WriteString(insertStyle.Render("+ " + line.Text))
		default:
			b.WriteString("  " + line.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
