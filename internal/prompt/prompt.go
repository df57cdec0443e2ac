// Package prompt asks the user modal yes/no questions.
package prompt

import (
	"context"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

type Confirmer interface {
	// Confirm blocks until the user answers. Errors count as "no".
	Confirm(ctx context.Context, question string) (bool, error)
}

// Func adapts a plain function to Confirmer.
type Func func(ctx context.Context, question string) (bool, error)

func (f Func) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

type confirmModel struct {
	question string
	answer   bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y", "enter":
		m.answer, m.done = true, true
		return m, tea.Quit
	case "n", "N", "esc", "q", "ctrl+c":
		m.answer, m.done = false, true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.question)
	b.WriteString("\n\n[Y]es / [n]o ")
	return b.String()
}

// Terminal renders the question with bubbletea on the given streams.
type Terminal struct {
	mu  sync.Mutex
	in  io.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	// One program owns the terminal at a time.
	t.mu.Lock()
	defer t.mu.Unlock()

	p := tea.NewProgram(
		confirmModel{question: question},
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
	)
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(confirmModel)
	return ok && m.answer, nil
}

// Scripted answers from a queue, then falls back to Default. It records every
// question it was asked.
type Scripted struct {
	mu      sync.Mutex
	answers []bool
	asked   []string
	Default bool
}

func NewScripted(answers ...bool) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.asked = append(s.asked, question)
	if len(s.answers) == 0 {
		return s.Default, nil
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *Scripted) Asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.asked...)
}
