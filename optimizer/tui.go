package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/unrolled/advisor"
)

type rolloutMsg advisor.RolloutResult

type searchDoneMsg struct {
	best int
	err  error
}

type TickMsg time.Time

type model struct {
	total     int
	done      int
	failed    int
	bestScore float64
	hasBest   bool
	recent    []string
	startTime time.Time
	updates   chan tea.Msg

	result searchDoneMsg
	ended  bool
}

func initialModel(total int, updates chan tea.Msg) model {
	return model{
		total:     total,
		startTime: time.Now(),
		updates:   updates,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForUpdate(updates chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		return m, tickCmd()
	case rolloutMsg:
		m.done++
		if msg.Failed {
			m.failed++
		}
		if !m.hasBest || msg.Score > m.bestScore {
			m.bestScore = msg.Score
			m.hasBest = true
		}
		line := fmt.Sprintf("Rollout %d: decisions %v, score %.1f", msg.Seq, msg.Decisions, msg.Score)
		if msg.Failed {
			line += " (unroll failed)"
		}
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates)
	case searchDoneMsg:
		m.result = msg
		m.ended = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	perSec := float64(m.done) / duration.Seconds()
	if duration.Seconds() < 1 {
		perSec = 0
	}

	s := fmt.Sprintf("Rollouts:      %d / %d\n", m.done, m.total)
	s += fmt.Sprintf("Failed:        %d\n", m.failed)
	if m.hasBest {
		s += fmt.Sprintf("Best Score:    %.1f\n", m.bestScore)
	}
	s += fmt.Sprintf("Duration:      %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Rollouts/sec:  %.2f\n", perSec)
	s += "\nRecent rollouts:\n"
	for _, line := range m.recent {
		s += "  " + line + "\n"
	}
	s += "\nPress q to quit.\n"
	return s
}

// runWithTUI runs the search in the background while bubbletea renders
// progress from the rollout stream. Quitting the TUI cancels the search,
// so no rollout keeps compiling behind a dead screen.
func runWithTUI(ctx context.Context, a *advisor.Advisor, module []byte, scoring advisor.ScoringFunc, rollouts int, observe func(advisor.RolloutResult), opts ...tea.ProgramOption) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan tea.Msg, 64)
	p := tea.NewProgram(initialModel(rollouts, updates), opts...)

	// Once the program exits nobody drains updates, so every send also
	// waits on the search context to avoid wedging the goroutine.
	send := func(msg tea.Msg) {
		select {
		case updates <- msg:
		case <-ctx.Done():
		}
	}

	go func() {
		best, err := a.Search(ctx, module, scoring, rollouts, func(r advisor.RolloutResult) {
			if observe != nil {
				observe(r)
			}
			send(rolloutMsg(r))
		})
		send(searchDoneMsg{best: best, err: err})
	}()

	finalModel, err := p.Run()
	cancel()
	if err != nil {
		return 0, err
	}
	m := finalModel.(model)
	if !m.ended {
		return 0, fmt.Errorf("search interrupted after %d rollouts", m.done)
	}
	return m.result.best, m.result.err
}
