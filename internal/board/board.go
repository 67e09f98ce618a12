// Package board renders a live read-only view of controller sessions.
// It polls the controller's state file; it never talks to the controller
// directly, so it can attach and detach at any time.
package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"autoship/internal/statefile"
)

// pollInterval is how often the state file is re-read.
const pollInterval = time.Second

// snapshotMsg carries a freshly read snapshot (nil when no controller is
// running in the workdir).
type snapshotMsg struct {
	snap *statefile.Snapshot
	err  error
}

type pollTickMsg struct{}

// Model is the shipboard bubbletea model.
type Model struct {
	workdir string
	spinner spinner.Model
	snap    *statefile.Snapshot
	err     error
	width   int
}

// New creates a board for the given controller working directory.
func New(workdir string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent))
	return Model{workdir: workdir, spinner: sp}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

// poll reads the state file once.
func (m Model) poll() tea.Cmd {
	workdir := m.workdir
	return func() tea.Msg {
		snap, err := statefile.Read(workdir)
		return snapshotMsg{snap: snap, err: err}
	}
}

func schedulePoll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case snapshotMsg:
		m.snap = msg.snap
		m.err = msg.err
		return m, schedulePoll()
	case pollTickMsg:
		return m, m.poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("autoship sessions"))
	b.WriteString(hintStyle.Render("  " + m.workdir))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(emptyStyle.Render(fmt.Sprintf("cannot read state: %v", m.err)))
	case m.snap == nil:
		b.WriteString(m.spinner.View())
		b.WriteString(emptyStyle.Render(" waiting for a controller in this workdir"))
	case len(m.snap.Sessions) == 0:
		b.WriteString(emptyStyle.Render("no sessions yet"))
	default:
		for _, s := range m.snap.Sessions {
			b.WriteString(renderSession(s))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("q: quit"))
	return b.String()
}

// renderSession formats one session row.
func renderSession(s statefile.SessionState) string {
	badge := stateStyle(s.State).Render(fmt.Sprintf("%-8s", s.State))
	line := fmt.Sprintf("%s %s", badge, rowStyle.Render(s.ID))
	if s.Title != "" {
		line += hintStyle.Render("  " + s.Title)
	}

	var details []string
	if s.Retries > 0 || s.State == "retrying" {
		details = append(details, fmt.Sprintf("retries %d", s.Retries))
	}
	if s.LastVersion != "" {
		details = append(details, "v"+s.LastVersion)
	}
	if s.LastError != "" {
		details = append(details, s.LastError)
	}
	if !s.UpdatedAt.IsZero() {
		details = append(details, s.UpdatedAt.Format("15:04:05"))
	}
	if len(details) > 0 {
		line += "\n" + hintStyle.Render("         "+strings.Join(details, "  ·  "))
	}
	return line
}
