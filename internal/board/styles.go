package board

import "github.com/charmbracelet/lipgloss"

// Theme colors, shared with the controller's terminal output conventions.
const (
	colorAccent = "86"  // cyan/green - titles, active sessions
	colorDanger = "196" // red - errored sessions
	colorWarn   = "208" // orange - retrying sessions
	colorMuted  = "241" // gray - dimmed text, hints
	colorText   = "252" // light gray - normal text
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorAccent))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted))

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorText))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted)).
			Italic(true)

	stateStyles = map[string]lipgloss.Style{
		"pending":  lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		"building": lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		"retrying": lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarn)),
		"active":   lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)).Bold(true),
		"errored":  lipgloss.NewStyle().Foreground(lipgloss.Color(colorDanger)).Bold(true),
	}
)

// stateStyle returns the style for a session state, falling back to normal
// text for unknown states.
func stateStyle(state string) lipgloss.Style {
	if s, ok := stateStyles[state]; ok {
		return s
	}
	return rowStyle
}
