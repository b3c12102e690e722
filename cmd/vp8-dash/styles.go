package main

import "github.com/charmbracelet/lipgloss"

var (
	primary   = lipgloss.Color("#FF6B35")
	secondary = lipgloss.Color("#1E88E5")
	success   = lipgloss.Color("#4CAF50")
	warning   = lipgloss.Color("#FFB74D")
	failure   = lipgloss.Color("#F44336")
	text      = lipgloss.Color("#E0E0E0")
	muted     = lipgloss.Color("#90A4AE")
	headerBg  = lipgloss.Color("#1C2128")
	border    = lipgloss.Color("#30363D")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(headerBg).
			Bold(true).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary)

	tableStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Foreground(text).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().Foreground(primary).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	errorStyle  = lipgloss.NewStyle().Foreground(failure).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(warning).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(success).Bold(true)
	infoStyle   = lipgloss.NewStyle().Foreground(secondary).Bold(true)
)

func statusBadge(status string) string {
	switch status {
	case "active":
		return okStyle.Render("● LIVE")
	case "idle":
		return warnStyle.Render("◐ IDLE")
	default:
		return mutedStyle.Render("○ " + status)
	}
}

// countStyle highlights non-zero error counters.
func countStyle(n int64) lipgloss.Style {
	if n > 0 {
		return errorStyle
	}
	return mutedStyle
}
