package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Bold(true).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	separator = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render(" │ ")

	userBubbleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)

	tutorBubbleStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("241")).
				Padding(0, 1)

	selectedBorder = lipgloss.Color("212")
	playingBorder  = lipgloss.Color("42")

	correctionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	translationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("247")).Italic(true)

	stateColors = map[string]lipgloss.Color{
		"idle":         lipgloss.Color("241"),
		"recording":    lipgloss.Color("196"),
		"processing":   lipgloss.Color("214"),
		"auto-playing": lipgloss.Color("42"),
		"backgrounded": lipgloss.Color("241"),
		"needs-resume": lipgloss.Color("214"),
	}
)
