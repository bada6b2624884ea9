package cli

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha subset.
var (
	colorSurface = lipgloss.Color("#45475A")
	colorText    = lipgloss.Color("#CDD6F4")
	colorSubtext = lipgloss.Color("#A6ADC8")
	colorDim     = lipgloss.Color("#585B70")

	colorAccent = lipgloss.Color("#CBA6F7") // plan badge
	colorGreen  = lipgloss.Color("#A6E3A1") // healthy
	colorYellow = lipgloss.Color("#F9E2AF") // warning
	colorRed    = lipgloss.Color("#F38BA8") // critical
	colorPeach  = lipgloss.Color("#FAB387") // local-only / degraded
	colorBlue   = lipgloss.Color("#89B4FA") // section labels
)

var (
	planBadgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	textStyle = lipgloss.NewStyle().
			Foreground(colorText)

	subtextStyle = lipgloss.NewStyle().
			Foreground(colorSubtext)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	localOnlyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPeach)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)
)

// pctColor shifts green→yellow→red as utilization climbs.
func pctColor(pct int) lipgloss.Color {
	switch {
	case pct >= 90:
		return colorRed
	case pct >= 75:
		return colorYellow
	default:
		return colorGreen
	}
}
