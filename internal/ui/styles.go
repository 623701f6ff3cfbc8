package ui

import "github.com/charmbracelet/lipgloss"

// Palette. A single teal accent with amber and red for problems.
const (
	ColorAccent   = "43"  // #00d7af
	ColorAccentLo = "30"  // inactive accent, sparkline background
	ColorWhite    = "255" // headers
	ColorGray     = "245" // labels
	ColorDarkGray = "238" // borders and separators
	ColorRed      = "196"
	ColorAmber    = "214"
)

// Styles holds the lipgloss styles used by the renderers.
type Styles struct {
	Header  lipgloss.Style
	Title   lipgloss.Style
	OK      lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style

	Layer       lipgloss.Style
	ActiveLayer lipgloss.Style
	Border      lipgloss.Style
	Panel       lipgloss.Style
	Sparkline   lipgloss.Style
}

// DefaultStyles returns the colored styles used by the TUI.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		OK:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAmber)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Value:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),

		Layer:       lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		ActiveLayer: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Border:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
		Sparkline: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
	}
}

// NoColorStyles returns unstyled components.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:      plain,
		Title:       plain,
		OK:          plain,
		Warning:     plain,
		Error:       plain,
		Dim:         plain,
		Label:       plain,
		Value:       plain,
		Layer:       plain,
		ActiveLayer: plain,
		Border:      plain,
		Panel:       lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
		Sparkline:   plain,
	}
}

// GetStyles returns the styles for the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
