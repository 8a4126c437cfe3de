// ABOUTME: Theme system for kscctl output styling with lipgloss
// ABOUTME: Provides predefined color themes and style constructors for tables and status lines

package render

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Primary lipgloss.Color
	Border  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Dim     lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#7C3AED"), // Purple
	Border:  lipgloss.Color("#6C7086"), // Dim gray
	Success: lipgloss.Color("#A6E3A1"), // Green
	Warning: lipgloss.Color("#F9E2AF"), // Yellow
	Error:   lipgloss.Color("#F38BA8"), // Red
	Dim:     lipgloss.Color("#6C7086"),
}

var LightTheme = Theme{
	Primary: lipgloss.Color("#268BD2"), // Blue
	Border:  lipgloss.Color("#93A1A1"), // Light gray
	Success: lipgloss.Color("#859900"), // Olive green
	Warning: lipgloss.Color("#B58900"), // Yellow
	Error:   lipgloss.Color("#DC322F"), // Red
	Dim:     lipgloss.Color("#93A1A1"),
}

func GetTheme(name string) Theme {
	if name == "light" {
		return LightTheme
	}
	return DefaultTheme
}

func (t Theme) headerStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(t.Primary).Bold(true).Padding(0, 1)
}

func (t Theme) cellStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Padding(0, 1)
}

func (t Theme) titleStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(t.Primary).Bold(true)
}

func (t Theme) errorStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) successStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(t.Success)
}

func (t Theme) warningStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(t.Warning)
}

func (t Theme) dimStyle(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(t.Dim)
}

// statusStyle colors a host or task status label.
func (t Theme) statusStyle(r *lipgloss.Renderer, status string) lipgloss.Style {
	switch status {
	case "ok", "completed", "running":
		return t.successStyle(r)
	case "warning", "paused", "scheduled":
		return t.warningStyle(r)
	case "critical", "failed":
		return t.errorStyle(r)
	}
	return r.NewStyle()
}
