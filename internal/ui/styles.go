// Package ui provides consistent styling for the WayKVM CLI output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary = lipgloss.Color("39")  // Bright blue
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("196") // Red
	ColorInfo    = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)
)

// FormatAppHeader renders the two-line banner used by list-style
// commands.
func FormatAppHeader(title, subtitle string) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("WAYKVM %s", title)))
	if subtitle != "" {
		b.WriteString("\n")
		b.WriteString(SubtleStyle.Render(subtitle))
	}
	return b.String()
}
