// Package ui centralizes terminal styling for the CLI.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// RenderTitle formats a section header.
func RenderTitle(s string) string { return titleStyle.Render(s) }

// RenderPass formats a success line with a check mark.
func RenderPass(format string, args ...any) string {
	return passStyle.Render("✓ " + fmt.Sprintf(format, args...))
}

// RenderWarn formats a warning line.
func RenderWarn(format string, args ...any) string {
	return warnStyle.Render("! " + fmt.Sprintf(format, args...))
}

// RenderFail formats an error line.
func RenderFail(format string, args ...any) string {
	return failStyle.Render("✗ " + fmt.Sprintf(format, args...))
}

// RenderDim formats secondary detail.
func RenderDim(s string) string { return dimStyle.Render(s) }

// RenderAccent highlights a value.
func RenderAccent(s string) string { return accentStyle.Render(s) }
