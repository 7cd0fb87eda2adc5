// Package tui holds the terminal styles and plain-text reports printed by
// the recall CLI.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Core palette
	Green     = lipgloss.Color("#00FF41")
	MedGreen  = lipgloss.Color("#00C832")
	DarkGreen = lipgloss.Color("#008F11")
	DimGreen  = lipgloss.Color("#003B00")
	Cyan      = lipgloss.Color("#00D4AA")
	Amber     = lipgloss.Color("#FFB000")
	Red       = lipgloss.Color("#FF4136")
	MidGray   = lipgloss.Color("#3a3a4e")
	White     = lipgloss.Color("#e0e0e0")

	TitleStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(MedGreen).
			Bold(true)

	ValueStyle = lipgloss.NewStyle().
			Foreground(White)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Foreground(White).
			Padding(0, 1)

	BorderStyle = lipgloss.NewStyle().
			Foreground(DarkGreen)

	OKStyle = lipgloss.NewStyle().
		Foreground(Green).
		Bold(true)

	WarnStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true)

	// Error
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	// Help text
	HelpStyle = lipgloss.NewStyle().
			Foreground(DimGreen)
)
