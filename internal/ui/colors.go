package ui

import "github.com/charmbracelet/lipgloss"

// Adaptive colors keep text readable on light and dark terminals.
var (
	accent = lipgloss.AdaptiveColor{Light: "#5A3FD6", Dark: "#7D56F4"}
	green  = lipgloss.AdaptiveColor{Light: "#02885A", Dark: "#04B575"}
	red    = lipgloss.AdaptiveColor{Light: "#C40000", Dark: "#FF4040"}
	amber  = lipgloss.AdaptiveColor{Light: "#B86E00", Dark: "#FFA500"}
	grey   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#626262"}
)

var styles = struct {
	title, ok, err, warn, help lipgloss.Style
}{
	title: lipgloss.NewStyle().Foreground(accent).Bold(true).MarginBottom(1),
	ok:    lipgloss.NewStyle().Foreground(green).Bold(true),
	err:   lipgloss.NewStyle().Foreground(red).Bold(true),
	warn:  lipgloss.NewStyle().Foreground(amber),
	help:  lipgloss.NewStyle().Foreground(grey).Italic(true),
}

func Title(s string) string   { return styles.title.Render(s) }
func Success(s string) string { return styles.ok.Render(s) }
func Error(s string) string   { return styles.err.Render(s) }
func Warning(s string) string { return styles.warn.Render(s) }

// Muted renders secondary text such as hints and timestamps.
func Muted(s string) string { return styles.help.Render(s) }
