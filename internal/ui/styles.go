package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Semantic color palette.
const (
	colorPrimary = lipgloss.Color("#00BFFF") // Cyan, headings
	colorAccent  = lipgloss.Color("#FFD700") // Gold, warnings
	colorSuccess = lipgloss.Color("#00E676") // Green, healthy
	colorDanger  = lipgloss.Color("#FF5252") // Red, critical
	colorMuted   = lipgloss.Color("#8C8C8C") // Gray, de-emphasized
	colorBlue    = lipgloss.Color("#5B8DEF") // Blue, bars
)

// Status icons.
const (
	iconOK    = "✓"
	iconFail  = "✗"
	iconWarn  = "⚠"
	iconDot   = "•"
	iconArrow = "→"
)

// styles holds every style bound to one renderer, so color support is
// detected per output stream.
type styles struct {
	heading  lipgloss.Style
	label    lipgloss.Style
	muted    lipgloss.Style
	ok       lipgloss.Style
	warn     lipgloss.Style
	danger   lipgloss.Style
	critical lipgloss.Style
	bar      lipgloss.Style
	slack    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		heading:  r.NewStyle().Foreground(colorPrimary).Bold(true),
		label:    r.NewStyle().Bold(true),
		muted:    r.NewStyle().Foreground(colorMuted),
		ok:       r.NewStyle().Foreground(colorSuccess).Bold(true),
		warn:     r.NewStyle().Foreground(colorAccent).Bold(true),
		danger:   r.NewStyle().Foreground(colorDanger).Bold(true),
		critical: r.NewStyle().Foreground(colorDanger),
		bar:      r.NewStyle().Foreground(colorBlue),
		slack:    r.NewStyle().Foreground(colorMuted),
	}
}

// severity picks the style for a severity, risk level or EVM status.
func (s styles) severity(level string) lipgloss.Style {
	switch {
	case level == "critical" || level == "high" || strings.HasPrefix(level, "significantly_"):
		return s.danger
	case level == "medium" || strings.HasPrefix(level, "moderately_") || strings.HasPrefix(level, "slightly_"):
		return s.warn
	case level == "none" || level == "low" || strings.HasPrefix(level, "on_") ||
		strings.HasPrefix(level, "ahead_") || strings.HasPrefix(level, "under_"):
		return s.ok
	}
	return s.label
}
