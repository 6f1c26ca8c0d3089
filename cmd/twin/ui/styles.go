// Package ui provides the terminal dashboard for twin.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"twinsim/internal/clinical"
)

// Color palette
var (
	// Light Mode Colors (Default)
	LightBackground = lipgloss.Color("#f4f5f6")
	LightForeground = lipgloss.Color("#101F38")
	LightPrimary    = lipgloss.Color("#101F38")
	LightAccent     = lipgloss.Color("#8BC34A")
	LightMuted      = lipgloss.Color("#8a93a3")
	LightBorder     = lipgloss.Color("#dce0e5")

	// Dark Mode Colors
	DarkBackground = lipgloss.Color("#141d2b")
	DarkForeground = lipgloss.Color("#f2f2f2")
	DarkPrimary    = lipgloss.Color("#8BC34A")
	DarkAccent     = lipgloss.Color("#4db6ac")
	DarkMuted      = lipgloss.Color("#6b7a94")
	DarkBorder     = lipgloss.Color("#2a3850")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// DetectTheme picks dark mode from COLORFGBG or TWIN_DARK_MODE=1, light
// otherwise.
func DetectTheme() Theme {
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		// "foreground;background"; ANSI 0-6 and 8 are dark backgrounds
		parts := strings.Split(colorTerm, ";")
		if len(parts) == 2 {
			if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
				if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
					return DarkTheme()
				}
			}
		}
	}
	if os.Getenv("TWIN_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style
	Panel   lipgloss.Style

	Title    lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style
	Selected lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Spinner   lipgloss.Style
	BarFilled lipgloss.Style
	BarEmpty  lipgloss.Style
	Divider   lipgloss.Style
	Badge     lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Content: lipgloss.NewStyle().
			Padding(1, 2),

		Panel: lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Selected: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		BarFilled: lipgloss.NewStyle().
			Foreground(theme.Accent),

		BarEmpty: lipgloss.NewStyle().
			Foreground(theme.Border),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),

		Badge: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),
	}
}

// DefaultStyles returns styles for the detected theme
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RiskBadge renders a risk level with its traffic-light color.
func (s Styles) RiskBadge(level clinical.RiskLevel) string {
	color := Success
	switch level {
	case clinical.RiskModerate:
		color = Warning
	case clinical.RiskHigh:
		color = Destructive
	}
	return s.Badge.Background(color).Render(string(level))
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	return s.Divider.Render(strings.Repeat("─", width))
}

// RenderBar draws a fixed-width bar filled to frac (clamped to [0,1]).
func (s Styles) RenderBar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac*float64(width) + 0.5)
	return s.BarFilled.Render(strings.Repeat("█", filled)) +
		s.BarEmpty.Render(strings.Repeat("░", width-filled))
}
