package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Deep-sea palette: ink backgrounds with teal and amber accents.
var (
	accentTeal   = lipgloss.Color("#2DD4BF")
	accentAmber  = lipgloss.Color("#FBBF24")
	accentViolet = lipgloss.Color("#A78BFA")
	okGreen      = lipgloss.Color("#4ADE80")
	alertRed     = lipgloss.Color("#F87171")
	warnCoral    = lipgloss.Color("#FB923C")
	inkBg        = lipgloss.Color("#0B1120")
	inkPanel     = lipgloss.Color("#16213A")
	fgMuted      = lipgloss.Color("#9CA3AF")
	fgFaint      = lipgloss.Color("#4B5563")
)

var (
	baseStyle = lipgloss.NewStyle().
			Background(inkBg).
			Foreground(fgMuted)

	logoStyle = lipgloss.NewStyle().
			Foreground(accentTeal).
			Bold(true).
			Padding(1, 0).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentViolet).
			Background(inkPanel).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Background(accentViolet).
			Foreground(inkBg).
			Bold(true).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(fgFaint).
			Padding(1, 0, 0, 2)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(fgMuted)
)

// Stats panel: label/value pairs plus the transfer rate readout.
var (
	statsLabelStyle = lipgloss.NewStyle().
			Foreground(accentTeal).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(accentAmber)

	speedStyle = lipgloss.NewStyle().
			Foreground(accentTeal)

	progressEmptyStyle = lipgloss.NewStyle().
				Foreground(fgFaint)
)

// Outcome colors shared by the log tail and the summary counters.
var (
	successStyle = lipgloss.NewStyle().
			Foreground(okGreen).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warnCoral).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)
)

// Download queue rows.
var (
	queueItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	queueItemActiveStyle = lipgloss.NewStyle().
				Foreground(okGreen).
				Bold(true).
				PaddingLeft(2)

	queueItemCompletedStyle = lipgloss.NewStyle().
				Foreground(fgMuted).
				Faint(true).
				PaddingLeft(2)
)

// Log tail.
var (
	logTimestampStyle = lipgloss.NewStyle().
				Foreground(fgFaint)

	logMessageStyle = lipgloss.NewStyle().
			Foreground(fgMuted)
)

// Rate limit gauge, colored by how much of the budget is gone.
var (
	rateLimitNormalStyle = lipgloss.NewStyle().
				Foreground(okGreen)

	rateLimitWarningStyle = lipgloss.NewStyle().
				Foreground(warnCoral)

	rateLimitCriticalStyle = lipgloss.NewStyle().
				Foreground(alertRed)
)

// GetRateLimitStyle picks the gauge color for the given usage percentage.
func GetRateLimitStyle(usage float64) lipgloss.Style {
	switch {
	case usage >= 85:
		return rateLimitCriticalStyle
	case usage >= 65:
		return rateLimitWarningStyle
	default:
		return rateLimitNormalStyle
	}
}
