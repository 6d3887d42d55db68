package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// panel frames a titled section in the shared border style.
func panel(width int, title string, body ...string) string {
	parts := append([]string{titleStyle.Render(title)}, body...)
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// View renders the dashboard: logo on top, stats and transfers on the
// left, rate limit and logs on the right, help line at the bottom.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting dashboard..."
	}

	columnWidth := (m.width - 4) / 2

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(columnWidth),
		m.renderActiveDownloadsPanel(columnWidth),
		m.renderQueuePanel(columnWidth),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderRateLimitPanel(columnWidth),
		m.renderLogsPanel(columnWidth),
	)

	footer := helpStyle.Render("Press ? for help")
	if m.showHelp {
		footer = m.renderHelp()
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.renderLogo(),
			lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
			footer,
		),
	)
}

func (m *Model) renderLogo() string {
	banner := ` ██╗  ██╗ ███████╗ ███╗   ███╗  ██████╗  ███╗   ██╗  ██████╗
 ██║ ██╔╝ ██╔════╝ ████╗ ████║ ██╔═══██╗ ████╗  ██║ ██╔═══██╗
 █████╔╝  █████╗   ██╔████╔██║ ██║   ██║ ██╔██╗ ██║ ██║   ██║
 ██╔═██╗  ██╔══╝   ██║╚██╔╝██║ ██║   ██║ ██║╚██╗██║ ██║   ██║
 ██║  ██╗ ███████╗ ██║ ╚═╝ ██║ ╚██████╔╝ ██║ ╚████║ ╚██████╔╝
 ╚═╝  ╚═╝ ╚══════╝ ╚═╝     ╚═╝  ╚═════╝  ╚═╝  ╚═══╝  ╚═════╝
          GRAB  ::  bulk creator media archiver`

	return logoStyle.Width(m.width).Render(banner)
}

func (m *Model) renderStatsPanel(width int) string {
	avgSpeed, eta := m.GetDownloadStats()

	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.sessionStartTime)

	scanned := fmt.Sprintf("%d", m.postsSeen)
	scanProgress := 0.0
	if m.totalPosts > 0 {
		scanned = fmt.Sprintf("%d/%d", m.postsSeen, m.totalPosts)
		scanProgress = float64(m.postsSeen) / float64(m.totalPosts)
		if scanProgress > 1 {
			scanProgress = 1
		}
	}

	bar := m.scanBar
	bar.Width = width - 8

	row := func(label, value string) string {
		return statsLabelStyle.Render(label) + " " + value
	}

	stats := []string{
		row("Session Time:", statsValueStyle.Render(formatDuration(elapsed))),
		row("Posts Scanned:", statsValueStyle.Render(scanned)),
		bar.ViewAs(scanProgress),
		row("Files Grabbed:", statsValueStyle.Render(fmt.Sprintf("%d", m.totalCompleted))),
		row("Already Archived:", statsValueStyle.Render(fmt.Sprintf("%d", m.totalSkipped))),
		row("Total Size:", statsValueStyle.Render(FormatBytes(m.totalBytes))),
		row("Average Speed:", speedStyle.Render(FormatSpeed(avgSpeed))),
		row("ETA:", statsValueStyle.Render(formatDuration(eta))),
	}
	if m.totalFailed > 0 {
		stats = append(stats, row("Failed:", errorStyle.Render(fmt.Sprintf("%d", m.totalFailed))))
	}
	if m.isPaused {
		stats = append(stats, warningStyle.Render("⏸  paused, p resumes"))
	}

	return panel(width, " SESSION STATS ", stats...)
}

func (m *Model) renderActiveDownloadsPanel(width int) string {
	active := m.GetActiveDownloads()
	if len(active) == 0 {
		return panel(width, " ACTIVE DOWNLOADS ", mutedTextStyle.Render("No active downloads"))
	}

	var rows []string
	for _, item := range active {
		rows = append(rows, m.renderDownloadItem(item, width-4))
	}
	return panel(width, " ACTIVE DOWNLOADS ", rows...)
}

func (m *Model) renderDownloadItem(item *DownloadItem, width int) string {
	elapsed := time.Since(item.StartTime)

	name := item.Filename
	maxNameLen := width - 22
	if maxNameLen > 6 && len(name) > maxNameLen {
		name = name[:maxNameLen-3] + "..."
	}

	return fmt.Sprintf("%s %s %s %s",
		m.spinner.View(),
		queueItemActiveStyle.Render(name),
		mutedTextStyle.Render("post "+item.PostID),
		speedStyle.Render(formatDuration(elapsed)),
	)
}

func (m *Model) renderQueuePanel(width int) string {
	pending := m.GetPendingDownloads()
	completed := m.GetCompletedDownloads()

	var items []string

	if len(pending) > 0 {
		items = append(items, warningStyle.Render(fmt.Sprintf("⏳ %d pending", len(pending))))
		for i, item := range pending {
			if i == 3 {
				items = append(items, mutedTextStyle.Render(fmt.Sprintf("  ... and %d more", len(pending)-3)))
				break
			}
			items = append(items, queueItemStyle.Render("· "+item.Filename))
		}
	}

	if len(completed) > 0 {
		items = append(items, "", successStyle.Render(fmt.Sprintf("✓ %d completed", len(completed))))
		recent := completed
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for _, item := range recent {
			items = append(items, queueItemCompletedStyle.Render("✓ "+item.Filename+" ("+FormatBytes(item.Size)+")"))
		}
	}

	return panel(width, " DOWNLOAD QUEUE ", items...)
}

func (m *Model) renderRateLimitPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage := 0.0
	if m.rateLimitMax > 0 {
		usage = float64(m.rateLimitUsed) / float64(m.rateLimitMax) * 100
	}

	gaugeWidth := width - 8
	lit := int(usage * float64(gaugeWidth) / 100)
	if lit > gaugeWidth {
		lit = gaugeWidth
	}

	gaugeStyle := GetRateLimitStyle(usage)
	gauge := gaugeStyle.Render(strings.Repeat("█", lit)) +
		progressEmptyStyle.Render(strings.Repeat("░", gaugeWidth-lit))

	resetIn := max(time.Until(m.rateLimitResetAt), 0)

	return panel(width, " RATE LIMIT STATUS ",
		statsLabelStyle.Render("Usage:")+" "+
			gaugeStyle.Render(fmt.Sprintf("%d/%d (%.0f%%)", m.rateLimitUsed, m.rateLimitMax, usage)),
		gauge,
		statsLabelStyle.Render("Reset in:")+" "+statsValueStyle.Render(formatDuration(resetIn)),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	visible := m.logMessages
	if len(visible) > 10 {
		visible = visible[len(visible)-10:]
	}

	var logs []string
	for _, entry := range visible {
		// Trim the raw text before styling it; the escape codes the
		// styles add would otherwise count against the width.
		text := entry.Message
		if limit := width - 25; limit > 6 && len(text) > limit {
			text = text[:limit-3] + "..."
		}

		timestamp := logTimestampStyle.Render(entry.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level))
		logs = append(logs, timestamp+" "+level+" "+logMessageStyle.Render(text))
	}

	body := strings.Join(logs, "\n")
	if len(logs) == 0 {
		body = mutedTextStyle.Render("Nothing logged yet")
	}

	// Fill whatever vertical space the left column leaves over
	logsHeight := max(m.height-35, 5)

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" SESSION LOGS "), body),
	)
}

func (m *Model) renderHelp() string {
	key := func(binding, what string) string {
		return "  " + statsValueStyle.Render(fmt.Sprintf("%-8s", binding)) + " " + mutedTextStyle.Render(what)
	}

	lines := []string{
		titleStyle.Render(" KEYS "),
		key("q", "quit (ctrl+c works too)"),
		key("p", "toggle the pause badge"),
		key("ctrl+l", "clear the log panel"),
		key("?", "close this help"),
		"",
		titleStyle.Render(" LEGEND "),
		key("⏳", "queued file"),
		key("✓", "file on disk"),
		key("█", "limiter budget spent"),
		"  " + successStyle.Render("green") + " fine   " +
			warningStyle.Render("orange") + " waiting   " +
			errorStyle.Render("red") + " failed",
	}

	return panelStyle.Width(m.width).Render(strings.Join(lines, "\n"))
}

// formatDuration renders h:m:s, dropping the hours place when zero.
func formatDuration(d time.Duration) string {
	d = max(d, 0)

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
