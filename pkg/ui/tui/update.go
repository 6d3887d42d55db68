package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Each external event the dashboard reacts to is a message type paired
// with a Send constructor. Workers build messages through the
// constructors and the TUI wrapper forwards them to the program.

// DownloadStartMsg announces a file entering the pipeline.
type DownloadStartMsg struct {
	ID       string
	PostID   string
	Filename string
}

func SendDownloadStart(id, postID, filename string) tea.Msg {
	return DownloadStartMsg{ID: id, PostID: postID, Filename: filename}
}

// DownloadCompleteMsg announces a finished transfer.
type DownloadCompleteMsg struct {
	ID   string
	Size int64
}

func SendDownloadComplete(id string, size int64) tea.Msg {
	return DownloadCompleteMsg{ID: id, Size: size}
}

// DownloadSkipMsg announces a file the archive already held.
type DownloadSkipMsg struct {
	ID string
}

func SendDownloadSkip(id string) tea.Msg {
	return DownloadSkipMsg{ID: id}
}

// DownloadErrorMsg announces a transfer that gave up after retries.
type DownloadErrorMsg struct {
	ID    string
	Error error
}

func SendDownloadError(id string, err error) tea.Msg {
	return DownloadErrorMsg{ID: id, Error: err}
}

// ScanProgressMsg carries the post counters after each listing page.
type ScanProgressMsg struct {
	PostsSeen  int
	TotalPosts int
}

func SendScanProgress(postsSeen, totalPosts int) tea.Msg {
	return ScanProgressMsg{PostsSeen: postsSeen, TotalPosts: totalPosts}
}

// RateLimitUpdateMsg carries the API budget reading.
type RateLimitUpdateMsg struct {
	Used    int
	Max     int
	ResetAt time.Time
}

func SendRateLimitUpdate(used, max int, resetAt time.Time) tea.Msg {
	return RateLimitUpdateMsg{Used: used, Max: max, ResetAt: resetAt}
}

// LogMsg carries a line for the activity pane.
type LogMsg struct {
	Level   string
	Message string
}

func SendLog(level, message string) tea.Msg {
	return LogMsg{Level: level, Message: message}
}

// WindowSizeMsg mirrors tea.WindowSizeMsg for callers outside the program.
type WindowSizeMsg struct {
	Width  int
	Height int
}

// TickMsg drives the periodic redraw.
type TickMsg time.Time

const redrawEvery = 100 * time.Millisecond

func redrawCmd() tea.Cmd {
	return tea.Tick(redrawEvery, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Update dispatches messages into model state changes.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tea.Batch(redrawCmd(), m.spinner.Tick)

	case DownloadStartMsg:
		m.AddDownload(msg.ID, msg.PostID, msg.Filename)
		m.StartDownload(msg.ID)
		return m, nil

	case DownloadCompleteMsg:
		m.CompleteDownload(msg.ID, msg.Size)
		if item, ok := m.downloads[msg.ID]; ok {
			m.AddLogMessage(levelSuccess, "Completed: "+item.Filename)
		}
		return m, nil

	case DownloadSkipMsg:
		// Read the name before the skip drops the row
		if item, ok := m.downloads[msg.ID]; ok {
			m.AddLogMessage(levelInfo, "Already archived: "+item.Filename)
		}
		m.SkipDownload(msg.ID)
		return m, nil

	case DownloadErrorMsg:
		m.FailDownload(msg.ID, msg.Error)
		if item, ok := m.downloads[msg.ID]; ok {
			m.AddLogMessage(levelError, "Failed: "+item.Filename+" - "+msg.Error.Error())
		}
		return m, nil

	case ScanProgressMsg:
		m.UpdateScanProgress(msg.PostsSeen, msg.TotalPosts)
		return m, nil

	case RateLimitUpdateMsg:
		m.UpdateRateLimit(msg.Used, msg.Max, msg.ResetAt)
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "p", "P":
		// IsPaused reads from other goroutines, so the toggle needs
		// the lock too.
		m.mu.Lock()
		m.isPaused = !m.isPaused
		paused := m.isPaused
		m.mu.Unlock()
		if paused {
			m.AddLogMessage(levelWarning, "Display paused by user")
		} else {
			m.AddLogMessage(levelInfo, "Display resumed by user")
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}
