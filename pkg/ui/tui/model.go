package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DownloadState tracks a transfer row through its lifecycle.
type DownloadState int

const (
	DownloadPending DownloadState = iota
	DownloadActive
	DownloadCompleted
	DownloadFailed
)

// DownloadItem is one transfer row on the dashboard.
type DownloadItem struct {
	ID        string
	PostID    string
	Filename  string
	Size      int64
	State     DownloadState
	StartTime time.Time
	Error     error
}

// LogMessage is one line in the activity pane.
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model holds everything the dashboard renders: the transfer rows, the
// session counters, the limiter gauge and the activity log. Reporter
// callbacks land from worker goroutines, so every mutation takes the
// lock.
type Model struct {
	spinner spinner.Model
	scanBar progress.Model

	downloads       map[string]*DownloadItem
	downloadOrder   []string
	activeDownloads int
	maxConcurrent   int

	totalCompleted   int
	totalSkipped     int
	totalFailed      int
	totalBytes       int64
	postsSeen        int
	totalPosts       int
	sessionStartTime time.Time

	rateLimitMax     int
	rateLimitUsed    int
	rateLimitResetAt time.Time

	width          int
	height         int
	showHelp       bool
	isPaused       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// NewModel builds an empty dashboard sized for maxConcurrent transfer
// slots.
func NewModel(maxConcurrent int) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentTeal)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return Model{
		spinner:          s,
		scanBar:          bar,
		downloads:        make(map[string]*DownloadItem),
		maxConcurrent:    maxConcurrent,
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
		rateLimitMax:     100, // placeholder until the first limiter report
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// AddDownload queues a new transfer row. Adding the same id twice is a
// no-op, so replayed events cannot duplicate rows.
func (m *Model) AddDownload(id, postID, filename string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.downloads[id]; ok {
		return
	}

	m.downloads[id] = &DownloadItem{
		ID:       id,
		PostID:   postID,
		Filename: filename,
		State:    DownloadPending,
	}
	m.downloadOrder = append(m.downloadOrder, id)
}

// StartDownload moves a pending row into the active set.
func (m *Model) StartDownload(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.downloads[id]; ok && item.State == DownloadPending {
		item.State = DownloadActive
		item.StartTime = time.Now()
		m.activeDownloads++
	}
}

// CompleteDownload finishes a row and credits its bytes to the session
// totals.
func (m *Model) CompleteDownload(id string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.downloads[id]
	if !ok {
		return
	}
	m.leaveActive(item)
	item.State = DownloadCompleted
	item.Size = size
	m.totalCompleted++
	m.totalBytes += size
}

// SkipDownload drops a row whose file the archive already holds. Skips
// count in the totals but never occupy screen space.
func (m *Model) SkipDownload(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.downloads[id]
	if !ok {
		return
	}
	m.leaveActive(item)
	delete(m.downloads, id)
	for i, orderedID := range m.downloadOrder {
		if orderedID == id {
			m.downloadOrder = append(m.downloadOrder[:i], m.downloadOrder[i+1:]...)
			break
		}
	}
	m.totalSkipped++
}

// FailDownload marks a row as given up on.
func (m *Model) FailDownload(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.downloads[id]
	if !ok {
		return
	}
	m.leaveActive(item)
	item.State = DownloadFailed
	item.Error = err
	m.totalFailed++
}

// leaveActive releases the item's concurrency slot if it held one.
// Callers hold the write lock.
func (m *Model) leaveActive(item *DownloadItem) {
	if item.State == DownloadActive {
		m.activeDownloads--
	}
}

// UpdateScanProgress refreshes the post scan counters.
func (m *Model) UpdateScanProgress(postsSeen, totalPosts int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.postsSeen = postsSeen
	m.totalPosts = totalPosts
}

// UpdateRateLimit refreshes the API budget gauge.
func (m *Model) UpdateRateLimit(used, max int, resetAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rateLimitUsed = used
	m.rateLimitMax = max
	m.rateLimitResetAt = resetAt
}

// AddLogMessage appends a line to the activity pane, evicting the
// oldest lines past the cap.
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := fgMuted
	switch level {
	case levelError:
		color = alertRed
	case levelWarning:
		color = warnCoral
	case levelSuccess:
		color = okGreen
	case levelInfo:
		color = accentTeal
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})
	if over := len(m.logMessages) - m.maxLogMessages; over > 0 {
		m.logMessages = m.logMessages[over:]
	}
}

// downloadsInState returns the rows in one state, in arrival order.
func (m *Model) downloadsInState(state DownloadState) []*DownloadItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []*DownloadItem
	for _, id := range m.downloadOrder {
		if d := m.downloads[id]; d != nil && d.State == state {
			items = append(items, d)
		}
	}
	return items
}

// GetActiveDownloads returns the transfers currently moving bytes.
func (m *Model) GetActiveDownloads() []*DownloadItem {
	return m.downloadsInState(DownloadActive)
}

// GetPendingDownloads returns the queued transfers, oldest first.
func (m *Model) GetPendingDownloads() []*DownloadItem {
	return m.downloadsInState(DownloadPending)
}

// GetCompletedDownloads returns the finished transfers, oldest first.
func (m *Model) GetCompletedDownloads() []*DownloadItem {
	return m.downloadsInState(DownloadCompleted)
}

// GetDownloadStats returns the session-average transfer speed and a
// rough time estimate for the still-pending queue.
func (m *Model) GetDownloadStats() (avgSpeed float64, eta time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.totalCompleted == 0 {
		return 0, 0
	}

	elapsed := time.Since(m.sessionStartTime)
	avgSpeed = float64(m.totalBytes) / elapsed.Seconds()

	pending := 0
	for _, item := range m.downloads {
		if item.State == DownloadPending {
			pending++
		}
	}
	if pending > 0 {
		perFile := elapsed / time.Duration(m.totalCompleted+1)
		eta = perFile * time.Duration(pending)
	}
	return avgSpeed, eta
}

// FormatBytes renders a byte count using 1024-based units, "1.5 KB".
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	value := float64(bytes) / unit
	suffixes := "KMGTPE"
	idx := 0
	for value >= unit && idx < len(suffixes)-1 {
		value /= unit
		idx++
	}
	return fmt.Sprintf("%.1f %cB", value, suffixes[idx])
}

// FormatSpeed renders a transfer rate, "512.0 KB/s".
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}
