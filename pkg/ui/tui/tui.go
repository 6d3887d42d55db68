package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Log levels understood by the TUI activity pane.
const (
	levelInfo    = "INFO"
	levelSuccess = "SUCCESS"
	levelWarning = "WARN"
	levelError   = "ERROR"
)

// TUI owns the bubbletea program and translates crawler events into
// messages for it. All methods are safe to call from worker goroutines.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI builds the dashboard sized for maxConcurrent download slots.
func NewTUI(maxConcurrent int) *TUI {
	model := NewModel(maxConcurrent)
	return &TUI{
		program: tea.NewProgram(&model, tea.WithAltScreen()),
		model:   &model,
	}
}

// Start runs the program until quit. It blocks, so callers run it on its
// own goroutine. The delayed tick kicks off the spinner once the program
// is receiving.
func (t *TUI) Start() error {
	go func() {
		time.Sleep(100 * time.Millisecond)
		t.program.Send(TickMsg(time.Now()))
	}()
	_, err := t.program.Run()
	return err
}

// Stop asks the program to quit.
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send forwards a raw message to the program.
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// StartDownload records a file entering the pipeline.
func (t *TUI) StartDownload(id, postID, filename string) {
	t.Send(SendDownloadStart(id, postID, filename))
}

// CompleteDownload records a finished transfer of size bytes.
func (t *TUI) CompleteDownload(id string, size int64) {
	t.Send(SendDownloadComplete(id, size))
}

// SkipDownload records a file the archive already held.
func (t *TUI) SkipDownload(id string) {
	t.Send(SendDownloadSkip(id))
}

// FailDownload records a transfer given up on after retries.
func (t *TUI) FailDownload(id string, err error) {
	t.Send(SendDownloadError(id, err))
}

// UpdateScanProgress refreshes the post scan counters.
func (t *TUI) UpdateScanProgress(postsSeen, totalPosts int) {
	t.Send(SendScanProgress(postsSeen, totalPosts))
}

// UpdateRateLimit refreshes the API budget gauge.
func (t *TUI) UpdateRateLimit(used, max int, resetAt time.Time) {
	t.Send(SendRateLimitUpdate(used, max, resetAt))
}

// Log appends a formatted line to the activity pane.
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(SendLog(level, fmt.Sprintf(format, args...)))
}

func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log(levelInfo, format, args...)
}

func (t *TUI) LogSuccess(format string, args ...interface{}) {
	t.Log(levelSuccess, format, args...)
}

func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log(levelWarning, format, args...)
}

func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log(levelError, format, args...)
}

// IsPaused reports whether the user toggled the pause key.
func (t *TUI) IsPaused() bool {
	t.model.mu.RLock()
	defer t.model.mu.RUnlock()
	return t.model.isPaused
}
