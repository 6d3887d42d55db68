package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	barFull  = "█"
	barEmpty = "░"
)

// StatusTracker keeps running counts for a grab session. It backs the
// plain console output path when neither the progress display nor the
// TUI is active.
type StatusTracker struct {
	TotalCompleted int
	TotalSkipped   int
	TotalFailed    int
	TotalPosts     int
	PostsSeen      int
	StartTime      time.Time
}

// NewStatusTracker creates a new status tracker. totalPosts is the
// creator's announced post count, 0 when unknown.
func NewStatusTracker(totalPosts int) *StatusTracker {
	return &StatusTracker{
		TotalPosts: totalPosts,
		StartTime:  time.Now(),
	}
}

// RecordCompleted increments the completed file counter
func (st *StatusTracker) RecordCompleted() {
	st.TotalCompleted++
}

// RecordSkipped increments the skipped file counter
func (st *StatusTracker) RecordSkipped() {
	st.TotalSkipped++
}

// RecordFailed increments the failed file counter
func (st *StatusTracker) RecordFailed() {
	st.TotalFailed++
}

// RecordPosts adds a page's worth of posts to the scanned total
func (st *StatusTracker) RecordPosts(count int) {
	st.PostsSeen += count
}

// GetScanProgress renders the post scan as a bar, or a bare count when
// the creator's total is unknown.
func (st *StatusTracker) GetScanProgress() string {
	if st.TotalPosts <= 0 {
		return fmt.Sprintf("%d posts", st.PostsSeen)
	}
	const barWidth = 20
	pct := float64(st.PostsSeen) / float64(st.TotalPosts)
	if pct > 1 {
		pct = 1
	}
	done := int(pct * barWidth)
	bar := strings.Repeat(barFull, done) + strings.Repeat(barEmpty, barWidth-done)
	return fmt.Sprintf("[%s] %d/%d", bar, st.PostsSeen, st.TotalPosts)
}

// GetElapsedTime reports how long the session has been running.
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetDownloadRate returns the session average in files per minute.
func (st *StatusTracker) GetDownloadRate() float64 {
	minutes := time.Since(st.StartTime).Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(st.TotalCompleted) / minutes
}

// PrintProgress redraws the one-line summary in place.
func (st *StatusTracker) PrintProgress() {
	fmt.Printf("\r%s %d ok | %d skipped | %d failed | %s",
		Green("[GRABBED]"),
		st.TotalCompleted,
		st.TotalSkipped,
		st.TotalFailed,
		st.GetScanProgress())
}

// PrintScanStatus prints the current page scanning status
func (st *StatusTracker) PrintScanStatus(offset int) {
	fmt.Printf("\n%s offset %d %s\n", Magenta("[SCANNING]"), offset, Yellow(st.GetScanProgress()))
}

// GetCompletedCount returns the total number of completed files
func (st *StatusTracker) GetCompletedCount() int {
	return st.TotalCompleted
}

// SetCompletedCount sets the completed count (used for resuming)
func (st *StatusTracker) SetCompletedCount(count int) {
	st.TotalCompleted = count
}
