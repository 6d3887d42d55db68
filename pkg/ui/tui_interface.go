package ui

import "time"

// TUI is the slice of the dashboard the reporter layer drives: per-file
// lifecycle events, scan and rate limit gauges, and the activity log.
// Declared here so this package never imports the bubbletea model.
type TUI interface {
	StartDownload(id, postID, filename string)
	CompleteDownload(id string, size int64)
	SkipDownload(id string)
	FailDownload(id string, err error)
	UpdateScanProgress(postsSeen, totalPosts int)
	UpdateRateLimit(used, max int, resetAt time.Time)
	LogInfo(format string, args ...interface{})
	LogSuccess(format string, args ...interface{})
	LogWarning(format string, args ...interface{})
	LogError(format string, args ...interface{})
	IsPaused() bool
}
