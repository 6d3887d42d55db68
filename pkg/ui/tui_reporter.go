package ui

import (
	"sync"
	"time"

	"kemonograb/internal/downloader"
	"kemonograb/pkg/crawler"
	"kemonograb/pkg/kemono"
)

// TUIReporter adapts crawler progress events onto a TUI surface. The
// rate limit gauge counts listing requests against a one minute window
// sized by the configured request budget.
type TUIReporter struct {
	tui     TUI
	rateMax int
	refill  time.Duration

	mu          sync.Mutex
	totalPosts  int
	postsSeen   int
	windowStart time.Time
	windowUsed  int
}

var _ crawler.Reporter = (*TUIReporter)(nil)

// NewTUIReporter wraps a TUI as a crawler reporter. requestsPerMinute
// sizes the rate limit gauge.
func NewTUIReporter(t TUI, requestsPerMinute int) *TUIReporter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	return &TUIReporter{
		tui:     t,
		rateMax: requestsPerMinute,
		refill:  time.Minute / time.Duration(requestsPerMinute),
	}
}

// RunStarted seeds the scan counters and announces the target
func (r *TUIReporter) RunStarted(target kemono.Target, creator *kemono.Creator) {
	r.mu.Lock()
	name := target.Creator
	if creator != nil {
		if creator.Name != "" {
			name = creator.Name
		}
		r.totalPosts = creator.PostCount
	}
	r.windowStart = time.Now()
	totalPosts := r.totalPosts
	r.mu.Unlock()

	r.tui.LogInfo("Grabbing %s (%s/%s)", name, target.Service, target.Creator)
	r.tui.UpdateScanProgress(0, totalPosts)
	r.tui.UpdateRateLimit(0, r.rateMax, time.Now())
}

// PageFetched advances the scan counters and the rate gauge
func (r *TUIReporter) PageFetched(offset, posts int) {
	r.mu.Lock()
	r.postsSeen += posts
	now := time.Now()
	if now.Sub(r.windowStart) > time.Minute {
		r.windowStart = now
		r.windowUsed = 0
	}
	r.windowUsed++
	seen, total := r.postsSeen, r.totalPosts
	used, resetAt := r.windowUsed, r.windowStart.Add(time.Minute)
	r.mu.Unlock()

	r.tui.UpdateScanProgress(seen, total)
	r.tui.UpdateRateLimit(used, r.rateMax, resetAt)
}

// RateLimitPause pins the gauge and surfaces the pause in the log tail
func (r *TUIReporter) RateLimitPause() {
	r.tui.UpdateRateLimit(r.rateMax, r.rateMax, time.Now().Add(r.refill))
	r.tui.LogWarning("Rate limit reached, pausing")
}

// FileQueued adds a download row
func (r *TUIReporter) FileQueued(job downloader.DownloadJob) {
	r.tui.StartDownload(transferID(job), job.PostID, job.FileName)
}

// FileFinished resolves a download row by outcome
func (r *TUIReporter) FileFinished(result downloader.TransferResult) {
	id := transferID(result.Job)
	switch result.Outcome {
	case downloader.OutcomeComplete:
		r.tui.CompleteDownload(id, result.Bytes)
	case downloader.OutcomeSkipped:
		r.tui.SkipDownload(id)
	case downloader.OutcomeFailed:
		r.tui.FailDownload(id, result.Error)
	}
}

// RunFinished reports the terminal counts in the log tail
func (r *TUIReporter) RunFinished(summary *crawler.RunSummary) {
	r.tui.LogSuccess("Grab finished: %d files, %d already archived, %s",
		summary.Completed, summary.Skipped, formatBytes(summary.BytesWritten))
	if summary.Failed > 0 {
		r.tui.LogWarning("%d downloads failed", summary.Failed)
	}
}

// transferID names a download row. File names are unique within a post,
// so the pair identifies the transfer.
func transferID(job downloader.DownloadJob) string {
	return job.PostID + "/" + job.FileName
}
