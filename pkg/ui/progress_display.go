package ui

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"kemonograb/internal/downloader"
	"kemonograb/pkg/crawler"
	errs "kemonograb/pkg/errors"
	"kemonograb/pkg/kemono"
)

// ProgressDisplay renders a grab as a clean, minimal progress line. It
// implements crawler.Reporter; events arrive from the run coordinator
// and the result collector concurrently.
type ProgressDisplay struct {
	mu             sync.Mutex
	creator        string
	totalPosts     int
	postsSeen      int
	completedCount int
	skippedCount   int
	failedCount    int
	currentFile    string
	startTime      time.Time
	lastUpdate     time.Time
	bytesGrabbed   int64
	isDebug        bool
}

var _ crawler.Reporter = (*ProgressDisplay)(nil)

// NewProgressDisplay creates a new progress display. In debug mode each
// file prints on its own line instead of updating in place.
func NewProgressDisplay(debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		isDebug:    debug,
	}
}

// RunStarted records the creator profile and prints the session header
func (p *ProgressDisplay) RunStarted(target kemono.Target, creator *kemono.Creator) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.creator = target.Creator
	if creator != nil {
		if creator.Name != "" {
			p.creator = creator.Name
		}
		p.totalPosts = creator.PostCount
	}

	fmt.Printf("%s %s (%s/%s)",
		Cyan("Grabbing"),
		Yellow(p.creator),
		target.Service,
		target.Creator,
	)
	if p.totalPosts > 0 {
		fmt.Printf(" %s", Dim(fmt.Sprintf("• %d posts", p.totalPosts)))
	}
	fmt.Println()
}

// PageFetched records a scanned listing page
func (p *ProgressDisplay) PageFetched(offset, posts int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.postsSeen += posts
	p.lastUpdate = time.Now()

	if p.isDebug {
		fmt.Printf("\n%s Scanning offset %d (%d posts)...\n", Magenta("→"), offset, posts)
	} else {
		p.printProgress()
	}
}

// RateLimitPause shows a rate limit pause
func (p *ProgressDisplay) RateLimitPause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Printf("\n%s Rate limit reached. Pausing...\n", Yellow("⚠"))
}

// FileQueued marks a file as entering the download pipeline
func (p *ProgressDisplay) FileQueued(job downloader.DownloadJob) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentFile = job.FileName
	p.lastUpdate = time.Now()

	if !p.isDebug {
		p.printProgress()
	}
}

// FileFinished records a terminal file outcome
func (p *ProgressDisplay) FileFinished(result downloader.TransferResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch result.Outcome {
	case downloader.OutcomeComplete:
		p.completedCount++
		p.bytesGrabbed += result.Bytes
		if p.isDebug {
			fmt.Printf("\n%s %s/%s • %s\n",
				Green("✓"),
				result.Job.PostID,
				result.Job.FileName,
				formatBytes(result.Bytes),
			)
		}
	case downloader.OutcomeSkipped:
		p.skippedCount++
		if p.isDebug {
			fmt.Printf("\n%s %s/%s already archived\n",
				Dim("•"),
				result.Job.PostID,
				result.Job.FileName,
			)
		}
	case downloader.OutcomeFailed:
		p.failedCount++
		if p.isDebug {
			fmt.Printf("\n%s Failed: %s/%s - %v\n",
				Red("✗"),
				result.Job.PostID,
				result.Job.FileName,
				result.Error,
			)
		}
	}

	p.lastUpdate = time.Now()
	if !p.isDebug {
		p.printProgress()
	}
}

// printProgress redraws the single in-place status line.
func (p *ProgressDisplay) printProgress() {
	const barWidth = 20

	elapsed := time.Since(p.startTime)
	rate := float64(p.completedCount) / elapsed.Minutes()

	bar := strings.Repeat("─", barWidth)
	if p.totalPosts > 0 {
		progress := float64(p.postsSeen) / float64(p.totalPosts)
		if progress > 1 {
			progress = 1
		}
		done := int(progress * float64(barWidth))
		bar = strings.Repeat("━", done) + strings.Repeat("─", barWidth-done)
	}

	line := fmt.Sprintf("%s [%s] %d/%d posts • %d files • %.1f/min • %s • %s",
		Cyan(p.creator),
		bar,
		p.postsSeen,
		p.totalPosts,
		p.completedCount,
		rate,
		formatBytes(p.bytesGrabbed),
		p.etaText(),
	)

	if p.skippedCount > 0 {
		line += " • " + Dim(fmt.Sprintf("%d cached", p.skippedCount))
	}
	if p.currentFile != "" {
		line += " • " + p.currentFile
	}
	if p.failedCount > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failedCount))
	}

	fmt.Print("\r", strings.Repeat(" ", 120), "\r", line)
}

// RunFinished prints the session summary
func (p *ProgressDisplay) RunFinished(summary *crawler.RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := summary.Duration

	fmt.Printf("\n\n%s Grabbed %d files from %s\n",
		Green("✓"),
		summary.Completed,
		p.creator,
	)

	fmt.Printf("  %s %s in %s (%.1f files/min)\n",
		Dim("•"),
		formatBytes(summary.BytesWritten),
		formatDuration(elapsed),
		float64(summary.Completed)/elapsed.Minutes(),
	)

	if summary.Skipped > 0 {
		fmt.Printf("  %s %d files already archived\n",
			Dim("•"),
			summary.Skipped,
		)
	}

	if summary.Failed > 0 {
		fmt.Printf("  %s %d downloads failed%s\n",
			Dim("•"),
			summary.Failed,
			p.formatReasons(summary),
		)
	}
}

// formatReasons renders the failure breakdown, sorted for stable output
func (p *ProgressDisplay) formatReasons(summary *crawler.RunSummary) string {
	if len(summary.Reasons) == 0 {
		return ""
	}
	reasons := make([]string, 0, len(summary.Reasons))
	for reason := range summary.Reasons {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		parts = append(parts, fmt.Sprintf("%d %s", summary.Reasons[errs.ErrorType(reason)], reason))
	}
	return Dim(fmt.Sprintf(" (%s)", strings.Join(parts, ", ")))
}

// etaText estimates time remaining from the post scan rate.
func (p *ProgressDisplay) etaText() string {
	if p.postsSeen == 0 || p.totalPosts == 0 {
		return "estimating..."
	}

	remaining := p.totalPosts - p.postsSeen
	if remaining <= 0 {
		return "finishing..."
	}

	rate := float64(p.postsSeen) / time.Since(p.startTime).Seconds()
	if rate <= 0 {
		return "estimating..."
	}

	return formatDuration(time.Duration(float64(remaining)/rate) * time.Second)
}

// formatDuration renders a compact duration, "3m12s".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// formatBytes renders a 1024-based size, "3.4 MB".
func formatBytes(bytes int64) string {
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
