package crawler

import (
	"context"
	"time"

	"kemonograb/internal/downloader"
	errs "kemonograb/pkg/errors"
	"kemonograb/pkg/kemono"
)

// ListingClient is the paginated listing surface the fetcher needs.
type ListingClient interface {
	// FetchPostsPage fetches one listing page for a creator at the
	// given post offset.
	FetchPostsPage(ctx context.Context, target kemono.Target, offset int) (*kemono.PostsLegacyResponse, error)
}

// APIClient is the full remote surface a run needs: listing pages for
// pagination plus raw file streams for the download pool. *kemono.Client
// implements it; tests substitute mocks.
type APIClient interface {
	ListingClient
	downloader.FileStreamer
}

// Reporter receives progress events during a run. Implementations render
// them however they like: colored console lines, a single-line progress
// display, or a live TUI. File events arrive from the result collector
// goroutine while page events arrive from the coordinating flow, so
// implementations must be safe for concurrent use.
type Reporter interface {
	// RunStarted fires once pagination has begun. creator carries the
	// profile from the first page and may be nil when the listing
	// returned nothing.
	RunStarted(target kemono.Target, creator *kemono.Creator)

	// PageFetched fires after each listing page, with the count of
	// posts that survived dedup and filtering.
	PageFetched(offset, posts int)

	// RateLimitPause fires when the pacing budget is exhausted and the
	// run is about to wait for the next request slot.
	RateLimitPause()

	// FileQueued fires when a job enters the download pool.
	FileQueued(job downloader.DownloadJob)

	// FileFinished fires once per file descriptor with its terminal
	// outcome.
	FileFinished(result downloader.TransferResult)

	// RunFinished fires after the pool has drained, successful or not.
	RunFinished(summary *RunSummary)
}

// NopReporter discards every event. It is the default when the caller
// does not install a surface.
type NopReporter struct{}

func (NopReporter) RunStarted(kemono.Target, *kemono.Creator) {}
func (NopReporter) PageFetched(int, int)                      {}
func (NopReporter) RateLimitPause()                           {}
func (NopReporter) FileQueued(downloader.DownloadJob)         {}
func (NopReporter) FileFinished(downloader.TransferResult)    {}
func (NopReporter) RunFinished(*RunSummary)                   {}

var _ Reporter = NopReporter{}

// RunSummary is what a finished run reports: terminal counts per
// outcome, bytes written, the failure breakdown, and timing.
type RunSummary struct {
	Target       string
	RunID        string
	Creator      string
	PagesFetched int
	PostsSeen    int
	Submitted    int
	Completed    int
	Skipped      int
	Failed       int
	BytesWritten int64
	Reasons      map[errs.ErrorType]int
	Duration     time.Duration
}
