package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"kemonograb/internal/downloader"
	"kemonograb/pkg/checkpoint"
	"kemonograb/pkg/config"
	errs "kemonograb/pkg/errors"
	"kemonograb/pkg/kemono"
	"kemonograb/pkg/ledger"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/metadata"
	"kemonograb/pkg/ratelimit"
	"kemonograb/pkg/retry"
	"kemonograb/pkg/storage"
)

// Options selects what one run covers.
type Options struct {
	// Target is the creator to download.
	Target kemono.Target

	// Window restricts which listing pages are requested. The zero
	// value covers only offset 0; use AllPages() for a full crawl.
	Window Window

	// Filter drops posts by id after fetch. Nil downloads everything.
	Filter *PostFilter

	// Resume restarts pagination at the saved checkpoint offset.
	Resume bool

	// ForceRestart discards any saved checkpoint and starts over. File
	// level skips still come from the ledger either way.
	ForceRestart bool
}

// Crawler coordinates one creator download run end to end: pagination,
// extraction, dispatch to the download pool, progress accounting, and
// checkpointing.
type Crawler struct {
	config   *config.Config
	client   APIClient
	limiter  ratelimit.Limiter
	fs       afero.Fs
	reporter Reporter
	logger   logger.Logger
}

// New creates a crawler from the configuration.
func New(cfg *config.Config, log logger.Logger) (*Crawler, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	client, err := kemono.NewClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return &Crawler{
		config:   cfg,
		client:   client,
		limiter:  ratelimit.ForRate(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize, cfg.RateLimit.BurstEnabled),
		fs:       afero.NewOsFs(),
		reporter: NopReporter{},
		logger:   log,
	}, nil
}

// SetReporter installs a progress surface. Must be called before Run.
func (c *Crawler) SetReporter(r Reporter) {
	if r == nil {
		r = NopReporter{}
	}
	c.reporter = r
}

// SetClient substitutes the remote surface, used by tests to point a
// run at a local server. Must be called before Run.
func (c *Crawler) SetClient(client APIClient) {
	if client != nil {
		c.client = client
	}
}

// Run executes one download run and returns its summary. The summary is
// non-nil even when an error is returned, carrying whatever was
// accomplished before the run stopped. Cancelling ctx stops new work
// and lets in-flight transfers drain.
func (c *Crawler) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	start := time.Now()

	runID := uuid.New().String()
	summary := &RunSummary{
		Target:  opts.Target.String(),
		RunID:   runID,
		Reasons: make(map[errs.ErrorType]int),
	}

	if err := opts.Window.Validate(); err != nil {
		return summary, fmt.Errorf("invalid page window: %w", err)
	}

	log := c.logger.WithFields(map[string]interface{}{
		"target": opts.Target.String(),
		"run_id": runID,
	})

	log.InfoWithFields("Starting crawl", map[string]interface{}{
		"site":    opts.Target.Site,
		"service": opts.Target.Service,
		"creator": opts.Target.Creator,
	})

	outputRoot := c.config.Output.BaseDirectory

	mgr, err := checkpoint.NewManagerWithFS(c.fs, outputRoot, opts.Target.String())
	if err != nil {
		return summary, fmt.Errorf("failed to set up checkpoint manager: %w", err)
	}

	window := opts.Window
	cp, err := c.resolveCheckpoint(mgr, opts, runID, &window, log)
	if err != nil {
		return summary, err
	}

	led, err := ledger.OpenWithFS(c.fs, outputRoot)
	if err != nil {
		return summary, fmt.Errorf("failed to open progress ledger: %w", err)
	}
	defer led.Close()

	// Workers cancel this on a fatal outcome so the coordinating flow
	// stops feeding them.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	fetcher := NewPageFetcher(c.client, opts.Target, window, c.pageRetryConfig(), c.logger)

	page, pageErr := c.nextPage(runCtx, fetcher)
	if pageErr != nil {
		summary.Duration = time.Since(start)
		c.saveCheckpoint(mgr, cp, fetcher, summary, log)
		return summary, pageErr
	}

	profile := fetcher.Profile()
	displayName := ""
	if profile != nil {
		displayName = profile.Name
	}
	layout := storage.NewLayoutWithFS(c.fs, outputRoot, opts.Target.Site, opts.Target.Service, displayName, opts.Target.Creator)

	c.reporter.RunStarted(opts.Target, profile)

	if c.config.Download.VerifyExisting {
		c.sweepMissingFiles(led, layout, opts.Target.Creator, log)
	}

	writer := c.metadataWriter(layout, opts.Target)
	if c.config.Output.SaveProfileInfo && profile != nil {
		if err := metadata.NewWriter(layout, opts.Target, c.config.Output.PostInfoFormat).WriteProfile(*profile); err != nil {
			log.WarnWithFields("Failed to write profile info", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	pool := downloader.NewPool(downloader.Options{
		Workers:         c.config.Download.ConcurrentDownloads,
		PerHostLimit:    c.config.Download.PerHostLimit,
		TransferTimeout: c.config.Download.DownloadTimeout.Std(),
		MaxAttempts:     c.config.Retry.MaxAttempts,
	}, c.client, layout, led, c.limiter, c.logger)
	pool.Start()

	tally := newRunTally()
	tracker := newPageTracker()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.processResults(pool.Results(), tally, tracker, cancelRun, log)
	}()

	disp := &dispatcher{
		pool:         pool,
		extractor:    NewExtractor(c.logger),
		layout:       layout,
		writer:       writer,
		tracker:      tracker,
		reporter:     c.reporter,
		creator:      opts.Target.Creator,
		includeEmpty: c.config.Download.IncludeEmptyPosts,
		logger:       c.logger,
	}

	// With oldest-first processing the whole listing is buffered before
	// anything is dispatched, so page checkpoints are skipped: a
	// checkpoint claiming pages are done before their files were even
	// queued would make resume skip work. The ledger keeps the rerun
	// cheap instead.
	oldestFirst := c.config.Download.OldestFirst
	var buffered []pendingPost

	for page != nil {
		matched := filterPosts(page.Posts, opts.Filter)
		c.reporter.PageFetched(page.Offset, len(matched))

		if oldestFirst {
			for _, post := range matched {
				buffered = append(buffered, pendingPost{post: post, servers: page.Servers, offset: page.Offset})
			}
		} else {
			if !dispatchAll(runCtx, disp, matched, page.Servers, page.Offset) {
				break
			}
			cp.RecordOutcomes(tally.counts())
			// The saved offset never passes a page that still has
			// results outstanding; resuming there would skip files
			// the ledger has not recorded.
			if err := mgr.UpdatePage(cp, tracker.safeOffset(fetcher.NextOffset()), fetcher.PostsSeen()); err != nil {
				log.WarnWithFields("Failed to save checkpoint", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}

		if runCtx.Err() != nil {
			break
		}

		page, pageErr = c.nextPage(runCtx, fetcher)
		if pageErr != nil {
			break
		}
	}

	if oldestFirst && pageErr == nil && runCtx.Err() == nil {
		for i := len(buffered) - 1; i >= 0; i-- {
			if runCtx.Err() != nil {
				break
			}
			if !disp.dispatch(&buffered[i].post, buffered[i].servers, buffered[i].offset) {
				break
			}
		}
	}

	// On an aborted run, drop queued jobs instead of draining them.
	// Nothing promoted is ever partial, so cut transfers just become
	// failures that a later run redoes.
	if runCtx.Err() != nil {
		pool.Cancel()
	}
	pool.Stop()
	wg.Wait()

	tally.fill(summary)
	summary.Creator = displayName
	summary.PagesFetched = fetcher.PagesFetched()
	summary.PostsSeen = fetcher.PostsSeen()
	summary.Submitted = disp.submitted
	summary.Duration = time.Since(start)

	c.reporter.RunFinished(summary)

	runErr := pageErr
	if fatal := tally.fatalError(); fatal != nil {
		runErr = fatal
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	if runErr == nil {
		if err := mgr.Delete(); err != nil {
			log.WarnWithFields("Failed to remove checkpoint", map[string]interface{}{
				"error": err.Error(),
			})
		}
		log.InfoWithFields("Crawl finished", map[string]interface{}{
			"posts":     summary.PostsSeen,
			"completed": summary.Completed,
			"skipped":   summary.Skipped,
			"failed":    summary.Failed,
			"bytes":     summary.BytesWritten,
			"duration":  summary.Duration.String(),
		})
		return summary, nil
	}

	c.saveCheckpoint(mgr, cp, fetcher, summary, log)
	log.ErrorWithFields("Crawl aborted", map[string]interface{}{
		"error":     runErr.Error(),
		"completed": summary.Completed,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
	return summary, runErr
}

// resolveCheckpoint applies the resume/force-restart policy and returns
// the checkpoint this run writes to. On resume the saved offset moves
// the window start forward so already-walked pages are not re-fetched.
func (c *Crawler) resolveCheckpoint(mgr *checkpoint.Manager, opts Options, runID string, window *Window, log logger.Logger) (*checkpoint.Checkpoint, error) {
	switch {
	case opts.ForceRestart:
		if err := mgr.Delete(); err != nil {
			log.WarnWithFields("Failed to discard old checkpoint", map[string]interface{}{
				"error": err.Error(),
			})
		}

	case opts.Resume:
		loaded, err := mgr.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint for %s: %w", opts.Target, err)
		}
		if loaded != nil {
			if loaded.NextOffset > window.Start {
				window.Start = loaded.NextOffset
			}
			loaded.RunID = runID
			log.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
				"next_offset": loaded.NextOffset,
				"posts_seen":  loaded.PostsSeen,
			})
			if err := mgr.Save(loaded); err != nil {
				return nil, fmt.Errorf("failed to update checkpoint: %w", err)
			}
			return loaded, nil
		}

	default:
		if mgr.Exists() {
			return nil, fmt.Errorf("a checkpoint for %s exists - use --resume to continue or --force-restart to start over", opts.Target)
		}
	}

	cp, err := mgr.Create(opts.Target.String(), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}
	return cp, nil
}

// pageRetryConfig builds the retry policy for listing requests from the
// retry configuration. The context is filled in per call.
func (c *Crawler) pageRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts: c.config.Retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    c.config.Retry.BaseDelay.Std(),
			MaxDelay:     c.config.Retry.MaxDelay.Std(),
			Multiplier:   c.config.Retry.Multiplier,
			JitterFactor: c.config.Retry.JitterFactor,
		},
		RetryIf: retry.DefaultRetryIf,
		Logger:  c.logger,
	}
}

// nextPage paces the listing request against the shared rate budget and
// then asks the fetcher for the next page.
func (c *Crawler) nextPage(ctx context.Context, fetcher *PageFetcher) (*Page, error) {
	if !c.limiter.Allow() {
		c.reporter.RateLimitPause()
		c.logger.Debug("Rate limit reached - waiting before next listing page")
		if err := c.limiter.WaitContext(ctx); err != nil {
			return nil, err
		}
	}
	return fetcher.Next(ctx)
}

// metadataWriter returns the post info writer, or nil when post info
// files are disabled.
func (c *Crawler) metadataWriter(layout *storage.Layout, target kemono.Target) *metadata.Writer {
	if !c.config.Output.SavePostInfo {
		return nil
	}
	return metadata.NewWriter(layout, target, c.config.Output.PostInfoFormat)
}

// sweepMissingFiles retracts ledger entries whose final file is gone or
// has the wrong size, so those triples download again this run.
func (c *Crawler) sweepMissingFiles(led *ledger.Ledger, layout *storage.Layout, creator string, log logger.Logger) {
	var stale []ledger.Entry
	led.Range(func(e ledger.Entry) bool {
		if e.Creator != creator {
			return true
		}
		size, ok := layout.Stat(e.PostID, e.FileName)
		if !ok || (e.Bytes > 0 && size != e.Bytes) {
			stale = append(stale, e)
		}
		return true
	})

	for _, e := range stale {
		if err := led.Invalidate(e.Creator, e.PostID, e.FileName); err != nil {
			log.WarnWithFields("Failed to invalidate ledger entry", map[string]interface{}{
				"post":  e.PostID,
				"file":  e.FileName,
				"error": err.Error(),
			})
		}
	}

	if len(stale) > 0 {
		log.InfoWithFields("Invalidated completion records for missing files", map[string]interface{}{
			"count": len(stale),
		})
	}
}

// processResults drains the pool's result stream, keeping the tally and
// forwarding each outcome to the reporter. A fatal failure cancels the
// run so no further work is dispatched.
func (c *Crawler) processResults(results <-chan downloader.TransferResult, tally *runTally, tracker *pageTracker, cancelRun context.CancelFunc, log logger.Logger) {
	for result := range results {
		c.reporter.FileFinished(result)
		tracker.finished(jobKey(result.Job.PostID, result.Job.FileName))

		if tally.record(result) {
			log.ErrorWithFields("Fatal download error - stopping run", map[string]interface{}{
				"post":   result.Job.PostID,
				"file":   result.Job.FileName,
				"reason": string(result.Reason),
				"error":  result.Error.Error(),
			})
			cancelRun()
		}
	}
}

// saveCheckpoint persists the run's final counters on an abnormal exit
// so the next invocation can resume.
func (c *Crawler) saveCheckpoint(mgr *checkpoint.Manager, cp *checkpoint.Checkpoint, fetcher *PageFetcher, summary *RunSummary, log logger.Logger) {
	cp.RecordOutcomes(summary.Completed, summary.Skipped, summary.Failed)
	cp.PostsSeen = fetcher.PostsSeen()
	if err := mgr.Save(cp); err != nil {
		log.WarnWithFields("Failed to save checkpoint", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// pendingPost carries a post together with its page's server index, for
// oldest-first buffering.
type pendingPost struct {
	post    kemono.Post
	servers map[string]string
	offset  int
}

// filterPosts applies the post id filter to one page's posts.
func filterPosts(posts []kemono.Post, filter *PostFilter) []kemono.Post {
	if filter == nil {
		return posts
	}
	matched := make([]kemono.Post, 0, len(posts))
	for _, post := range posts {
		if filter.Match(post.ID) {
			matched = append(matched, post)
		}
	}
	return matched
}

// dispatchAll feeds one page's posts to the dispatcher, stopping early
// when the run is cancelled or the pool refuses work.
func dispatchAll(ctx context.Context, disp *dispatcher, posts []kemono.Post, servers map[string]string, pageOffset int) bool {
	for i := range posts {
		if ctx.Err() != nil {
			return false
		}
		if !disp.dispatch(&posts[i], servers, pageOffset) {
			return false
		}
	}
	return true
}

// dispatcher turns posts into pool jobs, writing post side files along
// the way.
type dispatcher struct {
	pool         *downloader.Pool
	extractor    *Extractor
	layout       *storage.Layout
	writer       *metadata.Writer
	tracker      *pageTracker
	reporter     Reporter
	creator      string
	includeEmpty bool
	logger       logger.Logger
	submitted    int
}

// dispatch extracts one post and submits its files. Returns false when
// the pool is no longer accepting jobs.
func (d *dispatcher) dispatch(post *kemono.Post, servers map[string]string, pageOffset int) bool {
	descriptors := d.extractor.Extract(post, servers)

	if len(descriptors) == 0 {
		if !d.includeEmpty {
			d.logger.DebugWithFields("Skipping post without files", map[string]interface{}{
				"post": post.ID,
			})
			return true
		}
		if d.writer != nil {
			if err := d.writer.WritePostInfo(post, nil); err != nil {
				d.logger.WarnWithFields("Failed to write post info", map[string]interface{}{
					"post":  post.ID,
					"error": err.Error(),
				})
			}
		} else if err := d.layout.Fs().MkdirAll(d.layout.PostDir(post.ID), 0755); err != nil {
			d.logger.WarnWithFields("Failed to create post directory", map[string]interface{}{
				"post":  post.ID,
				"error": err.Error(),
			})
		}
		return true
	}

	if d.writer != nil {
		names := make([]string, len(descriptors))
		for i, desc := range descriptors {
			names[i] = desc.FileName
		}
		if err := d.writer.WritePostInfo(post, names); err != nil {
			d.logger.WarnWithFields("Failed to write post info", map[string]interface{}{
				"post":  post.ID,
				"error": err.Error(),
			})
		}
	}

	for _, desc := range descriptors {
		job := downloader.DownloadJob{
			Creator:  d.creator,
			PostID:   desc.PostID,
			FileName: desc.FileName,
			URL:      desc.URL,
		}
		// Registered before Submit: the pool can deliver a skip result
		// synchronously, and the tracker must already know the job.
		key := jobKey(desc.PostID, desc.FileName)
		d.tracker.register(key, pageOffset)
		if err := d.pool.Submit(job); err != nil {
			d.tracker.unregister(key)
			d.logger.WarnWithFields("Stopping dispatch - pool rejected job", map[string]interface{}{
				"post":  desc.PostID,
				"file":  desc.FileName,
				"error": err.Error(),
			})
			return false
		}
		d.submitted++
		d.reporter.FileQueued(job)
	}

	return true
}

// jobKey identifies one submitted transfer. File names are unique within
// a post and post ids within a run, so the pair is unique.
func jobKey(postID, fileName string) string {
	return postID + "/" + fileName
}

// pageTracker records which listing page each outstanding job came from,
// so checkpoints only advance past pages whose results are all in.
type pageTracker struct {
	mu      sync.Mutex
	jobs    map[string]int
	pending map[int]int
}

func newPageTracker() *pageTracker {
	return &pageTracker{
		jobs:    make(map[string]int),
		pending: make(map[int]int),
	}
}

func (t *pageTracker) register(key string, pageOffset int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[key] = pageOffset
	t.pending[pageOffset]++
}

func (t *pageTracker) unregister(key string) {
	t.finished(key)
}

func (t *pageTracker) finished(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	offset, ok := t.jobs[key]
	if !ok {
		return
	}
	delete(t.jobs, key)
	t.pending[offset]--
	if t.pending[offset] <= 0 {
		delete(t.pending, offset)
	}
}

// safeOffset caps next at the oldest page that still has jobs in flight.
func (t *pageTracker) safeOffset(next int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for offset := range t.pending {
		if offset < next {
			next = offset
		}
	}
	return next
}

// runTally accumulates terminal outcomes across the collector goroutine
// and the coordinating flow.
type runTally struct {
	mu        sync.Mutex
	completed int
	skipped   int
	failed    int
	bytes     int64
	reasons   map[errs.ErrorType]int
	fatal     error
}

func newRunTally() *runTally {
	return &runTally{reasons: make(map[errs.ErrorType]int)}
}

// record tallies one result. It reports true the first time a fatal
// outcome arrives; later fatal results keep counting but do not
// re-trigger the abort.
func (t *runTally) record(result downloader.TransferResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch result.Outcome {
	case downloader.OutcomeComplete:
		t.completed++
		t.bytes += result.Bytes
	case downloader.OutcomeSkipped:
		t.skipped++
	case downloader.OutcomeFailed:
		t.failed++
		t.reasons[result.Reason]++
		if errs.IsFatal(result.Error) && t.fatal == nil {
			t.fatal = result.Error
			return true
		}
	}
	return false
}

func (t *runTally) counts() (completed, skipped, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.skipped, t.failed
}

func (t *runTally) fatalError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fatal
}

// fill copies the tally into a summary.
func (t *runTally) fill(s *RunSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s.Completed = t.completed
	s.Skipped = t.skipped
	s.Failed = t.failed
	s.BytesWritten = t.bytes
	for reason, n := range t.reasons {
		s.Reasons[reason] = n
	}
}
