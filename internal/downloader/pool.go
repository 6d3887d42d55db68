package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	errs "kemonograb/pkg/errors"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/ratelimit"
	"kemonograb/pkg/retry"

	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"
)

// DownloadJob identifies one file to transfer: the resolved source URL
// plus the (creator, post, filename) triple that names it in the ledger
// and on disk.
type DownloadJob struct {
	Creator  string
	PostID   string
	FileName string
	URL      string
}

// Outcome is the terminal state of one job
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// TransferResult reports the terminal outcome for one job. Every
// submitted job produces exactly one result.
type TransferResult struct {
	Job      DownloadJob
	Outcome  Outcome
	Reason   errs.ErrorType // failure classification, empty otherwise
	Error    error
	Duration time.Duration
	Bytes    int64
}

// FileStreamer opens source URLs for streaming
type FileStreamer interface {
	OpenFileStream(ctx context.Context, fileURL string) (io.ReadCloser, int64, error)
}

// TransferStore writes transfers into the output tree
type TransferStore interface {
	CreateTemp(postID, fileName string) (afero.File, error)
	Promote(postID, fileName string) error
	DiscardTemp(postID, fileName string) error
}

// CompletionLedger answers and records per-file completion
type CompletionLedger interface {
	IsComplete(creator, post, fileName string) bool
	MarkComplete(creator, post, fileName string, size int64) error
}

// Options tunes the worker pool
type Options struct {
	// Workers is the global cap on simultaneous transfers
	Workers int
	// PerHostLimit bounds simultaneous transfers per origin host, 0
	// disables the cap
	PerHostLimit int
	// TransferTimeout is the overall budget for one job including all
	// retry attempts, 0 disables the deadline
	TransferTimeout time.Duration
	// MaxAttempts is the per-job attempt budget before Failed
	MaxAttempts int
}

// Pool runs transfers on a fixed set of workers. Jobs are dispatched in
// submission order to the first free worker; a job whose triple the
// ledger already records short-circuits to a Skipped result without
// taking a worker slot.
type Pool struct {
	opts        Options
	jobQueue    chan DownloadJob
	resultQueue chan TransferResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	client  FileStreamer
	store   TransferStore
	ledger  CompletionLedger
	limiter ratelimit.Limiter
	retrier *retry.HTTPRetrier
	logger  logger.Logger

	hostMu    sync.Mutex
	hostSlots map[string]*semaphore.Weighted
}

// NewPool creates a download worker pool. The limiter may be nil for
// unpaced transfers; client, store, and ledger are required.
func NewPool(
	opts Options,
	client FileStreamer,
	store TransferStore,
	ledger CompletionLedger,
	limiter ratelimit.Limiter,
	log logger.Logger,
) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		opts:        opts,
		jobQueue:    make(chan DownloadJob, opts.Workers*2), // Buffer size = 2x workers
		resultQueue: make(chan TransferResult, opts.Workers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		store:       store,
		ledger:      ledger,
		limiter:     limiter,
		retrier:     retry.NewHTTPRetrier(opts.MaxAttempts, log),
		logger:      log,
		hostSlots:   make(map[string]*semaphore.Weighted),
	}
}

// Start initializes and starts all workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting download pool", map[string]interface{}{
		"workers":      p.opts.Workers,
		"per_host":     p.opts.PerHostLimit,
		"max_attempts": p.opts.MaxAttempts,
	})

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, waits for queued jobs to drain, and closes the
// result channel. Submit must not be called after Stop.
func (p *Pool) Stop() {
	p.logger.Info("Stopping download pool...")

	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()

	p.logger.Info("Download pool stopped")
}

// Cancel aborts queued work: in-flight transfers wind down, queued jobs
// are dropped without results. Stop must still be called to release the
// pool.
func (p *Pool) Cancel() {
	p.cancel()
}

// Submit queues one job. When the ledger already records the job's
// triple, a Skipped result is emitted immediately and no worker slot is
// used.
func (p *Pool) Submit(job DownloadJob) error {
	// Refuse new work once cancelled, before racing the queue send
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("download pool is shutting down")
	default:
	}

	if p.ledger.IsComplete(job.Creator, job.PostID, job.FileName) {
		result := TransferResult{Job: job, Outcome: OutcomeSkipped}
		select {
		case p.resultQueue <- result:
			p.logger.DebugWithFields("Job skipped, already recorded", map[string]interface{}{
				"post": job.PostID,
				"file": job.FileName,
			})
			return nil
		case <-p.ctx.Done():
			return fmt.Errorf("download pool is shutting down")
		}
	}

	select {
	case p.jobQueue <- job:
		p.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"post": job.PostID,
			"file": job.FileName,
		})
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("download pool is shutting down")
	}
}

// Results returns the result channel for consuming transfer results
func (p *Pool) Results() <-chan TransferResult {
	return p.resultQueue
}

// worker is the main worker routine
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugWithFields("Worker started", map[string]interface{}{
		"worker_id": id,
	})

	for job := range p.jobQueue {
		select {
		case <-p.ctx.Done():
			p.logger.DebugWithFields("Worker stopping - pool cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return
		default:
		}

		result := p.processJob(job, id)

		select {
		case p.resultQueue <- result:
		case <-p.ctx.Done():
			p.logger.DebugWithFields("Worker stopping - pool cancelled while reporting", map[string]interface{}{
				"worker_id": id,
			})
			return
		}
	}

	p.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

// GetQueueSize returns the current number of jobs in the queue
func (p *Pool) GetQueueSize() int {
	return len(p.jobQueue)
}

// GetActiveWorkers returns the number of active workers
func (p *Pool) GetActiveWorkers() int {
	return p.opts.Workers
}
