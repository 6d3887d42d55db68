package downloader

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"time"

	errs "kemonograb/pkg/errors"

	"golang.org/x/sync/semaphore"
)

// processJob runs one job to its terminal outcome. The worker slot is
// held for the whole job, including every retry attempt, so a job never
// occupies more than one slot.
func (p *Pool) processJob(job DownloadJob, workerID int) TransferResult {
	start := time.Now()

	p.logger.DebugWithFields("Worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"post":      job.PostID,
		"file":      job.FileName,
	})

	ctx := p.ctx
	if p.opts.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.opts.TransferTimeout)
		defer cancel()
	}

	if sem := p.hostSlot(job.URL); sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return p.failed(job, start, 0, err)
		}
		defer sem.Release(1)
	}

	if p.limiter != nil && !p.limiter.Allow() {
		if err := p.limiter.WaitContext(ctx); err != nil {
			return p.failed(job, start, 0, err)
		}
	}

	var written int64
	transferErr := p.retrier.WithContext(ctx).DoWithErrorType(func() error {
		n, err := p.transferOnce(ctx, job)
		written = n
		return err
	})

	if transferErr != nil {
		if err := p.store.DiscardTemp(job.PostID, job.FileName); err != nil {
			p.logger.WarnWithFields("Failed to remove temp file", map[string]interface{}{
				"post":  job.PostID,
				"file":  job.FileName,
				"error": err.Error(),
			})
		}
		return p.failed(job, start, written, transferErr)
	}

	// The completion mark must be durable before the success is
	// reported; a success the ledger never recorded would be skipped
	// incorrectly on the next run's invalidation sweep, not re-verified.
	if err := p.ledger.MarkComplete(job.Creator, job.PostID, job.FileName, written); err != nil {
		return p.failed(job, start, written, err)
	}

	p.logger.DebugWithFields("Worker completed job", map[string]interface{}{
		"worker_id": workerID,
		"post":      job.PostID,
		"file":      job.FileName,
		"bytes":     written,
		"duration":  time.Since(start),
	})

	return TransferResult{
		Job:      job,
		Outcome:  OutcomeComplete,
		Duration: time.Since(start),
		Bytes:    written,
	}
}

// transferOnce performs a single attempt: stream to the temp file,
// verify the announced length, promote onto the final path. A failed
// attempt leaves the temp file behind; the next attempt truncates it
// and the terminal failure path discards it.
func (p *Pool) transferOnce(ctx context.Context, job DownloadJob) (int64, error) {
	body, expected, err := p.client.OpenFileStream(ctx, job.URL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	tmp, err := p.store.CreateTemp(job.PostID, job.FileName)
	if err != nil {
		return 0, err
	}

	written, copyErr := io.Copy(tmp, body)
	if copyErr != nil {
		tmp.Close()
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		var pathErr *fs.PathError
		if errors.As(copyErr, &pathErr) {
			return written, errs.Newf(errs.ErrorTypeLocalIO, "failed writing %s: %v", job.FileName, copyErr)
		}
		return written, errs.Newf(errs.ErrorTypeNetwork, "transfer interrupted after %d bytes: %v", written, copyErr)
	}

	if expected >= 0 && written != expected {
		tmp.Close()
		return written, errs.Newf(errs.ErrorTypeSizeMismatch, "received %d bytes, expected %d", written, expected)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return written, errs.Newf(errs.ErrorTypeLocalIO, "failed to sync %s: %v", job.FileName, err)
	}
	if err := tmp.Close(); err != nil {
		return written, errs.Newf(errs.ErrorTypeLocalIO, "failed to close %s: %v", job.FileName, err)
	}

	if err := p.store.Promote(job.PostID, job.FileName); err != nil {
		return written, err
	}
	return written, nil
}

// failed builds the Failed result for a job, classifying the cause
func (p *Pool) failed(job DownloadJob, start time.Time, bytes int64, err error) TransferResult {
	reason := errs.Classify(err)

	p.logger.ErrorWithFields("Transfer failed", map[string]interface{}{
		"post":   job.PostID,
		"file":   job.FileName,
		"reason": string(reason),
		"error":  err.Error(),
	})

	return TransferResult{
		Job:      job,
		Outcome:  OutcomeFailed,
		Reason:   reason,
		Error:    err,
		Duration: time.Since(start),
		Bytes:    bytes,
	}
}

// hostSlot returns the weighted semaphore bounding simultaneous
// transfers against the job URL's origin host, or nil when the per-host
// limit is disabled or the host cannot be derived.
func (p *Pool) hostSlot(rawURL string) *semaphore.Weighted {
	if p.opts.PerHostLimit <= 0 {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	p.hostMu.Lock()
	defer p.hostMu.Unlock()

	sem, ok := p.hostSlots[u.Host]
	if !ok {
		sem = semaphore.NewWeighted(int64(p.opts.PerHostLimit))
		p.hostSlots[u.Host] = sem
	}
	return sem
}
