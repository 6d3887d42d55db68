// Package retry wraps transient-failure handling for API paging and file
// transfers: an operation runs, its error is classified, and the package
// decides whether to run it again and how long to sleep first.
//
// Three backoff shapes are provided (exponential, linear, constant), all
// jittered so parallel workers never wake in lockstep. Every wait honors
// context cancellation, and the retry predicate is pluggable so callers can
// widen or narrow what counts as transient.
//
// The simplest entry point takes an operation and an optional Config:
//
//	err := retry.Do(func() error {
//		_, fetchErr := client.FetchPostsPage(ctx, target, offset)
//		return fetchErr
//	}, nil)
//
//	cfg := &retry.Config{
//		MaxAttempts: 4,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:    500 * time.Millisecond,
//			MaxDelay:     20 * time.Second,
//			Multiplier:   1.8,
//			JitterFactor: 0.2,
//		},
//		RetryIf: retry.DefaultRetryIf,
//		Logger:  logger.GetLogger(),
//	}
//	err := retry.Do(fetchPage, cfg)
//
// Network work against the content hosts should prefer the HTTP retrier,
// which picks a backoff per error class instead of one schedule for all:
//
//	retrier := retry.NewHTTPRetrier(3, logger.GetLogger())
//	err := retrier.DoWithErrorType(func() error {
//		stream, openErr := client.OpenFileStream(ctx, fileURL)
//		if openErr != nil {
//			return openErr
//		}
//		defer stream.Close()
//		return save(stream)
//	})
//
// Under DoWithErrorType, network errors get short exponential waits, rate
// limit errors get long gentle ones, and server errors sit in between.
// Auth and not-found errors are terminal and never retried.
package retry
