// Package ratelimit paces API listing calls and file transfers so a
// session stays under the archive's tolerated request rate.
//
// Two limiters are provided. TokenBucket refills continuously and lets
// a session spend saved-up budget in short spikes; SlidingWindow counts
// requests over a rolling interval and never exceeds it. ForRate picks
// between them from configuration:
//
//	limiter := ratelimit.ForRate(cfg.RequestsPerMinute, cfg.BurstSize, cfg.BurstEnabled)
//
//	if err := limiter.WaitContext(ctx); err != nil {
//	    return err
//	}
//	// slot acquired, fire the request
//
// Both implementations satisfy Limiter and are safe for concurrent use
// by the crawler and the download workers.
package ratelimit
