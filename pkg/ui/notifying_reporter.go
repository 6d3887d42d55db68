package ui

import (
	"fmt"

	"kemonograb/pkg/config"
	"kemonograb/pkg/crawler"
)

// NotifyingReporter layers desktop notifications over another progress
// surface. Run events pass through to the wrapped reporter; rate limit
// pauses and the final outcome additionally raise a notification
// according to the configured preferences.
type NotifyingReporter struct {
	crawler.Reporter
	notifier *Notifier
	prefs    config.NotificationConfig
	target   string
}

var _ crawler.Reporter = (*NotifyingReporter)(nil)

// NewNotifyingReporter wraps base with desktop notifications for target.
// A nil base discards the passed-through events.
func NewNotifyingReporter(base crawler.Reporter, notifier *Notifier, prefs config.NotificationConfig, target string) *NotifyingReporter {
	if base == nil {
		base = crawler.NopReporter{}
	}
	return &NotifyingReporter{
		Reporter: base,
		notifier: notifier,
		prefs:    prefs,
		target:   target,
	}
}

// RateLimitPause forwards the event and notifies when rate limit
// notifications are enabled.
func (n *NotifyingReporter) RateLimitPause() {
	n.Reporter.RateLimitPause()
	if n.prefs.OnRateLimit {
		n.notifier.SendNotification("Rate limit pause",
			fmt.Sprintf("Waiting out the request budget for %s", n.target))
	}
}

// RunFinished forwards the summary and notifies with the run outcome.
func (n *NotifyingReporter) RunFinished(summary *crawler.RunSummary) {
	n.Reporter.RunFinished(summary)

	if summary.Failed > 0 {
		if n.prefs.OnError {
			n.notifier.SendError("Grab finished with failures",
				fmt.Sprintf("%s: %d new files, %d failed", n.target, summary.Completed, summary.Failed))
		}
		return
	}
	if n.prefs.OnComplete {
		n.notifier.SendSuccess("Grab complete",
			fmt.Sprintf("%s: %d new files, %d already archived", n.target, summary.Completed, summary.Skipped))
	}
}
