package ui

import (
	"testing"

	"kemonograb/pkg/config"
	"kemonograb/pkg/crawler"
)

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

func newTestNotifier() (*Notifier, *recordingSender) {
	sender := &recordingSender{}
	return &Notifier{sender: sender}, sender
}

func TestNotifyingReporterRunOutcomes(t *testing.T) {
	prefs := config.NotificationConfig{
		Enabled:     true,
		OnComplete:  true,
		OnError:     true,
		OnRateLimit: true,
	}

	notifier, sender := newTestNotifier()
	rep := NewNotifyingReporter(crawler.NopReporter{}, notifier, prefs, "kemono.su:patreon:12345")

	rep.RunFinished(&crawler.RunSummary{Completed: 4, Skipped: 2})
	if len(sender.titles) != 1 || sender.titles[0] != "Grab complete" {
		t.Fatalf("expected a completion notification, got %v", sender.titles)
	}

	rep.RunFinished(&crawler.RunSummary{Completed: 3, Failed: 1})
	if len(sender.titles) != 2 || sender.titles[1] != "Grab finished with failures" {
		t.Fatalf("expected a failure notification, got %v", sender.titles)
	}

	rep.RateLimitPause()
	if len(sender.titles) != 3 || sender.titles[2] != "Rate limit pause" {
		t.Fatalf("expected a rate limit notification, got %v", sender.titles)
	}
}

func TestNotifyingReporterPreferences(t *testing.T) {
	notifier, sender := newTestNotifier()
	rep := NewNotifyingReporter(nil, notifier, config.NotificationConfig{Enabled: true}, "kemono.su:patreon:12345")

	rep.RunFinished(&crawler.RunSummary{Completed: 4})
	rep.RunFinished(&crawler.RunSummary{Failed: 2})
	rep.RateLimitPause()

	if len(sender.titles) != 0 {
		t.Fatalf("expected no notifications with all preferences off, got %v", sender.titles)
	}
}
