package tui

import (
	"errors"
	"testing"
	"time"
)

func TestModelLifecycle(t *testing.T) {
	m := NewModel(3)

	m.AddDownload("p1/page_01.jpg", "p1", "page_01.jpg")
	m.AddDownload("p1/page_02.jpg", "p1", "page_02.jpg")
	if got := len(m.downloads); got != 2 {
		t.Fatalf("tracked %d rows, want 2", got)
	}

	m.StartDownload("p1/page_01.jpg")
	if m.activeDownloads != 1 {
		t.Errorf("activeDownloads = %d, want 1", m.activeDownloads)
	}
	if got := m.downloads["p1/page_01.jpg"].State; got != DownloadActive {
		t.Errorf("row state = %v, want DownloadActive", got)
	}

	m.CompleteDownload("p1/page_01.jpg", 512*1024)
	if m.activeDownloads != 0 {
		t.Errorf("activeDownloads = %d after completion, want 0", m.activeDownloads)
	}
	if m.totalCompleted != 1 {
		t.Errorf("totalCompleted = %d, want 1", m.totalCompleted)
	}
	if m.totalBytes != 512*1024 {
		t.Errorf("totalBytes = %d, want %d", m.totalBytes, 512*1024)
	}

	m.StartDownload("p1/page_02.jpg")
	active := m.GetActiveDownloads()
	if len(active) != 1 {
		t.Fatalf("active list holds %d rows, want 1", len(active))
	}
	if active[0].Filename != "page_02.jpg" {
		t.Errorf("active row = %s, want page_02.jpg", active[0].Filename)
	}
}

func TestModelSkipDropsRow(t *testing.T) {
	m := NewModel(2)

	m.AddDownload("p1/cover.png", "p1", "cover.png")
	m.StartDownload("p1/cover.png")
	m.SkipDownload("p1/cover.png")

	if m.totalSkipped != 1 {
		t.Errorf("totalSkipped = %d, want 1", m.totalSkipped)
	}
	if m.activeDownloads != 0 {
		t.Errorf("skip must release the slot, activeDownloads = %d", m.activeDownloads)
	}
	if len(m.downloads) != 0 || len(m.downloadOrder) != 0 {
		t.Errorf("skip must drop the row, still tracking %d/%d", len(m.downloads), len(m.downloadOrder))
	}
}

func TestModelFailKeepsRow(t *testing.T) {
	m := NewModel(2)

	m.AddDownload("p2/clip.mp4", "p2", "clip.mp4")
	m.StartDownload("p2/clip.mp4")
	m.FailDownload("p2/clip.mp4", errors.New("connection reset"))

	if m.totalFailed != 1 {
		t.Errorf("totalFailed = %d, want 1", m.totalFailed)
	}
	if m.activeDownloads != 0 {
		t.Errorf("failure must release the slot, activeDownloads = %d", m.activeDownloads)
	}
	// Failed rows stay visible so the operator sees what went wrong.
	row, ok := m.downloads["p2/clip.mp4"]
	if !ok {
		t.Fatal("failed row disappeared from the table")
	}
	if row.State != DownloadFailed {
		t.Errorf("row state = %v, want DownloadFailed", row.State)
	}
	if row.Error == nil {
		t.Error("failed row should carry its error")
	}
}

func TestModelScanProgress(t *testing.T) {
	m := NewModel(2)

	m.UpdateScanProgress(50, 120)
	if m.postsSeen != 50 || m.totalPosts != 120 {
		t.Errorf("scan progress = %d/%d, want 50/120", m.postsSeen, m.totalPosts)
	}
}

func TestModelRateLimit(t *testing.T) {
	m := NewModel(2)

	reset := time.Now().Add(time.Hour)
	m.UpdateRateLimit(42, 90, reset)
	if m.rateLimitUsed != 42 || m.rateLimitMax != 90 {
		t.Errorf("limiter gauge = %d/%d, want 42/90", m.rateLimitUsed, m.rateLimitMax)
	}
	if !m.rateLimitResetAt.Equal(reset) {
		t.Errorf("limiter reset = %v, want %v", m.rateLimitResetAt, reset)
	}
}

func TestModelActivityLog(t *testing.T) {
	m := NewModel(2)

	m.AddLogMessage(levelInfo, "Scanning page 1")
	m.AddLogMessage(levelError, "Transfer failed")

	if got := len(m.logMessages); got != 2 {
		t.Fatalf("log holds %d lines, want 2", got)
	}
	last := m.logMessages[len(m.logMessages)-1]
	if last.Message != "Transfer failed" || last.Level != levelError {
		t.Errorf("newest line = %s/%s", last.Level, last.Message)
	}
}

func TestDownloadStatsBeforeFirstCompletion(t *testing.T) {
	m := NewModel(2)

	speed, eta := m.GetDownloadStats()
	if speed != 0 || eta != 0 {
		t.Errorf("stats before any completion = %v/%v, want zeros", speed, eta)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0 TB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		speed float64
		want  string
	}{
		{100, "100 B/s"},
		{1536, "1.5 KB/s"},
		{512 * 1024, "512.0 KB/s"},
		{2.5 * 1024 * 1024, "2.5 MB/s"},
	}

	for _, tt := range tests {
		if got := FormatSpeed(tt.speed); got != tt.want {
			t.Errorf("FormatSpeed(%v) = %q, want %q", tt.speed, got, tt.want)
		}
	}
}
