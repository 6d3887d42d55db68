package integration

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"kemonograb/pkg/crawler"
	errs "kemonograb/pkg/errors"
)

// pageHookReporter runs a callback after each fetched listing page,
// before that page's posts are dispatched. Tests use it to mutate the
// mock collection at an exact point mid-run.
type pageHookReporter struct {
	crawler.NopReporter
	onPage func(offset, posts int)
}

func (r *pageHookReporter) PageFetched(offset, posts int) {
	if r.onPage != nil {
		r.onPage(offset, posts)
	}
}

// TestFullRunDownloadsCollection walks a two-page collection end to end
// and checks the files, side state, and summary counters.
func TestFullRunDownloadsCollection(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(51)
	mock.SeedPost("album9", "Bonus album", "one.jpg", "two.jpg", "three.jpg")

	cfg := helper.CreateTestConfig()
	c := helper.CreateCrawler(cfg)

	summary, err := c.Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(2, summary.PagesFetched)
	helper.AssertEqual(52, summary.PostsSeen)
	helper.AssertEqual(54, summary.Submitted)
	helper.AssertEqual(54, summary.Completed)
	helper.AssertEqual(0, summary.Skipped)
	helper.AssertEqual(0, summary.Failed)
	helper.AssertEqual("Test Creator", summary.Creator)
	helper.AssertEqual(int64(54*1024), summary.BytesWritten)

	layout := helper.CreatorLayout(cfg, "Test Creator")
	helper.AssertEqual(54, helper.CountFiles(filepath.Join(layout.CreatorRoot(), "posts")))
	helper.AssertFileBytes(layout.FilePath("post0001", "art.jpg"), mock.FileContent("post0001", "art.jpg"))
	helper.AssertFileBytes(layout.FilePath("album9", "two.jpg"), mock.FileContent("album9", "two.jpg"))

	if helper.CheckpointExists(cfg) {
		t.Error("Expected checkpoint to be removed after a clean run")
	}
	helper.AssertFileExists(filepath.Join(cfg.Output.BaseDirectory, ".kemonograb", "ledger.jsonl"))
}

// TestRerunDownloadsNothing checks that a second run over the same
// collection skips every file without touching the network.
func TestRerunDownloadsNothing(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(5)

	cfg := helper.CreateTestConfig()
	opts := crawler.Options{Target: testTarget(), Window: crawler.AllPages()}

	first, err := helper.CreateCrawler(cfg).Run(context.Background(), opts)
	helper.AssertNoError(err)
	helper.AssertEqual(5, first.Completed)
	helper.AssertEqual(5, mock.GetTotalFileRequests())

	second, err := helper.CreateCrawler(cfg).Run(context.Background(), opts)
	helper.AssertNoError(err)
	helper.AssertEqual(0, second.Completed)
	helper.AssertEqual(5, second.Skipped)
	helper.AssertEqual(5, mock.GetTotalFileRequests(), "rerun should not re-download any file")
}

// TestResumeAfterAbortedRun aborts a crawl on a broken listing page,
// then resumes it and checks that every file was fetched exactly once
// across both runs.
func TestResumeAfterAbortedRun(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(60)
	mock.SetListingError(50, http.StatusInternalServerError)

	cfg := helper.CreateTestConfig()

	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertError(err)
	helper.AssertErrorContains(err, "offset 50")
	helper.AssertEqual(50, summary.Completed, "first page's files should all land before the abort")
	helper.AssertEqual(3, mock.GetListingRequests(50), "broken page should be retried until the budget runs out")
	if !helper.CheckpointExists(cfg) {
		t.Fatal("Expected a checkpoint after the aborted run")
	}

	// Without --resume the crawler refuses to touch a target that has a
	// checkpoint, before any request goes out.
	before := mock.GetRequestCount()
	_, err = helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertErrorContains(err, "--resume")
	helper.AssertEqual(before, mock.GetRequestCount(), "refused run should make no requests")

	mock.ClearListingError(50)
	resumed, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
		Resume: true,
	})
	helper.AssertNoError(err)
	helper.AssertEqual(10, resumed.Completed)

	layout := helper.CreatorLayout(cfg, "Test Creator")
	helper.AssertEqual(60, helper.CountFiles(filepath.Join(layout.CreatorRoot(), "posts")))
	for i := 1; i <= 60; i++ {
		id := fmt.Sprintf("post%04d", i)
		if n := mock.GetFileRequests(id, "art.jpg"); n != 1 {
			t.Errorf("Expected exactly one data request for %s, got %d", id, n)
		}
	}
	if helper.CheckpointExists(cfg) {
		t.Error("Expected checkpoint to be removed after the resumed run finished")
	}
}

// TestNewPostDuringCrawlDoesNotDuplicate uploads a post mid-crawl, which
// shifts every page boundary, and checks that the post repeated on the
// next page is downloaded only once.
func TestNewPostDuringCrawlDoesNotDuplicate(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(55)

	cfg := helper.CreateTestConfig()
	c := helper.CreateCrawler(cfg)
	c.SetReporter(&pageHookReporter{onPage: func(offset, posts int) {
		if offset == 0 {
			mock.InsertPost("brandnew", "Fresh upload", "new.jpg")
		}
	}})

	summary, err := c.Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(55, summary.PostsSeen, "shifted post should be suppressed as a duplicate")
	helper.AssertEqual(55, summary.Completed)
	helper.AssertEqual(1, mock.GetFileRequests("post0050", "art.jpg"))
	helper.AssertEqual(0, mock.GetFileRequests("brandnew", "new.jpg"), "post above the crawl position belongs to the next run")

	layout := helper.CreatorLayout(cfg, "Test Creator")
	helper.AssertFileNotExists(layout.FilePath("brandnew", "new.jpg"))
}

// TestPaginationStopsAtShortPage checks that a partial page ends the
// crawl without probing the next offset.
func TestPaginationStopsAtShortPage(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(30)

	cfg := helper.CreateTestConfig()
	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(1, summary.PagesFetched)
	helper.AssertEqual(30, summary.Completed)
	helper.AssertEqual(1, mock.GetListingRequests(0))
	helper.AssertEqual(0, mock.GetListingRequests(50), "short page already ends the collection")
}

// TestEmptyCollection checks that a creator without posts finishes
// cleanly.
func TestEmptyCollection(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	helper.SetupMockServer()

	cfg := helper.CreateTestConfig()
	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(1, summary.PagesFetched)
	helper.AssertEqual(0, summary.PostsSeen)
	helper.AssertEqual(0, summary.Submitted)
	helper.AssertEqual(0, summary.Completed)
	if helper.CheckpointExists(cfg) {
		t.Error("Expected no checkpoint after a clean empty run")
	}
}

// TestFailedFileIsolatedAndRedone checks that one broken file neither
// stops the run nor poisons the ledger, and that a later run picks up
// exactly the missing file.
func TestFailedFileIsolatedAndRedone(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(4)
	mock.FailFile("post0002", "art.jpg", http.StatusNotFound)

	cfg := helper.CreateTestConfig()
	opts := crawler.Options{Target: testTarget(), Window: crawler.AllPages()}

	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), opts)
	helper.AssertNoError(err, "a single failed file should not fail the run")
	helper.AssertEqual(3, summary.Completed)
	helper.AssertEqual(1, summary.Failed)
	helper.AssertEqual(1, summary.Reasons[errs.ErrorTypeNotFound])

	layout := helper.CreatorLayout(cfg, "Test Creator")
	helper.AssertFileExists(layout.FilePath("post0001", "art.jpg"))
	helper.AssertFileNotExists(layout.FilePath("post0002", "art.jpg"))
	helper.AssertFileExists(layout.FilePath("post0003", "art.jpg"))
	if helper.CheckpointExists(cfg) {
		t.Error("Expected no checkpoint when the run itself succeeded")
	}

	mock.ClearFileError("post0002", "art.jpg")
	second, err := helper.CreateCrawler(cfg).Run(context.Background(), opts)
	helper.AssertNoError(err)
	helper.AssertEqual(1, second.Completed)
	helper.AssertEqual(3, second.Skipped)
	helper.AssertFileExists(layout.FilePath("post0002", "art.jpg"))
}

// TestTransientListingErrorRetried checks that a listing page failing
// twice and then recovering does not abort the run.
func TestTransientListingErrorRetried(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(3)
	mock.FailListingRequests(0, 2, http.StatusInternalServerError)

	cfg := helper.CreateTestConfig()
	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(3, summary.Completed)
	helper.AssertEqual(3, mock.GetListingRequests(0), "two failures plus the succeeding attempt")
}

// TestRateLimitedListingRetried checks that a 429 on the listing is
// retried rather than treated as fatal.
func TestRateLimitedListingRetried(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(2)
	mock.FailListingRequests(0, 1, http.StatusTooManyRequests)

	cfg := helper.CreateTestConfig()
	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(2, summary.Completed)
	helper.AssertEqual(2, mock.GetListingRequests(0))
}

// TestAuthFailureAbortsRun checks that an auth rejection on the listing
// stops the run immediately, with no retry burning the budget.
func TestAuthFailureAbortsRun(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(3)
	mock.SetListingError(0, http.StatusUnauthorized)

	cfg := helper.CreateTestConfig()
	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertError(err)
	helper.AssertEqual(errs.ErrorTypeAuth, errs.Classify(err))

	helper.AssertEqual(1, mock.GetListingRequests(0), "auth errors should not be retried")
	helper.AssertEqual(0, summary.Completed)
	if !helper.CheckpointExists(cfg) {
		t.Error("Expected a checkpoint after the aborted run")
	}
}

// TestFatalFileErrorStopsRun checks that an auth rejection during a file
// transfer aborts the whole run instead of being counted as one more
// failed file.
func TestFatalFileErrorStopsRun(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(60)
	mock.FailFile("post0001", "art.jpg", http.StatusUnauthorized)

	cfg := helper.CreateTestConfig()
	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertError(err)
	helper.AssertEqual(errs.ErrorTypeAuth, errs.Classify(err))

	if summary.Failed < 1 {
		t.Errorf("Expected at least the fatal file in the failed count, got %d", summary.Failed)
	}
	if !helper.CheckpointExists(cfg) {
		t.Error("Expected a checkpoint after the aborted run")
	}
}

// TestOldestFirstDownloadsOldestFirst checks the reversed dispatch
// order. One worker keeps the request order strict.
func TestOldestFirstDownloadsOldestFirst(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(3)

	cfg := helper.CreateTestConfig()
	cfg.Download.OldestFirst = true
	cfg.Download.ConcurrentDownloads = 1

	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)
	helper.AssertEqual(3, summary.Completed)

	want := []string{
		AttachmentPath("post0003", "art.jpg"),
		AttachmentPath("post0002", "art.jpg"),
		AttachmentPath("post0001", "art.jpg"),
	}
	got := mock.GetFileRequestLog()
	if len(got) != len(want) {
		t.Fatalf("Expected %d data requests, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Request %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// TestPostInfoAndProfileWritten checks the side files land next to the
// downloads when enabled.
func TestPostInfoAndProfileWritten(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedCreator("Side Files")
	mock.SeedPost("88001", "Hello World", "pic.jpg")

	cfg := helper.CreateTestConfig()
	cfg.Output.SavePostInfo = true
	cfg.Output.SaveProfileInfo = true

	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)
	helper.AssertEqual(1, summary.Completed)

	layout := helper.CreatorLayout(cfg, "Side Files")
	info := filepath.Join(layout.PostDir("88001"), "info.md")
	helper.AssertFileContains(info, "Hello World")
	helper.AssertFileContains(info, "pic.jpg")

	profile := filepath.Join(layout.CreatorRoot(), "profile.json")
	helper.AssertFileContains(profile, "Side Files")
}

// TestLargeFileTransfer streams a multi-megabyte file and verifies the
// bytes on disk.
func TestLargeFileTransfer(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	content := bytes.Repeat([]byte{0xAB, 0x5C}, 2*1024*1024)

	mock := helper.SetupMockServer()
	mock.SeedPostContent("big001", "Big upload", "video.mp4", content)

	cfg := helper.CreateTestConfig()
	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(1, summary.Completed)
	helper.AssertEqual(int64(len(content)), summary.BytesWritten)

	layout := helper.CreatorLayout(cfg, "Test Creator")
	helper.AssertFileBytes(layout.FilePath("big001", "video.mp4"), content)
}

// TestPerHostTransferCap checks that the per-host limit holds even when
// the pool has more workers than the cap.
func TestPerHostTransferCap(t *testing.T) {
	helper := NewTestHelper(t)
	defer helper.Cleanup()

	mock := helper.SetupMockServer()
	mock.SeedPosts(6)
	for i := 1; i <= 6; i++ {
		id := fmt.Sprintf("post%04d", i)
		mock.SetDelay("/data"+AttachmentPath(id, "art.jpg"), 20*time.Millisecond)
	}

	cfg := helper.CreateTestConfig()
	cfg.Download.ConcurrentDownloads = 3
	cfg.Download.PerHostLimit = 1

	summary, err := helper.CreateCrawler(cfg).Run(context.Background(), crawler.Options{
		Target: testTarget(),
		Window: crawler.AllPages(),
	})
	helper.AssertNoError(err)

	helper.AssertEqual(6, summary.Completed)
	helper.AssertEqual(1, mock.GetMaxConcurrentFileRequests(), "per-host cap should keep transfers serial")
}
