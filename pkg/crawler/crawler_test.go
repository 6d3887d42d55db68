package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"kemonograb/internal/downloader"
	"kemonograb/pkg/checkpoint"
	"kemonograb/pkg/config"
	errs "kemonograb/pkg/errors"
	"kemonograb/pkg/kemono"
	"kemonograb/pkg/ledger"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/metadata"
	"kemonograb/pkg/ratelimit"
	"kemonograb/pkg/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFileServer = "https://n1.kemono.su"

// fakeAPI serves listing pages and file bytes from memory, recording
// every request it sees.
type fakeAPI struct {
	mu        sync.Mutex
	props     kemono.Props
	pages     map[int]*kemono.PostsLegacyResponse
	files     map[string][]byte // url -> content
	failFiles map[string]error  // url -> error served instead of bytes
	listCalls []int
	streamed  []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		props:     kemono.Props{Name: "Test Creator", Count: 4},
		pages:     make(map[int]*kemono.PostsLegacyResponse),
		files:     make(map[string][]byte),
		failFiles: make(map[string]error),
	}
}

// seedPost registers a post with the given file names on the page at
// offset, serving a distinct payload for each file.
func (f *fakeAPI) seedPost(offset int, postID string, names ...string) {
	resp, ok := f.pages[offset]
	if !ok {
		resp = &kemono.PostsLegacyResponse{Props: f.props}
		f.pages[offset] = resp
	}

	post := kemono.Post{ID: postID}
	var entries []kemono.ServerEntry
	for i, name := range names {
		att := kemono.Attachment{Name: name, Path: attachmentPath(postID, i, name)}
		if i == 0 {
			post.File = att
		} else {
			post.Attachments = append(post.Attachments, att)
		}
		entries = append(entries, kemono.ServerEntry{Server: testFileServer, Name: att.Name, Path: att.Path})
		f.files[testFileURL(postID, i, name)] = []byte("payload " + postID + "/" + name)
	}

	resp.Results = append(resp.Results, post)
	resp.ResultAttachments = append(resp.ResultAttachments, entries)
}

func attachmentPath(postID string, i int, name string) string {
	return fmt.Sprintf("/%s/%d/%s", postID, i, name)
}

func testFileURL(postID string, i int, name string) string {
	return kemono.FileURL(testFileServer, attachmentPath(postID, i, name))
}

func (f *fakeAPI) FetchPostsPage(_ context.Context, _ kemono.Target, offset int) (*kemono.PostsLegacyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls = append(f.listCalls, offset)
	if resp, ok := f.pages[offset]; ok {
		return resp, nil
	}
	return &kemono.PostsLegacyResponse{Props: f.props}, nil
}

func (f *fakeAPI) OpenFileStream(_ context.Context, fileURL string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.streamed = append(f.streamed, fileURL)
	if err, ok := f.failFiles[fileURL]; ok {
		return nil, 0, err
	}
	content, ok := f.files[fileURL]
	if !ok {
		return nil, 0, errs.NewWithCode(errs.ErrorTypeNotFound, 404, "no such file")
	}
	return io.NopCloser(bytes.NewReader(content)), int64(len(content)), nil
}

func (f *fakeAPI) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streamed)
}

func (f *fakeAPI) streamedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.streamed...)
}

// newTestCrawler wires a crawler against the fake API on an in-memory
// filesystem, with pacing effectively disabled.
func newTestCrawler(t *testing.T, api *fakeAPI) (*Crawler, afero.Fs) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = "/out"
	cfg.Download.ConcurrentDownloads = 2
	cfg.Download.DownloadTimeout = config.Duration(5 * time.Second)
	cfg.Retry.MaxAttempts = 2

	fs := afero.NewMemMapFs()
	return &Crawler{
		config:   cfg,
		client:   api,
		limiter:  ratelimit.NewTokenBucket(10000, time.Second),
		fs:       fs,
		reporter: NopReporter{},
		logger:   logger.NewTestLogger(),
	}, fs
}

func testLayout(fs afero.Fs) *storage.Layout {
	return storage.NewLayoutWithFS(fs, "/out", "kemono.su", "patreon", "Test Creator", "12345")
}

func testManager(t *testing.T, fs afero.Fs) *checkpoint.Manager {
	t.Helper()
	mgr, err := checkpoint.NewManagerWithFS(fs, "/out", testTarget().String())
	require.NoError(t, err)
	return mgr
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()

	c, err := New(cfg, logger.NewTestLogger())
	require.NoError(t, err)
	assert.NotNil(t, c.client)
	assert.NotNil(t, c.limiter)
	assert.NotNil(t, c.fs)
	assert.NotNil(t, c.reporter)
	assert.Equal(t, cfg, c.config)
}

func TestRunDownloadsEverything(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg", "b.jpg")
	api.seedPost(0, "p2", "c.jpg")

	c, fs := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.PostsSeen)
	assert.Equal(t, 3, summary.Submitted)
	assert.Equal(t, "Test Creator", summary.Creator)
	assert.Positive(t, summary.BytesWritten)

	layout := testLayout(fs)
	for _, want := range []struct{ post, name string }{
		{"p1", "a.jpg"}, {"p1", "b.jpg"}, {"p2", "c.jpg"},
	} {
		size, ok := layout.Stat(want.post, want.name)
		assert.True(t, ok, "missing %s/%s", want.post, want.name)
		assert.Positive(t, size)
	}

	// A clean finish leaves no checkpoint behind.
	assert.False(t, testManager(t, fs).Exists())
}

func TestRunSecondPassSkipsViaLedger(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg", "b.jpg")

	c, _ := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Completed)
	streamed := api.streamCount()

	summary, err = c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, streamed, api.streamCount(), "no bytes should move on a repeat run")
}

func TestRunSameNamedAttachmentsGetDistinctFiles(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "pA", "x.jpg", "x.jpg")
	api.seedPost(0, "pB", "y.png")

	c, fs := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Completed)

	layout := testLayout(fs)
	for _, want := range []struct{ post, name string }{
		{"pA", "x.jpg"}, {"pA", "x_01.jpg"}, {"pB", "y.png"},
	} {
		_, ok := layout.Stat(want.post, want.name)
		assert.True(t, ok, "missing %s/%s", want.post, want.name)
	}

	// The collision names are stable, so a repeat run resolves every
	// triple against the ledger.
	summary, err = c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 3, summary.Skipped)
}

func TestRunEmptyCollection(t *testing.T) {
	api := newFakeAPI()

	c, fs := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 0, summary.PostsSeen)
	assert.Equal(t, "Test Creator", summary.Creator)
	assert.False(t, testManager(t, fs).Exists())
}

func TestRunRejectsInvalidWindow(t *testing.T) {
	c, _ := newTestCrawler(t, newFakeAPI())

	_, err := c.Run(context.Background(), Options{Target: testTarget(), Window: Window{Start: 30, End: -1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page window")
}

func TestRunRefusesWhenCheckpointExists(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg")

	c, fs := newTestCrawler(t, api)

	_, err := testManager(t, fs).Create(testTarget().String(), "old-run")
	require.NoError(t, err)

	_, err = c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--resume")
	assert.Empty(t, api.listCalls, "no requests before the checkpoint conflict is resolved")
}

func TestRunForceRestartDiscardsCheckpoint(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg")

	c, fs := newTestCrawler(t, api)

	mgr := testManager(t, fs)
	cp, err := mgr.Create(testTarget().String(), "old-run")
	require.NoError(t, err)
	cp.NextOffset = 50
	require.NoError(t, mgr.Save(cp))

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages(), ForceRestart: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, []int{0}, api.listCalls, "pagination must restart at the beginning")
	assert.False(t, mgr.Exists())
}

func TestRunResumeStartsAtSavedOffset(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg")
	api.seedPost(50, "p2", "b.jpg")

	c, fs := newTestCrawler(t, api)

	mgr := testManager(t, fs)
	cp, err := mgr.Create(testTarget().String(), "interrupted-run")
	require.NoError(t, err)
	cp.NextOffset = 50
	require.NoError(t, mgr.Save(cp))

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages(), Resume: true})
	require.NoError(t, err)
	assert.Equal(t, []int{50}, api.listCalls, "resume must not re-fetch walked pages")
	assert.Equal(t, 1, summary.Completed)
	assert.False(t, mgr.Exists())
}

func TestRunResumeWithoutCheckpointStartsFresh(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg")

	c, _ := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages(), Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, []int{0}, api.listCalls)
}

func TestRunPostFilter(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "100", "a.jpg")
	api.seedPost(0, "200", "b.jpg")
	api.seedPost(0, "300", "c.jpg")

	c, _ := newTestCrawler(t, api)

	filter, err := ParsePostFilter("100-200")
	require.NoError(t, err)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages(), Filter: filter})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 3, summary.PostsSeen, "filtered posts still count as seen")
}

func TestRunWindowStopsAfterLastPage(t *testing.T) {
	api := newFakeAPI()
	for i := 0; i < kemono.PageSize; i++ {
		api.seedPost(0, fmt.Sprintf("a%02d", i), "f.jpg")
	}
	api.seedPost(50, "b1", "g.jpg")

	c, _ := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: SinglePage(0)})
	require.NoError(t, err)
	assert.Equal(t, kemono.PageSize, summary.Completed)
	assert.Equal(t, []int{0}, api.listCalls, "the second page is outside the window")
}

func TestRunIsolatesPerFileFailures(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "gone.jpg", "good.jpg")
	api.failFiles[testFileURL("p1", 0, "gone.jpg")] = errs.NewWithCode(errs.ErrorTypeNotFound, 404, "gone")

	c, fs := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err, "per-file failures must not fail the run")
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Reasons[errs.ErrorTypeNotFound])

	_, ok := testLayout(fs).Stat("p1", "good.jpg")
	assert.True(t, ok)
	// A finished walk drops the checkpoint even with failures inside; a
	// fresh run retries them because the ledger has no record.
	assert.False(t, testManager(t, fs).Exists())
}

func TestRunFatalFailureAbortsAndKeepsCheckpoint(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg")
	api.failFiles[testFileURL("p1", 0, "a.jpg")] = errs.NewWithCode(errs.ErrorTypeAuth, 401, "session expired")

	c, fs := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.Error(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Reasons[errs.ErrorTypeAuth])
	assert.True(t, testManager(t, fs).Exists(), "aborted runs keep their checkpoint")
}

func TestRunVerifyExistingRedownloadsMissing(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg", "b.jpg")

	c, fs := newTestCrawler(t, api)

	_, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)

	// Remove one final file behind the ledger's back.
	layout := testLayout(fs)
	require.NoError(t, fs.Remove(layout.FilePath("p1", "a.jpg")))

	c.config.Download.VerifyExisting = true
	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed, "only the missing file downloads again")
	assert.Equal(t, 1, summary.Skipped)

	_, ok := layout.Stat("p1", "a.jpg")
	assert.True(t, ok)
}

func TestRunWritesMetadataFiles(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg")

	c, fs := newTestCrawler(t, api)
	c.config.Output.SavePostInfo = true
	c.config.Output.SaveProfileInfo = true

	_, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)

	writer := metadata.NewWriter(testLayout(fs), testTarget(), c.config.Output.PostInfoFormat)

	exists, err := afero.Exists(fs, writer.PostInfoPath("p1"))
	require.NoError(t, err)
	assert.True(t, exists, "post info side file missing")

	exists, err = afero.Exists(fs, writer.ProfilePath())
	require.NoError(t, err)
	assert.True(t, exists, "profile side file missing")
}

func TestRunIncludeEmptyPostsCreatesDirs(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "empty1")
	api.seedPost(0, "p2", "a.jpg")

	c, fs := newTestCrawler(t, api)
	c.config.Download.IncludeEmptyPosts = true

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	isDir, err := afero.IsDir(fs, testLayout(fs).PostDir("empty1"))
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestRunSkipsEmptyPostsByDefault(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "empty1")

	c, fs := newTestCrawler(t, api)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Submitted)

	exists, err := afero.DirExists(fs, testLayout(fs).PostDir("empty1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunOldestFirstReversesOrder(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "newest", "a.jpg")
	api.seedPost(0, "oldest", "b.jpg")

	c, _ := newTestCrawler(t, api)
	c.config.Download.ConcurrentDownloads = 1
	c.config.Download.OldestFirst = true

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)

	streamed := api.streamedURLs()
	require.Len(t, streamed, 2)
	assert.Contains(t, streamed[0], "/oldest/")
	assert.Contains(t, streamed[1], "/newest/")
}

// recordingReporter captures progress callbacks for assertions.
type recordingReporter struct {
	mu       sync.Mutex
	started  int
	profile  *kemono.Creator
	pages    []int
	queued   []downloader.DownloadJob
	files    []downloader.TransferResult
	finished *RunSummary
}

func (r *recordingReporter) RunStarted(_ kemono.Target, profile *kemono.Creator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	r.profile = profile
}

func (r *recordingReporter) PageFetched(offset, posts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, offset)
}

func (r *recordingReporter) RateLimitPause() {}

func (r *recordingReporter) FileQueued(job downloader.DownloadJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, job)
}

func (r *recordingReporter) FileFinished(result downloader.TransferResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, result)
}

func (r *recordingReporter) RunFinished(summary *RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = summary
}

func TestRunReportsProgress(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg", "b.jpg")

	c, _ := newTestCrawler(t, api)
	reporter := &recordingReporter{}
	c.SetReporter(reporter)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.NoError(t, err)

	assert.Equal(t, 1, reporter.started)
	require.NotNil(t, reporter.profile)
	assert.Equal(t, "Test Creator", reporter.profile.Name)
	assert.Equal(t, []int{0}, reporter.pages)
	assert.Len(t, reporter.queued, 2)
	assert.Len(t, reporter.files, 2)
	assert.Same(t, summary, reporter.finished)
}

func TestRunSummaryIsReturnedOnListingFailure(t *testing.T) {
	api := newFakeAPI()

	c, _ := newTestCrawler(t, api)
	c.client = &failingAPI{fakeAPI: api}

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages()})
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Completed)
}

// failingAPI rejects every listing request with a non-retryable error.
type failingAPI struct {
	*fakeAPI
}

func (f *failingAPI) FetchPostsPage(context.Context, kemono.Target, int) (*kemono.PostsLegacyResponse, error) {
	return nil, errs.NewWithCode(errs.ErrorTypeNotFound, 404, "no such creator")
}

func TestRunInterruptedThenResumedDownloadsTheRest(t *testing.T) {
	api := newFakeAPI()
	api.seedPost(0, "p1", "a.jpg")
	api.seedPost(0, "p2", "b.jpg")
	api.seedPost(0, "p3", "c.jpg")

	c, fs := newTestCrawler(t, api)

	// Complete one file out of band, as an interrupted earlier run
	// would have.
	led, err := ledger.OpenWithFS(fs, "/out")
	require.NoError(t, err)
	require.NoError(t, led.MarkComplete("12345", "p1", "a.jpg", 1))
	require.NoError(t, led.Close())

	mgr := testManager(t, fs)
	_, err = mgr.Create(testTarget().String(), "interrupted-run")
	require.NoError(t, err)

	summary, err := c.Run(context.Background(), Options{Target: testTarget(), Window: AllPages(), Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Skipped)
	assert.False(t, mgr.Exists())
}
