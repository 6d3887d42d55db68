package integration

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kemonograb/pkg/checkpoint"
	"kemonograb/pkg/config"
	"kemonograb/pkg/crawler"
	"kemonograb/pkg/kemono"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/storage"
)

// TestHelper owns the scratch state an integration test needs: a temp
// tree, an optional mock API server, and cleanup bookkeeping.
type TestHelper struct {
	t        *testing.T
	server   *MockKemonoServer
	tempDir  string
	cleanups []func()
}

// NewTestHelper sets up an isolated temp tree for one test.
func NewTestHelper(t *testing.T) *TestHelper {
	tempDir, err := os.MkdirTemp("", "kemonograb_test_*")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}

	return &TestHelper{
		t:       t,
		tempDir: tempDir,
	}
}

// SetupMockServer creates and starts a mock kemono server
func (h *TestHelper) SetupMockServer() *MockKemonoServer {
	h.server = NewMockKemonoServer()
	h.AddCleanup(h.server.Close)
	return h.server
}

// GetTempDir returns the test's temporary directory
func (h *TestHelper) GetTempDir() string {
	return h.tempDir
}

// CreateTempSubDir makes a named directory under the test root.
func (h *TestHelper) CreateTempSubDir(name string) string {
	dir := filepath.Join(h.tempDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatalf("subdir %s: %v", name, err)
	}
	return dir
}

// AddCleanup registers a function to run during Cleanup
func (h *TestHelper) AddCleanup(fn func()) {
	h.cleanups = append(h.cleanups, fn)
}

// Cleanup runs registered cleanup functions in reverse order and removes
// the temp directory.
func (h *TestHelper) Cleanup() {
	for i := len(h.cleanups) - 1; i >= 0; i-- {
		h.cleanups[i]()
	}
	os.RemoveAll(h.tempDir)
}

// CreateTestLogger returns a logger that captures messages instead of
// printing them.
func (h *TestHelper) CreateTestLogger() logger.Logger {
	return logger.NewTestLogger()
}

// CreateTestConfig returns a configuration tuned for tests: output under
// the temp directory, a rate budget that never blocks, and retry delays
// in the millisecond range.
func (h *TestHelper) CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = h.CreateTempSubDir("downloads")
	cfg.Download.ConcurrentDownloads = 3
	cfg.Download.DownloadTimeout = config.Duration(10 * time.Second)
	cfg.RateLimit.RequestsPerMinute = 6000
	cfg.RateLimit.BurstSize = 1000
	cfg.RateLimit.BurstEnabled = true
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelay = config.Duration(10 * time.Millisecond)
	cfg.Retry.MaxDelay = config.Duration(100 * time.Millisecond)
	return cfg
}

// CreateCrawler builds a crawler whose requests all go to the helper's
// mock server.
func (h *TestHelper) CreateCrawler(cfg *config.Config) *crawler.Crawler {
	if h.server == nil {
		h.t.Fatal("SetupMockServer must be called before CreateCrawler")
	}

	c, err := crawler.New(cfg, h.CreateTestLogger())
	if err != nil {
		h.t.Fatalf("Failed to create crawler: %v", err)
	}

	client, err := kemono.NewClient(cfg, h.CreateTestLogger())
	if err != nil {
		h.t.Fatalf("Failed to create API client: %v", err)
	}
	client.SetBaseURL(h.server.GetURL())
	c.SetClient(client)

	return c
}

// testTarget is the creator all seeded mock posts belong to
func testTarget() kemono.Target {
	return kemono.Target{Site: "kemono.su", Service: "patreon", Creator: "12345"}
}

// CreatorLayout returns the storage layout a run with this config uses
// for the mock creator.
func (h *TestHelper) CreatorLayout(cfg *config.Config, displayName string) *storage.Layout {
	target := testTarget()
	return storage.NewLayout(cfg.Output.BaseDirectory, target.Site, target.Service, displayName, target.Creator)
}

// CheckpointExists reports whether a checkpoint for the mock creator is
// on disk under this config's output root.
func (h *TestHelper) CheckpointExists(cfg *config.Config) bool {
	mgr, err := checkpoint.NewManager(cfg.Output.BaseDirectory, testTarget().String())
	if err != nil {
		h.t.Fatalf("Failed to create checkpoint manager: %v", err)
	}
	return mgr.Exists()
}

// AssertFileExists checks that a file exists
func (h *TestHelper) AssertFileExists(path string) {
	h.t.Helper()
	if _, err := os.Stat(path); err != nil {
		h.t.Errorf("%s should exist: %v", path, err)
	}
}

// AssertFileNotExists checks that a file does not exist
func (h *TestHelper) AssertFileNotExists(path string) {
	h.t.Helper()
	if _, err := os.Stat(path); err == nil {
		h.t.Errorf("%s should not exist", path)
	}
}

// AssertFileBytes checks a file's content byte for byte
func (h *TestHelper) AssertFileBytes(path string, expected []byte) {
	h.t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		h.t.Errorf("read %s: %v", path, err)
		return
	}
	if !bytes.Equal(content, expected) {
		h.t.Errorf("File %s content mismatch: got %d bytes, expected %d", path, len(content), len(expected))
	}
}

// AssertFileContains checks that a file contains the expected text
func (h *TestHelper) AssertFileContains(path string, expected string) {
	h.t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		h.t.Errorf("read %s: %v", path, err)
		return
	}
	if !strings.Contains(string(content), expected) {
		h.t.Errorf("File %s does not contain %q", path, expected)
	}
}

// CountFiles counts regular files under a directory, recursively
func (h *TestHelper) CountFiles(dir string) int {
	h.t.Helper()
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		h.t.Errorf("Failed to walk %s: %v", dir, err)
	}
	return count
}

// AssertNoError stops the test on an unexpected error.
func (h *TestHelper) AssertNoError(err error, msgAndArgs ...interface{}) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("Expected no error but got: %v%s", err, formatMessage(msgAndArgs...))
	}
}

// AssertError stops the test when an expected error never came.
func (h *TestHelper) AssertError(err error, msgAndArgs ...interface{}) {
	h.t.Helper()
	if err == nil {
		h.t.Fatalf("Expected an error but got nil%s", formatMessage(msgAndArgs...))
	}
}

// AssertErrorContains fails the test if err is nil or does not mention
// the expected text.
func (h *TestHelper) AssertErrorContains(err error, expected string) {
	h.t.Helper()
	if err == nil {
		h.t.Fatalf("Expected an error containing %q but got nil", expected)
	}
	if !strings.Contains(err.Error(), expected) {
		h.t.Fatalf("Expected error to contain %q, got: %v", expected, err)
	}
}

// AssertEqual fails the test if the two values differ
func (h *TestHelper) AssertEqual(expected, actual interface{}, msgAndArgs ...interface{}) {
	h.t.Helper()
	if expected != actual {
		h.t.Errorf("Expected %v but got %v%s", expected, actual, formatMessage(msgAndArgs...))
	}
}

func formatMessage(msgAndArgs ...interface{}) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	return ". " + fmt.Sprint(msgAndArgs...)
}
