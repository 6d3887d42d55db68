package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kemonograb/pkg/kemono"
)

// MockKemonoServer simulates a kemono-family site for integration
// tests: the posts-legacy listing API and the /data file paths, served
// from one listener. Every listing response names the server itself as
// the file server for its attachments, so resolved download URLs point
// straight back at it without extra wiring.
//
// Pages are sliced from the seeded post collection on every request.
// Mutating the collection mid-run therefore reproduces the paging
// drift a live site shows when a new post lands during a crawl.
type MockKemonoServer struct {
	server *httptest.Server

	mu              sync.Mutex
	creatorName     string
	posts           []kemono.Post
	files           map[string][]byte
	pathErrors      map[string]int // request URL path -> forced status
	listingErrors   map[int]int    // page offset -> forced status
	listingFailures map[int]*failureWindow
	delays          map[string]time.Duration

	listingHits      map[int]int
	fileHits         map[string]int
	fileLog          []string
	inFlightFiles    int
	maxInFlightFiles int

	rateLimitEvery int64
	requestCount   int64
	rateLimitHits  int64
}

// failureWindow makes a bounded number of requests fail before the
// endpoint recovers.
type failureWindow struct {
	remaining int
	status    int
}

// NewMockKemonoServer creates and starts a mock server with an empty
// collection. Callers seed posts before pointing a client at it.
func NewMockKemonoServer() *MockKemonoServer {
	s := &MockKemonoServer{
		creatorName:     "Test Creator",
		files:           make(map[string][]byte),
		pathErrors:      make(map[string]int),
		listingErrors:   make(map[int]int),
		listingFailures: make(map[int]*failureWindow),
		delays:          make(map[string]time.Duration),
		listingHits:     make(map[int]int),
		fileHits:        make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/", s.handleListing)
	mux.HandleFunc("/data/", s.handleFile)

	s.server = httptest.NewServer(mux)
	return s
}

// GetURL returns the mock server's base URL
func (s *MockKemonoServer) GetURL() string {
	return s.server.URL
}

// Close shuts down the mock server
func (s *MockKemonoServer) Close() {
	s.server.Close()
}

// AttachmentPath returns the data path the mock assigns an attachment.
// Tests use it to target error injection and per-file counters.
func AttachmentPath(postID, name string) string {
	return "/aa/bb/" + postID + "_" + name
}

// fileBytes generates 1 KB of deterministic content, distinct per path,
// so tests can verify that the right bytes landed in the right file.
func fileBytes(path string) []byte {
	seed := 0
	for _, c := range []byte(path) {
		seed += int(c)
	}

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte((i + seed) % 256)
	}
	return data
}

// SeedCreator sets the display name served in the props block
func (s *MockKemonoServer) SeedCreator(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creatorName = name
}

// SeedPost appends one post with the given attachment names
func (s *MockKemonoServer) SeedPost(id, title string, fileNames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, s.buildPost(id, title, fileNames))
}

// SeedPosts appends n single-attachment posts with generated ids
// post0001, post0002, and so on, each carrying one art.jpg.
func (s *MockKemonoServer) SeedPosts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("post%04d", len(s.posts)+1)
		s.posts = append(s.posts, s.buildPost(id, "Post "+id, []string{"art.jpg"}))
	}
}

// SeedPostContent appends a post with a single attachment serving
// exactly the given bytes.
func (s *MockKemonoServer) SeedPostContent(id, title, fileName string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := AttachmentPath(id, fileName)
	s.files[path] = content
	s.posts = append(s.posts, kemono.Post{
		ID:          id,
		User:        "12345",
		Service:     "patreon",
		Title:       title,
		Published:   "2024-03-01T12:00:00",
		Attachments: []kemono.Attachment{{Name: fileName, Path: path}},
	})
}

// InsertPost prepends a post at the head of the collection, shifting
// every page boundary the way a fresh upload does on a live site.
func (s *MockKemonoServer) InsertPost(id, title string, fileNames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post := s.buildPost(id, title, fileNames)
	s.posts = append([]kemono.Post{post}, s.posts...)
}

// buildPost registers the attachments' content and returns the post.
// Callers hold the mutex.
func (s *MockKemonoServer) buildPost(id, title string, fileNames []string) kemono.Post {
	post := kemono.Post{
		ID:        id,
		User:      "12345",
		Service:   "patreon",
		Title:     title,
		Published: "2024-03-01T12:00:00",
	}

	for _, name := range fileNames {
		path := AttachmentPath(id, name)
		s.files[path] = fileBytes(path)
		post.Attachments = append(post.Attachments, kemono.Attachment{Name: name, Path: path})
	}
	return post
}

// FileContent returns the bytes the mock serves for an attachment
func (s *MockKemonoServer) FileContent(postID, name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[AttachmentPath(postID, name)]
}

// SetErrorResponse forces a status code for one request URL path until
// it is cleared.
func (s *MockKemonoServer) SetErrorResponse(urlPath string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pathErrors[urlPath] = status
}

// ClearErrorResponse removes a forced status for a request URL path
func (s *MockKemonoServer) ClearErrorResponse(urlPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pathErrors, urlPath)
}

// FailFile forces a status for one attachment's data requests
func (s *MockKemonoServer) FailFile(postID, name string, status int) {
	s.SetErrorResponse("/data"+AttachmentPath(postID, name), status)
}

// ClearFileError removes the forced status for one attachment
func (s *MockKemonoServer) ClearFileError(postID, name string) {
	s.ClearErrorResponse("/data" + AttachmentPath(postID, name))
}

// SetListingError forces a status for the listing page at one offset
// until it is cleared. Other offsets keep serving normally.
func (s *MockKemonoServer) SetListingError(offset, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listingErrors[offset] = status
}

// ClearListingError removes the forced status for a listing offset
func (s *MockKemonoServer) ClearListingError(offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listingErrors, offset)
}

// FailListingRequests makes the next times requests for the listing
// page at offset answer with status, after which the page recovers.
func (s *MockKemonoServer) FailListingRequests(offset, times, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listingFailures[offset] = &failureWindow{remaining: times, status: status}
}

// SetDelay holds responses for one request URL path for the given
// duration before serving.
func (s *MockKemonoServer) SetDelay(urlPath string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[urlPath] = d
}

// RateLimitEvery makes every nth request across all endpoints answer
// 429 with a Retry-After header. Zero disables, the default.
func (s *MockKemonoServer) RateLimitEvery(n int) {
	atomic.StoreInt64(&s.rateLimitEvery, int64(n))
}

// GetRequestCount returns the total number of requests received
func (s *MockKemonoServer) GetRequestCount() int64 {
	return atomic.LoadInt64(&s.requestCount)
}

// GetRateLimitHits returns the number of simulated 429 responses
func (s *MockKemonoServer) GetRateLimitHits() int64 {
	return atomic.LoadInt64(&s.rateLimitHits)
}

// GetListingRequests returns how many listing requests arrived for one
// page offset.
func (s *MockKemonoServer) GetListingRequests(offset int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listingHits[offset]
}

// GetFileRequests returns how many data requests arrived for one
// attachment.
func (s *MockKemonoServer) GetFileRequests(postID, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileHits[AttachmentPath(postID, name)]
}

// GetTotalFileRequests returns the number of data requests across all
// attachments.
func (s *MockKemonoServer) GetTotalFileRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fileLog)
}

// GetFileRequestLog returns the attachment paths of all data requests
// in arrival order.
func (s *MockKemonoServer) GetFileRequestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fileLog...)
}

// GetMaxConcurrentFileRequests returns the peak number of data requests
// that were in flight at the same time.
func (s *MockKemonoServer) GetMaxConcurrentFileRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlightFiles
}

// ResetCounters resets all request counters
func (s *MockKemonoServer) ResetCounters() {
	atomic.StoreInt64(&s.requestCount, 0)
	atomic.StoreInt64(&s.rateLimitHits, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listingHits = make(map[int]int)
	s.fileHits = make(map[string]int)
	s.fileLog = nil
	s.maxInFlightFiles = 0
}

// handleListing serves /api/v1/{service}/user/{creator}/posts-legacy
func (s *MockKemonoServer) handleListing(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w) {
		return
	}
	s.applyDelay(r.URL.Path)

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/"), "/")
	if len(parts) != 4 || parts[1] != "user" || parts[3] != "posts-legacy" {
		http.NotFound(w, r)
		return
	}

	offset := 0
	if o := r.URL.Query().Get("o"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		offset = n
	}

	s.recordListing(offset)

	if status, ok := s.listingStatus(offset); ok {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if status, ok := s.pathStatus(r.URL.Path); ok {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.buildPage(offset))
}

// handleFile serves attachment bytes under /data
func (s *MockKemonoServer) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/data")
	s.fileStarted(path)
	defer s.fileDone()

	s.applyDelay(r.URL.Path)

	if status, ok := s.pathStatus(r.URL.Path); ok {
		http.Error(w, http.StatusText(status), status)
		return
	}

	content, ok := s.lookupFile(path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Write(content)
}

// buildPage slices one listing page out of the collection. The props
// block rides along on every page, including empty ones.
func (s *MockKemonoServer) buildPage(offset int) *kemono.PostsLegacyResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &kemono.PostsLegacyResponse{
		Props:   kemono.Props{Name: s.creatorName, Count: len(s.posts)},
		Results: []kemono.Post{},
	}

	if offset < 0 || offset >= len(s.posts) {
		return resp
	}

	end := offset + kemono.PageSize
	if end > len(s.posts) {
		end = len(s.posts)
	}

	for _, post := range s.posts[offset:end] {
		resp.Results = append(resp.Results, post)

		entries := make([]kemono.ServerEntry, 0, len(post.Attachments))
		for _, att := range post.Attachments {
			entries = append(entries, kemono.ServerEntry{
				Server: s.server.URL,
				Name:   att.Name,
				Path:   att.Path,
			})
		}
		resp.ResultAttachments = append(resp.ResultAttachments, entries)
	}

	return resp
}

// rateLimited counts the request and answers 429 when the simulated
// budget says so.
func (s *MockKemonoServer) rateLimited(w http.ResponseWriter) bool {
	count := atomic.AddInt64(&s.requestCount, 1)
	every := atomic.LoadInt64(&s.rateLimitEvery)
	if every <= 0 || count%every != 0 {
		return false
	}

	atomic.AddInt64(&s.rateLimitHits, 1)
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	return true
}

func (s *MockKemonoServer) applyDelay(urlPath string) {
	s.mu.Lock()
	d := s.delays[urlPath]
	s.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}
}

func (s *MockKemonoServer) recordListing(offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listingHits[offset]++
}

// listingStatus reports a forced status for a listing offset, consuming
// one failure from a bounded window when one is armed.
func (s *MockKemonoServer) listingStatus(offset int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status, ok := s.listingErrors[offset]; ok {
		return status, true
	}
	if fw, ok := s.listingFailures[offset]; ok {
		fw.remaining--
		if fw.remaining <= 0 {
			delete(s.listingFailures, offset)
		}
		return fw.status, true
	}
	return 0, false
}

func (s *MockKemonoServer) pathStatus(urlPath string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.pathErrors[urlPath]
	return status, ok
}

// fileStarted records one data request and tracks the in-flight peak
func (s *MockKemonoServer) fileStarted(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fileHits[path]++
	s.fileLog = append(s.fileLog, path)
	s.inFlightFiles++
	if s.inFlightFiles > s.maxInFlightFiles {
		s.maxInFlightFiles = s.inFlightFiles
	}
}

func (s *MockKemonoServer) fileDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlightFiles--
}

func (s *MockKemonoServer) lookupFile(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	return content, ok
}
