package crawler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"kemonograb/pkg/kemono"
	"kemonograb/pkg/logger"
	"kemonograb/pkg/retry"
)

// Window restricts which listing pages a run requests. Offsets are in
// posts and must be multiples of the page size. End is inclusive; a
// negative End means the run continues until the collection is
// exhausted.
type Window struct {
	Start int
	End   int
}

// AllPages covers the whole collection.
func AllPages() Window {
	return Window{Start: 0, End: -1}
}

// SinglePage covers exactly one listing page.
func SinglePage(offset int) Window {
	return Window{Start: offset, End: offset}
}

// OffsetRange covers the pages from start through end inclusive.
func OffsetRange(start, end int) Window {
	return Window{Start: start, End: end}
}

// Validate checks the window against the pagination contract.
func (w Window) Validate() error {
	if w.Start < 0 {
		return fmt.Errorf("start offset %d is negative", w.Start)
	}
	if w.Start%kemono.PageSize != 0 {
		return fmt.Errorf("start offset %d is not a multiple of the page size %d", w.Start, kemono.PageSize)
	}
	if w.End >= 0 {
		if w.End%kemono.PageSize != 0 {
			return fmt.Errorf("end offset %d is not a multiple of the page size %d", w.End, kemono.PageSize)
		}
		if w.End < w.Start {
			return fmt.Errorf("end offset %d is before start offset %d", w.End, w.Start)
		}
	}
	return nil
}

// Contains reports whether the given page offset falls inside the window.
func (w Window) Contains(offset int) bool {
	return offset >= w.Start && (w.End < 0 || offset <= w.End)
}

// ParseOffsetRange parses a "start-end" offset range as passed on the
// command line and validates it.
func ParseOffsetRange(spec string) (Window, error) {
	parts := strings.SplitN(strings.TrimSpace(spec), "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Window{}, fmt.Errorf("offset range %q must look like start-end", spec)
	}

	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("invalid start offset %q: %w", parts[0], err)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("invalid end offset %q: %w", parts[1], err)
	}

	w := OffsetRange(start, end)
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Page is one fetched listing page after duplicate filtering.
type Page struct {
	// Offset is the post offset this page was requested at.
	Offset int

	// Posts holds the page's posts that have not been seen earlier in
	// this run, in page order.
	Posts []kemono.Post

	// Servers maps attachment paths to the file server that holds
	// their bytes, assembled from the page's preview and attachment
	// entries.
	Servers map[string]string
}

// PageFetcher walks the listing pages for one creator. It owns the
// pagination contract: offsets advance by the fixed page size, a short
// or empty page ends the collection, and post ids already emitted in
// this run are suppressed so overlapping pages never duplicate work.
// Transient fetch failures are retried; an exhausted retry budget ends
// the run for the target.
//
// A fetcher is single-use and not safe for concurrent calls; the
// coordinating flow drives it from one goroutine.
type PageFetcher struct {
	client   ListingClient
	target   kemono.Target
	window   Window
	retryCfg *retry.Config
	logger   logger.Logger

	seen    map[string]bool
	offset  int
	pages   int
	posts   int
	done    bool
	profile *kemono.Creator
}

// NewPageFetcher builds a fetcher starting at the window's first offset.
func NewPageFetcher(client ListingClient, target kemono.Target, window Window, retryCfg *retry.Config, log logger.Logger) *PageFetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}

	return &PageFetcher{
		client:   client,
		target:   target,
		window:   window,
		retryCfg: retryCfg,
		logger:   log,
		seen:     make(map[string]bool),
		offset:   window.Start,
	}
}

// Next fetches the next page inside the window. It returns (nil, nil)
// once the collection or the window is exhausted. A returned error is
// fatal for the target; the fetcher will not issue further requests.
func (f *PageFetcher) Next(ctx context.Context) (*Page, error) {
	if f.done {
		return nil, nil
	}
	if !f.window.Contains(f.offset) {
		f.done = true
		f.logger.DebugWithFields("Page window exhausted", map[string]interface{}{
			"target": f.target.String(),
			"offset": f.offset,
		})
		return nil, nil
	}

	offset := f.offset

	var resp *kemono.PostsLegacyResponse
	op := func() error {
		r, err := f.client.FetchPostsPage(ctx, f.target, offset)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	cfg := *f.retryCfg
	cfg.Context = ctx
	if err := retry.Do(op, &cfg); err != nil {
		f.done = true
		return nil, fmt.Errorf("failed to fetch listing page at offset %d: %w", offset, err)
	}

	// The props block rides along on every page, including empty ones,
	// so the profile is available as soon as any request succeeds.
	if f.profile == nil {
		f.profile = &kemono.Creator{
			ID:        f.target.Creator,
			Name:      resp.Props.Name,
			Service:   f.target.Service,
			Site:      f.target.Site,
			PostCount: resp.Props.Count,
		}
	}

	f.offset += kemono.PageSize
	f.pages++

	if len(resp.Results) == 0 {
		f.done = true
		f.logger.DebugWithFields("Reached end of collection", map[string]interface{}{
			"target": f.target.String(),
			"offset": offset,
		})
		return nil, nil
	}

	fresh := make([]kemono.Post, 0, len(resp.Results))
	for _, post := range resp.Results {
		if post.ID == "" {
			f.logger.WarnWithFields("Skipping post without an id", map[string]interface{}{
				"target": f.target.String(),
				"offset": offset,
			})
			continue
		}
		if f.seen[post.ID] {
			f.logger.DebugWithFields("Suppressing duplicate post across pages", map[string]interface{}{
				"target": f.target.String(),
				"post":   post.ID,
			})
			continue
		}
		f.seen[post.ID] = true
		fresh = append(fresh, post)
	}
	f.posts += len(fresh)

	// A short page is the end-of-collection signal.
	if len(resp.Results) < kemono.PageSize {
		f.done = true
	}

	return &Page{
		Offset:  offset,
		Posts:   fresh,
		Servers: resp.ServerIndex(),
	}, nil
}

// Profile returns the creator profile captured from the first page
// response, or nil before one arrives.
func (f *PageFetcher) Profile() *kemono.Creator {
	return f.profile
}

// NextOffset returns the offset the next Next call would request, which
// is where a resumed run should restart.
func (f *PageFetcher) NextOffset() int {
	return f.offset
}

// PagesFetched returns how many pages have been fetched so far.
func (f *PageFetcher) PagesFetched() int {
	return f.pages
}

// PostsSeen returns how many distinct posts have been emitted so far.
func (f *PageFetcher) PostsSeen() int {
	return f.posts
}
