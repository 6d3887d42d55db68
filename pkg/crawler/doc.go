// Package crawler orchestrates a full download run for one creator.
//
// A run wires the listing fetcher, the media extractor, and the download
// pool together: pages are fetched one at a time, each post on a page is
// reduced to file descriptors, and descriptors are handed to the pool
// for concurrent transfer. The progress ledger decides which files are
// already done, the checkpoint lets an interrupted run resume its
// pagination, and a Reporter receives progress events for whatever
// surface the caller wants to render.
//
// Components:
//
//   - PageFetcher walks the posts-legacy listing pages for a target,
//     retrying transient failures and suppressing posts that reappear
//     across page boundaries.
//   - Extractor turns one post into its ordered, deterministically named
//     file descriptors.
//   - Crawler ties both to the downloader pool and produces a RunSummary.
//
// Usage:
//
//	cfg := config.DefaultConfig()
//	c, err := crawler.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	target, _ := kemono.ParseTarget("https://kemono.su/patreon/user/123456")
//	summary, err := c.Run(ctx, crawler.Options{Target: target, Window: crawler.AllPages()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d downloaded, %d skipped, %d failed\n",
//	    summary.Completed, summary.Skipped, summary.Failed)
package crawler
