// Package kemono provides a client for the Kemono and Coomer archive APIs.
//
// It covers:
//   - A configurable HTTP client with session auth, proxy support and typed errors
//   - Models for the posts-legacy listing endpoint and its parallel server arrays
//   - Helper functions for constructing API endpoints and file URLs
//   - Target parsing for profile URLs and site:service:creator strings
//
// A typical crawl:
//
//	target, err := kemono.ParseTarget("https://kemono.su/patreon/user/123456")
//	if err != nil {
//	    // Handle unrecognized input
//	}
//
//	client, err := kemono.NewClient(cfg, log)
//	if err != nil {
//	    // Handle setup error
//	}
//
//	// Fetch one listing page (50 posts per page)
//	page, err := client.FetchPostsPage(ctx, target, 0)
//	if err != nil {
//	    if apiErr, ok := err.(*errors.Error); ok {
//	        switch apiErr.Type {
//	        case errors.ErrorTypeAuth:
//	            // Session cookie missing or expired
//	        case errors.ErrorTypeRateLimit:
//	            // Back off and retry
//	        }
//	    }
//	}
//
//	// Stream a file from the server that hosts it
//	servers := page.ServerIndex()
//	body, size, err := client.OpenFileStream(ctx, kemono.FileURL(servers[path], path))
package kemono
