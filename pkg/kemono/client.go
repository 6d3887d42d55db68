package kemono

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"kemonograb/pkg/config"
	errs "kemonograb/pkg/errors"
	"kemonograb/pkg/logger"
)

// listingTimeout bounds a single listing page request. File transfers
// are bounded by the caller's context instead, since large files can
// legitimately stream for minutes.
const listingTimeout = 30 * time.Second

// Client talks to a kemono-family site: JSON listing pages on the main
// host and raw file bytes on the data servers named in the responses.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string // overrides "https://{site}" when set, for tests
	logger     logger.Logger
}

// NewClient builds a client from the network configuration
func NewClient(cfg *config.Config, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
	}

	if cfg.Network.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.Network.ProxyURL)
		if err != nil {
			return nil, errs.Newf(errs.ErrorTypeParsing, "invalid proxy URL: %v", err)
		}
		if cfg.Network.ProxyUser != "" {
			proxyURL.User = url.UserPassword(cfg.Network.ProxyUser, cfg.Network.ProxyPassword)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if !cfg.Network.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	headers := map[string]string{
		"User-Agent": cfg.Network.UserAgent,
		"Accept":     "application/json, */*;q=0.8",
	}
	if cfg.Network.Session != "" {
		headers["Cookie"] = "session=" + cfg.Network.Session
	}

	return &Client{
		// No client-level timeout: listing calls bound themselves and
		// transfers are bounded by the per-transfer context.
		httpClient: &http.Client{Transport: transport},
		headers:    headers,
		logger:     log,
	}, nil
}

// SetHeader adds or replaces one request header.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHeaders merges the given headers into the client.
func (c *Client) SetHeaders(headers map[string]string) {
	for key, value := range headers {
		c.headers[key] = value
	}
}

// SetBaseURL overrides the site host, used by tests to point the
// client at a local server.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// siteBase returns the URL prefix for a site's main host
func (c *Client) siteBase(site string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://" + site
}

// doRequest stamps the configured headers on req, sends it, and logs
// the round trip.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("request out", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	took := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("request failed", map[string]interface{}{
			"method": req.Method,
			"url":    req.URL.String(),
			"error":  err.Error(),
			"took":   took,
		})
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, errs.Newf(errs.ErrorTypeNetwork, "network error: %v", err)
	}

	c.logger.DebugWithFields("response in", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
		"status": resp.StatusCode,
		"took":   took,
	})

	return resp, nil
}

// Get issues a GET against rawURL with the client headers applied.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeUnknown, "build request: %v", err)
	}
	return c.doRequest(req)
}

// GetJSON issues a GET and decodes the JSON body into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target interface{}) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.NewWithCode(errs.ErrorTypeNetwork, resp.StatusCode,
			fmt.Sprintf("read response body: %v", err))
	}

	if err := json.Unmarshal(body, target); err != nil {
		head := string(body)
		if len(head) > 200 {
			head = head[:200] + "..."
		}
		c.logger.ErrorWithFields("undecodable response body", map[string]interface{}{
			"url":       rawURL,
			"status":    resp.StatusCode,
			"error":     err.Error(),
			"body_head": head,
		})
		return errs.NewWithCode(errs.ErrorTypeParsing, resp.StatusCode,
			fmt.Sprintf("parse JSON: %v", err))
	}

	return nil
}

// checkResponseStatus converts non-OK responses into typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		return nil
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}

	switch errType := errs.TypeFromStatusCode(resp.StatusCode); errType {
	case errs.ErrorTypeRateLimit:
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			fields["retry_after"] = retryAfter
		}
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return errs.NewWithCode(errType, resp.StatusCode, "rate limit exceeded")
	case errs.ErrorTypeAuth:
		c.logger.WarnWithFields("authentication error", fields)
		return errs.NewWithCode(errType, resp.StatusCode, "authentication required")
	case errs.ErrorTypeNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		return errs.NewWithCode(errType, resp.StatusCode, "resource not found")
	case errs.ErrorTypeServerError:
		c.logger.ErrorWithFields("server error", fields)
		return errs.NewWithCode(errType, resp.StatusCode, "server error")
	default:
		if resp.StatusCode >= 400 {
			c.logger.ErrorWithFields("unexpected API error", fields)
			return errs.NewWithCode(errs.ErrorTypeUnknown, resp.StatusCode,
				fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
		}
		return nil
	}
}

// FetchPostsPage fetches one listing page for a creator. Offset is in
// posts, not pages; the API serves PageSize posts per request.
func (c *Client) FetchPostsPage(ctx context.Context, target Target, offset int) (*PostsLegacyResponse, error) {
	pageURL := c.siteBase(target.Site) + PostsLegacyPath(target, offset)

	c.logger.DebugWithFields("fetching posts page", map[string]interface{}{
		"target": target.String(),
		"offset": offset,
		"url":    pageURL,
	})

	ctx, cancel := context.WithTimeout(ctx, listingTimeout)
	defer cancel()

	var page PostsLegacyResponse
	if err := c.GetJSON(ctx, pageURL, &page); err != nil {
		c.logger.ErrorWithFields("posts page fetch failed", map[string]interface{}{
			"target": target.String(),
			"offset": offset,
			"error":  err.Error(),
		})
		return nil, err
	}

	c.logger.DebugWithFields("fetched posts page", map[string]interface{}{
		"target": target.String(),
		"offset": offset,
		"posts":  len(page.Results),
	})

	return &page, nil
}

// OpenFileStream opens a file URL for streaming. The caller owns the
// returned body and must close it. Size is the Content-Length, or -1
// when the server does not announce one.
func (c *Client) OpenFileStream(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	resp, err := c.Get(ctx, fileURL)
	if err != nil {
		return nil, 0, err
	}

	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, 0, err
	}

	return resp.Body, resp.ContentLength, nil
}
