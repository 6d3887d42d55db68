package kemono

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// PageSize is the number of posts per listing page
	PageSize = 50

	// APIPrefix is the path prefix for the JSON API
	APIPrefix = "/api/v1"

	// DataPrefix is the path prefix for file retrieval on data servers
	DataPrefix = "/data"
)

// siteServices lists the services hosted by each known site family.
// Validation is advisory: a service missing here is passed through to
// the API untouched, since sites add services over time.
var siteServices = map[string][]string{
	"kemono": {"patreon", "fanbox", "gumroad", "subscribestar", "dlsite", "discord", "fantia", "boosty", "afdian"},
	"coomer": {"onlyfans", "fansly", "candfans"},
}

// SiteFamily extracts the known family ("kemono" or "coomer") from a
// host name, or "" for an unrecognized host.
func SiteFamily(site string) string {
	host := strings.ToLower(site)
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	for family := range siteServices {
		if host == family || strings.HasPrefix(host, family+".") {
			return family
		}
	}
	return ""
}

// KnownServices returns the catalog of services for a site's family
func KnownServices(site string) []string {
	return siteServices[SiteFamily(site)]
}

// IsKnownService reports whether a service appears in the site's catalog
func IsKnownService(site, service string) bool {
	for _, s := range KnownServices(site) {
		if s == service {
			return true
		}
	}
	return false
}

// PostsLegacyPath builds the request path for one listing page
func PostsLegacyPath(t Target, offset int) string {
	return fmt.Sprintf("%s/%s/user/%s/posts-legacy?o=%d",
		APIPrefix, url.PathEscape(t.Service), url.PathEscape(t.Creator), offset)
}

// FileURL joins a data server with a file path
func FileURL(server, path string) string {
	server = strings.TrimSuffix(server, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return server + DataPrefix + path
}

// PostURL builds the public web link for a post
func PostURL(t Target, postID string) string {
	return fmt.Sprintf("https://%s/%s/user/%s/post/%s", t.Site, t.Service, t.Creator, postID)
}

// ProfileURL builds the public web link for a creator page
func ProfileURL(t Target) string {
	return fmt.Sprintf("https://%s/%s/user/%s", t.Site, t.Service, t.Creator)
}

// ParseTarget accepts either a profile URL
// (https://kemono.su/patreon/user/123456) or the compact
// site:service:creator form and returns the crawl target.
func ParseTarget(input string) (Target, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Target{}, fmt.Errorf("empty target")
	}

	if strings.Contains(input, "://") {
		return parseProfileURL(input)
	}

	parts := strings.Split(input, ":")
	if len(parts) == 3 {
		t := Target{Site: normalizeSite(parts[0]), Service: parts[1], Creator: parts[2]}
		return validateTarget(t)
	}

	// A bare host/path without a scheme still parses as a URL
	if strings.Contains(input, "/") {
		return parseProfileURL("https://" + input)
	}

	return Target{}, fmt.Errorf("cannot parse target %q: use a profile URL or site:service:creator", input)
}

func parseProfileURL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid profile URL: %w", err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Expected path: /{service}/user/{creator}[/...]
	if len(segments) < 3 || segments[1] != "user" {
		return Target{}, fmt.Errorf("profile URL path %q does not look like /{service}/user/{creator}", u.Path)
	}

	t := Target{
		Site:    strings.ToLower(u.Host),
		Service: segments[0],
		Creator: segments[2],
	}
	return validateTarget(t)
}

// normalizeSite expands family shorthand ("kemono") to the primary host
func normalizeSite(site string) string {
	site = strings.ToLower(site)
	switch site {
	case "kemono":
		return "kemono.su"
	case "coomer":
		return "coomer.su"
	}
	return site
}

func validateTarget(t Target) (Target, error) {
	if t.Site == "" || t.Service == "" || t.Creator == "" {
		return Target{}, fmt.Errorf("target needs site, service, and creator, got %q", t)
	}
	if SiteFamily(t.Site) == "" {
		return Target{}, fmt.Errorf("unsupported site %q: expected a kemono or coomer host", t.Site)
	}
	return t, nil
}
