package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

// idSpan is one element of a post filter: an exact id or an inclusive
// numeric range.
type idSpan struct {
	exact   string
	lo, hi  int64
	isRange bool
}

func (s idSpan) match(id string) bool {
	if !s.isRange {
		return id == s.exact
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false
	}
	return n >= s.lo && n <= s.hi
}

// PostFilter selects which post ids a run downloads. Pages are still
// fetched in order; posts that fall outside the filter are dropped
// after fetch. A nil filter matches everything.
type PostFilter struct {
	spans []idSpan
}

// ParsePostFilter parses a post id filter as passed on the command
// line: a single id, an inclusive numeric range "lo-hi", or a
// comma-separated mix of both.
func ParsePostFilter(spec string) (*PostFilter, error) {
	var spans []idSpan

	for _, raw := range strings.Split(spec, ",") {
		item := strings.TrimSpace(raw)
		if item == "" {
			return nil, fmt.Errorf("post id filter %q contains an empty element", spec)
		}

		lo, hi, ok := splitRange(item)
		if !ok {
			spans = append(spans, idSpan{exact: item})
			continue
		}

		loN, err := strconv.ParseInt(lo, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid post id range %q: %w", item, err)
		}
		hiN, err := strconv.ParseInt(hi, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid post id range %q: %w", item, err)
		}
		if hiN < loN {
			return nil, fmt.Errorf("post id range %q ends before it starts", item)
		}
		spans = append(spans, idSpan{lo: loN, hi: hiN, isRange: true})
	}

	if len(spans) == 0 {
		return nil, fmt.Errorf("empty post id filter")
	}
	return &PostFilter{spans: spans}, nil
}

// splitRange recognizes "lo-hi" where both sides are non-empty digit
// runs. Anything else is treated as an exact id, since some services
// use non-numeric post ids that may themselves contain dashes.
func splitRange(item string) (lo, hi string, ok bool) {
	i := strings.IndexByte(item, '-')
	if i <= 0 || i == len(item)-1 {
		return "", "", false
	}
	lo, hi = item[:i], item[i+1:]
	if !allDigits(lo) || !allDigits(hi) {
		return "", "", false
	}
	return lo, hi, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Match reports whether the filter admits a post id. A nil filter
// admits every id.
func (pf *PostFilter) Match(id string) bool {
	if pf == nil || len(pf.spans) == 0 {
		return true
	}
	for _, span := range pf.spans {
		if span.match(id) {
			return true
		}
	}
	return false
}
