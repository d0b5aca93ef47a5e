package crawler

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/nao1215/proxycrawl/internal/browser"
)

// LinkFilter narrows the candidate links of a page with path patterns.
// Patterns are matched against the path of the direct URL, so the proxy
// prefix never takes part in matching.
type LinkFilter struct {
	// Ignore lists patterns whose links are never followed.
	Ignore []string

	// Follow, when set, lists the only patterns whose links are followed.
	Follow []string

	proxyBase string
}

// Apply returns the links that pass the filter, keeping their order.
func (f LinkFilter) Apply(links []browser.LinkCandidate) []browser.LinkCandidate {
	if len(f.Ignore) == 0 && len(f.Follow) == 0 {
		return links
	}
	out := make([]browser.LinkCandidate, 0, len(links))
	for _, link := range links {
		if f.shouldFollow(link.Href) {
			out = append(out, link)
		}
	}
	return out
}

// shouldFollow checks a link against the ignore and follow patterns.
//
// Logic:
//  1. If the path matches any ignore pattern, skip it
//  2. If follow patterns are set and the path matches none, skip it
//  3. Otherwise, follow it
func (f LinkFilter) shouldFollow(href string) bool {
	u, err := url.Parse(DirectURL(href, f.proxyBase))
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range f.Ignore {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(f.Follow) > 0 {
		for _, pattern := range f.Follow {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Bare patterns like "logout*" are matched against the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
