package browser

import (
	"context"
	"fmt"
	"net/url"
)

// LinkCandidate is a link found on the current page that may be followed.
type LinkCandidate struct {
	// Href is the absolute URL of the link.
	Href string

	// Host and Path identify the target page. Query and fragment are not
	// part of the identity.
	Host string
	Path string
}

// Geometry is the laid out size of a document.
type Geometry struct {
	Height int
	Width  int
}

// ExtractLinks returns the followable links of the current document in
// document order: absolute http(s) links whose host and path differ from the
// document's own. Repeated hrefs are returned once.
func (s *Session) ExtractLinks(ctx context.Context) ([]LinkCandidate, error) {
	doc, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return FilterLinks(doc.URL, doc.Anchors), nil
}

// FilterLinks keeps the anchors that point to another page than documentURL.
// Relative hrefs are resolved against documentURL first. It never fails:
// anchors that do not parse are dropped.
func FilterLinks(documentURL string, anchors []Anchor) []LinkCandidate {
	base, err := url.Parse(documentURL)
	if err != nil {
		base = nil
	}

	links := make([]LinkCandidate, 0, len(anchors))
	seen := make(map[string]bool, len(anchors))
	for _, a := range anchors {
		u, ok := resolveHref(base, a.Href)
		if !ok || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		href := u.String()
		if seen[href] {
			continue
		}
		if base != nil && u.Host == base.Host && u.Path == base.Path {
			continue
		}
		seen[href] = true
		links = append(links, LinkCandidate{Href: href, Host: u.Host, Path: u.Path})
	}
	return links
}

// resolveHref resolves href against base. A nil base leaves href as is.
func resolveHref(base *url.URL, href string) (*url.URL, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u, true
}

// sameHref reports whether an anchor's href resolves to the absolute href.
func sameHref(base *url.URL, anchorHref, href string) bool {
	if anchorHref == href {
		return true
	}
	u, ok := resolveHref(base, anchorHref)
	return ok && u.String() == href
}

// FindAnchor returns the first anchor whose resolved href equals href.
// It returns ErrElementNotFound when the current document has none.
func (s *Session) FindAnchor(ctx context.Context, href string) (Anchor, error) {
	doc, err := s.Snapshot(ctx)
	if err != nil {
		return Anchor{}, fmt.Errorf("failed to read document: %w", err)
	}
	base, err := url.Parse(doc.URL)
	if err != nil {
		base = nil
	}
	for _, a := range doc.Anchors {
		if sameHref(base, a.Href, href) {
			return a, nil
		}
	}
	return Anchor{}, fmt.Errorf("anchor %q: %w", href, ErrElementNotFound)
}

// TagAnchor sets id on the first anchor whose resolved href equals href,
// so that it can be clicked by id.
func (s *Session) TagAnchor(ctx context.Context, href, id string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	found, err := s.engine.ExecuteScript(ctx, TagAnchorScript(href, id))
	if err != nil {
		return fmt.Errorf("failed to tag anchor %q: %w", href, err)
	}
	if !found {
		return fmt.Errorf("anchor %q: %w", href, ErrElementNotFound)
	}
	return nil
}

// DocumentGeometry returns the size of the current document. It returns
// ErrGeometryUnavailable, and never another error, when the size cannot be
// read or the height is zero.
func (s *Session) DocumentGeometry(ctx context.Context) (Geometry, error) {
	doc, err := s.Snapshot(ctx)
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %v", ErrGeometryUnavailable, err) //nolint:errorlint // only the sentinel is part of the contract
	}
	if doc.Height <= 0 {
		return Geometry{}, ErrGeometryUnavailable
	}
	return Geometry{Height: doc.Height, Width: doc.Width}, nil
}
