package browser

import (
	"context"
	"strings"
)

// Predicate is a load completion condition evaluated on every poll tick.
type Predicate interface {
	Satisfied(ctx context.Context, p *Probe) (bool, error)
	String() string
}

// Probe is the state a Predicate looks at during one poll tick.
// The document snapshot is taken at most once per tick, and only when a
// predicate asks for it.
type Probe struct {
	// Ready reports whether a document-ready event fired since arming.
	Ready bool

	// Attributes holds attribute name/value pairs seen in
	// attribute-modified events since arming.
	Attributes map[string]string

	load func(ctx context.Context) (*Document, error)
	doc  *Document
}

// Document returns the snapshot for this tick.
func (p *Probe) Document(ctx context.Context) (*Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	p.doc = doc
	return doc, nil
}

// DocumentReady is satisfied once a document-ready event has fired.
type DocumentReady struct{}

// Satisfied implements Predicate.
func (DocumentReady) Satisfied(_ context.Context, p *Probe) (bool, error) {
	return p.Ready, nil
}

func (DocumentReady) String() string { return "document-ready" }

// MarkerAttribute is satisfied when an element named Name holds Value as
// its innerHTML, or when an attribute-modified event carried that pair.
type MarkerAttribute struct {
	Name  string
	Value string
}

// Satisfied implements Predicate.
func (m MarkerAttribute) Satisfied(ctx context.Context, p *Probe) (bool, error) {
	if v, ok := p.Attributes[m.Name]; ok && v == m.Value {
		return true, nil
	}
	doc, err := p.Document(ctx)
	if err != nil {
		return false, err
	}
	v, ok := doc.Named[m.Name]
	return ok && strings.TrimSpace(v) == m.Value, nil
}

func (m MarkerAttribute) String() string { return "marker " + m.Name + "=" + m.Value }

// ElementAbsent is satisfied when no <div> has an id containing IDSubstring.
// Proxies under test show such an element while they rewrite the page.
type ElementAbsent struct {
	IDSubstring string
}

// Satisfied implements Predicate.
func (e ElementAbsent) Satisfied(ctx context.Context, p *Probe) (bool, error) {
	doc, err := p.Document(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range doc.DivIDs {
		if strings.Contains(id, e.IDSubstring) {
			return false, nil
		}
	}
	return true, nil
}

func (e ElementAbsent) String() string { return "no element with id containing " + e.IDSubstring }

// TitleContains is satisfied when the document title contains Marker.
type TitleContains struct {
	Marker string
}

// Satisfied implements Predicate.
func (t TitleContains) Satisfied(ctx context.Context, p *Probe) (bool, error) {
	doc, err := p.Document(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(doc.Title, t.Marker), nil
}

func (t TitleContains) String() string { return "title contains " + t.Marker }

// AnyOf is satisfied when any of its predicates is.
type AnyOf []Predicate

// Satisfied implements Predicate. Errors from one predicate do not stop the
// others from being checked; the last error is returned if none matched.
func (a AnyOf) Satisfied(ctx context.Context, p *Probe) (bool, error) {
	var lastErr error
	for _, pred := range a {
		ok, err := pred.Satisfied(ctx, p)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, lastErr
}

func (a AnyOf) String() string {
	names := make([]string, len(a))
	for i, pred := range a {
		names[i] = pred.String()
	}
	return "any of (" + strings.Join(names, ", ") + ")"
}
