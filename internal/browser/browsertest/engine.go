// Package browsertest provides an in-memory browser.Engine for tests.
//
// Pages are HTML fixtures keyed by URL and rendered with goquery. The engine
// keeps a history stack, follows clicks on tagged anchors, fires
// document-ready, console and alert events, and can delay or withhold load
// completion to exercise timeouts.
package browsertest

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/proxycrawl/internal/browser"
)

// Never is a ReadyAfter value for pages that never finish loading.
const Never time.Duration = -1

// ErrClosed is returned by a closed Engine.
var ErrClosed = errors.New("browsertest: engine closed")

// Page is a fixture served by the Engine.
type Page struct {
	// HTML is the page source.
	HTML string

	// Height and Width are reported as the laid out body size.
	Height int
	Width  int

	// Cookie is reported as document.cookie.
	Cookie string

	// ReadyAfter delays load completion. Zero completes immediately and
	// Never keeps the page loading forever.
	ReadyAfter time.Duration

	// Console and Alerts are emitted as events once the page is ready.
	Console []string
	Alerts  []string
}

// Engine is an in-memory browser.Engine.
type Engine struct {
	mu          sync.Mutex
	pages       map[string]Page
	markLoaded  bool
	handlers    []browser.EventHandler
	history     []string
	current     browser.Document
	generation  int
	loads       []string
	scripts     []browser.Script
	closed      bool
	scriptError error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLoadedMarker makes the engine behave like the proxy under test: every
// completed page gets " - LOADED" appended to its title.
func WithLoadedMarker() Option {
	return func(e *Engine) {
		e.markLoaded = true
	}
}

// WithScriptError makes every ExecuteScript call fail with err.
func WithScriptError(err error) Option {
	return func(e *Engine) {
		e.scriptError = err
	}
}

// NewEngine returns an Engine serving pages.
func NewEngine(pages map[string]Page, opts ...Option) *Engine {
	e := &Engine{
		pages:   pages,
		current: browser.Document{URL: "about:blank", Named: map[string]string{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe implements browser.Engine.
func (e *Engine) Subscribe(handler browser.EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// LoadDocument implements browser.Engine.
func (e *Engine) LoadDocument(_ context.Context, url string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.history = append(e.history, url)
	e.mu.Unlock()

	e.open(url)
	return nil
}

// ExecuteScript implements browser.Engine.
func (e *Engine) ExecuteScript(_ context.Context, script browser.Script) (bool, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, ErrClosed
	}
	e.scripts = append(e.scripts, script)
	if e.scriptError != nil {
		err := e.scriptError
		e.mu.Unlock()
		return false, err
	}

	switch script.Op {
	case browser.OpSetTitle:
		e.current.Title = arg(script, 0)
		e.mu.Unlock()
		return true, nil

	case browser.OpTagAnchor:
		defer e.mu.Unlock()
		for i := range e.current.Anchors {
			if e.current.Anchors[i].Href == arg(script, 0) {
				e.current.Anchors[i].ID = arg(script, 1)
				return true, nil
			}
		}
		return false, nil

	case browser.OpClick:
		target := ""
		for _, a := range e.current.Anchors {
			if a.ID == arg(script, 0) {
				target = a.Href
				break
			}
		}
		if target == "" {
			e.mu.Unlock()
			return false, nil
		}
		e.history = append(e.history, target)
		e.mu.Unlock()
		e.open(target)
		return true, nil

	case browser.OpBack:
		if len(e.history) < 2 {
			e.mu.Unlock()
			return true, nil
		}
		e.history = e.history[:len(e.history)-1]
		previous := e.history[len(e.history)-1]
		e.mu.Unlock()
		e.open(previous)
		return true, nil

	default:
		e.mu.Unlock()
		return false, nil
	}
}

// Snapshot implements browser.Engine.
func (e *Engine) Snapshot(_ context.Context) (*browser.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	doc := e.current
	doc.Anchors = append([]browser.Anchor(nil), e.current.Anchors...)
	doc.DivIDs = append([]string(nil), e.current.DivIDs...)
	doc.Named = make(map[string]string, len(e.current.Named))
	for k, v := range e.current.Named {
		doc.Named[k] = v
	}
	return &doc, nil
}

// Close implements browser.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Loads returns every URL loaded so far, including clicks and backs.
func (e *Engine) Loads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loads...)
}

// Scripts returns every script executed so far.
func (e *Engine) Scripts() []browser.Script {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]browser.Script(nil), e.scripts...)
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Emit delivers ev to the subscribed handlers.
func (e *Engine) Emit(ev browser.Event) {
	e.mu.Lock()
	handlers := append([]browser.EventHandler(nil), e.handlers...)
	e.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// open replaces the current document with a loading placeholder and
// completes the load according to the page's ReadyAfter.
func (e *Engine) open(url string) {
	page, ok := e.pages[url]
	if !ok {
		page = Page{HTML: "<html><head><title>404 Not Found</title></head><body></body></html>"}
	}

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.loads = append(e.loads, url)
	e.current = browser.Document{
		URL:    url,
		Title:  browser.LoadingTitle,
		DivIDs: []string{"proxy-" + browser.LoaderIDSubstring},
		Named:  map[string]string{},
	}
	e.mu.Unlock()

	switch {
	case page.ReadyAfter == Never:
		return
	case page.ReadyAfter > 0:
		time.AfterFunc(page.ReadyAfter, func() { e.complete(gen, url, page) })
	default:
		e.complete(gen, url, page)
	}
}

// complete renders the page if no newer navigation replaced it meanwhile.
func (e *Engine) complete(gen int, url string, page Page) {
	doc := render(url, page)
	if e.markLoaded {
		doc.Title += " - " + browser.LoadedMarker
	}

	e.mu.Lock()
	if e.closed || gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.current = doc
	e.mu.Unlock()

	e.Emit(browser.Event{Kind: browser.EventDocumentReady, URL: url})
	for _, msg := range page.Console {
		e.Emit(browser.Event{Kind: browser.EventConsoleMessage, URL: url, Message: msg})
	}
	for _, msg := range page.Alerts {
		e.Emit(browser.Event{Kind: browser.EventScriptAlert, URL: url, Message: msg})
	}
}

// render builds the Document of a page with goquery.
func render(pageURL string, page Page) browser.Document {
	doc := browser.Document{
		URL:    pageURL,
		Cookie: page.Cookie,
		Height: page.Height,
		Width:  page.Width,
		Named:  map[string]string{},
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return doc
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	doc.Title = strings.TrimSpace(gq.Find("title").First().Text())
	gq.Find("a").Each(func(_ int, s *goquery.Selection) {
		attr, ok := s.Attr("href")
		if !ok {
			return
		}
		id, _ := s.Attr("id")
		doc.Anchors = append(doc.Anchors, browser.Anchor{Href: resolve(base, attr), Attr: attr, ID: id})
	})
	gq.Find("div[id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		doc.DivIDs = append(doc.DivIDs, id)
	})
	gq.Find("[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if _, exists := doc.Named[name]; exists {
			return
		}
		inner, err := s.Html()
		if err == nil {
			doc.Named[name] = inner
		}
	})
	doc.Text = strings.Join(strings.Fields(gq.Find("body").Text()), " ")
	return doc
}

func arg(s browser.Script, i int) string {
	if i < len(s.Args) {
		return s.Args[i]
	}
	return ""
}

// resolve mirrors the anchor href property: attr resolved against base.
func resolve(base *url.URL, attr string) string {
	ref, err := url.Parse(attr)
	if err != nil || base == nil {
		return attr
	}
	return base.ResolveReference(ref).String()
}
