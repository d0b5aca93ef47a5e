package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/proxycrawl/internal/browser"
)

// Chromedp is a browser.Engine driving Chrome over the DevTools protocol.
type Chromedp struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu       sync.Mutex
	handlers []browser.EventHandler
	closed   bool
}

// NewChromedp starts a Chrome instance with a single tab.
// The browser lives until Close is called or ctx is cancelled.
func NewChromedp(ctx context.Context, opts Options) (*Chromedp, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	e := &Chromedp{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	chromedp.ListenTarget(tabCtx, e.listen)

	if err := chromedp.Run(tabCtx, page.Enable(), runtime.Enable(), dom.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return e, nil
}

// listen maps DevTools events to browser events.
func (e *Chromedp) listen(ev any) {
	switch ev := ev.(type) {
	case *page.EventDomContentEventFired:
		e.emit(browser.Event{Kind: browser.EventDocumentReady})

	case *runtime.EventConsoleAPICalled:
		args := make([]consoleArg, 0, len(ev.Args))
		for _, a := range ev.Args {
			args = append(args, consoleArg{value: []byte(a.Value), description: a.Description})
		}
		e.emit(browser.Event{Kind: browser.EventConsoleMessage, Message: consoleText(args)})

	case *page.EventJavascriptDialogOpening:
		e.emit(browser.Event{Kind: browser.EventScriptAlert, URL: ev.URL, Message: ev.Message})
		// A pending dialog blocks the page; accept it off the event goroutine.
		go func() {
			_ = chromedp.Run(e.tabCtx, page.HandleJavaScriptDialog(true)) //nolint:errcheck // the dialog may already be gone
		}()

	case *dom.EventChildNodeInserted:
		e.emit(browser.Event{Kind: browser.EventNodeInserted})

	case *dom.EventChildNodeRemoved:
		e.emit(browser.Event{Kind: browser.EventNodeRemoved})

	case *dom.EventAttributeModified:
		e.emit(browser.Event{Kind: browser.EventAttributeModified, Name: ev.Name, Value: ev.Value})

	case *dom.EventCharacterDataModified:
		e.emit(browser.Event{Kind: browser.EventCharacterDataModified, Value: ev.CharacterData})
	}
}

func (e *Chromedp) emit(ev browser.Event) {
	e.mu.Lock()
	handlers := append([]browser.EventHandler(nil), e.handlers...)
	e.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Subscribe implements browser.Engine.
func (e *Chromedp) Subscribe(handler browser.EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// run executes actions on the tab, stopping early when ctx ends.
func (e *Chromedp) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(e.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// LoadDocument implements browser.Engine.
func (e *Chromedp) LoadDocument(ctx context.Context, url string) error {
	var ok bool
	if err := e.run(ctx, chromedp.Evaluate(loadExpression(url), &ok)); err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return nil
}

// ExecuteScript implements browser.Engine.
func (e *Chromedp) ExecuteScript(ctx context.Context, script browser.Script) (bool, error) {
	var ok bool
	if err := e.run(ctx, chromedp.Evaluate(script.Source(), &ok)); err != nil {
		return false, fmt.Errorf("failed to run %s script: %w", script, err)
	}
	return ok, nil
}

// Snapshot implements browser.Engine.
func (e *Chromedp) Snapshot(ctx context.Context) (*browser.Document, error) {
	var doc browser.Document
	if err := e.run(ctx, chromedp.Evaluate(snapshotScript, &doc)); err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if doc.Named == nil {
		doc.Named = map[string]string{}
	}
	return &doc, nil
}

// Close shuts the tab and the browser down.
func (e *Chromedp) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.tabCancel()
	e.allocCancel()
	return nil
}
