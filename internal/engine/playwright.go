package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/nao1215/proxycrawl/internal/browser"
)

// Playwright is a browser.Engine driving Chromium through Playwright.
// Playwright does not expose DOM mutation events, so only document-ready,
// console and dialog events are delivered.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	mu       sync.Mutex
	handlers []browser.EventHandler
	closed   bool
}

// NewPlaywright installs the Playwright driver if needed and launches
// Chromium with a single page.
func NewPlaywright(opts Options) (*Playwright, error) {
	opts = opts.withDefaults()

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}
	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.WindowWidth, Height: opts.WindowHeight},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bctx, err := b.NewContext(contextOpts)
	if err != nil {
		_ = b.Close()  //nolint:errcheck // best effort cleanup
		_ = pw.Stop() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	p, err := bctx.NewPage()
	if err != nil {
		_ = b.Close()  //nolint:errcheck // best effort cleanup
		_ = pw.Stop() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	e := &Playwright{pw: pw, browser: b, page: p}

	p.OnDOMContentLoaded(func(pg playwright.Page) {
		e.emit(browser.Event{Kind: browser.EventDocumentReady, URL: pg.URL()})
	})
	p.OnConsole(func(msg playwright.ConsoleMessage) {
		e.emit(browser.Event{Kind: browser.EventConsoleMessage, URL: p.URL(), Message: msg.Text()})
	})
	p.OnDialog(func(d playwright.Dialog) {
		e.emit(browser.Event{Kind: browser.EventScriptAlert, URL: p.URL(), Message: d.Message()})
		_ = d.Accept() //nolint:errcheck // the dialog may already be gone
	})

	return e, nil
}

func (e *Playwright) emit(ev browser.Event) {
	e.mu.Lock()
	handlers := append([]browser.EventHandler(nil), e.handlers...)
	e.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Subscribe implements browser.Engine.
func (e *Playwright) Subscribe(handler browser.EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// LoadDocument implements browser.Engine.
func (e *Playwright) LoadDocument(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.page.Evaluate(loadScript, url); err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return nil
}

// ExecuteScript implements browser.Engine.
func (e *Playwright) ExecuteScript(ctx context.Context, script browser.Script) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, err := e.page.Evaluate(script.Source())
	if err != nil {
		return false, fmt.Errorf("failed to run %s script: %w", script, err)
	}
	ok, isBool := res.(bool)
	if !isBool {
		return false, errors.New("script did not return a boolean")
	}
	return ok, nil
}

// Snapshot implements browser.Engine.
func (e *Playwright) Snapshot(ctx context.Context) (*browser.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := e.page.Evaluate(snapshotScript)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return decodeDocument(res)
}

// Close shuts the browser and the Playwright driver down.
func (e *Playwright) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if err := e.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := e.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}
