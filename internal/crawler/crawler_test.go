package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/proxycrawl/internal/browser"
	"github.com/nao1215/proxycrawl/internal/browser/browsertest"
	"github.com/nao1215/proxycrawl/internal/config"
	"github.com/nao1215/proxycrawl/internal/model"
)

const proxyBase = "http://proxy.local"

func proxied(u string) string { return proxyBase + "/" + u }

// seedPage links to n pages below seed, plus links the crawler must ignore.
func seedPage(seed string, n int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Seed</title></head><body>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<a href="%s">page %d</a>`, proxied(fmt.Sprintf("%s/p%d", seed, i)), i)
	}
	fmt.Fprintf(&b, `<a href="%s">self</a>`, proxied(seed))
	b.WriteString(`<a href="#top">top</a><a href="mailto:ops@example.com">mail</a>`)
	b.WriteString("</body></html>")
	return b.String()
}

const leafHTML = `<html><head><title>Leaf</title></head><body><p>leaf</p></body></html>`

// site describes a seed with n child pages, each 100px tall on both sides.
func site(seed string, n int, proxiedPages, directPages map[string]browsertest.Page) {
	proxiedPages[proxied(seed)] = browsertest.Page{HTML: seedPage(seed, n), Height: 100}
	directPages[seed] = browsertest.Page{HTML: seedPage(seed, 0), Height: 100}
	for i := 1; i <= n; i++ {
		child := fmt.Sprintf("%s/p%d", seed, i)
		proxiedPages[proxied(child)] = browsertest.Page{HTML: leafHTML, Height: 100}
		directPages[child] = browsertest.Page{HTML: leafHTML, Height: 100}
	}
}

type harness struct {
	crawler *Crawler
	proxied *browsertest.Engine
	direct  *browsertest.Engine
	cfg     *config.Config
}

func newHarness(t *testing.T, proxiedPages, directPages map[string]browsertest.Page, mutate func(*config.Config), wrap func(Browser) Browser) *harness {
	t.Helper()

	cfg := config.NewConfig()
	cfg.ProxyBase = proxyBase
	cfg.WaitTime = 0
	cfg.Timeout = 2 * time.Second
	cfg.WorkerID = "t1"
	if mutate != nil {
		mutate(cfg)
	}

	pe := browsertest.NewEngine(proxiedPages, browsertest.WithLoadedMarker())
	de := browsertest.NewEngine(directPages)

	opts := []browser.Option{
		browser.WithPollInterval(2 * time.Millisecond),
		browser.WithSettleTime(0),
		browser.WithNavigationGrace(0, 0),
	}
	var ps Browser = browser.NewSession(pe, browser.ModeProxied, opts...)
	ds := browser.NewSession(de, browser.ModeDirect, opts...)
	if wrap != nil {
		ps = wrap(ps)
	}

	return &harness{
		crawler: New(ps, ds, cfg),
		proxied: pe,
		direct:  de,
		cfg:     cfg,
	}
}

func TestCrawler_Browse(t *testing.T) {
	t.Parallel()

	t.Run("follows links in document order up to the branch factor", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		h := newHarness(t, pp, dp, func(c *config.Config) { c.BranchFactor = 2 }, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedCompleted {
			t.Fatalf("got status %v, want completed (error %q)", result.Status, result.Error)
		}
		if result.LinksFound != 3 {
			t.Errorf("got %d links found, want 3", result.LinksFound)
		}
		if result.LinksFollowed != 2 {
			t.Errorf("got %d links followed, want 2", result.LinksFollowed)
		}

		want := []string{
			proxied("http://a.example"),
			proxied("http://a.example/p1"),
			proxied("http://a.example"),
			proxied("http://a.example/p2"),
			proxied("http://a.example"),
		}
		got := h.proxied.Loads()
		if strings.Join(got, " ") != strings.Join(want, " ") {
			t.Errorf("unexpected proxied loads\n got: %v\nwant: %v", got, want)
		}

		if len(result.Comparisons) != 3 {
			t.Fatalf("got %d comparisons, want 3", len(result.Comparisons))
		}
		if result.Comparisons[1].DirectURL != "http://a.example/p1" {
			t.Errorf("unexpected direct URL %q", result.Comparisons[1].DirectURL)
		}
		for _, c := range result.Comparisons {
			if c.Regression || c.Skipped {
				t.Errorf("unexpected comparison %+v", c)
			}
			if !c.TextMatch && c.URL != proxied("http://a.example") {
				t.Errorf("expected identical leaf text for %s", c.URL)
			}
		}
	})

	t.Run("branch factor zero follows nothing", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		h := newHarness(t, pp, dp, func(c *config.Config) { c.BranchFactor = 0 }, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedCompleted || result.LinksFollowed != 0 {
			t.Errorf("unexpected result %+v", result)
		}
		if len(h.proxied.Loads()) != 1 {
			t.Errorf("expected only the seed visit, got %v", h.proxied.Loads())
		}
	})

	t.Run("regression is recorded and traversal continues", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 2, pp, dp)
		pp[proxied("http://a.example/p1")] = browsertest.Page{HTML: leafHTML, Height: 150}
		h := newHarness(t, pp, dp, nil, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedCompleted || result.LinksFollowed != 2 {
			t.Fatalf("unexpected result %+v", result)
		}
		regs := result.Regressions()
		if len(regs) != 1 {
			t.Fatalf("got %d regressions, want 1", len(regs))
		}
		if regs[0].ProxiedHeight != 150 || regs[0].DirectHeight != 100 || regs[0].Deviation != 50 {
			t.Errorf("unexpected regression %+v", regs[0])
		}
	})

	t.Run("missing direct geometry skips the comparison", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 1, pp, dp)
		dp["http://a.example/p1"] = browsertest.Page{HTML: leafHTML}
		h := newHarness(t, pp, dp, nil, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedCompleted {
			t.Fatalf("unexpected status %v", result.Status)
		}
		if !result.Comparisons[1].Skipped || result.Comparisons[1].Regression {
			t.Errorf("expected a skipped comparison, got %+v", result.Comparisons[1])
		}
	})

	t.Run("missing proxied geometry does not visit the direct page", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 0, pp, dp)
		pp[proxied("http://a.example")] = browsertest.Page{HTML: seedPage("http://a.example", 0)}
		h := newHarness(t, pp, dp, nil, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if !result.Comparisons[0].Skipped {
			t.Errorf("expected a skipped comparison, got %+v", result.Comparisons[0])
		}
		if loads := h.direct.Loads(); len(loads) != 0 {
			t.Errorf("expected no direct loads, got %v", loads)
		}
	})

	t.Run("visit timeout abandons the seed", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 2, pp, dp)
		pp[proxied("http://a.example")] = browsertest.Page{HTML: seedPage("http://a.example", 2), ReadyAfter: browsertest.Never}
		h := newHarness(t, pp, dp, func(c *config.Config) { c.Timeout = 50 * time.Millisecond }, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedVisitTimeout {
			t.Errorf("got status %v, want visit_timeout", result.Status)
		}
		if len(result.Comparisons) != 0 || result.LinksFollowed != 0 {
			t.Errorf("expected no further work, got %+v", result)
		}
	})

	t.Run("click timeout aborts the remaining links", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		pp[proxied("http://a.example/p2")] = browsertest.Page{HTML: leafHTML, ReadyAfter: browsertest.Never}
		h := newHarness(t, pp, dp, func(c *config.Config) { c.Timeout = 50 * time.Millisecond }, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedClickTimeout {
			t.Fatalf("got status %v, want click_timeout", result.Status)
		}
		if result.LinksFollowed != 1 {
			t.Errorf("got %d links followed, want 1", result.LinksFollowed)
		}
		for _, load := range h.proxied.Loads() {
			if strings.HasSuffix(load, "/p3") {
				t.Errorf("link after the timeout was visited: %v", h.proxied.Loads())
			}
		}
	})

	t.Run("back timeout aborts the remaining links", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		h := newHarness(t, pp, dp, nil, func(b Browser) Browser {
			return &scriptedBrowser{Browser: b, backTimeout: true}
		})
		var logs bytes.Buffer
		h.crawler.logger = slog.New(slog.NewTextHandler(&logs, nil))

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedBackTimeout {
			t.Fatalf("got status %v, want back_timeout", result.Status)
		}
		if want := "from=" + proxied("http://a.example/p1"); !strings.Contains(logs.String(), want) {
			t.Errorf("expected the page being left (%s) in the warning, got:\n%s", want, logs.String())
		}
		if result.LinksFollowed != 0 {
			t.Errorf("got %d links followed, want 0", result.LinksFollowed)
		}
		// The seed page and the first link's page were compared.
		if len(result.Comparisons) != 2 {
			t.Errorf("got %d comparisons, want 2", len(result.Comparisons))
		}
	})

	t.Run("anchor that disappeared is skipped without using budget", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		missing := proxied("http://a.example/p1")
		h := newHarness(t, pp, dp, func(c *config.Config) { c.BranchFactor = 2 }, func(b Browser) Browser {
			return &scriptedBrowser{Browser: b, missing: map[string]bool{missing: true}}
		})

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedCompleted {
			t.Fatalf("unexpected status %v", result.Status)
		}
		if result.LinksSkipped != 1 || result.LinksFollowed != 2 {
			t.Errorf("got %d skipped and %d followed, want 1 and 2", result.LinksSkipped, result.LinksFollowed)
		}
		for _, load := range h.proxied.Loads() {
			if load == missing {
				t.Errorf("skipped link was visited")
			}
		}
	})

	t.Run("direct visit timeout does not abort the seed", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 2, pp, dp)
		dp["http://a.example/p1"] = browsertest.Page{HTML: leafHTML, ReadyAfter: browsertest.Never}
		h := newHarness(t, pp, dp, func(c *config.Config) { c.Timeout = 50 * time.Millisecond }, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedCompleted || result.LinksFollowed != 2 {
			t.Errorf("unexpected result %+v", result)
		}
		if !result.Comparisons[1].Skipped {
			t.Errorf("expected the timed out comparison to be skipped")
		}
	})

	t.Run("site override skips the seed", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 1, pp, dp)
		h := newHarness(t, pp, dp, func(c *config.Config) {
			c.SiteConfigs = &config.File{Sites: map[string]config.SiteConfig{"a.example": {Skip: true}}}
		}, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.Status != model.SeedSkipped {
			t.Errorf("got status %v, want skipped", result.Status)
		}
		if len(h.proxied.Loads()) != 0 {
			t.Errorf("expected no loads, got %v", h.proxied.Loads())
		}
	})

	t.Run("site override changes the branch factor", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		one := 1
		h := newHarness(t, pp, dp, func(c *config.Config) {
			c.SiteConfigs = &config.File{Sites: map[string]config.SiteConfig{"a.example": {BranchFactor: &one}}}
		}, nil)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.BranchFactor != 1 || result.LinksFollowed != 1 {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("ignore patterns filter candidate links", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		h := newHarness(t, pp, dp, nil, nil)
		WithIgnorePatterns([]string{"/p2"})(h.crawler)

		result := h.crawler.Browse(context.Background(), "http://a.example")

		if result.LinksFound != 2 || result.LinksFollowed != 2 {
			t.Errorf("unexpected result %+v", result)
		}
	})
}

func TestCrawler_Run(t *testing.T) {
	t.Parallel()

	t.Run("budget resets for every seed and timeouts do not stop the queue", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 3, pp, dp)
		site("http://b.example", 3, pp, dp)
		site("http://c.example", 3, pp, dp)
		pp[proxied("http://b.example/p1")] = browsertest.Page{HTML: leafHTML, ReadyAfter: browsertest.Never}
		h := newHarness(t, pp, dp, func(c *config.Config) {
			c.BranchFactor = 2
			c.Timeout = 100 * time.Millisecond
		}, nil)

		queue := NewSeedQueue([]string{"http://a.example", "http://b.example", "http://c.example"})
		report := h.crawler.Run(context.Background(), queue)

		if queue.Len() != 0 {
			t.Errorf("expected the queue to be drained, %d left", queue.Len())
		}
		if len(report.Seeds) != 3 {
			t.Fatalf("got %d seed results, want 3", len(report.Seeds))
		}
		wantStatus := []model.SeedStatus{model.SeedCompleted, model.SeedClickTimeout, model.SeedCompleted}
		wantFollowed := []int{2, 0, 2}
		for i, s := range report.Seeds {
			if s.Status != wantStatus[i] {
				t.Errorf("seed %d: got status %v, want %v", i, s.Status, wantStatus[i])
			}
			if s.LinksFollowed != wantFollowed[i] {
				t.Errorf("seed %d: got %d links followed, want %d", i, s.LinksFollowed, wantFollowed[i])
			}
			if s.BranchFactor != 2 {
				t.Errorf("seed %d: got branch factor %d, want 2", i, s.BranchFactor)
			}
		}
		if report.WorkerID != "t1" || report.ProxyBase != proxyBase {
			t.Errorf("unexpected report identity %+v", report)
		}
		if report.FinishedAt.IsZero() || report.Cancelled {
			t.Errorf("unexpected report state %+v", report)
		}
	})

	t.Run("cancelled context stops the run", func(t *testing.T) {
		t.Parallel()

		pp, dp := map[string]browsertest.Page{}, map[string]browsertest.Page{}
		site("http://a.example", 1, pp, dp)
		h := newHarness(t, pp, dp, nil, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report := h.crawler.Run(ctx, NewSeedQueue([]string{"http://a.example"}))

		if !report.Cancelled || report.ErrorMessage == "" {
			t.Errorf("expected a cancelled report, got %+v", report)
		}
		if len(report.Seeds) != 0 {
			t.Errorf("expected no seeds, got %d", len(report.Seeds))
		}
	})
}

func TestCrawler_TargetURL(t *testing.T) {
	t.Parallel()

	withProxy := New(nil, nil, &config.Config{ProxyBase: proxyBase})
	if got := withProxy.TargetURL("http://a.example"); got != "http://proxy.local/http://a.example" {
		t.Errorf("got %q", got)
	}

	direct := New(nil, nil, &config.Config{})
	if got := direct.TargetURL("http://a.example"); got != "http://a.example" {
		t.Errorf("got %q", got)
	}

	for _, base := range []string{"http://127.0.0.1:8080", "http://127.0.0.1:8080/"} {
		c := New(nil, nil, &config.Config{ProxyBase: base})
		target := c.TargetURL("http://example.com")
		if target != "http://127.0.0.1:8080/http://example.com" {
			t.Errorf("base %q: got target %q", base, target)
		}
		if got := DirectURL(target, base); got != "http://example.com" {
			t.Errorf("base %q: direct URL of %q is %q", base, target, got)
		}
	}
}

// scriptedBrowser overrides parts of a Browser to reach states the
// in-memory engine cannot produce on its own.
type scriptedBrowser struct {
	Browser
	missing     map[string]bool
	backTimeout bool
}

func (s *scriptedBrowser) FindAnchor(ctx context.Context, href string) (browser.Anchor, error) {
	if s.missing[href] {
		return browser.Anchor{}, fmt.Errorf("anchor %q: %w", href, browser.ErrElementNotFound)
	}
	return s.Browser.FindAnchor(ctx, href)
}

func (s *scriptedBrowser) GoBack(ctx context.Context, timeout time.Duration) error {
	if s.backTimeout {
		return fmt.Errorf("back: %w", browser.ErrTimeout)
	}
	return s.Browser.GoBack(ctx, timeout)
}
