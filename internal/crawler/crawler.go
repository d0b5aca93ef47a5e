package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/proxycrawl/internal/browser"
	"github.com/nao1215/proxycrawl/internal/config"
	"github.com/nao1215/proxycrawl/internal/metrics"
	"github.com/nao1215/proxycrawl/internal/model"
)

// Browser is the part of a browser session the crawler drives.
// *browser.Session implements it.
type Browser interface {
	Visit(ctx context.Context, url string, timeout time.Duration) error
	ClickElement(ctx context.Context, id string, timeout time.Duration) error
	GoBack(ctx context.Context, timeout time.Duration) error
	ExtractLinks(ctx context.Context) ([]browser.LinkCandidate, error)
	FindAnchor(ctx context.Context, href string) (browser.Anchor, error)
	TagAnchor(ctx context.Context, href, id string) error
	DocumentGeometry(ctx context.Context) (browser.Geometry, error)
	Snapshot(ctx context.Context) (*browser.Document, error)
	LastLoadedURL() string
}

// Crawler walks seeds with a proxied and a direct browser session.
//
// For every seed it visits the proxied page, compares its size with the
// direct page, then follows up to the branch factor of the page's links
// in document order: click, compare, go back. A click or back timeout
// abandons the rest of the seed; the queue always moves on.
type Crawler struct {
	proxied    Browser
	direct     Browser
	cfg        *config.Config
	pacer      *Pacer
	comparator *Comparator
	filter     LinkFilter
	logger     *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPacer replaces the pacer built from the configuration.
func WithPacer(p *Pacer) Option {
	return func(c *Crawler) {
		if p != nil {
			c.pacer = p
		}
	}
}

// WithIgnorePatterns sets path patterns of links never to follow.
// Patterns use glob syntax (e.g., "/logout*", "*.pdf").
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.filter.Ignore = patterns
	}
}

// WithFollowPatterns sets path patterns; when set, only matching links are
// followed.
func WithFollowPatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.filter.Follow = patterns
	}
}

// New creates a Crawler over a proxied and a direct session.
func New(proxied, direct Browser, cfg *config.Config, opts ...Option) *Crawler {
	c := &Crawler{
		proxied: proxied,
		direct:  direct,
		cfg:     cfg,
		pacer:   NewPacer(cfg.WaitTime, cfg.WaitStdDev, cfg.NavigationRate),
		logger:  slog.New(slog.DiscardHandler),
		filter:  LinkFilter{proxyBase: cfg.ProxyBase},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.comparator = NewComparator(proxied, direct, cfg.ProxyBase, c.pacer, c.logger)
	return c
}

// Run drains queue and returns the report of the run. Per-seed failures
// are recorded in the report and never stop the run; only ctx does.
func (c *Crawler) Run(ctx context.Context, queue *SeedQueue) *model.RunReport {
	report := model.NewRunReport(c.cfg.WorkerID, c.cfg.ProxyBase)
	c.Drain(ctx, queue, report)
	return report
}

// Drain is Run for a report created by the caller. It appends one seed
// result per popped seed and stamps the report as finished.
func (c *Crawler) Drain(ctx context.Context, queue *SeedQueue, report *model.RunReport) {
	if report.Engine == "" {
		report.Engine = c.cfg.Engine
	}

	c.logger.Info("worker started", "seeds", queue.Len())

	for {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			report.SetError(err)
			break
		}
		seed, ok := queue.Pop()
		if !ok {
			break
		}

		result := c.Browse(ctx, seed)
		metrics.RecordSeed(result.Status.String())
		report.AddSeed(result)
	}

	report.Finish()
	c.logger.Info("worker terminating", "seeds", len(report.Seeds))
}

// TargetURL returns the URL the proxied session visits for seed.
func (c *Crawler) TargetURL(seed string) string {
	return ProxyPrefix(c.cfg.ProxyBase) + seed
}

// seedSettings are the effective limits of one seed.
type seedSettings struct {
	budget    int
	timeout   time.Duration
	tolerance float64
	skip      bool
}

func (c *Crawler) settingsFor(seed string) seedSettings {
	site := c.cfg.SiteConfig(SeedHost(seed))
	return seedSettings{
		budget:    site.BranchFactorOr(c.cfg.BranchFactor),
		timeout:   site.TimeoutOr(c.cfg.Timeout),
		tolerance: site.ErrorToleranceOr(c.cfg.ErrorTolerance),
		skip:      site.Skip,
	}
}

// Browse traverses a single seed. The branch budget starts at the
// configured maximum for every seed.
func (c *Crawler) Browse(ctx context.Context, seed string) model.SeedResult {
	set := c.settingsFor(seed)
	target := c.TargetURL(seed)
	result := model.NewSeedResult(seed, target, set.budget)
	logger := c.logger.With("seed", seed)

	if set.skip {
		logger.Info("skipping seed")
		result.Finish(model.SeedSkipped)
		return result
	}

	logger.Info("browsing", "url", target)

	if err := c.pacer.Wait(ctx); err != nil {
		return c.fail(logger, result, err)
	}
	if err := c.proxied.Visit(ctx, target, set.timeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			logger.Warn("timed out while visiting", "url", target)
			result.Error = target
			result.Finish(model.SeedVisitTimeout)
			return result
		}
		return c.fail(logger, result, err)
	}
	if err := c.pacer.Pause(ctx); err != nil {
		return c.fail(logger, result, err)
	}

	if err := c.compare(ctx, logger, &result, target, set); err != nil {
		return c.fail(logger, result, err)
	}

	links, err := c.proxied.ExtractLinks(ctx)
	if err != nil {
		return c.fail(logger, result, err)
	}
	links = c.filter.Apply(links)
	result.LinksFound = len(links)
	logger.Info("links found", "count", len(links))

	budget := set.budget
	for _, link := range links {
		logger.Info("branch budget", "remaining", budget)
		if budget < 1 {
			break
		}

		status, err := c.follow(ctx, logger, &result, link.Href, set)
		switch {
		case err != nil:
			return c.fail(logger, result, err)
		case status == followSkipped:
			result.LinksSkipped++
			continue
		case status == followClickTimeout:
			result.Error = link.Href
			result.Finish(model.SeedClickTimeout)
			return result
		case status == followBackTimeout:
			result.Error = link.Href
			result.Finish(model.SeedBackTimeout)
			return result
		}

		budget--
		result.LinksFollowed++
	}

	result.Finish(model.SeedCompleted)
	logger.Info("seed done", "links_followed", result.LinksFollowed)
	return result
}

type followStatus int

const (
	followDone followStatus = iota
	followSkipped
	followClickTimeout
	followBackTimeout
)

// follow runs the click, page-size and go-back tests for one link.
func (c *Crawler) follow(ctx context.Context, logger *slog.Logger, result *model.SeedResult, href string, set seedSettings) (followStatus, error) {
	// The DOM may have been replaced by the previous back navigation.
	if _, err := c.proxied.FindAnchor(ctx, href); err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			logger.Debug("anchor no longer present", "href", href)
			return followSkipped, nil
		}
		return followDone, err
	}
	if err := c.proxied.TagAnchor(ctx, href, href); err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			logger.Debug("anchor no longer present", "href", href)
			return followSkipped, nil
		}
		return followDone, err
	}

	logger.Info("click test started", "href", href)
	if err := c.pacer.Wait(ctx); err != nil {
		return followDone, err
	}
	if err := c.proxied.ClickElement(ctx, href, set.timeout); err != nil {
		switch {
		case errors.Is(err, browser.ErrTimeout):
			logger.Warn("timed out while clicking", "href", href)
			return followClickTimeout, nil
		case errors.Is(err, browser.ErrElementNotFound):
			logger.Debug("anchor vanished before click", "href", href)
			return followSkipped, nil
		default:
			return followDone, err
		}
	}
	logger.Info("click test done", "href", href)
	if err := c.pacer.Pause(ctx); err != nil {
		return followDone, err
	}

	if err := c.compare(ctx, logger, result, href, set); err != nil {
		return followDone, err
	}

	logger.Info("going back test started", "href", href)
	if err := c.pacer.Wait(ctx); err != nil {
		return followDone, err
	}
	if err := c.proxied.GoBack(ctx, set.timeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			logger.Warn("timed out while going back", "href", href, "from", c.proxied.LastLoadedURL())
			return followBackTimeout, nil
		}
		return followDone, err
	}
	logger.Info("going back test done", "href", href)
	if err := c.pacer.Pause(ctx); err != nil {
		return followDone, err
	}

	return followDone, nil
}

// compare runs a page-size test and records it. A timeout of the direct
// visit is logged and the pause after the test is skipped; the traversal
// goes on.
func (c *Crawler) compare(ctx context.Context, logger *slog.Logger, result *model.SeedResult, pageURL string, set seedSettings) error {
	cmp, err := c.comparator.Compare(ctx, pageURL, set.timeout, set.tolerance)
	if err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			logger.Warn("timed out while doing page size test", "url", pageURL)
			cmp.Skipped = true
			result.AddComparison(cmp)
			return nil
		}
		return err
	}
	result.AddComparison(cmp)
	if cmp.Skipped {
		return nil
	}
	return c.pacer.Pause(ctx)
}

// fail ends the seed with a non-timeout error.
func (c *Crawler) fail(logger *slog.Logger, result model.SeedResult, err error) model.SeedResult {
	logger.Error("seed failed", "error", err)
	result.Error = err.Error()
	result.Finish(model.SeedFailed)
	return result
}
