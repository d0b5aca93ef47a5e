package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nao1215/proxycrawl/internal/config"
	"github.com/nao1215/proxycrawl/internal/crawler"
	"github.com/nao1215/proxycrawl/internal/model"
	"github.com/nao1215/proxycrawl/internal/proxy"
	"github.com/nao1215/proxycrawl/internal/report"
)

// PreflightStep verifies the network paths of a run before any browser
// starts: the upstream SOCKS5 proxy, if any, must speak SOCKS5, and the
// proxy base, if any, must answer HTTP.
//
// Design decision: A failed preflight stops the run. Without it, an
// unreachable proxy shows up as a timeout on every seed, which reads as a
// proxy regression rather than a setup problem.
type PreflightStep struct {
	// proxyBase is the URL prefix of the proxy under test.
	proxyBase string

	// upstream is the optional forward proxy of the proxied session.
	upstream *proxy.Upstream

	// timeout bounds the proxy base request.
	timeout time.Duration

	// logger for structured logging.
	logger *slog.Logger
}

// PreflightStepOption configures a PreflightStep.
type PreflightStepOption func(*PreflightStep)

// WithUpstream checks and routes the proxy base request through upstream.
func WithUpstream(upstream *proxy.Upstream) PreflightStepOption {
	return func(s *PreflightStep) {
		s.upstream = upstream
	}
}

// WithPreflightTimeout sets the proxy base request timeout.
func WithPreflightTimeout(d time.Duration) PreflightStepOption {
	return func(s *PreflightStep) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPreflightLogger sets a custom logger for the preflight step.
func WithPreflightLogger(logger *slog.Logger) PreflightStepOption {
	return func(s *PreflightStep) {
		s.logger = logger
	}
}

// NewPreflightStep creates a preflight step for proxyBase. An empty
// proxyBase skips the HTTP check.
func NewPreflightStep(proxyBase string, opts ...PreflightStepOption) *PreflightStep {
	s := &PreflightStep{
		proxyBase: proxyBase,
		timeout:   proxy.DefaultCheckTimeout,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PreflightStep) Name() string {
	return "preflight"
}

// Do executes the preflight checks.
func (s *PreflightStep) Do(ctx context.Context, _ *model.RunReport) error {
	if s.upstream != nil {
		status := s.upstream.CheckConnection(ctx)
		if status != proxy.ProxyStatusOK {
			return fmt.Errorf("upstream proxy %s: %w", s.upstream.Address(), status.Error())
		}
		s.logger.Info("upstream proxy ready", "address", s.upstream.Address())
	}

	if s.proxyBase == "" {
		s.logger.Warn("no proxy base set: both sessions fetch pages directly")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	code, err := proxy.CheckBase(ctx, baseClient(s.upstream, s.timeout), s.proxyBase)
	if err != nil {
		return err
	}
	s.logger.Info("proxy base reachable", "url", s.proxyBase, "status", code)
	return nil
}

// baseClient returns nil, meaning http.DefaultClient, without an upstream.
func baseClient(upstream *proxy.Upstream, timeout time.Duration) *http.Client {
	if upstream == nil {
		return nil
	}
	return upstream.HTTPClient(timeout)
}

// CrawlStep crawls the seeds of one shard with a fresh pair of sessions.
type CrawlStep struct {
	// cfg is the run configuration.
	cfg *config.Config

	// sessions opens the proxied and direct sessions.
	sessions SessionFactory

	// shard is the shard index passed to sessions.
	shard int

	// seeds are the seeds of this shard.
	seeds []string

	// ignorePatterns are link path patterns never followed.
	ignorePatterns []string

	// followPatterns restrict followed links when set.
	followPatterns []string

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// WithCrawlShard sets the shard index handed to the session factory.
func WithCrawlShard(shard int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.shard = shard
	}
}

// WithCrawlIgnorePatterns sets URL path patterns to skip.
func WithCrawlIgnorePatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.ignorePatterns = patterns
	}
}

// WithCrawlFollowPatterns sets URL path patterns to follow.
func WithCrawlFollowPatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.followPatterns = patterns
	}
}

// NewCrawlStep creates a crawl step over seeds.
func NewCrawlStep(cfg *config.Config, sessions SessionFactory, seeds []string, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		cfg:      cfg,
		sessions: sessions,
		seeds:    seeds,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do opens the sessions, drains the seeds into report and closes the
// sessions. Seed failures are recorded in the report; only a failure to
// open the sessions is returned.
func (s *CrawlStep) Do(ctx context.Context, report *model.RunReport) error {
	proxied, direct, err := s.sessions(ctx, s.shard)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := errors.Join(proxied.Close(), direct.Close()); closeErr != nil {
			s.logger.Warn("failed to close browser sessions", "error", closeErr)
		}
	}()

	opts := []crawler.Option{crawler.WithLogger(s.logger)}
	if len(s.ignorePatterns) > 0 {
		opts = append(opts, crawler.WithIgnorePatterns(s.ignorePatterns))
	}
	if len(s.followPatterns) > 0 {
		opts = append(opts, crawler.WithFollowPatterns(s.followPatterns))
	}

	c := crawler.New(proxied, direct, s.cfg, opts...)
	c.Drain(ctx, crawler.NewSeedQueue(s.seeds), report)

	summary := report.Summary()
	s.logger.Info("crawl completed",
		"seeds", summary.Seeds,
		"links_followed", summary.LinksFollowed,
		"regressions", summary.Regressions,
	)
	return nil
}

// RunStore persists run reports. *database.RunDB implements it.
type RunStore interface {
	SaveRunReport(ctx context.Context, report *model.RunReport) error
}

// PersistStep saves the run to a RunStore.
type PersistStep struct {
	store  RunStore
	logger *slog.Logger
}

// NewPersistStep creates a step saving runs to store.
func NewPersistStep(store RunStore, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves the report.
func (s *PersistStep) Do(ctx context.Context, r *model.RunReport) error {
	// The run may have been cancelled; saving what was crawled still matters.
	if err := s.store.SaveRunReport(context.WithoutCancel(ctx), r); err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	s.logger.Info("run saved", "run", r.ID)
	return nil
}

// ReportStep writes the run with a report.Writer.
type ReportStep struct {
	writer report.Writer
}

// NewReportStep creates a step writing runs with w.
func NewReportStep(w report.Writer) *ReportStep {
	return &ReportStep{writer: w}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do writes the report.
func (s *ReportStep) Do(_ context.Context, r *model.RunReport) error {
	if _, err := s.writer.Write(r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
