package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
)

// Default configuration values.
const (
	// DefaultBranchFactor is the number of links followed from each seed page
	// before the crawler moves on to the next seed.
	DefaultBranchFactor = 5

	// DefaultTimeout bounds a single navigation (visit, click or back).
	// Proxied pages are rewritten on the fly, so ten seconds leaves room for
	// the extra hop without hiding pages that never finish loading.
	DefaultTimeout = 10 * time.Second

	// DefaultCSSLoadTime is the unconditional grace period after a load is
	// detected, letting stylesheets and fonts settle before geometry is read.
	DefaultCSSLoadTime = 1500 * time.Millisecond

	// DefaultSeedFile is the seed list read when no file is given.
	DefaultSeedFile = "sites.txt"

	// DefaultWaitTime is the mean of the jittered pause between crawl steps.
	DefaultWaitTime = 4 * time.Second

	// DefaultWaitStdDev is the standard deviation of the jittered pause.
	DefaultWaitStdDev = 500 * time.Millisecond

	// DefaultLogDir is where per-worker log files are written.
	DefaultLogDir = "/tmp"

	// DefaultErrorTolerance is the height deviation, in percent, tolerated
	// between the proxied and the direct rendering of a page.
	DefaultErrorTolerance = 10.0

	// DefaultEngine is the browser engine used when none is selected.
	DefaultEngine = EngineChromedp

	// DefaultShards is the number of independent workers a run is split into.
	DefaultShards = 1

	// DefaultPollInterval is how often an armed wait re-checks its completion
	// condition.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultUserAgent identifies proxycrawl in both browser sessions.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) proxycrawl/1.0"

	// AppName is the application name used for XDG directory paths.
	AppName = "proxycrawl"
)

// Supported browser engines.
const (
	// EngineChromedp drives Chrome over the DevTools protocol.
	EngineChromedp = "chromedp"

	// EnginePlaywright drives Chromium through Playwright.
	EnginePlaywright = "playwright"
)

// Config holds all configuration options for a crawl run.
// It is populated from CLI flags and the optional config file, then passed
// down explicitly; nothing reads configuration from globals.
type Config struct {
	// BranchFactor is the maximum number of links followed per seed.
	BranchFactor int

	// Timeout bounds each navigation of either session.
	Timeout time.Duration

	// CSSLoadTime is the settle delay applied after every completed load.
	CSSLoadTime time.Duration

	// SeedFile is the file holding one hostname per line.
	SeedFile string

	// ProxyBase is the URL prefix of the proxy under test, for example
	// "http://127.0.0.1:8080". Seeds are visited as ProxyBase + "/" + seed.
	// When empty, the "proxied" session fetches seeds directly.
	ProxyBase string

	// WaitTime is the mean pause between crawl steps.
	WaitTime time.Duration

	// WaitStdDev is the standard deviation of the pause between crawl steps.
	WaitStdDev time.Duration

	// LogDir is the directory for worker-<id>.log files.
	LogDir string

	// ErrorTolerance is the tolerated height deviation in percent.
	ErrorTolerance float64

	// Verbose enables debug logging and logs every console message, not
	// only those that look like failures.
	Verbose bool

	// WorkerID identifies this worker in logs and in the database.
	// Defaults to NewWorkerID().
	WorkerID string

	// Engine selects the browser engine (chromedp or playwright).
	Engine string

	// Headless runs the browsers without a visible window.
	Headless bool

	// Shards splits the seed list across this many independent workers,
	// each with its own pair of browser sessions.
	Shards int

	// UpstreamProxy is an optional SOCKS5 forward proxy ("host:port") the
	// proxied browser session is routed through.
	UpstreamProxy string

	// NavigationRate caps navigations per second for each worker.
	// Zero disables the limiter and leaves pacing to the jittered pauses.
	NavigationRate float64

	// MetricsAddr serves Prometheus metrics on this address when set.
	MetricsAddr string

	// UserAgent is sent by both browser sessions.
	UserAgent string

	// ConfigFilePath is the explicit path to the YAML config file.
	ConfigFilePath string

	// SiteConfigs holds per-host overrides loaded from the config file.
	SiteConfigs *File

	// DBDir is the directory of the SQLite run history.
	DBDir string

	// SaveToDB stores each run in the database under DBDir.
	SaveToDB bool

	// JSONReport writes the run report as JSON.
	JSONReport bool

	// MarkdownReport writes the run report as GitHub Flavored Markdown.
	MarkdownReport bool

	// ReportFile is the report destination; stdout when empty.
	ReportFile string

	// Seeds is the loaded seed list.
	Seeds []string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		BranchFactor:   DefaultBranchFactor,
		Timeout:        DefaultTimeout,
		CSSLoadTime:    DefaultCSSLoadTime,
		SeedFile:       DefaultSeedFile,
		WaitTime:       DefaultWaitTime,
		WaitStdDev:     DefaultWaitStdDev,
		LogDir:         DefaultLogDir,
		ErrorTolerance: DefaultErrorTolerance,
		Engine:         DefaultEngine,
		Headless:       true,
		Shards:         DefaultShards,
		UserAgent:      DefaultUserAgent,
	}
}

// NewWorkerID returns a short random worker identifier made of the first
// two characters of a random UUID.
func NewWorkerID() string {
	return uuid.NewString()[:2]
}

// XDGDataDir returns the XDG data directory for proxycrawl.
// On Linux: ~/.local/share/proxycrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for proxycrawl.
// On Linux: ~/.config/proxycrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}

	if c.BranchFactor < 0 {
		return ErrInvalidBranchFactor
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.CSSLoadTime < 0 {
		return ErrInvalidCSSLoadTime
	}

	if c.WaitTime < 0 || c.WaitStdDev < 0 {
		return ErrInvalidWaitTime
	}

	if c.ErrorTolerance < 0 {
		return ErrInvalidErrorTolerance
	}

	if c.Shards <= 0 {
		return ErrInvalidShards
	}

	if c.NavigationRate < 0 {
		return ErrInvalidNavigationRate
	}

	if c.Engine != EngineChromedp && c.Engine != EnginePlaywright {
		return ErrUnknownEngine
	}

	if c.ProxyBase != "" {
		u, err := url.Parse(c.ProxyBase)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidProxyBase
		}
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// SiteConfig returns the effective per-host configuration for seed host.
func (c *Config) SiteConfig(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}
