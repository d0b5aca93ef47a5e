package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers compare them with errors.Is.
var (
	// ErrNoSeeds is returned when the seed list is empty.
	ErrNoSeeds = errors.New("no seeds: the seed file is empty or was not given")

	// ErrInvalidBranchFactor is returned when the branch factor is negative.
	// Zero is allowed and means "visit and compare seeds only".
	ErrInvalidBranchFactor = errors.New("invalid branch factor: must be non-negative")

	// ErrInvalidTimeout is returned when the navigation timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCSSLoadTime is returned when the settle time is negative.
	ErrInvalidCSSLoadTime = errors.New("invalid css load time: must be non-negative")

	// ErrInvalidWaitTime is returned when the mean or deviation of the pause
	// between steps is negative.
	ErrInvalidWaitTime = errors.New("invalid wait time: must be non-negative")

	// ErrInvalidErrorTolerance is returned when the tolerance is negative.
	ErrInvalidErrorTolerance = errors.New("invalid error tolerance: must be non-negative")

	// ErrInvalidShards is returned when the shard count is not positive.
	ErrInvalidShards = errors.New("invalid shard count: must be positive")

	// ErrInvalidNavigationRate is returned when the navigation rate is negative.
	ErrInvalidNavigationRate = errors.New("invalid navigation rate: must be non-negative")

	// ErrUnknownEngine is returned for an engine other than chromedp or playwright.
	ErrUnknownEngine = errors.New("unknown engine: use chromedp or playwright")

	// ErrInvalidProxyBase is returned when the proxy base is not an absolute
	// http(s) URL.
	ErrInvalidProxyBase = errors.New("invalid proxy base: expected an absolute http(s) URL")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
