package config

import "time"

// SiteConfig holds per-host overrides. Zero values mean "use the global setting".
type SiteConfig struct {
	// BranchFactor overrides the number of links followed from this seed.
	// A pointer distinguishes "not set" from an explicit 0.
	BranchFactor *int `yaml:"branchFactor,omitempty"`

	// Timeout overrides the navigation timeout, e.g. "30s".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// ErrorTolerance overrides the tolerated height deviation in percent.
	ErrorTolerance float64 `yaml:"errorTolerance,omitempty"`

	// Skip removes the host from the run entirely.
	Skip bool `yaml:"skip,omitempty"`
}

// File represents the structure of the .proxycrawl configuration file.
type File struct {
	// Sites maps hostnames (without scheme) to their overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every host unless a site entry overrides them.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// IgnorePatterns are link path globs never followed, e.g. "/logout*".
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict followed links to matching paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// GetSiteConfig returns the configuration for a host, merged over defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	site, ok := cf.Sites[host]
	if !ok {
		return result
	}
	if site.BranchFactor != nil {
		result.BranchFactor = site.BranchFactor
	}
	if site.Timeout != 0 {
		result.Timeout = site.Timeout
	}
	if site.ErrorTolerance != 0 {
		result.ErrorTolerance = site.ErrorTolerance
	}
	if site.Skip {
		result.Skip = true
	}
	return result
}

// BranchFactorOr returns the site's branch factor, or fallback when unset.
func (s SiteConfig) BranchFactorOr(fallback int) int {
	if s.BranchFactor != nil {
		return *s.BranchFactor
	}
	return fallback
}

// TimeoutOr returns the site's timeout, or fallback when unset.
func (s SiteConfig) TimeoutOr(fallback time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return fallback
}

// ErrorToleranceOr returns the site's tolerance, or fallback when unset.
func (s SiteConfig) ErrorToleranceOr(fallback float64) float64 {
	if s.ErrorTolerance > 0 {
		return s.ErrorTolerance
	}
	return fallback
}
