// Package config provides configuration structures and utilities for proxycrawl.
// It defines the crawl settings, per-host overrides loaded from a YAML file,
// and the XDG locations used for persistent data.
package config
