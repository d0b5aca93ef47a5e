// Package metrics exposes Prometheus counters for navigations, page
// comparisons and seeds, and an optional HTTP server serving them.
package metrics
