// Package model defines the data structures shared by the crawler, the
// report writers and the run database.
//
// This package contains the following main types:
//   - RunReport: one crawl run over a seed list
//   - SeedResult: the traversal of a single seed and how it ended
//   - Comparison: a proxied vs. direct page-size comparison
//   - RunDiff: regressions that appeared or went away between two runs
package model
