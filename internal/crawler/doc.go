// Package crawler walks seed pages through a proxy and compares what the
// proxy renders with the same pages fetched directly.
//
// # Architecture
//
// A Crawler drives two browser sessions: a proxied one, visiting
// "<proxy base>/<seed>", and a direct one used as ground truth. For every
// seed it visits the page, runs a page-size test, then follows up to the
// branch factor of the page's links in document order. Each followed link
// goes through three tests:
//
//   - click test: tag the anchor with its own href as id and click it
//   - page-size test: compare document heights with the direct page
//   - go-back test: navigate back to the seed page
//
// A click or back timeout abandons the rest of the seed; a visit timeout
// abandons the whole seed. The queue always moves on to the next seed.
//
// # Components
//
//   - SeedQueue: the owned work queue of one worker
//   - Pacer: jittered pauses and an optional navigation rate limit
//   - Comparator: the page-size test
//   - LinkFilter: optional ignore/follow path patterns
//
// # Usage
//
//	c := crawler.New(proxiedSession, directSession, cfg, crawler.WithLogger(logger))
//	report := c.Run(ctx, crawler.NewSeedQueue(cfg.Seeds))
package crawler
