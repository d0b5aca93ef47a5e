// Package database provides SQLite-based storage for crawl runs.
//
// This package implements the RunDB, which stores:
//   - Runs, with the complete report as JSON
//   - Seed results, one per traversed seed
//   - Page-size comparisons, including skipped ones
//
// Design decision: We use SQLite (via modernc.org/sqlite) because it is a
// single CGO-free file that can sit in the XDG data directory, and the
// history and compare commands only need local queries over past runs.
package database
