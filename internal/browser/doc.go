// Package browser turns an asynchronous browser engine into blocking,
// timeout-bounded page operations.
//
// A Session owns one Engine. Every navigation (Visit, ClickElement, GoBack)
// runs the same cycle: the session is armed with a deadline, the navigation
// is issued, and a completion Predicate is polled every 100ms until it holds
// or the deadline fires. A completed load is followed by a fixed settle time
// so stylesheets can finish before geometry is read.
//
// How completion is detected depends on the Mode:
//
//	mode     visit                          click / back
//	direct   document-ready event           document-ready event
//	proxied  no div id containing "loader"  title contains "LOADED"
//
// Engines deliver events (document ready, console, alerts, DOM mutations)
// through EventHandler; console failures and alerts are logged as errors.
package browser
