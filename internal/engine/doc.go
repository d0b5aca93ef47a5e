// Package engine provides the browser engines behind browser.Session:
// Chrome over the DevTools protocol (chromedp) and Chromium through
// Playwright. Both read the DOM with a single snapshot script and start
// navigations without waiting for them, leaving load detection to the
// session.
package engine
