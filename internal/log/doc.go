// Package log provides logging helpers built on log/slog.
//
// SecureHandler masks sensitive attribute values (cookies, credentials,
// tokens, credentials embedded in proxy URLs) before they are written.
// Crawl workers log document cookies whenever a page becomes ready, and
// worker logs are kept on disk, so every logger built here is wrapped.
//
// # Usage
//
//	f, err := log.OpenWorkerLog("/tmp", "a3")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	logger := log.NewWorkerLogger(io.MultiWriter(os.Stderr, f), "a3", false)
//	logger.Info("dom ready", "url", u, "cookie", c) // cookie=***REDACTED***
package log
