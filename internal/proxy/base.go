package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultCheckTimeout bounds a proxy base reachability check.
const DefaultCheckTimeout = 10 * time.Second

// CheckBase sends a GET request to the proxy base and reports whether an
// HTTP server answered. Any status below 500 counts as reachable: the base
// page of a rewriting proxy commonly redirects or answers 404.
// A nil client uses a direct client with DefaultCheckTimeout.
func CheckBase(ctx context.Context, client *http.Client, base string) (int, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultCheckTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProxyBaseUnreachable, err) //nolint:errorlint // only the sentinel is part of the contract
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProxyBaseUnreachable, err) //nolint:errorlint // only the sentinel is part of the contract
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // drained for connection reuse

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, fmt.Errorf("%w: %s answered %d", ErrProxyBaseUnreachable, base, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
