package browser

import "errors"

var (
	// ErrTimeout is returned when an armed wait reaches its deadline before
	// the completion condition is observed.
	ErrTimeout = errors.New("timed out waiting for page load")

	// ErrElementNotFound is returned when an element looked up by href or id
	// is not in the current document.
	ErrElementNotFound = errors.New("element not found")

	// ErrGeometryUnavailable is returned when the document has no laid out
	// body, or its height is zero.
	ErrGeometryUnavailable = errors.New("document geometry unavailable")

	// ErrSessionClosed is returned by operations on a closed Session.
	ErrSessionClosed = errors.New("browser session closed")
)
