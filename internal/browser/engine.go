package browser

import "context"

// Engine is the capability surface of a browser instance.
// A Session drives exactly one Engine and never shares it.
//
// LoadDocument starts a navigation and returns without waiting for the page
// to load; completion is observed by the Session through events and
// snapshots. ExecuteScript runs one of the scripts built in this package and
// reports whether the script found what it was looking for.
type Engine interface {
	LoadDocument(ctx context.Context, url string) error
	ExecuteScript(ctx context.Context, script Script) (bool, error)
	Snapshot(ctx context.Context) (*Document, error)
	Subscribe(handler EventHandler)
	Close() error
}

// Document is a read-only view of the engine's current DOM.
type Document struct {
	// URL is the document location.
	URL string `json:"url"`

	// Title is the document title.
	Title string `json:"title"`

	// Cookie is document.cookie.
	Cookie string `json:"cookie"`

	// Height and Width are the laid out body size in CSS pixels.
	// Both are zero when no body has been laid out yet.
	Height int `json:"height"`
	Width  int `json:"width"`

	// Anchors lists every <a> element in document order.
	Anchors []Anchor `json:"anchors"`

	// DivIDs lists the id attributes of <div> elements in document order.
	DivIDs []string `json:"divIds"`

	// Named maps a name attribute to the innerHTML of the first element
	// carrying it.
	Named map[string]string `json:"named"`

	// Text is the visible text of the body.
	Text string `json:"text"`
}

// Anchor is an <a> element as found in the DOM.
type Anchor struct {
	// Href is the href property: the attribute resolved against the
	// document URL, as the browser would navigate to it.
	Href string `json:"href"`

	// Attr is the raw href attribute.
	Attr string `json:"attr"`

	// ID is the element id, empty when unset.
	ID string `json:"id"`
}

// EventKind enumerates the engine events a Session listens to.
type EventKind int

const (
	// EventDocumentReady fires when the DOM of a new document is ready.
	EventDocumentReady EventKind = iota

	// EventConsoleMessage carries a message written to the page console.
	EventConsoleMessage

	// EventScriptAlert carries the text of an alert() dialog.
	EventScriptAlert

	// EventNodeInserted fires when a node is inserted into the DOM.
	EventNodeInserted

	// EventNodeRemoved fires when a node is removed from the DOM.
	EventNodeRemoved

	// EventAttributeModified carries the attribute Name and new Value.
	EventAttributeModified

	// EventCharacterDataModified fires when a text node changes.
	EventCharacterDataModified
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventDocumentReady:
		return "document-ready"
	case EventConsoleMessage:
		return "console-message"
	case EventScriptAlert:
		return "script-alert"
	case EventNodeInserted:
		return "node-inserted"
	case EventNodeRemoved:
		return "node-removed"
	case EventAttributeModified:
		return "attribute-modified"
	case EventCharacterDataModified:
		return "character-data-modified"
	default:
		return "unknown"
	}
}

// Event is a notification delivered by an Engine.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	URL     string
	Message string
	Name    string
	Value   string
}

// EventHandler receives engine events. Engines may call it from their own
// goroutines, so handlers must not block.
type EventHandler func(Event)
