package browser

import (
	"strings"

	"golang.org/x/text/cases"
)

// failureWords mark a console message as a page failure.
var failureWords = []string{"failed", "error"}

// handleEvent is the EventHandler a Session registers on its engine.
func (s *Session) handleEvent(ev Event) {
	switch ev.Kind {
	case EventDocumentReady:
		s.ready.Store(true)
		s.logger.Debug("dom ready", "url", ev.URL)

	case EventConsoleMessage:
		if isFailureMessage(ev.Message) {
			s.logger.Error("console message", "message", ev.Message, "url", ev.URL)
		} else if s.verboseConsole {
			s.logger.Info("console message", "message", ev.Message, "url", ev.URL)
		}

	case EventScriptAlert:
		s.logger.Error("script alert", "message", ev.Message, "url", ev.URL)

	case EventAttributeModified:
		s.mu.Lock()
		s.attributes[ev.Name] = ev.Value
		s.mu.Unlock()
		s.logger.Debug("dom mutation", "kind", ev.Kind.String(), "name", ev.Name, "value", ev.Value)

	case EventNodeInserted, EventNodeRemoved, EventCharacterDataModified:
		s.logger.Debug("dom mutation", "kind", ev.Kind.String())
	}
}

// isFailureMessage reports whether a console message mentions a failure,
// ignoring case.
func isFailureMessage(msg string) bool {
	folded := cases.Fold().String(msg)
	for _, word := range failureWords {
		if strings.Contains(folded, word) {
			return true
		}
	}
	return false
}
