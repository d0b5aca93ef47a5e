package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nao1215/proxycrawl/internal/browser"
)

// snapshotScript reads everything browser.Document holds in one round trip.
const snapshotScript = `(() => {
	const body = document.body;
	const named = {};
	for (const el of document.querySelectorAll("[name]")) {
		const n = el.getAttribute("name");
		if (!(n in named)) { named[n] = el.innerHTML; }
	}
	let cookie = "";
	try { cookie = document.cookie; } catch (e) { cookie = ""; }
	return {
		url: document.URL,
		title: document.title,
		cookie: cookie,
		height: body ? body.scrollHeight : 0,
		width: body ? body.scrollWidth : 0,
		anchors: Array.from(document.getElementsByTagName("a"))
			.filter((a) => a.hasAttribute("href"))
			.map((a) => ({href: a.href, attr: a.getAttribute("href"), id: a.id})),
		divIds: Array.from(document.querySelectorAll("div[id]")).map((d) => d.id),
		named: named,
		text: body ? body.innerText : "",
	};
})()`

// loadScript starts a navigation without waiting for it.
const loadScript = `(url) => { window.location.assign(url); return true; }`

// loadExpression is loadScript applied to url, for engines that evaluate a
// single expression.
func loadExpression(url string) string {
	b, err := json.Marshal(url)
	if err != nil {
		b = []byte(`""`)
	}
	return "(" + loadScript + ")(" + string(b) + ")"
}

// decodeDocument converts a generic evaluation result into a Document.
func decodeDocument(v any) (*browser.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var doc browser.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Named == nil {
		doc.Named = map[string]string{}
	}
	return &doc, nil
}

// consoleText joins console arguments the way a console prints them.
// String arguments are unquoted; other values use their JSON form or their
// description.
func consoleText(args []consoleArg) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if len(a.value) > 0 {
			var s string
			if err := json.Unmarshal(a.value, &s); err == nil {
				parts = append(parts, s)
				continue
			}
			parts = append(parts, string(a.value))
			continue
		}
		if a.description != "" {
			parts = append(parts, a.description)
		}
	}
	return strings.Join(parts, " ")
}

// consoleArg is one console argument as raw JSON plus a description.
type consoleArg struct {
	value       []byte
	description string
}
