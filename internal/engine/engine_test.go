package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/proxycrawl/internal/config"
)

func TestNewUnknownEngine(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "webkitgtk", Options{})
	if !errors.Is(err, config.ErrUnknownEngine) {
		t.Errorf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	t.Parallel()

	got := Options{}.withDefaults()
	if got.WindowWidth != DefaultWindowWidth || got.WindowHeight != DefaultWindowHeight {
		t.Errorf("unexpected defaults %+v", got)
	}

	kept := Options{WindowWidth: 800, WindowHeight: 600}.withDefaults()
	if kept.WindowWidth != 800 || kept.WindowHeight != 600 {
		t.Errorf("explicit size was overridden: %+v", kept)
	}
}

func TestDecodeDocument(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"url":    "http://example.com/",
		"title":  "Home",
		"height": float64(800),
		"width":  float64(1024),
		"anchors": []any{
			map[string]any{"href": "http://example.com/a", "attr": "/a", "id": ""},
		},
		"divIds": []any{"loader"},
		"text":   "hello",
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Height != 800 || doc.Width != 1024 {
		t.Errorf("unexpected geometry %dx%d", doc.Width, doc.Height)
	}
	if len(doc.Anchors) != 1 || doc.Anchors[0].Href != "http://example.com/a" || doc.Anchors[0].Attr != "/a" {
		t.Errorf("unexpected anchors %v", doc.Anchors)
	}
	if len(doc.DivIDs) != 1 || doc.DivIDs[0] != "loader" {
		t.Errorf("unexpected div ids %v", doc.DivIDs)
	}
	if doc.Named == nil {
		t.Error("expected Named to be initialized")
	}
}

func TestConsoleText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []consoleArg
		want string
	}{
		{name: "string arguments are unquoted", args: []consoleArg{{value: []byte(`"Failed to load"`)}, {value: []byte(`"x.css"`)}}, want: "Failed to load x.css"},
		{name: "numbers keep their JSON form", args: []consoleArg{{value: []byte(`42`)}}, want: "42"},
		{name: "objects use the description", args: []consoleArg{{description: "Error: boom"}}, want: "Error: boom"},
		{name: "no arguments", args: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := consoleText(tt.args); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadExpression(t *testing.T) {
	t.Parallel()

	got := loadExpression(`http://example.com/?q="x"`)
	if !strings.Contains(got, `window.location.assign(url)`) {
		t.Errorf("expected location.assign in %q", got)
	}
	if !strings.HasSuffix(got, `("http://example.com/?q=\"x\"")`) {
		t.Errorf("expected the quoted URL as argument, got %q", got)
	}
}
