package pipeline

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/nao1215/proxycrawl/internal/browser"
	"github.com/nao1215/proxycrawl/internal/browser/browsertest"
	"github.com/nao1215/proxycrawl/internal/config"
)

func TestSessionOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		verbose     bool
		wantProxied bool
	}{
		{name: "verbose echoes console on the proxied session only", verbose: true, wantProxied: true},
		{name: "quiet drops plain console on both sessions", verbose: false, wantProxied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			cfg.Verbose = tt.verbose

			var proxiedOut, directOut bytes.Buffer
			proxiedOpts, _ := sessionOptions(cfg, slog.New(slog.NewTextHandler(&proxiedOut, nil)))
			_, directOpts := sessionOptions(cfg, slog.New(slog.NewTextHandler(&directOut, nil)))

			pe := browsertest.NewEngine(nil)
			de := browsertest.NewEngine(nil)
			_ = browser.NewSession(pe, browser.ModeProxied, proxiedOpts...)
			_ = browser.NewSession(de, browser.ModeDirect, directOpts...)

			msg := browser.Event{Kind: browser.EventConsoleMessage, Message: "hello from page"}
			pe.Emit(msg)
			de.Emit(msg)

			if got := strings.Contains(proxiedOut.String(), "hello from page"); got != tt.wantProxied {
				t.Errorf("proxied session logged console = %v, want %v: %q", got, tt.wantProxied, proxiedOut.String())
			}
			if strings.Contains(directOut.String(), "hello from page") {
				t.Errorf("direct session must not echo plain console messages: %q", directOut.String())
			}

			failure := browser.Event{Kind: browser.EventConsoleMessage, Message: "Failed to load resource"}
			de.Emit(failure)
			if !strings.Contains(directOut.String(), "Failed to load resource") {
				t.Errorf("direct session must still report console failures: %q", directOut.String())
			}
		})
	}
}
