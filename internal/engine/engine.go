package engine

import (
	"context"
	"fmt"

	"github.com/nao1215/proxycrawl/internal/browser"
	"github.com/nao1215/proxycrawl/internal/config"
)

// Default window size of both engines.
const (
	DefaultWindowWidth  = 1280
	DefaultWindowHeight = 1024
)

// Options configures a browser engine.
type Options struct {
	// Headless runs the browser without a window.
	Headless bool

	// ProxyServer routes all browser traffic through a forward proxy,
	// e.g. "socks5://127.0.0.1:1080". Empty means direct.
	ProxyServer string

	// UserAgent overrides the browser user agent when set.
	UserAgent string

	// WindowWidth and WindowHeight set the viewport size.
	WindowWidth  int
	WindowHeight int
}

// withDefaults fills unset window dimensions.
func (o Options) withDefaults() Options {
	if o.WindowWidth <= 0 {
		o.WindowWidth = DefaultWindowWidth
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = DefaultWindowHeight
	}
	return o
}

// New starts the engine named name (config.EngineChromedp or
// config.EnginePlaywright).
func New(ctx context.Context, name string, opts Options) (browser.Engine, error) {
	switch name {
	case config.EngineChromedp:
		return NewChromedp(ctx, opts)
	case config.EnginePlaywright:
		return NewPlaywright(opts)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownEngine, name)
	}
}
