package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/proxycrawl/internal/browser"
	"github.com/nao1215/proxycrawl/internal/config"
	"github.com/nao1215/proxycrawl/internal/engine"
)

// SessionFactory opens the proxied and the direct session of one shard.
// The caller closes both sessions.
type SessionFactory func(ctx context.Context, shard int) (proxied, direct *browser.Session, err error)

// EngineSessionFactory returns a SessionFactory that starts two browsers of
// cfg.Engine per shard. The proxied browser is routed through upstream
// when it is not empty ("socks5://host:port"); the direct browser never is.
//
// Without a proxy base the "proxied" session fetches seeds directly, so it
// detects loads the way a direct session does.
func EngineSessionFactory(cfg *config.Config, upstream string, logger *slog.Logger) SessionFactory {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, shard int) (*browser.Session, *browser.Session, error) {
		base := engine.Options{
			Headless:  cfg.Headless,
			UserAgent: cfg.UserAgent,
		}
		proxiedOpts := base
		proxiedOpts.ProxyServer = upstream

		pe, err := engine.New(ctx, cfg.Engine, proxiedOpts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start proxied browser: %w", err)
		}
		de, err := engine.New(ctx, cfg.Engine, base)
		if err != nil {
			return nil, nil, errors.Join(
				fmt.Errorf("failed to start direct browser: %w", err),
				pe.Close(),
			)
		}

		proxiedSessionOpts, directSessionOpts := sessionOptions(cfg, logger.With("shard", shard))

		mode := browser.ModeProxied
		if cfg.ProxyBase == "" {
			mode = browser.ModeDirect
		}

		return browser.NewSession(pe, mode, proxiedSessionOpts...), browser.NewSession(de, browser.ModeDirect, directSessionOpts...), nil
	}
}

// sessionOptions returns the options of the proxied and the direct session.
// Only the proxied session echoes every console message in verbose mode;
// the direct session reports console failures alone.
func sessionOptions(cfg *config.Config, logger *slog.Logger) (proxied, direct []browser.Option) {
	direct = []browser.Option{
		browser.WithLogger(logger),
		browser.WithPollInterval(config.DefaultPollInterval),
		browser.WithSettleTime(cfg.CSSLoadTime),
	}
	proxied = append(append([]browser.Option(nil), direct...), browser.WithVerboseConsole(cfg.Verbose))
	return proxied, direct
}
