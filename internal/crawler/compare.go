package crawler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/proxycrawl/internal/metrics"
	"github.com/nao1215/proxycrawl/internal/model"
)

// ProxyPrefix returns the prefix put in front of a URL to fetch it through
// proxyBase: the base without trailing slashes, plus one "/". It is empty
// without a proxy base.
func ProxyPrefix(proxyBase string) string {
	if proxyBase == "" {
		return ""
	}
	return strings.TrimRight(proxyBase, "/") + "/"
}

// DirectURL removes the proxy prefix from a proxied URL by literal
// substring removal. Without a proxy base the URL is returned unchanged.
func DirectURL(proxiedURL, proxyBase string) string {
	prefix := ProxyPrefix(proxyBase)
	if prefix == "" {
		return proxiedURL
	}
	return strings.ReplaceAll(proxiedURL, prefix, "")
}

// Comparator measures the proxied rendering of a page against the same
// page fetched directly.
type Comparator struct {
	proxied   Browser
	direct    Browser
	proxyBase string
	pacer     *Pacer
	logger    *slog.Logger
}

// NewComparator returns a Comparator reading the proxied session's current
// page and loading its direct equivalent into the direct session.
func NewComparator(proxied, direct Browser, proxyBase string, pacer *Pacer, logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Comparator{
		proxied:   proxied,
		direct:    direct,
		proxyBase: proxyBase,
		pacer:     pacer,
		logger:    logger,
	}
}

// Compare runs one page-size test for the page the proxied session shows,
// known as pageURL.
//
// A missing height on either side produces a skipped comparison and no
// error. The only errors are those of the direct visit, timeouts included;
// the returned comparison is then skipped.
func (c *Comparator) Compare(ctx context.Context, pageURL string, timeout time.Duration, tolerance float64) (model.Comparison, error) {
	directURL := DirectURL(pageURL, c.proxyBase)

	proxiedGeo, err := c.proxied.DocumentGeometry(ctx)
	if err != nil {
		c.logger.Debug("skipping page size test", "url", pageURL, "reason", err)
		cmp := model.NewComparison(pageURL, directURL, 0, 0, tolerance)
		metrics.RecordComparison(cmp.Result(), 0, false)
		return cmp, nil
	}
	proxiedText := c.text(ctx, c.proxied)

	c.logger.Info("page size test started", "url", pageURL)

	if err := c.pacer.Wait(ctx); err != nil {
		return model.NewComparison(pageURL, directURL, proxiedGeo.Height, 0, tolerance), err
	}
	if err := c.direct.Visit(ctx, directURL, timeout); err != nil {
		return model.NewComparison(pageURL, directURL, proxiedGeo.Height, 0, tolerance), err
	}

	directHeight := 0
	directGeo, err := c.direct.DocumentGeometry(ctx)
	if err == nil {
		directHeight = directGeo.Height
	}

	cmp := model.NewComparison(pageURL, directURL, proxiedGeo.Height, directHeight, tolerance)
	cmp.TextMatch = !cmp.Skipped && digest(proxiedText) == digest(c.text(ctx, c.direct))

	c.logger.Info("page size",
		"url", pageURL,
		"proxied_height", proxiedGeo.Height,
		"direct_height", directHeight,
	)
	if cmp.Regression {
		c.logger.Error("regression detected",
			"url", pageURL,
			"proxied_height", cmp.ProxiedHeight,
			"direct_height", cmp.DirectHeight,
			"deviation", cmp.Deviation,
			"tolerance", tolerance,
		)
	}
	metrics.RecordComparison(cmp.Result(), cmp.Deviation, !cmp.Skipped)

	c.logger.Info("page size test done", "url", pageURL)
	return cmp, nil
}

// text returns the body text of the session's current page, or "" when it
// cannot be read.
func (c *Comparator) text(ctx context.Context, b Browser) string {
	doc, err := b.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Debug("failed to read page text", "error", err)
		}
		return ""
	}
	return doc.Text
}

func digest(text string) [blake2b.Size256]byte {
	return blake2b.Sum256([]byte(text))
}
