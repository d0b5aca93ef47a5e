package model

import (
	"math"
	"time"
)

// Comparison is one page-size comparison between the proxied rendering of a
// page and the same page fetched directly.
//
// A comparison is Skipped when either height was unavailable; in that case
// Deviation is zero and Regression is false.
type Comparison struct {
	// URL is the page as the proxied session saw it.
	URL string `json:"url"`

	// DirectURL is URL with the proxy prefix removed.
	DirectURL string `json:"direct_url"`

	// ProxiedHeight and DirectHeight are the document heights in pixels.
	ProxiedHeight int `json:"proxied_height"`
	DirectHeight  int `json:"direct_height"`

	// Deviation is |proxied - direct| * 100 / direct.
	Deviation float64 `json:"deviation"`

	// Tolerance is the deviation, in percent, the comparison allowed.
	Tolerance float64 `json:"tolerance"`

	// Regression is true when the deviation exceeded the tolerance.
	Regression bool `json:"regression"`

	// Skipped is true when no heights could be compared.
	Skipped bool `json:"skipped,omitempty"`

	// TextMatch is true when both renderings carried the same body text.
	// It is informational and never affects Regression.
	TextMatch bool `json:"text_match"`

	// ComparedAt is when the comparison finished.
	ComparedAt time.Time `json:"compared_at"`
}

// PercentDeviation returns |proxied - direct| * 100 / direct.
// It returns false when direct is not positive.
func PercentDeviation(proxied, direct int) (float64, bool) {
	if direct <= 0 {
		return 0, false
	}
	return math.Abs(float64(proxied-direct)) * 100 / float64(direct), true
}

// ExceedsTolerance reports whether deviation is a regression under
// tolerance. Both values are truncated to whole percents before comparing,
// so a deviation of 10.9 does not exceed a tolerance of 10.
func ExceedsTolerance(deviation, tolerance float64) bool {
	return int(deviation) > int(tolerance)
}

// NewComparison builds a comparison from two heights. A non-positive height
// on either side yields a skipped comparison.
func NewComparison(url, directURL string, proxiedHeight, directHeight int, tolerance float64) Comparison {
	c := Comparison{
		URL:           url,
		DirectURL:     directURL,
		ProxiedHeight: proxiedHeight,
		DirectHeight:  directHeight,
		Tolerance:     tolerance,
		ComparedAt:    time.Now(),
	}
	if proxiedHeight <= 0 {
		c.Skipped = true
		return c
	}
	deviation, ok := PercentDeviation(proxiedHeight, directHeight)
	if !ok {
		c.Skipped = true
		return c
	}
	c.Deviation = deviation
	c.Regression = ExceedsTolerance(deviation, tolerance)
	return c
}

// Result names the outcome of the comparison: "pass", "regression" or
// "skipped".
func (c Comparison) Result() string {
	switch {
	case c.Skipped:
		return "skipped"
	case c.Regression:
		return "regression"
	default:
		return "pass"
	}
}
