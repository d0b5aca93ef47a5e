package model

import (
	"fmt"
	"time"
)

// SeedStatus is the outcome of one seed's traversal.
//
// The zero value is SeedCompleted so that a SeedResult built incrementally
// only has to record the ways it ended early.
type SeedStatus int

const (
	// SeedCompleted means the seed page loaded and its link traversal ran
	// until the branch budget or the candidate links were exhausted.
	SeedCompleted SeedStatus = iota

	// SeedVisitTimeout means the proxied seed page never finished loading.
	// No links were followed.
	SeedVisitTimeout

	// SeedClickTimeout means a followed link never finished loading.
	// The remaining links of the seed were abandoned.
	SeedClickTimeout

	// SeedBackTimeout means going back from a followed link never finished.
	// The remaining links of the seed were abandoned.
	SeedBackTimeout

	// SeedSkipped means the seed was excluded by a site override.
	SeedSkipped

	// SeedFailed means the browser reported an error that is not a timeout,
	// or the run was cancelled while the seed was in progress.
	SeedFailed
)

var seedStatusNames = map[SeedStatus]string{
	SeedCompleted:    "completed",
	SeedVisitTimeout: "visit_timeout",
	SeedClickTimeout: "click_timeout",
	SeedBackTimeout:  "back_timeout",
	SeedSkipped:      "skipped",
	SeedFailed:       "failed",
}

// AllSeedStatuses lists every status in display order.
var AllSeedStatuses = []SeedStatus{
	SeedCompleted,
	SeedVisitTimeout,
	SeedClickTimeout,
	SeedBackTimeout,
	SeedSkipped,
	SeedFailed,
}

// String returns the status name used in logs, reports and the database.
func (s SeedStatus) String() string {
	if name, ok := seedStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTimeout reports whether the seed ended because of a navigation timeout.
func (s SeedStatus) IsTimeout() bool {
	return s == SeedVisitTimeout || s == SeedClickTimeout || s == SeedBackTimeout
}

// ParseSeedStatus converts a status name back into a SeedStatus.
func ParseSeedStatus(name string) (SeedStatus, error) {
	for status, n := range seedStatusNames {
		if n == name {
			return status, nil
		}
	}
	return SeedFailed, fmt.Errorf("unknown seed status %q", name)
}

// MarshalText implements encoding.TextMarshaler so that JSON reports carry
// the status name instead of its number.
func (s SeedStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SeedStatus) UnmarshalText(text []byte) error {
	status, err := ParseSeedStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// SeedResult records the traversal of one seed.
type SeedResult struct {
	// Seed is the URL as it came from the seed list, e.g. "http://example.com".
	Seed string `json:"seed"`

	// TargetURL is the URL the proxied session visited: the seed prefixed
	// with the proxy base, or the seed itself when no proxy base is set.
	TargetURL string `json:"target_url"`

	// Status is how the traversal ended.
	Status SeedStatus `json:"status"`

	// BranchFactor is the link budget the seed started with.
	BranchFactor int `json:"branch_factor"`

	// === Traversal ===

	// LinksFound is the number of candidate links on the seed page.
	LinksFound int `json:"links_found"`

	// LinksFollowed is the number of links clicked and navigated back from.
	LinksFollowed int `json:"links_followed"`

	// LinksSkipped is the number of candidate links whose anchor could no
	// longer be found when their turn came.
	LinksSkipped int `json:"links_skipped"`

	// Comparisons holds every page-size comparison made for this seed,
	// including those skipped for lack of geometry.
	Comparisons []Comparison `json:"comparisons,omitempty"`

	// Error is the reason for SeedFailed, or the timed-out URL otherwise.
	Error string `json:"error,omitempty"`

	// StartedAt and FinishedAt bound the traversal.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewSeedResult starts the result of a seed traversal.
func NewSeedResult(seed, targetURL string, branchFactor int) SeedResult {
	return SeedResult{
		Seed:         seed,
		TargetURL:    targetURL,
		Status:       SeedCompleted,
		BranchFactor: branchFactor,
		StartedAt:    time.Now(),
	}
}

// AddComparison appends a comparison to the seed.
func (s *SeedResult) AddComparison(c Comparison) {
	s.Comparisons = append(s.Comparisons, c)
}

// Regressions returns the comparisons that exceeded the tolerance.
func (s *SeedResult) Regressions() []Comparison {
	var out []Comparison
	for _, c := range s.Comparisons {
		if c.Regression {
			out = append(out, c)
		}
	}
	return out
}

// Finish marks the traversal as ended with status.
func (s *SeedResult) Finish(status SeedStatus) {
	s.Status = status
	s.FinishedAt = time.Now()
}

// Duration returns how long the traversal took.
func (s *SeedResult) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
