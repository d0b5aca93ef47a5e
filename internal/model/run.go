package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// RunReport is the result of one crawl run over a seed list.
//
// Runs are keyed by ULID so reports from independent workers share one
// database and still sort by start time.
type RunReport struct {
	// ID is the ULID of the run.
	ID string `json:"id"`

	// WorkerID identifies the worker that produced the run.
	WorkerID string `json:"worker_id"`

	// ProxyBase is the proxy prefix under test; empty for a direct run.
	ProxyBase string `json:"proxy_base,omitempty"`

	// Engine is the browser engine used.
	Engine string `json:"engine,omitempty"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Seeds holds one result per processed seed, in queue order.
	Seeds []SeedResult `json:"seeds"`

	// Cancelled is true when the run stopped before the queue was drained.
	Cancelled bool `json:"cancelled"`

	// Error is any error that stopped the run.
	Error error `json:"-"`

	// ErrorMessage is the string representation of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewRunReport creates a report stamped with a fresh ID and start time.
func NewRunReport(workerID, proxyBase string) *RunReport {
	return &RunReport{
		ID:        ulid.Make().String(),
		WorkerID:  workerID,
		ProxyBase: proxyBase,
		StartedAt: time.Now(),
	}
}

// AddSeed appends a finished seed result.
func (r *RunReport) AddSeed(s SeedResult) {
	r.Seeds = append(r.Seeds, s)
}

// SetError records err and its message.
func (r *RunReport) SetError(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// Finish stamps the end of the run.
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Regressions returns every regression of the run in seed order.
func (r *RunReport) Regressions() []Comparison {
	var out []Comparison
	for i := range r.Seeds {
		out = append(out, r.Seeds[i].Regressions()...)
	}
	return out
}

// HasRegressions reports whether any comparison exceeded its tolerance.
func (r *RunReport) HasRegressions() bool {
	for i := range r.Seeds {
		for _, c := range r.Seeds[i].Comparisons {
			if c.Regression {
				return true
			}
		}
	}
	return false
}

// Summary aggregates a run for display.
type Summary struct {
	Seeds         int                `json:"seeds"`
	ByStatus      map[SeedStatus]int `json:"by_status"`
	LinksFollowed int                `json:"links_followed"`
	LinksSkipped  int                `json:"links_skipped"`
	Comparisons   int                `json:"comparisons"`
	Skipped       int                `json:"skipped_comparisons"`
	Regressions   int                `json:"regressions"`
	MaxDeviation  float64            `json:"max_deviation"`
}

// Summary counts seeds by status and comparisons by outcome.
func (r *RunReport) Summary() Summary {
	s := Summary{ByStatus: make(map[SeedStatus]int)}
	for i := range r.Seeds {
		seed := &r.Seeds[i]
		s.Seeds++
		s.ByStatus[seed.Status]++
		s.LinksFollowed += seed.LinksFollowed
		s.LinksSkipped += seed.LinksSkipped
		for _, c := range seed.Comparisons {
			if c.Skipped {
				s.Skipped++
				continue
			}
			s.Comparisons++
			if c.Regression {
				s.Regressions++
			}
			if c.Deviation > s.MaxDeviation {
				s.MaxDeviation = c.Deviation
			}
		}
	}
	return s
}

// MergeRunReports combines the reports of independent shards into one run.
// The merged run takes the earliest start, the latest finish and the first
// error; seeds keep shard order.
func MergeRunReports(workerID, proxyBase string, reports []*RunReport) *RunReport {
	merged := NewRunReport(workerID, proxyBase)
	first := true
	for _, r := range reports {
		if r == nil {
			continue
		}
		if first || r.StartedAt.Before(merged.StartedAt) {
			merged.StartedAt = r.StartedAt
		}
		first = false
		if r.FinishedAt.After(merged.FinishedAt) {
			merged.FinishedAt = r.FinishedAt
		}
		if merged.Engine == "" {
			merged.Engine = r.Engine
		}
		merged.Seeds = append(merged.Seeds, r.Seeds...)
		merged.Cancelled = merged.Cancelled || r.Cancelled
		if merged.Error == nil && r.Error != nil {
			merged.SetError(r.Error)
		}
	}
	if merged.FinishedAt.IsZero() {
		merged.Finish()
	}
	return merged
}
