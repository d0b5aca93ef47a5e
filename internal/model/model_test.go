package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestPercentDeviation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		proxied int
		direct  int
		want    float64
		wantOK  bool
	}{
		{name: "equal heights", proxied: 100, direct: 100, want: 0, wantOK: true},
		{name: "taller proxied page", proxied: 150, direct: 100, want: 50, wantOK: true},
		{name: "shorter proxied page", proxied: 50, direct: 200, want: 75, wantOK: true},
		{name: "zero direct height", proxied: 100, direct: 0, want: 0, wantOK: false},
		{name: "negative direct height", proxied: 100, direct: -1, want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := PercentDeviation(tt.proxied, tt.direct)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExceedsTolerance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		deviation float64
		tolerance float64
		want      bool
	}{
		{name: "below tolerance", deviation: 5, tolerance: 10, want: false},
		{name: "equal to tolerance", deviation: 10, tolerance: 10, want: false},
		{name: "fraction above tolerance truncates", deviation: 10.9, tolerance: 10, want: false},
		{name: "next whole percent", deviation: 11, tolerance: 10, want: true},
		{name: "far above tolerance", deviation: 50, tolerance: 10, want: true},
		{name: "zero tolerance", deviation: 1, tolerance: 0, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ExceedsTolerance(tt.deviation, tt.tolerance); got != tt.want {
				t.Errorf("ExceedsTolerance(%v, %v) = %v, want %v", tt.deviation, tt.tolerance, got, tt.want)
			}
		})
	}
}

func TestNewComparison(t *testing.T) {
	t.Parallel()

	t.Run("identical heights are not a regression", func(t *testing.T) {
		t.Parallel()

		c := NewComparison("p", "d", 100, 100, 10)
		if c.Skipped || c.Regression || c.Deviation != 0 {
			t.Errorf("unexpected comparison %+v", c)
		}
	})

	t.Run("fifty percent taller is a regression", func(t *testing.T) {
		t.Parallel()

		c := NewComparison("p", "d", 150, 100, 10)
		if !c.Regression {
			t.Error("expected a regression")
		}
		if c.ProxiedHeight != 150 || c.DirectHeight != 100 || c.Deviation != 50 {
			t.Errorf("unexpected values %+v", c)
		}
	})

	t.Run("missing direct height is skipped", func(t *testing.T) {
		t.Parallel()

		c := NewComparison("p", "d", 150, 0, 10)
		if !c.Skipped || c.Regression {
			t.Errorf("expected a skipped comparison, got %+v", c)
		}
	})

	t.Run("missing proxied height is skipped", func(t *testing.T) {
		t.Parallel()

		c := NewComparison("p", "d", 0, 100, 10)
		if !c.Skipped {
			t.Errorf("expected a skipped comparison, got %+v", c)
		}
	})
}

func TestSeedStatus(t *testing.T) {
	t.Parallel()

	for _, status := range AllSeedStatuses {
		t.Run(status.String(), func(t *testing.T) {
			t.Parallel()

			parsed, err := ParseSeedStatus(status.String())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parsed != status {
				t.Errorf("got %v, want %v", parsed, status)
			}
		})
	}

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseSeedStatus("exploded"); err == nil {
			t.Error("expected an error")
		}
		if got := SeedStatus(99).String(); got != "unknown" {
			t.Errorf("got %q, want unknown", got)
		}
	})

	t.Run("timeouts", func(t *testing.T) {
		t.Parallel()

		if !SeedClickTimeout.IsTimeout() || !SeedVisitTimeout.IsTimeout() || !SeedBackTimeout.IsTimeout() {
			t.Error("expected timeout statuses to report IsTimeout")
		}
		if SeedCompleted.IsTimeout() || SeedSkipped.IsTimeout() || SeedFailed.IsTimeout() {
			t.Error("expected non-timeout statuses not to report IsTimeout")
		}
	})

	t.Run("JSON uses names", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(SeedResult{Status: SeedBackTimeout})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if decoded["status"] != "back_timeout" {
			t.Errorf("got status %v, want back_timeout", decoded["status"])
		}
	})
}

func TestRunReport(t *testing.T) {
	t.Parallel()

	newReport := func() *RunReport {
		r := NewRunReport("ab", "http://proxy.local")

		a := NewSeedResult("http://a.example", "http://proxy.local/http://a.example", 5)
		a.LinksFollowed = 2
		a.AddComparison(NewComparison("u1", "d1", 100, 100, 10))
		a.AddComparison(NewComparison("u2", "d2", 150, 100, 10))
		a.Finish(SeedCompleted)
		r.AddSeed(a)

		b := NewSeedResult("http://b.example", "http://proxy.local/http://b.example", 5)
		b.AddComparison(NewComparison("u3", "d3", 100, 0, 10))
		b.Finish(SeedClickTimeout)
		r.AddSeed(b)

		r.Finish()
		return r
	}

	t.Run("new report has an ID and start time", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport("ab", "")
		if len(r.ID) != 26 {
			t.Errorf("expected a 26 character ULID, got %q", r.ID)
		}
		if time.Since(r.StartedAt) > time.Second {
			t.Error("StartedAt is too old")
		}
	})

	t.Run("summary", func(t *testing.T) {
		t.Parallel()

		s := newReport().Summary()
		if s.Seeds != 2 || s.LinksFollowed != 2 {
			t.Errorf("unexpected counts %+v", s)
		}
		if s.ByStatus[SeedCompleted] != 1 || s.ByStatus[SeedClickTimeout] != 1 {
			t.Errorf("unexpected status counts %v", s.ByStatus)
		}
		if s.Comparisons != 2 || s.Skipped != 1 || s.Regressions != 1 {
			t.Errorf("unexpected comparison counts %+v", s)
		}
		if s.MaxDeviation != 50 {
			t.Errorf("got max deviation %v, want 50", s.MaxDeviation)
		}
	})

	t.Run("regressions", func(t *testing.T) {
		t.Parallel()

		r := newReport()
		if !r.HasRegressions() {
			t.Error("expected regressions")
		}
		regs := r.Regressions()
		if len(regs) != 1 || regs[0].URL != "u2" {
			t.Errorf("unexpected regressions %v", regs)
		}
	})

	t.Run("set error", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport("ab", "")
		r.SetError(errors.New("boom"))
		if r.ErrorMessage != "boom" {
			t.Errorf("got %q, want boom", r.ErrorMessage)
		}
	})
}

func TestMergeRunReports(t *testing.T) {
	t.Parallel()

	early := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	a := &RunReport{ID: "a", StartedAt: early.Add(time.Minute), FinishedAt: late, Engine: "chromedp", Seeds: []SeedResult{{Seed: "s1"}}}
	b := &RunReport{ID: "b", StartedAt: early, FinishedAt: early.Add(time.Minute), Seeds: []SeedResult{{Seed: "s2"}}, Cancelled: true}
	b.SetError(errors.New("shard failed"))

	merged := MergeRunReports("ab", "http://proxy.local", []*RunReport{a, nil, b})

	if !merged.StartedAt.Equal(early) || !merged.FinishedAt.Equal(late) {
		t.Errorf("unexpected bounds %v - %v", merged.StartedAt, merged.FinishedAt)
	}
	if len(merged.Seeds) != 2 || merged.Seeds[0].Seed != "s1" || merged.Seeds[1].Seed != "s2" {
		t.Errorf("unexpected seeds %v", merged.Seeds)
	}
	if !merged.Cancelled || merged.ErrorMessage != "shard failed" {
		t.Errorf("expected cancellation and error to carry over, got %+v", merged)
	}
	if merged.Engine != "chromedp" || merged.WorkerID != "ab" {
		t.Errorf("unexpected identity %+v", merged)
	}
}

func TestDiffRuns(t *testing.T) {
	t.Parallel()

	reportWith := func(id string, urls ...string) *RunReport {
		seed := NewSeedResult("http://a.example", "", 5)
		for _, u := range urls {
			seed.AddComparison(NewComparison(u, u, 200, 100, 10))
		}
		seed.AddComparison(NewComparison("http://fine.example", "", 100, 100, 10))
		return &RunReport{ID: id, Seeds: []SeedResult{seed}}
	}

	older := reportWith("old", "http://x", "http://y")
	newer := reportWith("new", "http://y", "http://z")

	diff := DiffRuns(older, newer)

	if diff.OldRunID != "old" || diff.NewRunID != "new" {
		t.Errorf("unexpected ids %q %q", diff.OldRunID, diff.NewRunID)
	}
	if len(diff.New) != 1 || diff.New[0].URL != "http://z" {
		t.Errorf("unexpected new regressions %v", diff.New)
	}
	if len(diff.Resolved) != 1 || diff.Resolved[0].URL != "http://x" {
		t.Errorf("unexpected resolved regressions %v", diff.Resolved)
	}
	if len(diff.Persisting) != 1 || diff.Persisting[0].URL != "http://y" {
		t.Errorf("unexpected persisting regressions %v", diff.Persisting)
	}
	if !diff.HasChanges() {
		t.Error("expected changes")
	}

	same := DiffRuns(older, older)
	if same.HasChanges() {
		t.Error("expected no changes between identical runs")
	}
}
