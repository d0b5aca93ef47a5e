package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/proxycrawl/internal/database"
	"github.com/nao1215/proxycrawl/internal/model"
)

const testProxy = "http://proxy.test"

// storedRun builds a run whose regressions are the given page paths.
func storedRun(started time.Time, regressions ...string) *model.RunReport {
	run := model.NewRunReport("a1", testProxy)
	run.Engine = "chromedp"
	run.StartedAt = started

	seed := model.NewSeedResult("http://example.com", testProxy+"/http://example.com", 5)
	seed.AddComparison(model.NewComparison(
		testProxy+"/http://example.com", "http://example.com", 100, 100, 10))
	for _, path := range regressions {
		seed.AddComparison(model.NewComparison(
			testProxy+"/http://example.com"+path, "http://example.com"+path, 150, 100, 10))
	}
	seed.Finish(model.SeedCompleted)
	run.AddSeed(seed)

	run.FinishedAt = started.Add(time.Minute)
	return run
}

// seedHistory saves runs into a fresh database and returns its directory.
func seedHistory(t *testing.T, runs ...*model.RunReport) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for _, run := range runs {
		if err := db.SaveRunReport(context.Background(), run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := storedRun(base, "/about")
	newer := storedRun(base.Add(time.Hour), "/about", "/blog")
	dir := seedHistory(t, older, newer)

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(out, "Runs (2)") {
			t.Errorf("expected run count, got:\n%s", out)
		}
		iNew, iOld := strings.Index(out, newer.ID), strings.Index(out, older.ID)
		if iNew < 0 || iOld < 0 || iNew > iOld {
			t.Errorf("expected newer run listed first, got:\n%s", out)
		}
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--db-dir", dir, "-n", "1", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var runs []database.RunMetadata
		if err := json.Unmarshal([]byte(out), &runs); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if len(runs) != 1 || runs[0].ID != newer.ID {
			t.Errorf("expected only the newer run, got %+v", runs)
		}
		if runs[0].Regressions != 2 {
			t.Errorf("expected 2 regressions, got %d", runs[0].Regressions)
		}
	})

	t.Run("shows regressions of one run", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--db-dir", dir, newer.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, want := range []string{"(2)", "[regression]", "/blog", "deviation=50.0%"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output, got:\n%s", want, out)
			}
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "history", "--db-dir", dir, "01NOTARUN")
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("url history", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "history", "--db-dir", dir, "--url", "http://example.com/about")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(out, "(2 comparisons)") {
			t.Errorf("expected both runs, got:\n%s", out)
		}
	})

	t.Run("url with run ID is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "history", "--db-dir", dir, "--url", "http://example.com", newer.ID)
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		_, err := execute(t, "history", "--db-dir", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "proxycrawl run") {
			t.Fatalf("expected hint to run a crawl first, got %v", err)
		}
	})
}

func TestRunStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  database.RunMetadata
		want string
	}{
		{name: "ok", run: database.RunMetadata{}, want: "ok"},
		{name: "cancelled", run: database.RunMetadata{Cancelled: true, Error: "context canceled"}, want: "cancelled"},
		{name: "error", run: database.RunMetadata{Error: "boom"}, want: "error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := runStatus(tt.run); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
