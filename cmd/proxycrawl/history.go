package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/proxycrawl/internal/config"
	"github.com/nao1215/proxycrawl/internal/database"
	"github.com/nao1215/proxycrawl/internal/model"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// addDBDirFlag adds the --db-dir flag shared by every command that uses
// the run history.
func addDBDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the run history database")
}

// openHistoryDB opens the existing run history named by --db-dir.
func openHistoryDB(cmd *cobra.Command) (*database.RunDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history in %s (run 'proxycrawl run' first): %w", dbDir, err)
	}
	return db, nil
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs and their regressions",
		Long: `History lists runs saved by 'proxycrawl run', newest first.

Given a run ID, it lists the regressions of that run instead. With --url it
lists every comparison ever made for one page.

Examples:
  # List the latest runs
  proxycrawl history

  # Show the regressions of one run
  proxycrawl history 01JB3Z7Q9X4M2K8F6V5T1R0N3C

  # Track one page across runs
  proxycrawl history --url http://example.com/about

  # Machine-readable output
  proxycrawl history --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().String("url", "",
		"Show the comparison history of this page URL")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	addDBDirFlag(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	pageURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if pageURL != "" && len(args) > 0 {
		return errors.New("--url cannot be combined with a run ID")
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	switch {
	case pageURL != "":
		return showURLHistory(ctx, out, db, pageURL, jsonOutput)
	case len(args) == 1:
		return showRunRegressions(ctx, out, db, args[0], jsonOutput)
	default:
		return listRuns(ctx, out, db, limit, jsonOutput)
	}
}

// listRuns prints stored runs, newest first.
func listRuns(ctx context.Context, out io.Writer, db *database.RunDB, limit int, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'proxycrawl run' to crawl a seed list.")
		return nil
	}

	fmt.Fprintf(out, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-26s  %-19s  %-6s  %5s  %11s  %s\n",
		"ID", "Started", "Worker", "Seeds", "Regressions", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))

	for _, run := range runs {
		fmt.Fprintf(out, "  %-26s  %-19s  %-6s  %5d  %11d  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.WorkerID,
			run.Seeds,
			run.Regressions,
			runStatus(run),
		)
	}

	fmt.Fprintln(out, "\nUse 'proxycrawl history <run-id>' to see the regressions of a run.")
	fmt.Fprintln(out, "Use 'proxycrawl compare <old-run> <new-run>' to diff two runs.")
	return nil
}

// runStatus summarizes how a stored run ended.
func runStatus(run database.RunMetadata) string {
	switch {
	case run.Cancelled:
		return "cancelled"
	case run.Error != "":
		return "error: " + run.Error
	default:
		return "ok"
	}
}

// showRunRegressions prints the regressions of one run.
func showRunRegressions(ctx context.Context, out io.Writer, db *database.RunDB, runID string, jsonOutput bool) error {
	// Fails with ErrRunNotFound for unknown IDs.
	if _, err := db.GetRunReport(ctx, runID); err != nil {
		return err
	}

	regressions, err := db.ListRegressions(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list regressions: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, regressions)
	}

	if len(regressions) == 0 {
		fmt.Fprintf(out, "No regressions in run %s.\n", runID)
		return nil
	}

	fmt.Fprintf(out, "Regressions in run %s (%d):\n\n", runID, len(regressions))
	for _, c := range regressions {
		writeComparisonLine(out, c)
	}
	return nil
}

// showURLHistory prints every comparison of one page across runs.
func showURLHistory(ctx context.Context, out io.Writer, db *database.RunDB, pageURL string, jsonOutput bool) error {
	history, err := db.URLHistory(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("failed to get URL history: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, history)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No comparisons found for %s\n", pageURL)
		return nil
	}

	fmt.Fprintf(out, "History of %s (%d comparisons):\n\n", pageURL, len(history))
	for _, obs := range history {
		fmt.Fprintf(out, "  run %s  %s\n", obs.RunID, obs.Comparison.ComparedAt.Local().Format("2006-01-02 15:04:05"))
		writeComparisonLine(out, obs.Comparison)
	}
	return nil
}

// writeComparisonLine prints one comparison as an indented line.
func writeComparisonLine(out io.Writer, c model.Comparison) {
	fmt.Fprintf(out, "    [%s] %s\n", c.Result(), c.URL)
	if c.Skipped {
		return
	}
	fmt.Fprintf(out, "      proxied=%d direct=%d deviation=%.1f%% tolerance=%.0f%%\n",
		c.ProxiedHeight, c.DirectHeight, c.Deviation, c.Tolerance)
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
