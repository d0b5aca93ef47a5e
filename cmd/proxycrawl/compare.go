package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/proxycrawl/internal/database"
	"github.com/nao1215/proxycrawl/internal/model"
	"github.com/nao1215/proxycrawl/internal/report"
)

// errConflictingFormats is returned when both --json and --markdown are given.
var errConflictingFormats = errors.New("--json and --markdown cannot be used together")

// NewCompareCmd creates the compare command.
// This command diffs the regressions of two stored runs.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [old-run new-run]",
		Short: "Compare the regressions of two runs",
		Long: `Compare matches the regressions of two stored runs by page URL and shows:
- New regressions that appeared in the newer run
- Resolved regressions that are no longer present
- Persisting regressions found in both runs

Without arguments the latest two runs are compared. Use 'proxycrawl history'
to list run IDs.

Examples:
  # Compare the latest two runs
  proxycrawl compare

  # Compare two specific runs
  proxycrawl compare 01JB3Z7Q9X4M2K8F6V5T1R0N3C 01JB41C2D8W5H7G3Q9P6Y4M1ZA

  # Output comparison in Markdown, e.g. for a pull request comment
  proxycrawl compare --markdown`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no run IDs or exactly two, got %d", len(args))
			}
			return nil
		},
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().Bool("fail-on-new", false,
		"Exit with an error when the newer run has new regressions")
	addDBDirFlag(cmd)

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	failOnNew, err := cmd.Flags().GetBool("fail-on-new")
	if err != nil {
		return err
	}

	// Validate flags before opening the database.
	if jsonOutput && markdownOutput {
		return errConflictingFormats
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	older, newer, err := resolveRuns(ctx, db, args)
	if err != nil {
		return err
	}

	diff := model.DiffRuns(older, newer)
	if err := writeDiff(cmd.OutOrStdout(), diff, jsonOutput, markdownOutput); err != nil {
		return fmt.Errorf("failed to write comparison: %w", err)
	}

	if failOnNew && len(diff.New) > 0 {
		return fmt.Errorf("%d new regressions since run %s", len(diff.New), older.ID)
	}
	return nil
}

// resolveRuns loads the two runs to compare: the ones named in args, or
// the latest two.
func resolveRuns(ctx context.Context, db *database.RunDB, args []string) (older, newer *model.RunReport, err error) {
	var oldID, newID string
	if len(args) == 2 {
		oldID, newID = args[0], args[1]
	} else {
		runs, err := db.ListRuns(ctx, 2)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) < 2 {
			return nil, nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
		}
		oldID, newID = runs[1].ID, runs[0].ID
	}

	if older, err = db.GetRunReport(ctx, oldID); err != nil {
		return nil, nil, err
	}
	if newer, err = db.GetRunReport(ctx, newID); err != nil {
		return nil, nil, err
	}
	return older, newer, nil
}

// writeDiff writes the diff in the requested format.
func writeDiff(out io.Writer, diff *model.RunDiff, jsonOutput, markdownOutput bool) error {
	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	_, err := w.WriteDiff(diff)
	return err
}
