package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/proxycrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing, e.g. as a CI job summary.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := report.Summary()

	w.writeHeader(md, report)
	w.writeSummary(md, summary)
	w.writeRegressions(md, report.Regressions())
	w.writeSeeds(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteDiff outputs the change in regressions between two runs.
func (w *MarkdownWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Regression Diff")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Old Run", "`" + diff.OldRunID + "`"},
			{"New Run", "`" + diff.NewRunID + "`"},
			{"New", strconv.Itoa(len(diff.New))},
			{"Resolved", strconv.Itoa(len(diff.Resolved))},
			{"Persisting", strconv.Itoa(len(diff.Persisting))},
		},
	})
	md.PlainText("")

	switch {
	case len(diff.New) > 0:
		md.Cautionf("%d new regression(s) since the previous run.", len(diff.New))
	case len(diff.Resolved) > 0:
		md.Tip("No new regressions; some were resolved.")
	default:
		md.Note("No changes in regressions.")
	}
	md.PlainText("")

	for _, section := range []struct {
		title string
		items []model.Comparison
	}{
		{"New Regressions", diff.New},
		{"Resolved Regressions", diff.Resolved},
		{"Persisting Regressions", diff.Persisting},
	} {
		if len(section.items) == 0 {
			continue
		}
		md.H2(section.title)
		md.PlainText("")
		w.writeComparisonTable(md, section.items)
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("Proxy Crawl Report")
	md.PlainText("")

	proxyBase := "-"
	if report.ProxyBase != "" {
		proxyBase = "`" + report.ProxyBase + "`"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + report.ID + "`"},
			{"Worker", report.WorkerID},
			{"Proxy Base", proxyBase},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Second).String()},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.RunReport) string {
	if report.Cancelled {
		return "⚠️ " + statusText(report)
	}
	if report.ErrorMessage != "" {
		return "❌ " + statusText(report)
	}
	return "✅ " + statusText(report)
}

// writeSummary writes seed counts, the status pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s model.Summary) {
	md.H2("Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(model.AllSeedStatuses)+5)
	for _, status := range model.AllSeedStatuses {
		rows = append(rows, []string{"Seeds " + status.String(), strconv.Itoa(s.ByStatus[status])})
	}
	rows = append(rows,
		[]string{"Links followed", strconv.Itoa(s.LinksFollowed)},
		[]string{"Links skipped", strconv.Itoa(s.LinksSkipped)},
		[]string{"Comparisons", fmt.Sprintf("%d (%d skipped)", s.Comparisons, s.Skipped)},
		[]string{"Max deviation", fmt.Sprintf("%.1f%%", s.MaxDeviation)},
		[]string{"**Regressions**", "**" + strconv.Itoa(s.Regressions) + "**"},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Seeds > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of seed outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Seed Outcomes"),
		piechart.WithShowData(true),
	)

	for _, status := range model.AllSeedStatuses {
		if n := s.ByStatus[status]; n > 0 {
			chart.LabelAndIntValue(status.String(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst outcome of the run.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s model.Summary) {
	timeouts := s.ByStatus[model.SeedVisitTimeout] + s.ByStatus[model.SeedClickTimeout] + s.ByStatus[model.SeedBackTimeout]

	switch {
	case s.Regressions > 0:
		md.Cautionf(
			"Rendering regressions detected! %d page(s) differ from their direct rendering beyond tolerance.",
			s.Regressions,
		)
	case s.ByStatus[model.SeedFailed] > 0:
		md.Warningf("%d seed(s) failed with a browser error.", s.ByStatus[model.SeedFailed])
	case timeouts > 0:
		md.Importantf("%d seed(s) timed out before their traversal finished.", timeouts)
	case s.Comparisons == 0:
		md.Note("No page-size comparisons could be made.")
	default:
		md.Tip("No rendering regressions detected.")
	}
	md.PlainText("")
}

// writeRegressions writes the regression table.
func (w *MarkdownWriter) writeRegressions(md *markdown.Markdown, regressions []model.Comparison) {
	md.H2("Regressions")
	md.PlainText("")

	if len(regressions) == 0 {
		md.PlainText("No regressions detected.")
		md.PlainText("")
		return
	}

	w.writeComparisonTable(md, regressions)
}

// writeComparisonTable writes comparisons with their literal heights.
func (w *MarkdownWriter) writeComparisonTable(md *markdown.Markdown, comparisons []model.Comparison) {
	rows := make([][]string, len(comparisons))
	for i, c := range comparisons {
		rows[i] = []string{
			truncateString(c.URL, 80),
			strconv.Itoa(c.ProxiedHeight),
			strconv.Itoa(c.DirectHeight),
			fmt.Sprintf("%.1f%%", c.Deviation),
			fmt.Sprintf("%.0f%%", c.Tolerance),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Proxied", "Direct", "Deviation", "Tolerance"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSeeds writes one row per seed.
func (w *MarkdownWriter) writeSeeds(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Seeds")
	md.PlainText("")

	if len(report.Seeds) == 0 {
		md.PlainText("No seeds were processed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Seeds))
	for i := range report.Seeds {
		seed := &report.Seeds[i]
		note := seed.Error
		if note == "" {
			note = "-"
		}
		rows[i] = []string{
			truncateString(seed.Seed, 60),
			seed.Status.String(),
			fmt.Sprintf("%d/%d", seed.LinksFollowed, seed.BranchFactor),
			strconv.Itoa(len(seed.Regressions())),
			truncateString(note, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Seed", "Status", "Links", "Regressions", "Note"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [proxycrawl](https://github.com/nao1215/proxycrawl)*")
}
