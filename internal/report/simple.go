package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/proxycrawl/internal/model"
)

// SimpleWriter outputs plain ASCII text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose adds every seed, not only the ones that ended early.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose lists every seed instead of only the problematic ones.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	summary := report.Summary()
	w.writeHeader(&sb, report)
	w.writeSummary(&sb, summary)
	w.writeRegressions(&sb, report.Regressions())
	w.writeSeeds(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteDiff outputs the change in regressions between two runs.
func (w *SimpleWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "REGRESSION DIFF")
	sb.WriteString(fmt.Sprintf("Old run: %s\n", diff.OldRunID))
	sb.WriteString(fmt.Sprintf("New run: %s\n\n", diff.NewRunID))

	if !diff.HasChanges() {
		sb.WriteString("No changes in regressions.\n\n")
	}

	sections := []struct {
		title  string
		marker string
		items  []model.Comparison
	}{
		{"NEW REGRESSIONS", "+", diff.New},
		{"RESOLVED REGRESSIONS", "-", diff.Resolved},
		{"PERSISTING REGRESSIONS", "=", diff.Persisting},
	}
	for _, s := range sections {
		if len(s.items) == 0 && !w.showEmpty {
			continue
		}
		writeSection(&sb, s.title)
		if len(s.items) == 0 {
			sb.WriteString("  None\n\n")
			continue
		}
		for _, c := range s.items {
			sb.WriteString(fmt.Sprintf("  [%s] %s (%.1f%%)\n", s.marker, c.URL, c.Deviation))
		}
		sb.WriteString("\n")
	}

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	writeBanner(sb, "PROXYCRAWL REPORT")

	proxyBase := report.ProxyBase
	if proxyBase == "" {
		proxyBase = "(none, direct crawl)"
	}

	sb.WriteString(fmt.Sprintf("Run ID:     %s\n", report.ID))
	sb.WriteString(fmt.Sprintf("Worker:     %s\n", report.WorkerID))
	sb.WriteString(fmt.Sprintf("Proxy Base: %s\n", proxyBase))
	if report.Engine != "" {
		sb.WriteString(fmt.Sprintf("Engine:     %s\n", report.Engine))
	}
	sb.WriteString(fmt.Sprintf("Started:    %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:   %s\n", report.Duration().Round(time.Second)))
	sb.WriteString(fmt.Sprintf("Status:     %s\n", statusText(report)))
	sb.WriteString("\n")
}

// writeSummary writes seed and comparison counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, s model.Summary) {
	writeSection(sb, "SUMMARY")

	sb.WriteString(fmt.Sprintf("  Seeds:          %d\n", s.Seeds))
	for _, status := range model.AllSeedStatuses {
		n := s.ByStatus[status]
		if n == 0 && !w.showEmpty {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %-14s %d\n", status.String()+":", n))
	}
	sb.WriteString(fmt.Sprintf("  Links followed: %d\n", s.LinksFollowed))
	sb.WriteString(fmt.Sprintf("  Links skipped:  %d\n", s.LinksSkipped))
	sb.WriteString(fmt.Sprintf("  Comparisons:    %d (%d skipped)\n", s.Comparisons, s.Skipped))
	sb.WriteString(fmt.Sprintf("  Regressions:    %d\n", s.Regressions))
	sb.WriteString(fmt.Sprintf("  Max deviation:  %.1f%%\n", s.MaxDeviation))
	sb.WriteString("\n")
}

// writeRegressions lists each regression with its literal heights.
func (w *SimpleWriter) writeRegressions(sb *strings.Builder, regressions []model.Comparison) {
	if len(regressions) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "REGRESSIONS")

	if len(regressions) == 0 {
		sb.WriteString("  No regressions detected\n\n")
		return
	}

	for _, c := range regressions {
		sb.WriteString(fmt.Sprintf("  [!] %s\n", c.URL))
		sb.WriteString(fmt.Sprintf("      proxied=%d direct=%d deviation=%.1f%% tolerance=%.0f%%\n",
			c.ProxiedHeight, c.DirectHeight, c.Deviation, c.Tolerance))
	}
	sb.WriteString("\n")
}

// writeSeeds lists seeds that ended early, or every seed when verbose.
func (w *SimpleWriter) writeSeeds(sb *strings.Builder, report *model.RunReport) {
	var lines []string
	for i := range report.Seeds {
		seed := &report.Seeds[i]
		if seed.Status == model.SeedCompleted && !w.verbose {
			continue
		}
		line := fmt.Sprintf("  [%s] %s (%d/%d links)", seed.Status, seed.Seed, seed.LinksFollowed, seed.BranchFactor)
		if seed.Error != "" {
			line += "\n      " + seed.Error
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "SEEDS")
	if len(lines) == 0 {
		sb.WriteString("  All seeds completed\n\n")
		return
	}
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by proxycrawl\n")
	sb.WriteString("https://github.com/nao1215/proxycrawl\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(" ", (70-len(title))/2))
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
