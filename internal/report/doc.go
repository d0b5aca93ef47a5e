// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with a mermaid chart of seed outcomes
//
// Every writer renders both a single run and the diff between two runs.
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
