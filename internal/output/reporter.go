package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Marker prefixes one status line
type Marker string

const (
	MarkerSuccess Marker = "✅"
	MarkerFailure Marker = "❌"
	MarkerWarning Marker = "⚠️"
	MarkerSkipped Marker = "⏭️"
	MarkerInfo    Marker = "ℹ️"
)

const bannerWidth = 50

// Reporter writes the human-readable run report. In quiet mode every method
// is a no-op so that --json output stays machine-readable.
type Reporter struct {
	out   io.Writer
	quiet bool
}

// NewReporter creates a reporter writing to out
func NewReporter(out io.Writer, quiet bool) *Reporter {
	return &Reporter{out: out, quiet: quiet}
}

// Banner prints a title framed by separator lines
func (r *Reporter) Banner(title string) {
	if r.quiet {
		return
	}
	line := strings.Repeat("=", bannerWidth)
	fmt.Fprintf(r.out, "%s\n%s\n%s\n", line, title, line)
}

// Section prints a blank line and a heading
func (r *Reporter) Section(title string) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "\n%s\n", title)
}

// Line prints one marked status line
func (r *Reporter) Line(marker Marker, format string, args ...interface{}) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", marker, fmt.Sprintf(format, args...))
}

// Success prints a success message
func (r *Reporter) Success(format string, args ...interface{}) {
	r.Line(MarkerSuccess, format, args...)
}

// Failure prints a failure message
func (r *Reporter) Failure(format string, args ...interface{}) {
	r.Line(MarkerFailure, format, args...)
}

// Warning prints a warning message
func (r *Reporter) Warning(format string, args ...interface{}) {
	r.Line(MarkerWarning, format, args...)
}

// Skipped prints a skipped-step message
func (r *Reporter) Skipped(format string, args ...interface{}) {
	r.Line(MarkerSkipped, format, args...)
}

// Table prints rows aligned in columns under headers
func (r *Reporter) Table(headers []string, rows [][]string) error {
	if r.quiet {
		return nil
	}
	t := NewTableWriter(r.out)
	t.WriteHeader(headers...)
	for _, row := range rows {
		t.WriteRow(row...)
	}
	return t.Flush()
}

// TableWriter wraps tabwriter for formatted output
type TableWriter struct {
	writer *tabwriter.Writer
}

// NewTableWriter creates a new table writer
func NewTableWriter(out io.Writer) *TableWriter {
	return &TableWriter{writer: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
}

// WriteHeader writes table headers
func (t *TableWriter) WriteHeader(headers ...string) {
	t.WriteRow(headers...)
}

// WriteRow writes a table row
func (t *TableWriter) WriteRow(values ...string) {
	fmt.Fprintln(t.writer, strings.Join(values, "\t"))
}

// Flush writes buffered output
func (t *TableWriter) Flush() error {
	return t.writer.Flush()
}
