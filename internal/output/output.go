// Package output formats the status lines printed by the one-shot CLI
// commands. Long-running sessions use the renderers in package ui instead.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/mosaicwatch/internal/ui"
)

// Markers printed before a status line.
const (
	MarkSuccess = "✓"
	MarkWarning = "!"
	MarkError   = "✗"
	MarkInfo    = "›"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Colors are used unless noColor is set.
func New(out io.Writer, noColor bool) *Writer {
	return &Writer{
		out:    out,
		styles: ui.GetStyles(noColor),
	}
}

// Status prints a message after a marker. An empty marker indents the
// message under the previous line.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(mark, msg string) {
	if mark != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", mark, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(mark, format string, args ...any) {
	w.Status(mark, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.OK.Render(MarkSuccess), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render(MarkWarning), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render(MarkError), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Info prints a neutral message.
func (w *Writer) Info(msg string) {
	w.Status(w.styles.Dim.Render(MarkInfo), msg)
}

// Field prints an indented "label: value" line.
func (w *Writer) Field(label, value string) {
	_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(label+":"), value)
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
