// SPDX-License-Identifier: Apache-2.0
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"ebb/internal/ir"
)

// Severity of a diagnostic.
type Severity string

const (
	Error   Severity = "error"
	Warning Severity = "warning"
	Note    Severity = "note"
)

// Diagnostic is one finding against a source file: a build error from the
// textual form, or an analysis result worth surfacing (an unreachable block,
// a value nothing needs, a branch that always goes one way).
type Diagnostic struct {
	Severity Severity
	Code     string // stable code like A0003, empty for ad hoc messages
	Message  string
	Pos      ir.Pos
	Length   int // columns to underline, minimum 1
	Notes    []string
	Help     string
}

func Errorf(pos ir.Pos, code, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: Error, Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func Warningf(pos ir.Pos, code, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: Warning, Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Reporter renders diagnostics against one source file with caret markers.
type Reporter struct {
	filename string
	lines    []string
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// Format renders d with the source line and a caret marker underneath.
func (r *Reporter) Format(d Diagnostic) string {
	var out strings.Builder

	level := severityColor(d.Severity)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if d.Code != "" {
		fmt.Fprintf(&out, "%s[%s]: %s\n", level(string(d.Severity)), d.Code, d.Message)
	} else {
		fmt.Fprintf(&out, "%s: %s\n", level(string(d.Severity)), d.Message)
	}

	width := lineNumberWidth(d.Pos.Line)
	indent := strings.Repeat(" ", width)
	fmt.Fprintf(&out, "%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, d.Pos.Line, d.Pos.Column)
	fmt.Fprintf(&out, "%s %s\n", indent, dim("│"))

	if d.Pos.Line > 0 && d.Pos.Line <= len(r.lines) {
		fmt.Fprintf(&out, "%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, d.Pos.Line)),
			dim("│"),
			r.lines[d.Pos.Line-1])
		fmt.Fprintf(&out, "%s %s %s\n", indent, dim("│"), r.marker(d))
	}

	noteColor := color.New(color.FgBlue).SprintFunc()
	for _, note := range d.Notes {
		fmt.Fprintf(&out, "%s %s %s %s\n", indent, dim("│"), noteColor("note:"), note)
	}
	if d.Help != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(&out, "%s %s %s %s\n", indent, dim("│"), helpColor("help:"), d.Help)
	}

	out.WriteString("\n")
	return out.String()
}

// FormatAll renders a batch in order.
func (r *Reporter) FormatAll(ds []Diagnostic) string {
	var out strings.Builder
	for _, d := range ds {
		out.WriteString(r.Format(d))
	}
	return out.String()
}

func (r *Reporter) marker(d Diagnostic) string {
	length := d.Length
	if length <= 0 {
		length = 1
	}
	spaces := strings.Repeat(" ", max(0, d.Pos.Column-1))
	return spaces + severityColor(d.Severity)(strings.Repeat("^", length))
}

func severityColor(s Severity) func(...interface{}) string {
	switch s {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3
	}
	return width
}
