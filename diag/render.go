package diag

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	titleColor  = color.New(color.Bold)
	errorColor  = color.New(color.FgRed, color.Bold)
	arrowColor  = color.New(color.FgCyan, color.Bold)
	gutterColor = color.New(color.FgCyan, color.Bold)
	pathColor   = color.New(color.Underline)
)

// Render writes every diagnostic found in err. Joined errors are rendered
// one after another; anything that is not a diagnostic is printed plainly.
func Render(w io.Writer, err error) {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	for _, e := range flatten(err) {
		var d *Error
		if errors.As(e, &d) {
			renderOne(w, d)
			continue
		}
		errorColor.Fprint(w, "error")
		titleColor.Fprintf(w, ": %s\n\n", e)
	}
}

func renderOne(w io.Writer, d *Error) {
	errorColor.Fprintf(w, "error[%s]", d.Kind)
	titleColor.Fprintf(w, ": %s\n", d.Message())

	if loc := d.Location.String(); loc != "" {
		arrowColor.Fprint(w, "  --> ")
		pathColor.Fprintf(w, "%s\n", loc)
	}
	if d.Template == "" {
		fmt.Fprintln(w)
		return
	}

	gutterColor.Fprintln(w, "   |")
	lines := strings.Split(d.Template, "\n")
	if d.Span == nil {
		for i, line := range lines {
			gutterColor.Fprintf(w, "%2d | ", i+1)
			fmt.Fprintln(w, line)
		}
		gutterColor.Fprintln(w, "   |")
		fmt.Fprintln(w)
		return
	}

	start, end := clamp(d.Span.Start, len(d.Template)), clamp(d.Span.End, len(d.Template))
	lineNo := strings.Count(d.Template[:start], "\n")
	lineStart := strings.LastIndexByte(d.Template[:start], '\n') + 1
	line := lines[lineNo]
	col := start - lineStart
	width := end - start
	if width < 0 {
		width = 0
	}
	if col+width > len(line) {
		width = len(line) - col
	}

	gutterColor.Fprintf(w, "%2d | ", lineNo+1)
	fmt.Fprint(w, line[:col])
	errorColor.Fprint(w, line[col:col+width])
	fmt.Fprintln(w, line[col+width:])

	gutterColor.Fprint(w, "   | ")
	fmt.Fprint(w, strings.Repeat(" ", col))
	if width < 1 {
		width = 1
	}
	errorColor.Fprintln(w, strings.Repeat("^", width))
	fmt.Fprintln(w)
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
