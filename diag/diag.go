// Package diag holds the error taxonomy shared by every compilation stage
// and renders errors for humans.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a compile error.
type Kind uint8

const (
	// Syntax errors come from the template parser.
	Syntax Kind = iota + 1
	// Binding errors come from matching placeholders to arguments.
	Binding
	// Schema errors come from the schema oracle or its configuration.
	Schema
	// Type errors come from mapping and verifying host types.
	Type
)

func (k Kind) String() string {
	switch k {
	case Syntax:
		return "syntax"
	case Binding:
		return "binding"
	case Schema:
		return "schema"
	case Type:
		return "type"
	default:
		return "unknown"
	}
}

// Span is a half-open byte range inside a template.
type Span struct {
	Start int
	End   int
}

// Location identifies a template occurrence in its source.
type Location struct {
	File   string
	Line   int
	Column int
	Name   string // query name, if any
}

// IsZero reports whether no location was recorded.
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Name == ""
}

func (l Location) String() string {
	var b strings.Builder
	if l.File != "" {
		b.WriteString(l.File)
		if l.Line > 0 {
			fmt.Fprintf(&b, ":%d", l.Line)
			if l.Column > 0 {
				fmt.Fprintf(&b, ":%d", l.Column)
			}
		}
	}
	if l.Name != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString("query ")
		b.WriteString(l.Name)
	}
	return b.String()
}

// Error is a fatal compile error for one template occurrence.
type Error struct {
	Kind     Kind
	Location Location
	Span     *Span
	Template string
	Msg      string
	Err      error
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps err as its cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// At attaches a template span.
func (e *Error) At(start, end int) *Error {
	e.Span = &Span{Start: start, End: end}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if loc := e.Location.String(); loc != "" {
		b.WriteString(loc)
		b.WriteString(": ")
	}
	b.WriteString(e.Message())
	return b.String()
}

// Message is the error text without the location prefix.
func (e *Error) Message() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Locate returns err as a *Error carrying loc and the template text. Errors
// that are not already diagnostics become Schema errors, since everything
// else in the pipeline reports through this package.
func Locate(err error, loc Location, template string) error {
	if err == nil {
		return nil
	}
	var d *Error
	if !errors.As(err, &d) {
		d = Wrap(Schema, err, "compile failed")
	} else {
		cp := *d
		d = &cp
	}
	if d.Location.IsZero() {
		d.Location = loc
	}
	if d.Template == "" {
		d.Template = template
	}
	return d
}

// KindOf returns the kind of the first diagnostic in err's chain, or zero.
func KindOf(err error) Kind {
	var d *Error
	if errors.As(err, &d) {
		return d.Kind
	}
	return 0
}
