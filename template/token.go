// Package template parses the placeholder mini-language used in query
// templates: {} for the next argument, {N} for an argument by position,
// {name} for a named argument or variable, and {{ }} for literal braces.
package template

import (
	"strconv"

	"github.com/Konsultn-Engineering/sqlm/diag"
)

// Kind is the kind of a template token.
type Kind uint8

const (
	Text Kind = iota
	EscapedOpen
	EscapedClose
	Argument
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case EscapedOpen:
		return "{{"
	case EscapedClose:
		return "}}"
	case Argument:
		return "argument"
	default:
		return "unknown"
	}
}

// RefKind is how an argument reference addresses its argument.
type RefKind uint8

const (
	// Next takes the next unnamed argument not yet consumed by another Next.
	Next RefKind = iota
	// Positional takes the unnamed argument at a 0-based index.
	Positional
	// Named takes the named argument with a key, or the variable in scope.
	Named
)

// Ref is an argument reference inside {...}.
type Ref struct {
	Kind  RefKind
	Index int
	Name  string
}

func (r Ref) String() string {
	switch r.Kind {
	case Positional:
		return "{" + strconv.Itoa(r.Index) + "}"
	case Named:
		return "{" + r.Name + "}"
	default:
		return "{}"
	}
}

// Token is one lexical unit of a template.
type Token struct {
	Kind Kind
	Text string // set for Text tokens
	Ref  Ref    // set for Argument tokens
	Span diag.Span
}
