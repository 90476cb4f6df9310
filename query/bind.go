package query

import (
	"strconv"
	"strings"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/template"
)

// SourceKind tells which pool a bound argument came from.
type SourceKind uint8

const (
	FromUnnamed SourceKind = iota
	FromNamed
	FromScope
)

// Source is the identity of a logical argument. Every reference that
// resolves to the same Source shares one placeholder.
type Source struct {
	Kind SourceKind
	Slot int    // FromUnnamed
	Name string // FromNamed, FromScope
}

func (s Source) String() string {
	if s.Kind == FromUnnamed {
		return strconv.Itoa(s.Slot)
	}
	return s.Name
}

// BoundParam is one deduplicated parameter.
type BoundParam struct {
	Index  int // 1-based placeholder number
	Source Source
	Arg    Arg
	Span   diag.Span // first reference in the template
}

// Bound is a template rewritten to native placeholders.
type Bound struct {
	Text   string
	Params []BoundParam
}

type binder struct {
	args    *Args
	dialect dialect.Dialect

	cursor  int
	indices map[Source]int
	out     Bound
}

// Bind rewrites tokens into the dialect's placeholder syntax. Parameters
// are numbered by first occurrence in the template; repeated references
// to the same argument reuse its number. Every supplied argument must be
// referenced.
func Bind(tokens []template.Token, args *Args, d dialect.Dialect) (*Bound, error) {
	if args == nil {
		args, _ = NewArgs(nil)
	}
	b := &binder{
		args:    args,
		dialect: d,
		indices: make(map[Source]int),
	}

	var sb strings.Builder
	for _, tok := range tokens {
		switch tok.Kind {
		case template.Text:
			sb.WriteString(tok.Text)
		case template.EscapedOpen:
			sb.WriteByte('{')
		case template.EscapedClose:
			sb.WriteByte('}')
		case template.Argument:
			idx, err := b.bind(tok)
			if err != nil {
				return nil, err
			}
			sb.WriteString(d.Placeholder(idx))
		}
	}

	if err := b.checkUnused(); err != nil {
		return nil, err
	}
	b.out.Text = sb.String()
	return &b.out, nil
}

func (b *binder) bind(tok template.Token) (int, error) {
	src, arg, err := b.resolve(tok)
	if err != nil {
		return 0, err
	}
	if idx, ok := b.indices[src]; ok {
		return idx, nil
	}
	idx := len(b.out.Params) + 1
	b.indices[src] = idx
	b.out.Params = append(b.out.Params, BoundParam{
		Index:  idx,
		Source: src,
		Arg:    arg,
		Span:   tok.Span,
	})
	return idx, nil
}

func (b *binder) resolve(tok template.Token) (Source, Arg, error) {
	ref := tok.Ref
	unnamed := b.args.unnamed

	switch ref.Kind {
	case template.Next:
		slot := b.cursor
		if slot >= len(unnamed) {
			return Source{}, Arg{}, diag.Newf(diag.Binding, "missing argument for position %d", slot).
				At(tok.Span.Start, tok.Span.End)
		}
		b.cursor++
		return Source{Kind: FromUnnamed, Slot: slot}, unnamed[slot], nil

	case template.Positional:
		if ref.Index >= len(unnamed) {
			return Source{}, Arg{}, diag.Newf(diag.Binding, "missing argument for index %d", ref.Index).
				At(tok.Span.Start, tok.Span.End)
		}
		return Source{Kind: FromUnnamed, Slot: ref.Index}, unnamed[ref.Index], nil

	default:
		if i, ok := b.args.lookupNamed(ref.Name); ok {
			return Source{Kind: FromNamed, Name: ref.Name}, b.args.named[i], nil
		}
		if v, ok := b.args.lookupVar(ref.Name); ok {
			return Source{Kind: FromScope, Name: ref.Name}, v, nil
		}
		return Source{}, Arg{}, diag.Newf(diag.Binding, "no argument or variable named %q", ref.Name).
			At(tok.Span.Start, tok.Span.End)
	}
}

func (b *binder) checkUnused() error {
	for i := range b.args.unnamed {
		if _, ok := b.indices[Source{Kind: FromUnnamed, Slot: i}]; !ok {
			return diag.Newf(diag.Binding, "argument %d is never used", i)
		}
	}
	for _, arg := range b.args.named {
		if _, ok := b.indices[Source{Kind: FromNamed, Name: arg.Name}]; !ok {
			return diag.Newf(diag.Binding, "argument %q is never used", arg.Name)
		}
	}
	return nil
}
