package template

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/Konsultn-Engineering/sqlm/diag"
)

type rawTemplate struct {
	Parts []*rawPart `parser:"@@*"`
}

type rawPart struct {
	Pos    lexer.Position
	EndPos lexer.Position

	EscOpen  bool    `parser:"  @EscOpen"`
	EscClose bool    `parser:"| @EscClose"`
	Stray    bool    `parser:"| @Stray"`
	Sigil    *string `parser:"| @Sigil"`
	Text     *string `parser:"| @Text"`
	Arg      *rawArg `parser:"| @@"`
}

type rawArg struct {
	Body *string `parser:"Open @Body? Close"`
}

// rules builds the lexer. Inside an argument only a body and the closing
// brace are valid, so "{}}}" reads as an argument followed by "}}".
func rules(sigil rune, forbid bool) lexer.Rules {
	root := []lexer.Rule{
		{Name: "EscOpen", Pattern: `\{\{`},
		{Name: "EscClose", Pattern: `\}\}`},
		{Name: "Open", Pattern: `\{`, Action: lexer.Push("Arg")},
		{Name: "Stray", Pattern: `\}`},
	}
	if forbid {
		s := regexpQuote(sigil)
		root = append(root,
			lexer.Rule{Name: "Sigil", Pattern: s + `[0-9]*`},
			lexer.Rule{Name: "Text", Pattern: `[^{}` + s + `]+`},
		)
	} else {
		// The grammar always refers to Sigil; without a forbidden sigil the
		// token exists but matches nothing.
		root = append(root,
			lexer.Rule{Name: "Text", Pattern: `[^{}]+`},
			lexer.Rule{Name: "Sigil", Pattern: `[^\x00-\x{10FFFF}]`},
		)
	}
	return lexer.Rules{
		"Root": root,
		"Arg": {
			{Name: "Close", Pattern: `\}`, Action: lexer.Pop()},
			{Name: "Body", Pattern: `[^{}]+`},
		},
	}
}

func regexpQuote(r rune) string {
	if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
		return `\` + string(r)
	}
	return string(r)
}

type parserKey struct {
	sigil  rune
	forbid bool
}

var parsers sync.Map // parserKey -> *participle.Parser[rawTemplate]

func parserFor(sigil rune, forbid bool) *participle.Parser[rawTemplate] {
	key := parserKey{sigil: sigil, forbid: forbid}
	if p, ok := parsers.Load(key); ok {
		return p.(*participle.Parser[rawTemplate])
	}
	p := participle.MustBuild[rawTemplate](
		participle.Lexer(lexer.MustStateful(rules(sigil, forbid))),
	)
	actual, _ := parsers.LoadOrStore(key, p)
	return actual.(*participle.Parser[rawTemplate])
}

type options struct {
	sigil  rune
	forbid bool
}

// Option configures Parse.
type Option func(*options)

// WithSigil rejects the native placeholder sigil outside of {...}, so that
// native and template placeholders cannot be mixed in one query.
func WithSigil(sigil rune) Option {
	return func(o *options) {
		o.sigil = sigil
		o.forbid = true
	}
}

// Parse tokenizes a template. Errors are *diag.Error values of kind
// diag.Syntax with a span pointing into src.
func Parse(src string, opts ...Option) ([]Token, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := parserFor(o.sigil, o.forbid).ParseString("", src)
	if err != nil {
		return nil, syntaxError(src, err)
	}

	tokens := make([]Token, 0, len(raw.Parts))
	for _, p := range raw.Parts {
		span := diag.Span{Start: p.Pos.Offset, End: p.EndPos.Offset}
		switch {
		case p.EscOpen:
			tokens = append(tokens, Token{Kind: EscapedOpen, Span: span})
		case p.EscClose:
			tokens = append(tokens, Token{Kind: EscapedClose, Span: span})
		case p.Stray:
			return nil, diag.New(diag.Syntax, "unmatched '}'; use '}}' for a literal brace").
				At(span.Start, span.End)
		case p.Sigil != nil:
			shown := *p.Sigil
			if len(shown) == 1 {
				shown += "x"
			}
			return nil, diag.Newf(diag.Syntax, "use {} instead of %s for positional parameters", shown).
				At(span.Start, span.End)
		case p.Text != nil:
			tokens = append(tokens, Token{Kind: Text, Text: *p.Text, Span: span})
		case p.Arg != nil:
			ref, err := parseRef(p.Arg.Body)
			if err != nil {
				return nil, err.At(span.Start, span.End)
			}
			tokens = append(tokens, Token{Kind: Argument, Ref: ref, Span: span})
		}
	}
	return tokens, nil
}

func parseRef(body *string) (Ref, *diag.Error) {
	if body == nil {
		return Ref{Kind: Next}, nil
	}
	b := *body
	if isDigits(b) {
		if len(b) > 1 && b[0] == '0' {
			return Ref{}, diag.Newf(diag.Syntax, "argument index %s has a leading zero", b)
		}
		n, err := strconv.Atoi(b)
		if err != nil {
			return Ref{}, diag.Newf(diag.Syntax, "argument index %s is out of range", b)
		}
		return Ref{Kind: Positional, Index: n}, nil
	}
	if IsIdent(b) {
		return Ref{Kind: Named, Name: b}, nil
	}
	return Ref{}, diag.Newf(diag.Syntax, "invalid argument %q: expected nothing, an index, or an identifier", b)
}

func syntaxError(src string, err error) error {
	var perr participle.Error
	if !errors.As(err, &perr) {
		return diag.Wrap(diag.Syntax, err, "invalid template")
	}
	off := perr.Position().Offset
	switch {
	case off >= len(src):
		open := strings.LastIndexByte(src, '{')
		if open < 0 {
			open = len(src)
		}
		return diag.New(diag.Syntax, "unclosed argument; expected '}'").At(open, len(src))
	case src[off] == '{':
		return diag.New(diag.Syntax, "unexpected '{' inside argument").At(off, off+1)
	default:
		return diag.Newf(diag.Syntax, "invalid template: %s", perr.Message()).At(off, off+1)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsIdent reports whether s is a valid argument name.
func IsIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
