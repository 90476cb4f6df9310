// Package plan assembles verified query plans.
package plan

import (
	"fmt"

	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/introspect"
	"github.com/Konsultn-Engineering/sqlm/query"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/shape"
)

// Param is one verified query parameter.
type Param struct {
	Index      int // 1-based placeholder number
	Source     query.Source
	Expr       string
	Value      any
	Declared   schema.HostType // type of the caller's expression
	Obligation schema.HostType // type the database expects
	DBType     schema.TypeDescriptor
	Conversion schema.Conversion
	Span       diag.Span
}

// Ref names the argument in messages.
func (p Param) Ref() string {
	return p.Source.String()
}

// Plan is a compiled template occurrence.
type Plan struct {
	Name     string
	Location diag.Location
	Template string
	Text     string
	Params   []Param
	Shape    *shape.Shape
	Target   shape.Target
	Checked  bool // false when compiled without a schema oracle
}

// Args returns the runtime parameter values in placeholder order.
func (p *Plan) Args() []any {
	args := make([]any, len(p.Params))
	for i, param := range p.Params {
		args[i] = param.Value
	}
	return args
}

// Emit attaches a verified type to every bound parameter. desc is nil for
// unchecked compilation, in which case declared types are trusted.
func Emit(bound *query.Bound, desc *introspect.Description, sh *shape.Shape, target shape.Target, mapper schema.Mapper) (*Plan, error) {
	p := &Plan{
		Text:    bound.Text,
		Params:  make([]Param, 0, len(bound.Params)),
		Shape:   sh,
		Target:  target,
		Checked: desc != nil,
	}
	if desc != nil && len(desc.Params) != len(bound.Params) {
		return nil, diag.Newf(diag.Schema, "query has %d distinct placeholders but the database reports %d parameters",
			len(bound.Params), len(desc.Params))
	}

	for i, bp := range bound.Params {
		param := Param{
			Index:    bp.Index,
			Source:   bp.Source,
			Expr:     bp.Arg.Expr,
			Value:    bp.Arg.Value,
			Declared: bp.Arg.Type,
			Span:     bp.Span,
		}
		var err error
		if desc != nil {
			err = verify(&param, desc.Params[i], mapper)
		} else {
			err = trust(&param)
		}
		if err != nil {
			return nil, err
		}
		p.Params = append(p.Params, param)
	}
	return p, nil
}

func verify(p *Param, db schema.TypeDescriptor, mapper schema.Mapper) error {
	obligation, err := mapper.Map(db)
	if err != nil {
		return diag.Wrap(diag.Type, err, fmt.Sprintf("parameter $%d", p.Index)).At(p.Span.Start, p.Span.End)
	}
	p.DBType = db
	p.Obligation = obligation

	if p.Declared.IsZero() {
		p.Declared = obligation
		p.Conversion = schema.Identity
		return nil
	}
	// A nil pointer binds NULL, so only the pointee must match.
	conv, err := schema.Check(p.Declared.Deref(), obligation)
	if err != nil {
		return diag.Wrap(diag.Type, err, fmt.Sprintf("argument %s of type %s does not satisfy parameter $%d of type %s (%s)",
			p.Ref(), p.Declared, p.Index, db, obligation)).At(p.Span.Start, p.Span.End)
	}
	p.Conversion = conv
	if conv == schema.Constant {
		if err := schema.CheckValue(p.Value, obligation); err != nil {
			return diag.Wrap(diag.Type, err, fmt.Sprintf("argument %s does not satisfy parameter $%d of type %s",
				p.Ref(), p.Index, db)).At(p.Span.Start, p.Span.End)
		}
	}
	return nil
}

var untypedDefaults = map[string]schema.HostType{
	"int":    schema.Int64,
	"float":  schema.Float64,
	"string": schema.String,
	"bool":   schema.Bool,
}

func trust(p *Param) error {
	switch p.Declared.Kind {
	case schema.KindInvalid:
		return diag.Newf(diag.Type, "argument %s has no declared type; unchecked queries need explicit types", p.Ref()).
			At(p.Span.Start, p.Span.End)
	case schema.KindUntyped:
		p.Obligation = untypedDefaults[p.Declared.Name]
		p.Conversion = schema.Constant
	default:
		p.Obligation = p.Declared.Deref()
	}
	return nil
}
