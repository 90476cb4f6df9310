package sqlm

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"reflect"

	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/shape"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// decoder turns rows into values of one Go type following a verified shape.
type decoder struct {
	scalar  bool
	columns int
	fields  []fieldPlan
}

type fieldPlan struct {
	index   []int
	column  int // -1 when the field is not backed by a column
	base    reflect.Type
	pointer bool
	def     reflect.Value // valid when the field has a default
}

func newDecoder(t reflect.Type, sh *shape.Shape) (*decoder, error) {
	d := &decoder{columns: len(sh.Columns)}
	if sh.Kind != shape.Record {
		d.scalar = true
		return d, nil
	}

	for _, b := range sh.Bindings {
		sf, ok := t.FieldByName(b.Field.Name)
		if !ok {
			return nil, diag.Newf(diag.Type, "%s has no field %s", t, b.Field.Name)
		}
		fp := fieldPlan{index: sf.Index, column: b.Column, base: sf.Type}
		if sf.Type.Kind() == reflect.Pointer {
			fp.pointer = true
			fp.base = sf.Type.Elem()
		}
		if b.Field.HasDefault {
			v, err := evalDefault(b.Field.Default, fp.base)
			if err != nil {
				return nil, diag.Wrap(diag.Type, err, fmt.Sprintf("default for field %s", b.Field.Name))
			}
			fp.def = v
		}
		d.fields = append(d.fields, fp)
	}
	return d, nil
}

func (d *decoder) decode(row rowScanner, v reflect.Value) error {
	if d.scalar {
		return row.Scan(v.Addr().Interface())
	}

	// Columns no field claims keep a nil destination and are skipped.
	dest := make([]any, d.columns)
	temps := make([]reflect.Value, len(d.fields))
	for i, f := range d.fields {
		if f.column < 0 {
			continue
		}
		if f.def.IsValid() {
			temps[i] = reflect.New(reflect.PointerTo(f.base))
			dest[f.column] = temps[i].Interface()
			continue
		}
		dest[f.column] = v.FieldByIndex(f.index).Addr().Interface()
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}

	for i, f := range d.fields {
		if !f.def.IsValid() {
			continue
		}
		fv := v.FieldByIndex(f.index)
		if f.column >= 0 && !temps[i].Elem().IsNil() {
			f.set(fv, temps[i].Elem().Elem())
			continue
		}
		f.set(fv, f.def)
	}
	return nil
}

func (f fieldPlan) set(field, val reflect.Value) {
	if !f.pointer {
		field.Set(val)
		return
	}
	p := reflect.New(f.base)
	p.Elem().Set(val)
	field.Set(p)
}

// evalDefault evaluates a literal default expression as a value of t.
// Defaults that name identifiers only work in generated code.
func evalDefault(expr string, t reflect.Type) (reflect.Value, error) {
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("invalid default %q: %w", expr, err)
	}
	c := literal(e)
	if c == nil || c.Kind() == constant.Unknown {
		return reflect.Value{}, fmt.Errorf("default %q is not a literal", expr)
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		if c.Kind() != constant.String {
			return reflect.Value{}, fmt.Errorf("default %q is not a string", expr)
		}
		v.SetString(constant.StringVal(c))
	case reflect.Bool:
		if c.Kind() != constant.Bool {
			return reflect.Value{}, fmt.Errorf("default %q is not a bool", expr)
		}
		v.SetBool(constant.BoolVal(c))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, exact := constant.Int64Val(constant.ToInt(c))
		if !exact || v.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("default %q overflows %s", expr, t)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, exact := constant.Uint64Val(constant.ToInt(c))
		if !exact || v.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("default %q overflows %s", expr, t)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, _ := constant.Float64Val(constant.ToFloat(c))
		if c.Kind() != constant.Int && c.Kind() != constant.Float {
			return reflect.Value{}, fmt.Errorf("default %q is not a number", expr)
		}
		v.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("default for %s cannot be evaluated at run time", t)
	}
	return v, nil
}

func literal(e ast.Expr) constant.Value {
	switch e := e.(type) {
	case *ast.BasicLit:
		return constant.MakeFromLiteral(e.Value, e.Kind, 0)
	case *ast.Ident:
		switch e.Name {
		case "true":
			return constant.MakeBool(true)
		case "false":
			return constant.MakeBool(false)
		}
	case *ast.ParenExpr:
		return literal(e.X)
	case *ast.CallExpr:
		// Role("user") and other conversions of a literal.
		if len(e.Args) == 1 {
			return literal(e.Args[0])
		}
	case *ast.UnaryExpr:
		if x := literal(e.X); x != nil && (e.Op == token.SUB || e.Op == token.ADD) && (x.Kind() == constant.Int || x.Kind() == constant.Float) {
			return constant.UnaryOp(e.Op, x, 0)
		}
	}
	return nil
}
