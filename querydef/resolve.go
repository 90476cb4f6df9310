package querydef

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"strings"

	"github.com/Konsultn-Engineering/sqlm/compiler"
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/query"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/shape"
)

// Resolved is a definition file with every type expression resolved.
type Resolved struct {
	File    *File
	Enums   []schema.HostType
	Records []Record
	Queries []ResolvedQuery
}

// Record is a resolved row type together with the field tags it was
// declared with.
type Record struct {
	Type schema.HostType
	Tags map[string]string // field name -> db tag
	Skip []FieldDef        // fields tagged "-", kept on the struct only
}

// ResolvedQuery is a query ready for compilation.
type ResolvedQuery struct {
	Def        *Query
	Params     []Param
	Invocation compiler.Invocation
}

// Param is one resolved function parameter. A zero Type is filled in from
// the compiled plan.
type Param struct {
	Name string
	Type schema.HostType
}

var tagParser = schema.NewTagParser(schema.DefaultNamingStrategy())

type resolver struct {
	file  *File
	types map[string]schema.HostType
}

// Resolve checks a file and turns its queries into compiler invocations.
func Resolve(f *File) (*Resolved, error) {
	r := &resolver{file: f, types: make(map[string]schema.HostType)}
	out := &Resolved{File: f}

	for i := range f.Enums {
		e := &f.Enums[i]
		h, err := r.enum(e)
		if err != nil {
			return nil, r.locate(e.Pos, err)
		}
		out.Enums = append(out.Enums, h)
	}
	for i := range f.Types {
		t := &f.Types[i]
		rec, err := r.record(t.Name, t.AnyColumns, t.Fields)
		if err != nil {
			return nil, r.locate(t.Pos, err)
		}
		out.Records = append(out.Records, rec)
	}

	names := make(map[string]bool, len(f.Queries))
	for i := range f.Queries {
		q := &f.Queries[i]
		if names[q.Name] {
			return nil, diag.Locate(diag.Newf(diag.Binding, "duplicate query %q", q.Name), f.Location(q), q.SQL)
		}
		names[q.Name] = true

		rq, rec, err := r.query(q)
		if err != nil {
			return nil, diag.Locate(err, f.Location(q), q.SQL)
		}
		if rec != nil {
			out.Records = append(out.Records, *rec)
		}
		out.Queries = append(out.Queries, rq)
	}
	return out, nil
}

func (r *resolver) locate(pos Pos, err error) error {
	return diag.Locate(err, diag.Location{File: r.file.Path, Line: pos.Line, Column: pos.Column}, "")
}

func (r *resolver) declare(name string, h schema.HostType) error {
	if !token.IsIdentifier(name) || !token.IsExported(name) {
		return diag.Newf(diag.Type, "%q is not an exported Go identifier", name)
	}
	if _, dup := r.types[name]; dup {
		return diag.Newf(diag.Type, "duplicate type %q", name)
	}
	r.types[name] = h
	return nil
}

func (r *resolver) enum(e *Enum) (schema.HostType, error) {
	rule, err := schema.ParseRenameRule(e.RenameAll)
	if err != nil {
		return schema.HostType{}, diag.Wrap(diag.Type, err, "enum "+e.Name)
	}
	if len(e.Variants) == 0 {
		return schema.HostType{}, diag.Newf(diag.Type, "enum %s has no variants", e.Name)
	}
	variants := make([]schema.Variant, 0, len(e.Variants))
	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		label := v.Label
		if label == "" {
			label = rule.Apply(v.Name)
		}
		if seen[label] {
			return schema.HostType{}, diag.Newf(diag.Type, "enum %s: duplicate label %q", e.Name, label)
		}
		seen[label] = true
		variants = append(variants, schema.Variant{Name: v.Name, Label: label})
	}
	h := schema.NewEnum(e.Name, e.DBName, variants...)
	return h, r.declare(e.Name, h)
}

func (r *resolver) record(name string, anyColumns bool, defs []FieldDef) (Record, error) {
	rec := Record{Tags: make(map[string]string, len(defs))}
	var fields []schema.Field
	for _, fd := range defs {
		if fd.Name == "" {
			// Unnamed fields are named after their column: user_id -> UserID.
			col, err := tagParser.Parse("", fd.Tag)
			if err != nil || col.Skip || col.ColumnName == "" {
				return Record{}, diag.Newf(diag.Type, "type %s: a field needs a name or a column tag", name)
			}
			fd.Name = schema.ExportedName(col.ColumnName)
		}
		tag, err := tagParser.Parse(fd.Name, fd.Tag)
		if err != nil {
			return Record{}, diag.Wrap(diag.Type, err, "type "+name)
		}
		if tag.Skip {
			rec.Skip = append(rec.Skip, fd)
			continue
		}
		ft, err := r.typeExpr(fd.Type)
		if err != nil {
			return Record{}, diag.Wrap(diag.Type, err, fmt.Sprintf("field %s.%s", name, fd.Name))
		}
		if ft.Deref().Kind == schema.KindRecord {
			return Record{}, diag.Newf(diag.Type, "field %s.%s: record types cannot be nested", name, fd.Name)
		}
		fields = append(fields, schema.Field{
			Name:       fd.Name,
			Column:     tag.ColumnName,
			Type:       ft,
			Default:    tag.Default,
			HasDefault: tag.HasDefault,
		})
		rec.Tags[fd.Name] = fd.Tag
	}
	if len(fields) == 0 {
		return Record{}, diag.Newf(diag.Type, "type %s has no fields", name)
	}
	rec.Type = schema.NewRecord(name, anyColumns, fields...)
	return rec, r.declare(name, rec.Type)
}

// rowTypeName names the inline row type of a query: ListPosts -> PostRow.
func rowTypeName(query string) string {
	for _, verb := range []string{"List", "Get", "Find", "Select", "Fetch"} {
		if rest, ok := strings.CutPrefix(query, verb); ok && rest != "" && token.IsExported(rest) {
			query = rest
			break
		}
	}
	return schema.Singular(query) + "Row"
}

func (r *resolver) query(q *Query) (ResolvedQuery, *Record, error) {
	if !token.IsIdentifier(q.Name) || !token.IsExported(q.Name) {
		return ResolvedQuery{}, nil, diag.Newf(diag.Binding, "query name %q is not an exported Go identifier", q.Name)
	}
	card, err := shape.ParseCardinality(q.Returns)
	if err != nil {
		return ResolvedQuery{}, nil, diag.Wrap(diag.Type, err, "")
	}

	target := shape.Target{Cardinality: card, Type: schema.Unit()}
	var inline *Record
	switch {
	case card == shape.Exec:
		if q.Type != "" || len(q.Fields) > 0 {
			return ResolvedQuery{}, nil, diag.New(diag.Type, "exec queries do not return a type")
		}
	case len(q.Fields) > 0:
		if q.Type != "" {
			return ResolvedQuery{}, nil, diag.New(diag.Type, "a query declares either type or fields, not both")
		}
		rec, err := r.record(rowTypeName(q.Name), false, q.Fields)
		if err != nil {
			return ResolvedQuery{}, nil, err
		}
		inline = &rec
		target.Type = rec.Type
	case q.Type == "":
		return ResolvedQuery{}, nil, diag.Newf(diag.Type, "%s query needs a type", card)
	default:
		if target.Type, err = r.typeExpr(q.Type); err != nil {
			return ResolvedQuery{}, nil, diag.Wrap(diag.Type, err, "result type")
		}
	}

	rq := ResolvedQuery{Def: q}
	scope := make(query.Vars, len(q.Params))
	for _, p := range q.Params {
		if !token.IsIdentifier(p.Name) {
			return ResolvedQuery{}, nil, diag.Newf(diag.Binding, "param %q is not a Go identifier", p.Name)
		}
		if _, dup := scope[p.Name]; dup {
			return ResolvedQuery{}, nil, diag.Newf(diag.Binding, "duplicate param %q", p.Name)
		}
		var pt schema.HostType
		if p.Type != "" {
			if pt, err = r.typeExpr(p.Type); err != nil {
				return ResolvedQuery{}, nil, diag.Wrap(diag.Type, err, "param "+p.Name)
			}
		}
		scope[p.Name] = query.Arg{Name: p.Name, Expr: p.Name, Type: pt}
		rq.Params = append(rq.Params, Param{Name: p.Name, Type: pt})
	}

	var args []query.Arg
	for _, a := range q.Args {
		at, val, err := r.argType(a, scope)
		if err != nil {
			return ResolvedQuery{}, nil, err
		}
		args = append(args, query.Arg{Name: a.Name, Expr: a.Expr, Value: val, Type: at})
	}

	rq.Invocation = compiler.Invocation{
		Name:      q.Name,
		Location:  r.file.Location(q),
		Template:  q.SQL,
		Args:      args,
		Scope:     scope,
		Target:    target,
		Unchecked: q.Unchecked,
	}
	return rq, inline, nil
}

// argType derives the declared type of an argument expression. Literals are
// untyped constants and a bare param name takes the param's type. The
// returned value is set for string literals so enum labels can be checked.
func (r *resolver) argType(a ArgDef, scope query.Vars) (schema.HostType, any, error) {
	if a.Type != "" {
		t, err := r.typeExpr(a.Type)
		if err != nil {
			return schema.HostType{}, nil, diag.Wrap(diag.Type, err, "argument "+a.Expr)
		}
		return t, nil, nil
	}
	e, err := parser.ParseExpr(a.Expr)
	if err != nil {
		return schema.HostType{}, nil, diag.Wrap(diag.Syntax, err, fmt.Sprintf("argument expression %q", a.Expr))
	}
	return untypedOf(e, scope), stringLit(e), nil
}

func stringLit(e ast.Expr) any {
	for {
		paren, ok := e.(*ast.ParenExpr)
		if !ok {
			break
		}
		e = paren.X
	}
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return nil
	}
	v := constant.MakeFromLiteral(lit.Value, lit.Kind, 0)
	if v.Kind() != constant.String {
		return nil
	}
	return constant.StringVal(v)
}

func untypedOf(e ast.Expr, scope query.Vars) schema.HostType {
	switch e := e.(type) {
	case *ast.BasicLit:
		switch e.Kind {
		case token.INT, token.CHAR:
			return schema.UntypedInt
		case token.FLOAT:
			return schema.UntypedFloat
		case token.STRING:
			return schema.UntypedString
		}
	case *ast.Ident:
		switch e.Name {
		case "true", "false":
			return schema.UntypedBool
		}
		if v, ok := scope[e.Name]; ok {
			return v.Type
		}
	case *ast.ParenExpr:
		return untypedOf(e.X, scope)
	case *ast.UnaryExpr:
		if e.Op == token.SUB || e.Op == token.ADD {
			return untypedOf(e.X, scope)
		}
	}
	return schema.HostType{}
}

// typeExpr resolves a Go type expression against builtin scalars and the
// file's declarations.
func (r *resolver) typeExpr(src string) (schema.HostType, error) {
	src = strings.TrimSpace(src)
	if h, ok := schema.LookupScalar(src); ok {
		return h, nil
	}
	e, err := parser.ParseExpr(src)
	if err != nil {
		return schema.HostType{}, fmt.Errorf("invalid type %q", src)
	}
	return r.resolveType(e, src)
}

func (r *resolver) resolveType(e ast.Expr, src string) (schema.HostType, error) {
	switch e := e.(type) {
	case *ast.Ident:
		if h, ok := r.types[e.Name]; ok {
			return h, nil
		}
		if h, ok := schema.LookupScalar(e.Name); ok {
			return h, nil
		}
		return schema.HostType{}, fmt.Errorf("unknown type %q", e.Name)

	case *ast.SelectorExpr:
		pkg, ok := e.X.(*ast.Ident)
		if ok {
			name := pkg.Name + "." + e.Sel.Name
			if h, ok := schema.LookupScalar(name); ok {
				return h, nil
			}
			return schema.HostType{}, fmt.Errorf("unknown type %q", name)
		}

	case *ast.StarExpr:
		elem, err := r.resolveType(e.X, src)
		if err != nil {
			return schema.HostType{}, err
		}
		return schema.PointerTo(elem), nil

	case *ast.ArrayType:
		if e.Len != nil {
			break
		}
		if id, ok := e.Elt.(*ast.Ident); ok {
			if h, ok := schema.LookupScalar("[]" + id.Name); ok {
				return h, nil
			}
		}
		elem, err := r.resolveType(e.Elt, src)
		if err != nil {
			return schema.HostType{}, err
		}
		return schema.SliceOf(elem), nil

	case *ast.ParenExpr:
		return r.resolveType(e.X, src)
	}
	return schema.HostType{}, fmt.Errorf("unsupported type expression %q", src)
}
