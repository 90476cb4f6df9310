// Package codegen renders compiled query plans as typed Go functions.
package codegen

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/Konsultn-Engineering/sqlm/plan"
	"github.com/Konsultn-Engineering/sqlm/query"
	"github.com/Konsultn-Engineering/sqlm/querydef"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/shape"
)

const (
	databasePkg = "github.com/Konsultn-Engineering/sqlm/database"
	pgconnPkg   = "github.com/jackc/pgx/v5/pgconn"
)

// Options control rendering.
type Options struct {
	Package string // used when the definition file names none
}

// OutputName is the generated file name for a definition file:
// queries/posts.yaml -> posts.sqlm.go.
func OutputName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".sqlm.go"
}

// Generate renders one Go file. plans[i] is the compiled plan of
// res.Queries[i].
func Generate(res *querydef.Resolved, plans []*plan.Plan, opts Options) ([]byte, error) {
	if len(plans) != len(res.Queries) {
		return nil, fmt.Errorf("%d plans for %d queries", len(plans), len(res.Queries))
	}
	pkg := res.File.Package
	if pkg == "" {
		pkg = opts.Package
	}
	if pkg == "" {
		return nil, fmt.Errorf("%s: no package name", res.File.Path)
	}

	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by sqlm. DO NOT EDIT.")
	f.HeaderComment("source: " + filepath.ToSlash(res.File.Path))

	for _, e := range res.Enums {
		enum(f, e)
	}
	for _, r := range res.Records {
		record(f, r)
	}
	for i, rq := range res.Queries {
		p := plans[i]
		if p == nil {
			return nil, fmt.Errorf("query %s was not compiled", rq.Def.Name)
		}
		if err := function(f, rq, p); err != nil {
			return nil, fmt.Errorf("query %s: %w", rq.Def.Name, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", res.File.Path, err)
	}
	return buf.Bytes(), nil
}

func enum(f *jen.File, h schema.HostType) {
	consts := make([]jen.Code, 0, len(h.Enum.Variants))
	labels := make([]jen.Code, 0, len(h.Enum.Variants))
	for _, v := range h.Enum.Variants {
		consts = append(consts, jen.Id(h.Name+v.Name).Id(h.Name).Op("=").Lit(v.Label))
		labels = append(labels, jen.Lit(v.Label))
	}

	if h.Enum.DBName != "" {
		f.Commentf("%s mirrors the database enum %s.", h.Name, h.Enum.DBName)
	}
	f.Type().Id(h.Name).String()
	f.Const().Defs(consts...)
	f.Commentf("EnumLabels returns the database labels of %s.", h.Name)
	f.Func().Params(jen.Id(h.Name)).Id("EnumLabels").Params().Index().String().Block(
		jen.Return(jen.Index().String().Values(labels...)),
	)
}

func record(f *jen.File, r querydef.Record) {
	fields := make([]jen.Code, 0, len(r.Type.Record.Fields)+len(r.Skip))
	for _, fd := range r.Type.Record.Fields {
		tag := r.Tags[fd.Name]
		if tag == "" {
			tag = fd.Column
		}
		fields = append(fields, jen.Id(fd.Name).Add(typeCode(fd.Type)).Tag(map[string]string{"db": tag}))
	}
	for _, fd := range r.Skip {
		// Skipped fields keep their declared type spelling verbatim.
		fields = append(fields, jen.Id(fd.Name).Id(fd.Type).Tag(map[string]string{"db": "-"}))
	}
	f.Type().Id(r.Type.Name).Struct(fields...)
}

// typeCode spells a host type.
func typeCode(h schema.HostType) *jen.Statement {
	switch h.Kind {
	case schema.KindPointer:
		return jen.Op("*").Add(typeCode(*h.Elem))
	case schema.KindSlice:
		return jen.Index().Add(typeCode(*h.Elem))
	case schema.KindUntyped:
		return typeCode(untypedDefault(h))
	case schema.KindEnum:
		if h.Name == "" {
			return jen.String()
		}
	case schema.KindScalar:
		switch h.Name {
		case "[]byte":
			return jen.Index().Byte()
		case "[]float32":
			return jen.Index().Float32()
		}
	}
	if h.Import != "" {
		return jen.Qual(h.Import, h.Name)
	}
	return jen.Id(h.Name)
}

func untypedDefault(h schema.HostType) schema.HostType {
	switch h.Name {
	case "float":
		return schema.Float64
	case "string":
		return schema.String
	case "bool":
		return schema.Bool
	default:
		return schema.Int64
	}
}

func sqlConst(name string) string {
	return name + "SQL"
}

func function(f *jen.File, rq querydef.ResolvedQuery, p *plan.Plan) error {
	name := rq.Def.Name
	params := []jen.Code{
		jen.Id("ctx").Qual("context", "Context"),
		jen.Id("db").Qual(databasePkg, "Querier"),
	}
	for _, prm := range rq.Params {
		t, err := paramType(prm, p)
		if err != nil {
			return err
		}
		params = append(params, jen.Id(prm.Name).Add(t))
	}

	call := []jen.Code{jen.Id("ctx"), jen.Id(sqlConst(name))}
	for _, prm := range p.Params {
		call = append(call, argCode(prm))
	}

	f.Const().Id(sqlConst(name)).Op("=").Lit(p.Text)
	if rq.Def.Doc != "" {
		f.Comment(strings.TrimSpace(rq.Def.Doc))
	} else {
		f.Commentf("%s runs %s.", name, sqlConst(name))
	}

	target := p.Target
	if target.IsExec() {
		f.Func().Id(name).Params(params...).Params(jen.Qual(pgconnPkg, "CommandTag"), jen.Error()).Block(
			jen.Return(jen.Id("db").Dot("Exec").Call(call...)),
		)
		return nil
	}

	row := typeCode(target.Type)
	scan := newScanPlan(p.Shape, jen.Id("r"))

	switch target.Cardinality {
	case shape.One:
		body := []jen.Code{jen.Var().Id("r").Add(row)}
		body = append(body, scan.temps...)
		body = append(body,
			jen.If(
				jen.Err().Op(":=").Id("db").Dot("QueryRow").Call(call...).Dot("Scan").Call(scan.dests...),
				jen.Err().Op("!=").Nil(),
			).Block(jen.Return(jen.Id("r"), jen.Qual(databasePkg, "NotFound").Call(jen.Err()))),
		)
		body = append(body, scan.after...)
		body = append(body, jen.Return(jen.Id("r"), jen.Nil()))
		f.Func().Id(name).Params(params...).Params(row, jen.Error()).Block(body...)

	case shape.Optional:
		// A pointer target is returned as scanned, so NULL and no row both
		// read as nil.
		result := jen.Op("&").Id("r")
		if target.Type.Kind == schema.KindPointer {
			result = jen.Id("r")
		}
		body := queryRows(call, jen.Nil())
		body = append(body,
			jen.If(jen.Op("!").Id("rows").Dot("Next").Call()).Block(
				jen.Return(jen.Nil(), jen.Id("rows").Dot("Err").Call()),
			),
			jen.Var().Id("r").Add(row),
		)
		body = append(body, scan.temps...)
		body = append(body, jen.If(
			jen.Err().Op(":=").Id("rows").Dot("Scan").Call(scan.dests...),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Err())))
		body = append(body, scan.after...)
		body = append(body, jen.Return(result, jen.Id("rows").Dot("Err").Call()))
		f.Func().Id(name).Params(params...).Params(typeCode(target.ResultType()), jen.Error()).Block(body...)

	case shape.Many:
		loop := []jen.Code{jen.Var().Id("r").Add(typeCode(target.Type))}
		loop = append(loop, scan.temps...)
		loop = append(loop, jen.If(
			jen.Err().Op(":=").Id("rows").Dot("Scan").Call(scan.dests...),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Err())))
		loop = append(loop, scan.after...)
		loop = append(loop, jen.Id("out").Op("=").Append(jen.Id("out"), jen.Id("r")))

		body := queryRows(call, jen.Nil())
		body = append(body,
			jen.Var().Id("out").Index().Add(typeCode(target.Type)),
			jen.For(jen.Id("rows").Dot("Next").Call()).Block(loop...),
			jen.Return(jen.Id("out"), jen.Id("rows").Dot("Err").Call()),
		)
		f.Func().Id(name).Params(params...).Params(jen.Index().Add(typeCode(target.Type)), jen.Error()).Block(body...)
	}
	return nil
}

func queryRows(call []jen.Code, zero jen.Code) []jen.Code {
	return []jen.Code{
		jen.List(jen.Id("rows"), jen.Err()).Op(":=").Id("db").Dot("Query").Call(call...),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(zero, jen.Err())),
		jen.Defer().Id("rows").Dot("Close").Call(),
	}
}

// paramType is the declared type of a function parameter, or the type the
// database inferred for it.
func paramType(prm querydef.Param, p *plan.Plan) (*jen.Statement, error) {
	if !prm.Type.IsZero() {
		return typeCode(prm.Type), nil
	}
	for _, pp := range p.Params {
		if pp.Source.Kind == query.FromScope && pp.Source.Name == prm.Name {
			return typeCode(pp.Declared), nil
		}
	}
	return nil, fmt.Errorf("param %s has no type and the template does not use it", prm.Name)
}

// argCode renders a parameter expression, converting it to the database's
// Go type when the argument is only assignable.
func argCode(p plan.Param) jen.Code {
	expr := jen.Id(p.Expr)
	if p.Expr == "" {
		expr = jen.Nil()
	}
	if p.Conversion == schema.Identity || p.Obligation.IsZero() {
		return expr
	}
	if p.Obligation.Kind == schema.KindEnum && p.Obligation.Name == "" {
		return expr
	}
	if p.Declared.Kind == schema.KindPointer {
		return expr
	}
	return typeCode(p.Obligation).Parens(expr)
}

// scanPlan is the generated code around one Scan call.
type scanPlan struct {
	temps []jen.Code // declarations before Scan
	dests []jen.Code // Scan arguments, one per column
	after []jen.Code // default handling after Scan
}

func newScanPlan(sh *shape.Shape, row *jen.Statement) scanPlan {
	var sp scanPlan
	if sh.Kind != shape.Record {
		sp.dests = []jen.Code{jen.Op("&").Add(row.Clone())}
		return sp
	}

	// Unclaimed columns scan into nil.
	dests := make([]jen.Code, len(sh.Columns))
	for i := range dests {
		dests[i] = jen.Nil()
	}
	for _, b := range sh.Bindings {
		field := row.Clone().Dot(b.Field.Name)
		if !b.Field.HasDefault {
			if b.Column >= 0 {
				dests[b.Column] = jen.Op("&").Add(field)
			}
			continue
		}

		base := b.Field.Type.Deref()
		def := typeCode(base).Parens(jen.Id(b.Field.Default))
		if b.Column < 0 {
			sp.after = append(sp.after, assignDefault(field, b.Field.Name, b.Field.Type, def)...)
			continue
		}

		tmp := "v" + b.Field.Name
		sp.temps = append(sp.temps, jen.Var().Id(tmp).Op("*").Add(typeCode(base)))
		dests[b.Column] = jen.Op("&").Id(tmp)

		found := row.Clone().Dot(b.Field.Name).Op("=").Op("*").Id(tmp)
		if b.Field.Type.Kind == schema.KindPointer {
			found = row.Clone().Dot(b.Field.Name).Op("=").Id(tmp)
		}
		sp.after = append(sp.after, jen.If(jen.Id(tmp).Op("!=").Nil()).Block(found).Else().Block(
			assignDefault(row.Clone().Dot(b.Field.Name), b.Field.Name, b.Field.Type, def)...,
		))
	}
	sp.dests = dests
	return sp
}

func assignDefault(field *jen.Statement, name string, t schema.HostType, def *jen.Statement) []jen.Code {
	if t.Kind != schema.KindPointer {
		return []jen.Code{field.Clone().Op("=").Add(def)}
	}
	d := "d" + name
	return []jen.Code{
		jen.Id(d).Op(":=").Add(def),
		field.Clone().Op("=").Op("&").Id(d),
	}
}
