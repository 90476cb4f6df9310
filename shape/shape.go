// Package shape classifies query results and matches them against the
// caller's target type.
package shape

import (
	"fmt"

	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/schema"
)

// Cardinality is how many rows the caller expects.
type Cardinality uint8

const (
	// Exec runs a command and decodes nothing.
	Exec Cardinality = iota
	// One requires exactly one row.
	One
	// Optional accepts zero or one row.
	Optional
	// Many accepts any number of rows.
	Many
)

func (c Cardinality) String() string {
	switch c {
	case Exec:
		return "exec"
	case One:
		return "one"
	case Optional:
		return "optional"
	case Many:
		return "many"
	default:
		return fmt.Sprintf("Cardinality(%d)", uint8(c))
	}
}

// ParseCardinality parses the names produced by String.
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "exec":
		return Exec, nil
	case "one", "":
		return One, nil
	case "optional":
		return Optional, nil
	case "many":
		return Many, nil
	}
	return 0, fmt.Errorf("invalid result cardinality %q: expected exec, one, optional or many", s)
}

// Target is the result the caller asks for: a row type and how many rows.
type Target struct {
	Cardinality Cardinality
	Type        schema.HostType // row type; ignored for Exec
}

// IsExec reports whether the target decodes no rows.
func (t Target) IsExec() bool {
	return t.Cardinality == Exec || t.Type.Kind == schema.KindUnit
}

// ResultType is the Go type handed back to the caller.
func (t Target) ResultType() schema.HostType {
	switch {
	case t.IsExec():
		return schema.Unit()
	case t.Cardinality == Optional:
		if t.Type.Kind == schema.KindPointer {
			return t.Type
		}
		return schema.PointerTo(t.Type)
	case t.Cardinality == Many:
		return schema.SliceOf(t.Type)
	default:
		return t.Type
	}
}

func (t Target) String() string {
	return t.ResultType().String()
}

// Kind is the classification of a result.
type Kind uint8

const (
	None Kind = iota
	Scalar
	Record
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Scalar:
		return "scalar"
	default:
		return "record"
	}
}

// Shape is a verified result contract.
type Shape struct {
	Kind     Kind
	Columns  []schema.Column
	Hosts    []schema.HostType // host type of each column
	Scalar   schema.HostType   // column host type, for Scalar
	Bindings []FieldBinding
}

// FieldBinding assigns one column to one target field. For Scalar shapes
// there is a single binding whose Field is the whole row type.
type FieldBinding struct {
	Field      schema.Field
	Column     int // -1 when the field is not backed by a column
	Conversion schema.Conversion
	Nullable   bool // NULL is accepted: pointer field or explicit default
}

// Unclaimed returns the ordinals of columns no field reads.
func (s *Shape) Unclaimed() []int {
	claimed := make([]bool, len(s.Columns))
	for _, b := range s.Bindings {
		if b.Column >= 0 {
			claimed[b.Column] = true
		}
	}
	var out []int
	for i, c := range claimed {
		if !c {
			out = append(out, i)
		}
	}
	return out
}

// Classify decides the result shape of columns and verifies it against
// target.
func Classify(columns []schema.Column, target Target, mapper schema.Mapper) (*Shape, error) {
	hosts := make([]schema.HostType, len(columns))
	for i, c := range columns {
		h, err := mapper.Map(c.Type)
		if err != nil {
			return nil, diag.Wrap(diag.Type, err, fmt.Sprintf("column %q", c.Name))
		}
		hosts[i] = h
	}
	s := &Shape{Columns: columns, Hosts: hosts}

	switch {
	case len(columns) == 0:
		if !target.IsExec() {
			return nil, diag.Newf(diag.Type, "query returns no columns; expected exec target, found %s", target)
		}
		s.Kind = None
		return s, nil

	case target.IsExec():
		return nil, diag.Newf(diag.Type, "query returns %d %s; exec target expects none", len(columns), plural(len(columns)))

	case len(columns) == 1:
		if target.Type.Deref().Kind == schema.KindRecord {
			return nil, diag.Newf(diag.Type, "query returns 1 column; record target %s needs at least two", target.Type)
		}
		return s, s.bindScalar(target)

	default:
		if target.Type.Kind != schema.KindRecord {
			return nil, diag.Newf(diag.Type, "query returns %d columns; target %s is not a record", len(columns), target.Type)
		}
		return s, s.bindRecord(target.Type)
	}
}

func (s *Shape) bindScalar(target Target) error {
	s.Kind = Scalar
	s.Scalar = s.Hosts[0]
	col := s.Columns[0]
	field := schema.Field{Name: col.Name, Column: col.Name, Type: target.Type}

	conv, err := schema.Check(s.Scalar, target.Type.Deref())
	if err != nil {
		return diag.Wrap(diag.Type, err, fmt.Sprintf("column %q of type %s (%s) cannot be returned as %s",
			col.Name, col.Type, s.Scalar, target.Type))
	}
	s.Bindings = []FieldBinding{{
		Field:      field,
		Column:     0,
		Conversion: conv,
		Nullable:   field.Optional(),
	}}
	return nil
}

func (s *Shape) bindRecord(rec schema.HostType) error {
	s.Kind = Record
	s.Scalar = schema.HostType{}

	byName := make(map[string][]int, len(s.Columns))
	for i, c := range s.Columns {
		byName[c.Name] = append(byName[c.Name], i)
	}
	claimed := make([]bool, len(s.Columns))

	for _, f := range rec.Record.Fields {
		idx := byName[f.Column]
		switch len(idx) {
		case 0:
			if !f.HasDefault && !f.Optional() {
				return diag.Newf(diag.Type, "field %s has no matching column %q and no default", f.Name, f.Column)
			}
			s.Bindings = append(s.Bindings, FieldBinding{Field: f, Column: -1, Nullable: true})
			continue
		case 1:
		default:
			return diag.Newf(diag.Type, "ambiguous column %q: returned %d times", f.Column, len(idx))
		}

		i := idx[0]
		if claimed[i] {
			return diag.Newf(diag.Type, "column %q is claimed by more than one field of %s", f.Column, rec)
		}
		claimed[i] = true

		col := s.Columns[i]
		conv, err := schema.Check(s.Hosts[i], f.Type.Deref())
		if err != nil {
			return diag.Wrap(diag.Type, err, fmt.Sprintf("column %q of type %s (%s) cannot be assigned to field %s of type %s",
				col.Name, col.Type, s.Hosts[i], f.Name, f.Type))
		}
		s.Bindings = append(s.Bindings, FieldBinding{
			Field:      f,
			Column:     i,
			Conversion: conv,
			Nullable:   f.Optional() || f.HasDefault,
		})
	}

	if !rec.Record.AnyColumns {
		for i, ok := range claimed {
			if !ok {
				return diag.Newf(diag.Type, "column %q is not claimed by any field of %s", s.Columns[i].Name, rec)
			}
		}
	}
	return nil
}

// Trust builds a shape from the target alone, for compilation without a
// schema oracle. Record fields become columns in declaration order.
func Trust(target Target) *Shape {
	if target.IsExec() {
		return &Shape{Kind: None}
	}
	t := target.Type
	if t.Kind != schema.KindRecord {
		h := t.Deref()
		return &Shape{
			Kind:     Scalar,
			Columns:  []schema.Column{{Name: "?column?"}},
			Hosts:    []schema.HostType{h},
			Scalar:   h,
			Bindings: []FieldBinding{{Field: schema.Field{Type: t}, Nullable: t.Kind == schema.KindPointer}},
		}
	}

	s := &Shape{Kind: Record}
	for _, f := range t.Record.Fields {
		s.Bindings = append(s.Bindings, FieldBinding{
			Field:    f,
			Column:   len(s.Columns),
			Nullable: f.Optional() || f.HasDefault,
		})
		s.Columns = append(s.Columns, schema.Column{Name: f.Column, Ordinal: len(s.Columns)})
		s.Hosts = append(s.Hosts, f.Type.Deref())
	}
	return s
}

func plural(n int) string {
	if n == 1 {
		return "column"
	}
	return "columns"
}
