package schema

import (
	"slices"
	"strings"
)

// HostKind is the kind of a Go type obligation.
type HostKind uint8

const (
	KindInvalid HostKind = iota
	KindScalar
	KindSlice
	KindPointer
	KindEnum
	KindRecord
	KindUnit
	KindUntyped
)

// HostType is a Go type as far as query verification is concerned. It is
// symbolic so that types which only exist in generated code can take part.
type HostType struct {
	Kind   HostKind
	Name   string // identifier; for KindUntyped one of int, float, string, bool
	Pkg    string // package qualifier, empty for builtins and local types
	Import string // import path of Pkg
	Elem   *HostType
	Enum   *EnumType
	Record *RecordType
}

// EnumType is the closed set of variants behind an enum host type.
type EnumType struct {
	DBName   string
	Variants []Variant
}

// Variant is one enum member and the database label it maps to.
type Variant struct {
	Name  string
	Label string
}

// Witness returns the sorted, deduplicated label set. Two enums are the
// same obligation exactly when their witnesses are equal.
func (e *EnumType) Witness() []string {
	labels := make([]string, 0, len(e.Variants))
	for _, v := range e.Variants {
		labels = append(labels, v.Label)
	}
	slices.Sort(labels)
	return slices.Compact(labels)
}

// HasLabel reports whether label belongs to the enum.
func (e *EnumType) HasLabel(label string) bool {
	for _, v := range e.Variants {
		if v.Label == label {
			return true
		}
	}
	return false
}

// RecordType is a named-field target for multi-column results.
type RecordType struct {
	Fields     []Field
	AnyColumns bool
}

// Field is one record field and the column it reads from.
type Field struct {
	Name       string
	Column     string
	Type       HostType
	Default    string // Go expression, only meaningful when HasDefault
	HasDefault bool
}

// Optional reports whether the field may stay unset (nil).
func (f Field) Optional() bool {
	return f.Type.Kind == KindPointer
}

var (
	String  = Scalar("string")
	Bool    = Scalar("bool")
	Int     = Scalar("int")
	Int8    = Scalar("int8")
	Int16   = Scalar("int16")
	Int32   = Scalar("int32")
	Int64   = Scalar("int64")
	Uint8   = Scalar("uint8")
	Uint16  = Scalar("uint16")
	Uint32  = Scalar("uint32")
	Float32 = Scalar("float32")
	Float64 = Scalar("float64")
	Bytes   = Scalar("[]byte")
	Vector  = Scalar("[]float32")

	Time      = Qualified("time", "time", "Time")
	UUID      = Qualified("uuid", "github.com/google/uuid", "UUID")
	JSON      = Qualified("json", "encoding/json", "RawMessage")
	Numeric   = Qualified("pgtype", "github.com/jackc/pgx/v5/pgtype", "Numeric")
	Interval  = Qualified("pgtype", "github.com/jackc/pgx/v5/pgtype", "Interval")
	TimeOfDay = Qualified("pgtype", "github.com/jackc/pgx/v5/pgtype", "Time")
	Date      = Qualified("pgtype", "github.com/jackc/pgx/v5/pgtype", "Date")
	Prefix    = Qualified("netip", "net/netip", "Prefix")

	UntypedInt    = HostType{Kind: KindUntyped, Name: "int"}
	UntypedFloat  = HostType{Kind: KindUntyped, Name: "float"}
	UntypedString = HostType{Kind: KindUntyped, Name: "string"}
	UntypedBool   = HostType{Kind: KindUntyped, Name: "bool"}
)

// Scalar returns a builtin scalar type.
func Scalar(name string) HostType {
	return HostType{Kind: KindScalar, Name: name}
}

// Qualified returns a scalar type from another package.
func Qualified(pkg, importPath, name string) HostType {
	return HostType{Kind: KindScalar, Name: name, Pkg: pkg, Import: importPath}
}

// SliceOf returns []elem.
func SliceOf(elem HostType) HostType {
	return HostType{Kind: KindSlice, Elem: &elem}
}

// PointerTo returns *elem.
func PointerTo(elem HostType) HostType {
	return HostType{Kind: KindPointer, Elem: &elem}
}

// Unit is the "no value" type of commands.
func Unit() HostType {
	return HostType{Kind: KindUnit}
}

// NewEnum returns an enum type. An empty name describes a database enum
// that has no Go counterpart yet.
func NewEnum(name, dbName string, variants ...Variant) HostType {
	return HostType{Kind: KindEnum, Name: name, Enum: &EnumType{DBName: dbName, Variants: variants}}
}

// NewRecord returns a record type.
func NewRecord(name string, anyColumns bool, fields ...Field) HostType {
	return HostType{Kind: KindRecord, Name: name, Record: &RecordType{Fields: fields, AnyColumns: anyColumns}}
}

// IsZero reports whether no type was declared.
func (h HostType) IsZero() bool {
	return h.Kind == KindInvalid
}

// Deref strips one pointer level.
func (h HostType) Deref() HostType {
	if h.Kind == KindPointer && h.Elem != nil {
		return *h.Elem
	}
	return h
}

// String returns the type as written in Go source.
func (h HostType) String() string {
	switch h.Kind {
	case KindSlice:
		return "[]" + h.Elem.String()
	case KindPointer:
		return "*" + h.Elem.String()
	case KindUnit:
		return "no value"
	case KindUntyped:
		return "untyped " + h.Name
	case KindEnum:
		if h.Name == "" && h.Enum != nil {
			return "enum " + h.Enum.DBName
		}
	case KindInvalid:
		return "invalid type"
	}
	if h.Pkg != "" {
		return h.Pkg + "." + h.Name
	}
	return h.Name
}

// Equal reports whether two host types denote the same Go type.
func (h HostType) Equal(o HostType) bool {
	if h.Kind != o.Kind {
		return false
	}
	switch h.Kind {
	case KindSlice, KindPointer:
		return h.Elem.Equal(*o.Elem)
	case KindEnum:
		if h.Name == "" || o.Name == "" {
			return slices.Equal(h.Enum.Witness(), o.Enum.Witness())
		}
	case KindUntyped, KindUnit:
		return h.Name == o.Name
	}
	return h.Name == o.Name && h.Import == o.Import
}

// IsInteger reports whether h is a builtin integer type.
func (h HostType) IsInteger() bool {
	return h.Kind == KindScalar && h.Pkg == "" &&
		(strings.HasPrefix(h.Name, "int") || strings.HasPrefix(h.Name, "uint"))
}

// IsFloat reports whether h is a builtin float type.
func (h HostType) IsFloat() bool {
	return h.Kind == KindScalar && h.Pkg == "" && strings.HasPrefix(h.Name, "float")
}
