package schema

import "strings"

// DescKind is the kind of a database type descriptor.
type DescKind string

const (
	DescScalar DescKind = "scalar"
	DescArray  DescKind = "array"
	DescEnum   DescKind = "enum"
)

// TypeDescriptor is a database type as reported by the schema oracle.
type TypeDescriptor struct {
	Kind     DescKind        `yaml:"kind"`
	Name     string          `yaml:"name"`
	Elem     *TypeDescriptor `yaml:"elem,omitempty"`
	Variants []string        `yaml:"variants,omitempty"` // enum labels in declaration order
}

// ScalarType describes a scalar database type.
func ScalarType(name string) TypeDescriptor {
	return TypeDescriptor{Kind: DescScalar, Name: name}
}

// ArrayType describes an array of elem.
func ArrayType(name string, elem TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{Kind: DescArray, Name: name, Elem: &elem}
}

// EnumDescriptor describes an enumeration with its labels.
func EnumDescriptor(name string, labels ...string) TypeDescriptor {
	return TypeDescriptor{Kind: DescEnum, Name: name, Variants: labels}
}

func (d TypeDescriptor) String() string {
	switch d.Kind {
	case DescArray:
		if d.Elem != nil {
			return d.Elem.String() + "[]"
		}
		return strings.TrimPrefix(d.Name, "_") + "[]"
	default:
		return d.Name
	}
}

// Column is one result column of a prepared statement.
type Column struct {
	Name    string         `yaml:"name"`
	Type    TypeDescriptor `yaml:"type"`
	Ordinal int            `yaml:"ordinal"`
}
