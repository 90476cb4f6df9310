package schema

import (
	"fmt"
	"slices"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/diag"
)

// Mapper turns database type descriptors into Go type obligations.
type Mapper struct {
	vectors bool
}

// NewMapper returns a mapper for the given dialect.
func NewMapper(d dialect.Dialect) Mapper {
	return Mapper{vectors: d.SupportsVector()}
}

// Map maps one descriptor to exactly one host type.
func (m Mapper) Map(desc TypeDescriptor) (HostType, error) {
	switch desc.Kind {
	case DescScalar:
		if h, ok := DBTypeMap[desc.Name]; ok {
			return h, nil
		}
		if m.vectors {
			if h, ok := vectorTypes[desc.Name]; ok {
				return h, nil
			}
		}
		return HostType{}, diag.Newf(diag.Type, "unsupported postgres type: %s", desc.Name)

	case DescArray:
		if desc.Elem == nil {
			return HostType{}, diag.Newf(diag.Type, "unsupported postgres type: %s (unknown element type)", desc.Name)
		}
		if desc.Elem.Kind == DescArray {
			return HostType{}, diag.Newf(diag.Type, "unsupported postgres type: nested array %s", desc)
		}
		elem, err := m.Map(*desc.Elem)
		if err != nil {
			return HostType{}, err
		}
		return SliceOf(elem), nil

	case DescEnum:
		if len(desc.Variants) == 0 {
			return HostType{}, diag.Newf(diag.Type, "unsupported postgres type: enum %s has no labels", desc.Name)
		}
		variants := make([]Variant, 0, len(desc.Variants))
		for _, label := range desc.Variants {
			variants = append(variants, Variant{Label: label})
		}
		return NewEnum("", desc.Name, variants...), nil
	}
	return HostType{}, diag.Newf(diag.Type, "unsupported postgres type: %s", desc.Name)
}

// Conversion says how a value of one type reaches another.
type Conversion uint8

const (
	// Identity needs no conversion.
	Identity Conversion = iota
	// Widen is a lossless numeric conversion, e.g. int32 to int64.
	Widen
	// Constant gives an untyped constant the destination's type.
	Constant
)

func (c Conversion) String() string {
	switch c {
	case Identity:
		return "identity"
	case Widen:
		return "widen"
	case Constant:
		return "constant"
	default:
		return fmt.Sprintf("conversion(%d)", uint8(c))
	}
}

var widenings = map[string][]string{
	"int8":    {"int16", "int32", "int64", "float32", "float64"},
	"int16":   {"int32", "int64", "float32", "float64"},
	"int32":   {"int64", "float64"},
	// int is 64 bits wide on every supported platform, so it never narrows.
	"int":     {"int64"},
	"uint8":   {"int16", "int32", "int64"},
	"uint16":  {"int32", "int64"},
	"uint32":  {"int64"},
	"float32": {"float64"},
}

// Check reports whether a value of type have can be used where want is
// required, and how. The error explains a mismatch without naming the
// surrounding context, which the caller adds.
func Check(have, want HostType) (Conversion, error) {
	if have.Equal(want) {
		return Identity, nil
	}

	switch have.Kind {
	case KindUntyped:
		return checkConstant(have, want)

	case KindScalar:
		if want.Kind == KindScalar && have.Pkg == "" && want.Pkg == "" {
			if slices.Contains(widenings[have.Name], want.Name) {
				return Widen, nil
			}
		}
		if want.Kind == KindSlice && have.Equal(Vector) && want.Elem.Equal(Float32) {
			return Identity, nil
		}

	case KindSlice:
		if want.Kind == KindSlice {
			conv, err := Check(*have.Elem, *want.Elem)
			if err != nil {
				return 0, fmt.Errorf("element type: %w", err)
			}
			if conv != Identity {
				return 0, fmt.Errorf("%s is not assignable to %s", have, want)
			}
			return Identity, nil
		}
		if want.Equal(Vector) && have.Elem.Equal(Float32) {
			return Identity, nil
		}
		if want.Kind == KindEnum && have.Elem.Kind == KindEnum {
			return 0, fmt.Errorf("expected %s, found array of %s", want, enumLabel(*have.Elem))
		}

	case KindEnum:
		if want.Kind == KindEnum {
			return 0, fmt.Errorf("enum %s variants %v do not match enum %s variants %v",
				enumLabel(have), have.Enum.Witness(), enumLabel(want), want.Enum.Witness())
		}
		if want.Kind == KindSlice && want.Elem.Kind == KindEnum {
			return 0, fmt.Errorf("expected %s, found %s", want, enumLabel(have))
		}
	}
	return 0, fmt.Errorf("%s is not assignable to %s", have, want)
}

func checkConstant(have, want HostType) (Conversion, error) {
	ok := false
	switch have.Name {
	case "int":
		ok = want.IsInteger() || want.IsFloat()
	case "float":
		ok = want.IsFloat()
	case "string":
		ok = want.Equal(String) || want.Kind == KindEnum
	case "bool":
		ok = want.Equal(Bool)
	}
	if !ok {
		return 0, fmt.Errorf("cannot use %s as %s", have, want)
	}
	return Constant, nil
}

// CheckValue validates the value of a constant that Check accepted for
// want. A string constant for an enum must be one of its labels.
func CheckValue(value any, want HostType) error {
	if want.Kind != KindEnum {
		return nil
	}
	label, ok := value.(string)
	if !ok {
		return fmt.Errorf("a constant for enum %s must be a string literal", enumLabel(want))
	}
	if !want.Enum.HasLabel(label) {
		return fmt.Errorf("%q is not a label of enum %s %v", label, enumLabel(want), want.Enum.Witness())
	}
	return nil
}

func enumLabel(h HostType) string {
	if h.Name != "" {
		return h.String()
	}
	return h.Enum.DBName
}
