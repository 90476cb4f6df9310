package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Enum is implemented by Go enum types; the labels are the database
// values the type can hold.
type Enum interface {
	EnumLabels() []string
}

var (
	enumIface  = reflect.TypeOf((*Enum)(nil)).Elem()
	hostCache  sync.Map // map[reflect.Type]HostType
	tagParser  = NewTagParser(DefaultNamingStrategy())
	optionsTag = "sqlm"
)

// FromReflect derives the host type of a Go type. Structs that are not
// known scalars become records, read through their `db` tags.
func FromReflect(t reflect.Type) (HostType, error) {
	if t == nil {
		return HostType{}, fmt.Errorf("nil type")
	}
	if h, ok := hostCache.Load(t); ok {
		return h.(HostType), nil
	}
	h, err := fromReflect(t, true)
	if err != nil {
		return HostType{}, err
	}
	hostCache.Store(t, h)
	return h, nil
}

func fromReflect(t reflect.Type, allowRecord bool) (HostType, error) {
	if h, ok := reflectTypeMap[t]; ok {
		return h, nil
	}
	if t.Implements(enumIface) {
		return enumFromReflect(t), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, err := fromReflect(t.Elem(), allowRecord)
		if err != nil {
			return HostType{}, err
		}
		return PointerTo(elem), nil

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Bytes, nil
		}
		elem, err := fromReflect(t.Elem(), allowRecord)
		if err != nil {
			return HostType{}, err
		}
		return SliceOf(elem), nil

	case reflect.Struct:
		if !allowRecord {
			return HostType{}, fmt.Errorf("unsupported Go type %s", t)
		}
		return recordFromReflect(t)
	}

	if h, ok := basicKinds[t.Kind()]; ok {
		return h, nil
	}
	return HostType{}, fmt.Errorf("unsupported Go type %s", t)
}

func enumFromReflect(t reflect.Type) HostType {
	labels := reflect.Zero(t).Interface().(Enum).EnumLabels()
	variants := make([]Variant, len(labels))
	for i, l := range labels {
		variants[i] = Variant{Name: l, Label: l}
	}
	h := NewEnum(t.Name(), "", variants...)
	h.Pkg, h.Import = packageOf(t)
	return h
}

func recordFromReflect(t reflect.Type) (HostType, error) {
	rec := &RecordType{}
	if err := collectFields(t, rec); err != nil {
		return HostType{}, fmt.Errorf("%s: %w", t, err)
	}
	if len(rec.Fields) == 0 {
		return HostType{}, fmt.Errorf("%s: record has no fields", t)
	}
	h := HostType{Kind: KindRecord, Name: t.Name(), Record: rec}
	h.Pkg, h.Import = packageOf(t)
	return h, nil
}

func collectFields(t reflect.Type, rec *RecordType) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Name == "_" {
			if strings.Contains(sf.Tag.Get(optionsTag), "any_columns") {
				rec.AnyColumns = true
			}
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Tag.Get("db") == "" {
			if err := collectFields(sf.Type, rec); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		tag, err := tagParser.ParseTag(sf.Name, sf.Tag)
		if err != nil {
			return err
		}
		if tag.Skip {
			continue
		}
		ft, err := fromReflect(sf.Type, false)
		if err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		rec.Fields = append(rec.Fields, Field{
			Name:       sf.Name,
			Column:     tag.ColumnName,
			Type:       ft,
			Default:    tag.Default,
			HasDefault: tag.HasDefault,
		})
	}
	return nil
}

func packageOf(t reflect.Type) (pkg, importPath string) {
	importPath = t.PkgPath()
	if importPath == "" {
		return "", ""
	}
	pkg = importPath[strings.LastIndexByte(importPath, '/')+1:]
	return pkg, importPath
}
