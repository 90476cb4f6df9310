// Package querydef reads query definition files: the enums, row types and
// SQL templates of one generated Go file.
package querydef

import (
	"fmt"
	"slices"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Konsultn-Engineering/sqlm/diag"
)

// Pos is a position inside a definition file.
type Pos struct {
	Line   int `yaml:"-"`
	Column int `yaml:"-"`
}

func posOf(n *yaml.Node) Pos {
	return Pos{Line: n.Line, Column: n.Column}
}

// File is one parsed definition file.
type File struct {
	Path    string  `yaml:"-"`
	Package string  `yaml:"package,omitempty"`
	Enums   []Enum  `yaml:"enums,omitempty"`
	Types   []Type  `yaml:"types,omitempty"`
	Queries []Query `yaml:"queries,omitempty"`
}

// Enum declares a Go string enum backed by a database enum.
type Enum struct {
	Pos       `yaml:"-"`
	Name      string    `yaml:"name"`
	DBName    string    `yaml:"db_name,omitempty"`
	RenameAll string    `yaml:"rename_all,omitempty"`
	Variants  []Variant `yaml:"variants"`
}

func (e *Enum) UnmarshalYAML(node *yaml.Node) error {
	type plain Enum
	if err := node.Decode((*plain)(e)); err != nil {
		return err
	}
	e.Pos = posOf(node)
	return nil
}

// Variant is an enum member. It is written either as a bare name or as a
// mapping with an explicit label.
type Variant struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label,omitempty"`
}

func (v *Variant) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Variant{Name: node.Value}
		return nil
	case yaml.MappingNode:
		type plain Variant
		return node.Decode((*plain)(v))
	default:
		return fmt.Errorf("line %d: expected variant name or mapping", node.Line)
	}
}

// Type declares a record row type.
type Type struct {
	Pos        `yaml:"-"`
	Name       string     `yaml:"name"`
	AnyColumns bool       `yaml:"any_columns,omitempty"`
	Fields     []FieldDef `yaml:"fields"`
}

func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	type plain Type
	if err := node.Decode((*plain)(t)); err != nil {
		return err
	}
	t.Pos = posOf(node)
	return nil
}

// FieldDef is one record field. Tag uses the `db` tag option syntax.
type FieldDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Tag  string `yaml:"tag,omitempty"`
}

// Query is one template occurrence.
type Query struct {
	Pos       `yaml:"-"`
	Name      string     `yaml:"name"`
	Doc       string     `yaml:"doc,omitempty"`
	SQL       string     `yaml:"sql"`
	Params    []ParamDef `yaml:"params,omitempty"`
	Args      []ArgDef   `yaml:"args,omitempty"`
	Returns   string     `yaml:"returns,omitempty"`
	Type      string     `yaml:"type,omitempty"`
	Fields    []FieldDef `yaml:"fields,omitempty"` // inline row type
	Unchecked bool       `yaml:"unchecked,omitempty"`
}

func (q *Query) UnmarshalYAML(node *yaml.Node) error {
	type plain Query
	if err := node.Decode((*plain)(q)); err != nil {
		return err
	}
	q.Pos = posOf(node)
	return nil
}

// ParamDef is a parameter of the generated function. Templates see params
// as free variables. An empty type is inferred from the database.
type ParamDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

// ArgDef is an explicit call argument. Unnamed args come first.
type ArgDef struct {
	Name string `yaml:"name,omitempty"`
	Expr string `yaml:"expr"`
	Type string `yaml:"type,omitempty"`
}

// Location returns the diagnostic location of a query.
func (f *File) Location(q *Query) diag.Location {
	return diag.Location{File: f.Path, Line: q.Line, Column: q.Column, Name: q.Name}
}

// Parse decodes a definition file.
func Parse(path string, data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, diag.Locate(diag.Wrap(diag.Syntax, err, "invalid query definitions"), diag.Location{File: path}, "")
	}
	f.Path = path
	return f, nil
}

// Load reads and decodes a definition file.
func Load(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read query definitions: %w", err)
	}
	return Parse(path, data)
}

// Glob expands patterns into a sorted, deduplicated list of files.
func Glob(fs afero.Fs, patterns []string) ([]string, error) {
	var paths []string
	for _, p := range patterns {
		matches, err := afero.Glob(fs, p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

// LoadAll loads every file matched by patterns.
func LoadAll(fs afero.Fs, patterns []string) ([]*File, error) {
	paths, err := Glob(fs, patterns)
	if err != nil {
		return nil, err
	}
	files := make([]*File, 0, len(paths))
	for _, p := range paths {
		f, err := Load(fs, p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
