// Package query binds template placeholders to caller arguments and
// rewrites templates into native positional parameters.
package query

import (
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/schema"
)

// Arg is one argument supplied to a template.
type Arg struct {
	Name  string          // empty for unnamed arguments
	Expr  string          // Go source expression, for generated code
	Value any             // runtime value, for plans compiled in-process
	Type  schema.HostType // declared type; the zero type is inferred
}

// Named reports whether the argument was passed as name = value.
func (a Arg) Named() bool {
	return a.Name != ""
}

// Scope resolves free variables referenced by name in a template.
type Scope interface {
	Lookup(name string) (Arg, bool)
}

// Vars is a map-backed Scope.
type Vars map[string]Arg

func (v Vars) Lookup(name string) (Arg, bool) {
	a, ok := v[name]
	if ok && a.Name == "" {
		a.Name = name
	}
	return a, ok
}

// Args holds the three argument pools of one template occurrence.
type Args struct {
	unnamed []Arg
	named   []Arg
	byName  map[string]int
	scope   Scope
}

// NewArgs splits args into the unnamed and named pools. Unnamed arguments
// must all come before the first named one. scope may be nil.
func NewArgs(scope Scope, args ...Arg) (*Args, error) {
	a := &Args{byName: make(map[string]int), scope: scope}
	for _, arg := range args {
		if !arg.Named() {
			if len(a.named) > 0 {
				return nil, diag.New(diag.Binding, "positional arguments cannot follow named arguments")
			}
			a.unnamed = append(a.unnamed, arg)
			continue
		}
		if _, dup := a.byName[arg.Name]; dup {
			return nil, diag.Newf(diag.Binding, "duplicate argument %q", arg.Name)
		}
		a.byName[arg.Name] = len(a.named)
		a.named = append(a.named, arg)
	}
	return a, nil
}

// Unnamed returns the unnamed pool in call order.
func (a *Args) Unnamed() []Arg {
	return a.unnamed
}

// Named returns the named pool in call order.
func (a *Args) Named() []Arg {
	return a.named
}

func (a *Args) lookupNamed(name string) (int, bool) {
	i, ok := a.byName[name]
	return i, ok
}

func (a *Args) lookupVar(name string) (Arg, bool) {
	if a.scope == nil {
		return Arg{}, false
	}
	return a.scope.Lookup(name)
}
