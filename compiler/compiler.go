// Package compiler runs the full pipeline for template occurrences: parse,
// bind, describe, classify and emit.
package compiler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/introspect"
	"github.com/Konsultn-Engineering/sqlm/plan"
	"github.com/Konsultn-Engineering/sqlm/query"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/shape"
	"github.com/Konsultn-Engineering/sqlm/template"
)

// Invocation is one template occurrence to compile.
type Invocation struct {
	Name      string
	Location  diag.Location
	Template  string
	Args      []query.Arg
	Scope     query.Scope
	Target    shape.Target
	Unchecked bool // skip the oracle for this occurrence only
}

// Compiler compiles invocations against one schema oracle. It is safe for
// concurrent use.
type Compiler struct {
	oracle      introspect.Oracle
	dialect     dialect.Dialect
	mapper      schema.Mapper
	logger      *slog.Logger
	unchecked   bool
	concurrency int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithOracle sets the schema oracle.
func WithOracle(o introspect.Oracle) Option {
	return func(c *Compiler) { c.oracle = o }
}

// WithDialect sets the target dialect. The default is PostgreSQL.
func WithDialect(d dialect.Dialect) Option {
	return func(c *Compiler) { c.dialect = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithUnchecked compiles without an oracle, trusting declared types.
func WithUnchecked() Option {
	return func(c *Compiler) { c.unchecked = true }
}

// WithConcurrency bounds CompileAll. Values below one mean GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(c *Compiler) { c.concurrency = n }
}

// New creates a compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		dialect: dialect.NewPostgresDialect(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = runtime.GOMAXPROCS(0)
	}
	c.mapper = schema.NewMapper(c.dialect)
	return c
}

// Dialect returns the target dialect.
func (c *Compiler) Dialect() dialect.Dialect {
	return c.dialect
}

// Compile compiles one occurrence. Errors are *diag.Error values carrying
// the occurrence location and template.
func (c *Compiler) Compile(ctx context.Context, inv Invocation) (*plan.Plan, error) {
	p, err := c.compile(ctx, inv)
	if err != nil {
		c.logger.Debug("compile failed", "query", inv.Name, "error", err)
		loc := inv.Location
		if loc.Name == "" {
			loc.Name = inv.Name
		}
		return nil, diag.Locate(err, loc, inv.Template)
	}
	p.Name = inv.Name
	p.Location = inv.Location
	p.Template = inv.Template

	c.logger.Debug("compiled query",
		"query", inv.Name,
		"placeholders", len(p.Params),
		"shape", p.Shape.Kind,
		"target", p.Target,
		"checked", p.Checked)
	return p, nil
}

func (c *Compiler) compile(ctx context.Context, inv Invocation) (*plan.Plan, error) {
	var opts []template.Option
	if r, ok := c.dialect.Sigil(); ok {
		opts = append(opts, template.WithSigil(r))
	}
	tokens, err := template.Parse(inv.Template, opts...)
	if err != nil {
		return nil, err
	}
	args, err := query.NewArgs(inv.Scope, inv.Args...)
	if err != nil {
		return nil, err
	}
	bound, err := query.Bind(tokens, args, c.dialect)
	if err != nil {
		return nil, err
	}

	if c.unchecked || inv.Unchecked {
		return plan.Emit(bound, nil, shape.Trust(inv.Target), inv.Target, c.mapper)
	}
	if c.oracle == nil {
		return nil, diag.New(diag.Schema, "no schema oracle configured")
	}

	desc, err := c.oracle.Describe(ctx, bound.Text)
	if err != nil {
		return nil, err
	}
	sh, err := shape.Classify(desc.Columns, inv.Target, c.mapper)
	if err != nil {
		return nil, err
	}
	return plan.Emit(bound, desc, sh, inv.Target, c.mapper)
}

// CompileAll compiles invocations concurrently. A failing occurrence does
// not stop the others; plans[i] is nil exactly when invocation i failed,
// and the returned error joins all failures in input order.
func (c *Compiler) CompileAll(ctx context.Context, invs []Invocation) ([]*plan.Plan, error) {
	plans := make([]*plan.Plan, len(invs))
	errs := make([]error, len(invs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := range invs {
		g.Go(func() error {
			plans[i], errs[i] = c.Compile(ctx, invs[i])
			return nil
		})
	}
	_ = g.Wait()

	return plans, errors.Join(errs...)
}
