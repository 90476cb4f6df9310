// Package sqlm compiles SQL templates against a live schema and runs them
// with typed results.
//
//	db, err := sqlm.Open(ctx, connector.DefaultConfig(), nil)
//	posts, err := sqlm.Many[Post](ctx, db,
//		"SELECT * FROM posts WHERE id > {after} AND id < {before}",
//		sqlm.Named("after", 0), sqlm.Named("before", 42))
package sqlm

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Konsultn-Engineering/sqlm/compiler"
	"github.com/Konsultn-Engineering/sqlm/connector"
	"github.com/Konsultn-Engineering/sqlm/database"
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/introspect"
	"github.com/Konsultn-Engineering/sqlm/plan"
	"github.com/Konsultn-Engineering/sqlm/query"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/shape"
)

// DB compiles templates and executes the resulting plans.
type DB struct {
	compiler *compiler.Compiler
	db       database.Querier
	conn     *connector.Connection
}

// New wraps an existing querier. The compiler options choose the oracle.
func New(db database.Querier, opts ...compiler.Option) *DB {
	return &DB{compiler: compiler.New(opts...), db: db}
}

// Open connects to the database named by cfg and uses that same database
// as the schema oracle.
func Open(ctx context.Context, cfg connector.Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := connector.LoadDotenv(); err != nil {
		return nil, err
	}
	conn, err := connector.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	oracle, err := introspect.NewPostgres(conn.Pool(), introspect.WithLogger(logger))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{
		compiler: compiler.New(
			compiler.WithOracle(oracle),
			compiler.WithDialect(conn.Dialect()),
			compiler.WithLogger(logger)),
		db:   database.NewPgxDatabase(conn.Pool(), logger),
		conn: conn,
	}, nil
}

// Close releases the connection opened by Open.
func (d *DB) Close() {
	if d.conn != nil {
		d.conn.Close()
	}
}

// Arg is an unnamed argument, bound by {} and {N}.
func Arg(v any) query.Arg {
	return query.Arg{Value: v, Type: typeOf(v)}
}

// Named is a named argument, bound by {name}.
func Named(name string, v any) query.Arg {
	a := Arg(v)
	a.Name = name
	return a
}

// Vars builds a scope of free variables from a map.
func Vars(m map[string]any) query.Vars {
	vars := make(query.Vars, len(m))
	for name, v := range m {
		vars[name] = query.Arg{Name: name, Value: v, Type: typeOf(v)}
	}
	return vars
}

// Scope supplies free variables to a single call.
type Scope struct {
	query.Scope
}

func typeOf(v any) schema.HostType {
	if v == nil {
		return schema.HostType{}
	}
	h, err := schema.FromReflect(reflect.TypeOf(v))
	if err != nil {
		// Left undeclared; the oracle's obligation is adopted instead.
		return schema.HostType{}
	}
	return h
}

// Query is a compiled template with a typed result.
type Query[T any] struct {
	plan    *plan.Plan
	decoder *decoder
}

// Plan returns the compiled plan.
func (q *Query[T]) Plan() *plan.Plan { return q.plan }

// SQL returns the rewritten query text.
func (q *Query[T]) SQL() string { return q.plan.Text }

// Args returns the parameter values in placeholder order.
func (q *Query[T]) Args() []any { return q.plan.Args() }

// Prepare compiles tmpl for result type T and the given cardinality.
func Prepare[T any](ctx context.Context, d *DB, card shape.Cardinality, tmpl string, args ...any) (*Query[T], error) {
	return prepare[T](ctx, d, card, tmpl, caller(2), args)
}

func prepare[T any](ctx context.Context, d *DB, card shape.Cardinality, tmpl string, loc diag.Location, args []any) (*Query[T], error) {
	inv := compiler.Invocation{Location: loc, Template: tmpl}
	for _, a := range args {
		switch a := a.(type) {
		case query.Arg:
			inv.Args = append(inv.Args, a)
		case Scope:
			inv.Scope = a.Scope
		case query.Vars:
			inv.Scope = a
		default:
			inv.Args = append(inv.Args, Arg(a))
		}
	}

	target := shape.Target{Cardinality: card, Type: schema.Unit()}
	if card != shape.Exec {
		rt := reflect.TypeOf((*T)(nil)).Elem()
		h, err := schema.FromReflect(rt)
		if err != nil {
			return nil, diag.Locate(diag.Wrap(diag.Type, err, "result type"), loc, tmpl)
		}
		target.Type = h
	}
	inv.Target = target

	p, err := d.compiler.Compile(ctx, inv)
	if err != nil {
		return nil, err
	}
	q := &Query[T]{plan: p}
	if card != shape.Exec {
		q.decoder, err = newDecoder(reflect.TypeOf((*T)(nil)).Elem(), p.Shape)
		if err != nil {
			return nil, diag.Locate(err, loc, tmpl)
		}
	}
	return q, nil
}

// One runs tmpl and decodes exactly one row. A missing row is
// database.ErrNotFound.
func One[T any](ctx context.Context, d *DB, tmpl string, args ...any) (T, error) {
	var zero T
	q, err := prepare[T](ctx, d, shape.One, tmpl, caller(2), args)
	if err != nil {
		return zero, err
	}
	rows, err := d.db.Query(ctx, q.plan.Text, q.plan.Args()...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return zero, err
		}
		return zero, database.ErrNotFound
	}
	var v T
	if err := q.decoder.decode(rows, reflect.ValueOf(&v).Elem()); err != nil {
		return zero, err
	}
	return v, rows.Err()
}

// Optional runs tmpl and decodes zero or one row.
func Optional[T any](ctx context.Context, d *DB, tmpl string, args ...any) (*T, error) {
	q, err := prepare[T](ctx, d, shape.Optional, tmpl, caller(2), args)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(ctx, q.plan.Text, q.plan.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	v := new(T)
	if err := q.decoder.decode(rows, reflect.ValueOf(v).Elem()); err != nil {
		return nil, err
	}
	return v, rows.Err()
}

// Many runs tmpl and decodes every row.
func Many[T any](ctx context.Context, d *DB, tmpl string, args ...any) ([]T, error) {
	q, err := prepare[T](ctx, d, shape.Many, tmpl, caller(2), args)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(ctx, q.plan.Text, q.plan.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err := q.decoder.decode(rows, reflect.ValueOf(&v).Elem()); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Exec runs a command that returns no columns.
func Exec(ctx context.Context, d *DB, tmpl string, args ...any) (pgconn.CommandTag, error) {
	q, err := prepare[struct{}](ctx, d, shape.Exec, tmpl, caller(2), args)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return d.db.Exec(ctx, q.plan.Text, q.plan.Args()...)
}

func caller(skip int) diag.Location {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return diag.Location{}
	}
	return diag.Location{File: file, Line: line}
}

// String describes the compiled query for debugging.
func (q *Query[T]) String() string {
	return fmt.Sprintf("%s -> %s", q.plan.Text, q.plan.Target)
}
