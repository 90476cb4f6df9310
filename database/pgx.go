package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxDatabase implements Querier for pgxpool.Pool and logs every
// statement at debug level.
type PgxDatabase struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgxDatabase creates a new PgxDatabase.
func NewPgxDatabase(pool *pgxpool.Pool, logger *slog.Logger) *PgxDatabase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgxDatabase{pool: pool, logger: logger}
}

// Exec executes a query without returning rows.
func (p *PgxDatabase) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := p.pool.Exec(ctx, sql, args...)
	p.log(ctx, sql, len(args), start, err)
	return tag, err
}

// Query executes a query that returns rows.
func (p *PgxDatabase) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, sql, args...)
	p.log(ctx, sql, len(args), start, err)
	return rows, err
}

// QueryRow executes a query expected to return at most one row.
func (p *PgxDatabase) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p.log(ctx, sql, len(args), time.Now(), nil)
	return p.pool.QueryRow(ctx, sql, args...)
}

// Close closes the pool.
func (p *PgxDatabase) Close() {
	p.pool.Close()
}

func (p *PgxDatabase) log(ctx context.Context, sql string, nargs int, start time.Time, err error) {
	if !p.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []any{"sql", sql, "args", nargs, "elapsed", time.Since(start)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	p.logger.DebugContext(ctx, "query", attrs...)
}

// Assert that PgxDatabase implements the Querier interface.
var _ Querier = (*PgxDatabase)(nil)
