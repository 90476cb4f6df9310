package connector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/diag"
)

// Connection is a pooled connection to the schema database.
type Connection struct {
	pool    *pgxpool.Pool
	dialect dialect.Dialect
}

// Connect opens the pool described by cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn, err := cfg.ConnString()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, diag.Wrap(diag.Schema, err, "invalid database URL")
	}
	applyPool(poolCfg, cfg.Pool)

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	attempt := 0
	pool, err := retryConnect(ctx, cfg.Retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			logger.Debug("database not reachable", "attempt", attempt, "error", err)
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		return nil, diag.Wrap(diag.Schema, err, fmt.Sprintf("failed to connect after %d attempt(s)", attempt))
	}

	logger.Debug("connected to schema database",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns)
	return &Connection{pool: pool, dialect: dialect.NewPostgresDialect()}, nil
}

func applyPool(poolCfg *pgxpool.Config, p PoolConfig) {
	if p.MaxConns <= 0 {
		p.MaxConns = DefaultConfig().Pool.MaxConns
	}
	poolCfg.MaxConns = int32(p.MaxConns)
	if p.MaxLifetime > 0 {
		poolCfg.MaxConnLifetime = p.MaxLifetime
	}
	if p.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = p.MaxIdleTime
	}
}

// Pool returns the underlying pgx pool.
func (c *Connection) Pool() *pgxpool.Pool {
	return c.pool
}

// Dialect returns the PostgreSQL dialect.
func (c *Connection) Dialect() dialect.Dialect {
	return c.dialect
}

// Health checks the connection health.
func (c *Connection) Health(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("not connected")
	}
	return c.pool.Ping(ctx)
}

// Stats returns connection pool statistics.
func (c *Connection) Stats() ConnectionStats {
	if c.pool == nil {
		return ConnectionStats{}
	}
	s := c.pool.Stat()
	return ConnectionStats{
		OpenConnections: int(s.TotalConns()),
		InUse:           int(s.AcquiredConns()),
		Idle:            int(s.IdleConns()),
		Acquires:        s.AcquireCount(),
	}
}

// Close closes the connection pool.
func (c *Connection) Close() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
