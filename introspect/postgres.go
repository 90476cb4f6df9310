package introspect

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Konsultn-Engineering/sqlm/cache"
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/utils"
)

const (
	defaultDescriptionCacheSize = 1024
	defaultTypeCacheSize        = 512
)

// pgType is the part of pg_catalog.pg_type needed to describe a type.
type pgType struct {
	Name     string
	Type     string // typtype: b base, e enum, d domain, ...
	Category string // typcategory: A for arrays
	Elem     uint32
	BaseType uint32
}

type catalog interface {
	lookupType(ctx context.Context, oid uint32) (pgType, error)
	enumLabels(ctx context.Context, oid uint32) ([]string, error)
}

// Postgres is a live oracle backed by a pgx pool. Statements are prepared
// unnamed on a pooled connection; their parameter and field OIDs are then
// resolved through pg_type and pg_enum.
type Postgres struct {
	pool    *pgxpool.Pool
	catalog catalog
	builtin *pgtype.Map
	logger  *slog.Logger

	descs *cache.StatementCache[uint64, *Description]
	types *cache.StatementCache[uint32, schema.TypeDescriptor]
}

// PostgresOption configures a Postgres oracle.
type PostgresOption func(*Postgres)

// WithLogger sets the logger used for cache misses.
func WithLogger(l *slog.Logger) PostgresOption {
	return func(p *Postgres) { p.logger = l }
}

// NewPostgres creates an oracle over pool.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	p := &Postgres{
		pool:    pool,
		catalog: poolCatalog{pool: pool},
		builtin: pgtype.NewMap(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.initCaches(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initCaches() error {
	var err error
	if p.descs, err = cache.NewStatementCache[uint64, *Description](defaultDescriptionCacheSize); err != nil {
		return err
	}
	if p.types, err = cache.NewStatementCache[uint32, schema.TypeDescriptor](defaultTypeCacheSize); err != nil {
		return err
	}
	p.descs.OnMiss(func(key uint64) {
		p.logger.Debug("describing statement", "fingerprint", utils.Hex(key))
	})
	p.types.OnMiss(func(oid uint32) {
		p.logger.Debug("resolving type", "oid", oid)
	})
	return nil
}

// Describe prepares sql and reports its parameter and column types.
func (p *Postgres) Describe(ctx context.Context, sql string) (*Description, error) {
	key := utils.FingerprintQuery("postgres", sql)
	return p.descs.GetOrLoad(key, func() (*Description, error) {
		return p.describe(ctx, sql)
	})
}

func (p *Postgres) describe(ctx context.Context, sql string) (*Description, error) {
	var sd *pgconn.StatementDescription
	err := p.pool.AcquireFunc(ctx, func(c *pgxpool.Conn) error {
		var err error
		sd, err = c.Conn().PgConn().Prepare(ctx, "", sql, nil)
		return err
	})
	if err != nil {
		return nil, diag.Wrap(diag.Schema, err, "query failed")
	}
	return p.describeStatement(ctx, sd.ParamOIDs, sd.Fields)
}

func (p *Postgres) describeStatement(ctx context.Context, params []uint32, fields []pgconn.FieldDescription) (*Description, error) {
	desc := &Description{
		Params:  make([]schema.TypeDescriptor, 0, len(params)),
		Columns: make([]schema.Column, 0, len(fields)),
	}
	for _, oid := range params {
		t, err := p.resolve(ctx, oid)
		if err != nil {
			return nil, err
		}
		desc.Params = append(desc.Params, t)
	}
	for i, f := range fields {
		t, err := p.resolve(ctx, f.DataTypeOID)
		if err != nil {
			return nil, diag.Wrap(diag.Type, err, "column "+f.Name)
		}
		desc.Columns = append(desc.Columns, schema.Column{Name: f.Name, Type: t, Ordinal: i})
	}
	return desc, nil
}

func (p *Postgres) resolve(ctx context.Context, oid uint32) (schema.TypeDescriptor, error) {
	return p.types.GetOrLoad(oid, func() (schema.TypeDescriptor, error) {
		return p.resolveUncached(ctx, oid)
	})
}

func (p *Postgres) resolveUncached(ctx context.Context, oid uint32) (schema.TypeDescriptor, error) {
	// Builtins are known to pgx and need no catalog round trip.
	if t, ok := p.builtin.TypeForOID(oid); ok {
		if arr, ok := t.Codec.(*pgtype.ArrayCodec); ok && arr.ElementType != nil {
			elem, err := p.resolve(ctx, arr.ElementType.OID)
			if err != nil {
				return schema.TypeDescriptor{}, err
			}
			return schema.ArrayType(t.Name, elem), nil
		}
		return schema.ScalarType(t.Name), nil
	}

	t, err := p.catalog.lookupType(ctx, oid)
	if err != nil {
		return schema.TypeDescriptor{}, err
	}
	switch {
	case t.Type == "d":
		return p.resolve(ctx, t.BaseType)
	case t.Type == "e":
		labels, err := p.catalog.enumLabels(ctx, oid)
		if err != nil {
			return schema.TypeDescriptor{}, err
		}
		return schema.EnumDescriptor(t.Name, labels...), nil
	case t.Category == "A" && t.Elem != 0:
		elem, err := p.resolve(ctx, t.Elem)
		if err != nil {
			return schema.TypeDescriptor{}, err
		}
		return schema.ArrayType(t.Name, elem), nil
	default:
		return schema.ScalarType(t.Name), nil
	}
}

type poolCatalog struct {
	pool *pgxpool.Pool
}

const typeQuery = `SELECT typname::text, typtype::text, typcategory::text, typelem, typbasetype
FROM pg_catalog.pg_type WHERE oid = $1`

const enumQuery = `SELECT enumlabel::text FROM pg_catalog.pg_enum
WHERE enumtypid = $1 ORDER BY enumsortorder`

func (c poolCatalog) lookupType(ctx context.Context, oid uint32) (pgType, error) {
	var t pgType
	err := c.pool.QueryRow(ctx, typeQuery, oid).Scan(&t.Name, &t.Type, &t.Category, &t.Elem, &t.BaseType)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, diag.Newf(diag.Type, "unsupported postgres type: oid %d", oid)
	}
	if err != nil {
		return t, diag.Wrap(diag.Schema, err, "reading pg_type")
	}
	return t, nil
}

func (c poolCatalog) enumLabels(ctx context.Context, oid uint32) ([]string, error) {
	rows, err := c.pool.Query(ctx, enumQuery, oid)
	if err != nil {
		return nil, diag.Wrap(diag.Schema, err, "reading pg_enum")
	}
	labels, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, diag.Wrap(diag.Schema, err, "reading pg_enum")
	}
	return labels, nil
}
