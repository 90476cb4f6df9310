// Package introspect asks a schema oracle for the parameter and result
// column types of rewritten query text.
package introspect

import (
	"context"

	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/utils"
)

// Oracle describes prepared statements. Implementations must be safe for
// concurrent use by many compile tasks.
type Oracle interface {
	Describe(ctx context.Context, sql string) (*Description, error)
}

// Description is what the oracle reports for one statement.
type Description struct {
	Params  []schema.TypeDescriptor `yaml:"params,omitempty"`
	Columns []schema.Column         `yaml:"columns,omitempty"`
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, sql string) (*Description, error)

func (f OracleFunc) Describe(ctx context.Context, sql string) (*Description, error) {
	return f(ctx, sql)
}

// Fingerprint is the snapshot key of a query text.
func Fingerprint(dialect, sql string) string {
	return utils.Hex(utils.FingerprintQuery(dialect, sql))
}
