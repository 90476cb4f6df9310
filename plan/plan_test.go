package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/introspect"
	"github.com/Konsultn-Engineering/sqlm/query"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/shape"
	"github.com/Konsultn-Engineering/sqlm/template"
)

var (
	pg     = dialect.NewPostgresDialect()
	mapper = schema.NewMapper(pg)
)

func bound(t *testing.T, src string, args ...query.Arg) *query.Bound {
	t.Helper()
	tokens, err := template.Parse(src, template.WithSigil('$'))
	require.NoError(t, err)
	pools, err := query.NewArgs(nil, args...)
	require.NoError(t, err)
	b, err := query.Bind(tokens, pools, pg)
	require.NoError(t, err)
	return b
}

func TestEmit(t *testing.T) {
	b := bound(t, "SELECT * FROM posts WHERE id > {} AND title = {title} AND id < {0} + 42",
		query.Arg{Value: int32(8), Type: schema.Int32, Expr: "after"},
		query.Arg{Name: "title", Value: "hello", Type: schema.UntypedString, Expr: `"hello"`},
	)
	desc := &introspect.Description{Params: []schema.TypeDescriptor{
		schema.ScalarType("int8"),
		schema.ScalarType("text"),
	}}

	p, err := Emit(b, desc, &shape.Shape{Kind: shape.None}, shape.Target{Cardinality: shape.Exec}, mapper)
	require.NoError(t, err)

	want := []Param{
		{
			Index:      1,
			Source:     query.Source{Kind: query.FromUnnamed},
			Expr:       "after",
			Value:      int32(8),
			Declared:   schema.Int32,
			Obligation: schema.Int64,
			DBType:     schema.ScalarType("int8"),
			Conversion: schema.Widen,
		},
		{
			Index:      2,
			Source:     query.Source{Kind: query.FromNamed, Name: "title"},
			Expr:       `"hello"`,
			Value:      "hello",
			Declared:   schema.UntypedString,
			Obligation: schema.String,
			DBType:     schema.ScalarType("text"),
			Conversion: schema.Constant,
		},
	}
	if diff := cmp.Diff(want, p.Params, cmpopts.IgnoreFields(Param{}, "Span")); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "SELECT * FROM posts WHERE id > $1 AND title = $2 AND id < $1 + 42", p.Text)
	assert.Equal(t, []any{int32(8), "hello"}, p.Args())
	assert.True(t, p.Checked)
}

func TestEmitInfersUndeclared(t *testing.T) {
	b := bound(t, "SELECT {}", query.Arg{Expr: "id"})
	desc := &introspect.Description{Params: []schema.TypeDescriptor{schema.ScalarType("uuid")}}

	p, err := Emit(b, desc, nil, shape.Target{}, mapper)
	require.NoError(t, err)
	assert.True(t, p.Params[0].Declared.Equal(schema.UUID))
}

func TestEmitPointerBindsNull(t *testing.T) {
	b := bound(t, "SELECT {}", query.Arg{Type: schema.PointerTo(schema.String)})
	desc := &introspect.Description{Params: []schema.TypeDescriptor{schema.ScalarType("text")}}

	_, err := Emit(b, desc, nil, shape.Target{}, mapper)
	assert.NoError(t, err)
}

func TestEmitMismatch(t *testing.T) {
	b := bound(t, "SELECT * FROM posts WHERE id = {id}", query.Arg{Name: "id", Type: schema.String})
	desc := &introspect.Description{Params: []schema.TypeDescriptor{schema.ScalarType("int8")}}

	_, err := Emit(b, desc, nil, shape.Target{}, mapper)
	require.Error(t, err)
	assert.Equal(t, diag.Type, diag.KindOf(err))

	var d *diag.Error
	require.ErrorAs(t, err, &d)
	assert.Equal(t, "argument id of type string does not satisfy parameter $1 of type int8 (int64)", d.Msg)
	assert.Equal(t, &diag.Span{Start: 31, End: 35}, d.Span)
}

func TestEmitEnumParameter(t *testing.T) {
	role := schema.NewEnum("Role", "", schema.Variant{Name: "User", Label: "user"}, schema.Variant{Name: "Admin", Label: "admin"})
	desc := &introspect.Description{Params: []schema.TypeDescriptor{schema.EnumDescriptor("role", "user", "admin")}}

	_, err := Emit(bound(t, "SELECT {}", query.Arg{Type: role}), desc, nil, shape.Target{}, mapper)
	assert.NoError(t, err)

	other := schema.NewEnum("Role", "", schema.Variant{Name: "User", Label: "user"})
	_, err = Emit(bound(t, "SELECT {}", query.Arg{Type: other}), desc, nil, shape.Target{}, mapper)
	assert.ErrorContains(t, err, "do not match enum role variants [admin user]")
}

func TestEmitEnumConstant(t *testing.T) {
	desc := &introspect.Description{Params: []schema.TypeDescriptor{schema.EnumDescriptor("role", "user", "admin")}}

	tests := []struct {
		name    string
		arg     query.Arg
		wantErr string
	}{
		{
			name: "known label",
			arg:  query.Arg{Name: "role", Expr: `"admin"`, Value: "admin", Type: schema.UntypedString},
		},
		{
			name:    "unknown label",
			arg:     query.Arg{Name: "role", Expr: `"superuser"`, Value: "superuser", Type: schema.UntypedString},
			wantErr: `argument role does not satisfy parameter $1 of type role: "superuser" is not a label of enum role [admin user]`,
		},
		{
			name:    "value not known",
			arg:     query.Arg{Name: "role", Expr: "label", Type: schema.UntypedString},
			wantErr: "argument role does not satisfy parameter $1 of type role: a constant for enum role must be a string literal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Emit(bound(t, "SELECT {role}", tt.arg), desc, nil, shape.Target{}, mapper)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, schema.Constant, p.Params[0].Conversion)
				return
			}
			require.Error(t, err)
			assert.Equal(t, diag.Type, diag.KindOf(err))

			var d *diag.Error
			require.ErrorAs(t, err, &d)
			assert.Equal(t, tt.wantErr, d.Message())
			assert.Equal(t, &diag.Span{Start: 7, End: 13}, d.Span)
		})
	}
}

func TestEmitParamCountMismatch(t *testing.T) {
	b := bound(t, "SELECT {}", query.Arg{Type: schema.Int64})
	_, err := Emit(b, &introspect.Description{}, nil, shape.Target{}, mapper)
	require.Error(t, err)
	assert.Equal(t, diag.Schema, diag.KindOf(err))
}

func TestEmitUnchecked(t *testing.T) {
	b := bound(t, "SELECT {}, {}", query.Arg{Type: schema.UntypedInt}, query.Arg{Type: schema.UUID})
	p, err := Emit(b, nil, nil, shape.Target{}, mapper)
	require.NoError(t, err)
	assert.False(t, p.Checked)
	assert.True(t, p.Params[0].Obligation.Equal(schema.Int64))
	assert.Equal(t, schema.Constant, p.Params[0].Conversion)
	assert.True(t, p.Params[1].Obligation.Equal(schema.UUID))

	_, err = Emit(bound(t, "SELECT {}", query.Arg{Expr: "x"}), nil, nil, shape.Target{}, mapper)
	assert.ErrorContains(t, err, "argument 0 has no declared type")
}
