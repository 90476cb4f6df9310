package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/diag"
)

// =========================================================================
// Type Mapping
// =========================================================================

func TestMapScalars(t *testing.T) {
	m := NewMapper(dialect.NewPostgresDialect())

	tests := []struct {
		db   string
		want HostType
	}{
		{"text", String},
		{"varchar", String},
		{"int8", Int64},
		{"int4", Int32},
		{"int2", Int16},
		{"float8", Float64},
		{"float4", Float32},
		{"bool", Bool},
		{"bytea", Bytes},
		{"timestamptz", Time},
		{"date", Date},
		{"uuid", UUID},
		{"jsonb", JSON},
		{"numeric", Numeric},
		{"vector", Vector},
	}

	for _, tt := range tests {
		t.Run(tt.db, func(t *testing.T) {
			got, err := m.Map(ScalarType(tt.db))
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestMapVectorRequiresDialectSupport(t *testing.T) {
	_, err := Mapper{}.Map(ScalarType("vector"))
	require.Error(t, err)
	assert.Equal(t, diag.Type, diag.KindOf(err))
}

func TestMapArrays(t *testing.T) {
	m := NewMapper(dialect.NewPostgresDialect())

	got, err := m.Map(ArrayType("_int8", ScalarType("int8")))
	require.NoError(t, err)
	assert.Equal(t, "[]int64", got.String())

	nested := ArrayType("_int8", ArrayType("_int8", ScalarType("int8")))
	_, err = m.Map(nested)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested array")
}

func TestMapEnum(t *testing.T) {
	m := NewMapper(dialect.NewPostgresDialect())

	a, err := m.Map(EnumDescriptor("role", "user", "admin"))
	require.NoError(t, err)
	b, err := m.Map(EnumDescriptor("role", "admin", "user", "admin"))
	require.NoError(t, err)

	assert.Equal(t, KindEnum, a.Kind)
	assert.Equal(t, []string{"admin", "user"}, a.Enum.Witness())
	assert.True(t, a.Equal(b), "variant order must not matter")

	arr, err := m.Map(ArrayType("_role", EnumDescriptor("role", "user", "admin")))
	require.NoError(t, err)
	assert.Equal(t, KindSlice, arr.Kind)
	assert.Equal(t, KindEnum, arr.Elem.Kind)
}

func TestMapUnsupported(t *testing.T) {
	_, err := NewMapper(dialect.NewPostgresDialect()).Map(ScalarType("tsvector"))
	require.Error(t, err)
	assert.EqualError(t, err, "unsupported postgres type: tsvector")
}

// =========================================================================
// Assignability
// =========================================================================

func TestCheck(t *testing.T) {
	role := NewEnum("Role", "role", Variant{"User", "user"}, Variant{"Admin", "admin"})
	dbRole := NewEnum("", "role", Variant{Label: "admin"}, Variant{Label: "user"})
	moderated := NewEnum("Role", "role", Variant{"User", "user"}, Variant{"Moderator", "moderator"})

	tests := []struct {
		name    string
		have    HostType
		want    HostType
		conv    Conversion
		wantErr string
	}{
		{name: "identical", have: Int64, want: Int64, conv: Identity},
		{name: "widen int32", have: Int32, want: Int64, conv: Widen},
		{name: "widen float", have: Float32, want: Float64, conv: Widen},
		{name: "int to int64", have: Int, want: Int64, conv: Widen},
		{name: "no narrowing", have: Int64, want: Int32, wantErr: "int64 is not assignable to int32"},
		{name: "int does not narrow to int32", have: Int, want: Int32, wantErr: "int is not assignable to int32"},
		{name: "untyped int", have: UntypedInt, want: Int32, conv: Constant},
		{name: "untyped int to float", have: UntypedInt, want: Float64, conv: Constant},
		{name: "untyped float to int", have: UntypedFloat, want: Int64, wantErr: "cannot use untyped float as int64"},
		{name: "untyped string to enum", have: UntypedString, want: dbRole, conv: Constant},
		{name: "slice", have: SliceOf(String), want: SliceOf(String), conv: Identity},
		{name: "slice no widening", have: SliceOf(Int32), want: SliceOf(Int64), wantErr: "[]int32 is not assignable to []int64"},
		{name: "vector from slice", have: SliceOf(Float32), want: Vector, conv: Identity},
		{name: "enum by witness", have: dbRole, want: role, conv: Identity},
		{
			name:    "enum variant mismatch",
			have:    dbRole,
			want:    moderated,
			wantErr: "enum role variants [admin user] do not match enum Role variants [moderator user]",
		},
		{
			name:    "enum array into enum",
			have:    SliceOf(dbRole),
			want:    role,
			wantErr: "expected Role, found array of role",
		},
		{name: "text into uuid", have: String, want: UUID, wantErr: "string is not assignable to uuid.UUID"},
		{name: "timestamp into date", have: Time, want: Date, wantErr: "time.Time is not assignable to pgtype.Date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := Check(tt.have, tt.want)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.conv, conv)
		})
	}
}

func TestCheckValue(t *testing.T) {
	dbRole := NewEnum("", "role", Variant{Label: "admin"}, Variant{Label: "user"})

	tests := []struct {
		name    string
		value   any
		want    HostType
		wantErr string
	}{
		{name: "known label", value: "admin", want: dbRole},
		{name: "unknown label", value: "superuser", want: dbRole, wantErr: `"superuser" is not a label of enum role [admin user]`},
		{name: "label is case sensitive", value: "Admin", want: dbRole, wantErr: `"Admin" is not a label of enum role [admin user]`},
		{name: "empty label", value: "", want: dbRole, wantErr: `"" is not a label of enum role [admin user]`},
		{name: "value unknown", value: nil, want: dbRole, wantErr: "a constant for enum role must be a string literal"},
		{name: "scalar ignores value", value: "anything", want: String},
		{name: "int constant", value: nil, want: Int32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckValue(tt.value, tt.want)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHostTypeString(t *testing.T) {
	assert.Equal(t, "[]*uuid.UUID", SliceOf(PointerTo(UUID)).String())
	assert.Equal(t, "no value", Unit().String())
	assert.Equal(t, "enum role", NewEnum("", "role", Variant{Label: "a"}).String())
}

func TestLookupScalar(t *testing.T) {
	for _, name := range []string{"int64", "string", "uuid.UUID", "time.Time", "json.RawMessage", "pgtype.Numeric", "pgtype.Date", "[]byte"} {
		_, ok := LookupScalar(name)
		assert.True(t, ok, name)
	}
	_, ok := LookupScalar("complex128")
	assert.False(t, ok)
}
