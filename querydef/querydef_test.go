package querydef

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/query"
	"github.com/Konsultn-Engineering/sqlm/schema"
	"github.com/Konsultn-Engineering/sqlm/shape"
)

const postsYAML = `package: store
enums:
  - name: Role
    db_name: role
    rename_all: snake_case
    variants:
      - User
      - SuperAdmin
      - {name: Guest, label: visitor}
types:
  - name: User
    fields:
      - {name: ID, type: int64}
      - {name: Name, type: "*string"}
      - {name: Role, type: Role, tag: "column:role;default:RoleUser"}
      - {name: Cache, type: string, tag: "-"}
queries:
  - name: ListPosts
    sql: "SELECT * FROM posts WHERE id > {after} AND id < {before}"
    params: [{name: after, type: int64}]
    args: [{name: before, expr: "42"}]
    returns: many
    fields:
      - {name: ID, type: int64}
      - {name: Title, type: string}
  - name: GetUser
    sql: "SELECT id, name, role FROM users WHERE id = {id}"
    params: [{name: id}]
    returns: optional
    type: User
  - name: DeleteUser
    sql: "DELETE FROM users WHERE id = {}"
    args: [{expr: id}]
    params: [{name: id, type: int64}]
    returns: exec
  - name: UserIDs
    sql: "SELECT id FROM users WHERE tags && {}"
    args: [{expr: "tags", type: "[]string"}]
    params: [{name: tags}]
    returns: one
    type: "[]int64"
`

func parse(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse("queries/posts.yaml", []byte(src))
	require.NoError(t, err)
	return f
}

func TestParse(t *testing.T) {
	f := parse(t, postsYAML)

	assert.Equal(t, "store", f.Package)
	require.Len(t, f.Enums, 1)
	assert.Equal(t, []Variant{{Name: "User"}, {Name: "SuperAdmin"}, {Name: "Guest", Label: "visitor"}}, f.Enums[0].Variants)
	require.Len(t, f.Queries, 4)

	q := f.Queries[0]
	assert.Equal(t, "ListPosts", q.Name)
	assert.Equal(t, 18, q.Line)
	assert.Equal(t, 5, q.Column)
	assert.Equal(t, diag.Location{File: "queries/posts.yaml", Line: 18, Column: 5, Name: "ListPosts"}, f.Location(&q))
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("bad.yaml", []byte("queries: [{name: X, variants: {"))
	require.Error(t, err)
	assert.Equal(t, diag.Syntax, diag.KindOf(err))
	assert.Contains(t, err.Error(), "bad.yaml: invalid query definitions")

	_, err = Parse("bad.yaml", []byte("enums: [{name: R, variants: [[a]]}]"))
	assert.ErrorContains(t, err, "expected variant name or mapping")
}

func TestResolve(t *testing.T) {
	res, err := Resolve(parse(t, postsYAML))
	require.NoError(t, err)

	require.Len(t, res.Enums, 1)
	role := res.Enums[0]
	assert.Equal(t, []schema.Variant{
		{Name: "User", Label: "user"},
		{Name: "SuperAdmin", Label: "super_admin"},
		{Name: "Guest", Label: "visitor"},
	}, role.Enum.Variants)
	assert.Equal(t, "role", role.Enum.DBName)

	require.Len(t, res.Records, 2)
	user := res.Records[0]
	require.Len(t, user.Type.Record.Fields, 3)
	assert.Equal(t, schema.Field{Name: "Name", Column: "name", Type: schema.PointerTo(schema.String)}, user.Type.Record.Fields[1])
	roleField := user.Type.Record.Fields[2]
	assert.Equal(t, "role", roleField.Column)
	assert.Equal(t, "RoleUser", roleField.Default)
	assert.True(t, roleField.Type.Equal(role))
	assert.Equal(t, []FieldDef{{Name: "Cache", Type: "string", Tag: "-"}}, user.Skip)
	assert.Equal(t, "PostRow", res.Records[1].Type.Name)

	list := res.Queries[0].Invocation
	assert.Equal(t, shape.Target{Cardinality: shape.Many, Type: res.Records[1].Type}, list.Target)
	assert.Equal(t, []query.Arg{{Name: "before", Expr: "42", Type: schema.UntypedInt}}, list.Args)
	after, ok := list.Scope.Lookup("after")
	require.True(t, ok)
	assert.Equal(t, query.Arg{Name: "after", Expr: "after", Type: schema.Int64}, after)
	assert.Equal(t, 18, list.Location.Line)

	get := res.Queries[1]
	assert.True(t, get.Params[0].Type.IsZero())
	assert.Equal(t, shape.Optional, get.Invocation.Target.Cardinality)

	del := res.Queries[2].Invocation
	assert.Equal(t, shape.Exec, del.Target.Cardinality)
	assert.Equal(t, schema.Int64, del.Args[0].Type)

	ids := res.Queries[3].Invocation
	assert.True(t, ids.Target.Type.Equal(schema.SliceOf(schema.Int64)))
	assert.True(t, ids.Args[0].Type.Equal(schema.SliceOf(schema.String)))
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
		kind diag.Kind
	}{
		{
			name: "unknown type",
			src:  "types: [{name: T, fields: [{name: A, type: Widget}, {name: B, type: int}]}]",
			want: `field T.A: unknown type "Widget"`,
			kind: diag.Type,
		},
		{
			name: "duplicate type",
			src:  "enums: [{name: T, variants: [A]}]\ntypes: [{name: T, fields: [{name: A, type: int}]}]",
			want: `duplicate type "T"`,
			kind: diag.Type,
		},
		{
			name: "bad rename rule",
			src:  "enums: [{name: R, rename_all: shouting, variants: [A]}]",
			want: `invalid case conversion "shouting"`,
			kind: diag.Type,
		},
		{
			name: "bad returns",
			src:  "queries: [{name: Q, sql: SELECT 1, returns: some, type: int64}]",
			want: `invalid result cardinality "some"`,
			kind: diag.Type,
		},
		{
			name: "missing type",
			src:  "queries: [{name: Q, sql: SELECT 1, returns: many}]",
			want: "many query needs a type",
			kind: diag.Type,
		},
		{
			name: "duplicate query",
			src:  "queries: [{name: Q, sql: SELECT 1, type: int64}, {name: Q, sql: SELECT 2, type: int64}]",
			want: `duplicate query "Q"`,
			kind: diag.Binding,
		},
		{
			name: "duplicate param",
			src:  "queries: [{name: Q, sql: SELECT 1, type: int64, params: [{name: a}, {name: a}]}]",
			want: `duplicate param "a"`,
			kind: diag.Binding,
		},
		{
			name: "nested record",
			src:  "types: [{name: A, fields: [{name: X, type: int}]}, {name: B, fields: [{name: A, type: A}]}]",
			want: "record types cannot be nested",
			kind: diag.Type,
		},
		{
			name: "field without name or column",
			src:  "types: [{name: T, fields: [{type: int64}]}]",
			want: "type T: a field needs a name or a column tag",
			kind: diag.Type,
		},
		{
			name: "unexported query",
			src:  "queries: [{name: listPosts, sql: SELECT 1, type: int64}]",
			want: "not an exported Go identifier",
			kind: diag.Binding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(parse(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "queries/posts.yaml:")
			assert.Equal(t, tt.kind, diag.KindOf(err))
		})
	}
}

func TestResolveNamesFieldsFromColumns(t *testing.T) {
	res, err := Resolve(parse(t, `types:
  - name: Account
    fields:
      - {type: int64, tag: user_id}
      - {type: string, tag: "column:api_key"}
      - {type: "*string", tag: created_at}
`))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	tests := []struct {
		name   string
		column string
	}{
		{"UserID", "user_id"},
		{"APIKey", "api_key"},
		{"CreatedAt", "created_at"},
	}
	fields := res.Records[0].Type.Record.Fields
	require.Len(t, fields, len(tests))
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, fields[i].Name)
			assert.Equal(t, tt.column, fields[i].Column)
		})
	}
	assert.Equal(t, "user_id", res.Records[0].Tags["UserID"])
}

func TestRowTypeName(t *testing.T) {
	assert.Equal(t, "PostRow", rowTypeName("ListPosts"))
	assert.Equal(t, "UserRow", rowTypeName("GetUser"))
	assert.Equal(t, "ActiveUserRow", rowTypeName("ActiveUsers"))
	assert.Equal(t, "ListRow", rowTypeName("List"))
}

func TestLoadAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/q/b.yaml", []byte("package: b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/q/a.yaml", []byte("package: a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/q/notes.txt", []byte("-"), 0o644))

	files, err := LoadAll(fs, []string{"/q/*.yaml", "/q/a.yaml"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].Package)
	assert.Equal(t, "b", files[1].Package)
	assert.Equal(t, "/q/a.yaml", files[0].Path)

	_, err = Load(fs, "/q/missing.yaml")
	assert.ErrorContains(t, err, "read query definitions")
}
