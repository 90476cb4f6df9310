package codegen

import (
	"context"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/sqlm/compiler"
	"github.com/Konsultn-Engineering/sqlm/diag"
	"github.com/Konsultn-Engineering/sqlm/introspect"
	"github.com/Konsultn-Engineering/sqlm/plan"
	"github.com/Konsultn-Engineering/sqlm/querydef"
	"github.com/Konsultn-Engineering/sqlm/schema"
)

const defs = `package: store
enums:
  - name: Role
    db_name: role
    rename_all: snake_case
    variants: [User, SuperAdmin, {name: Guest, label: visitor}]
types:
  - name: User
    any_columns: true
    fields:
      - {name: ID, type: int64}
      - {name: Name, type: "*string"}
      - {name: Role, type: Role, tag: "column:role;default:RoleUser"}
      - {name: Nickname, type: "*string", tag: "default:\"anon\""}
queries:
  - name: ListPosts
    doc: ListPosts pages through posts by id.
    sql: "SELECT id, title FROM posts WHERE id > {after} AND id < {before}"
    params: [{name: after, type: int64}]
    args: [{name: before, expr: "42"}]
    returns: many
    fields:
      - {name: ID, type: int64}
      - {name: Title, type: string}
  - name: GetUser
    sql: "SELECT id, name, role, extra FROM users WHERE id = {id}"
    params: [{name: id}]
    returns: optional
    type: User
  - name: DeleteUser
    sql: "DELETE FROM users WHERE id = {id}"
    params: [{name: id, type: int64}]
    returns: exec
  - name: CountUsers
    sql: "SELECT count(*) FROM users"
    type: int64
`

func col(name string, t schema.TypeDescriptor, ordinal int) schema.Column {
	return schema.Column{Name: name, Type: t, Ordinal: ordinal}
}

var (
	int8Type = schema.ScalarType("int8")
	textType = schema.ScalarType("text")
	roleType = schema.EnumDescriptor("role", "user", "super_admin", "visitor")
)

var statements = map[string]*introspect.Description{
	"SELECT id, title FROM posts WHERE id > $1 AND id < $2": {
		Params:  []schema.TypeDescriptor{int8Type, int8Type},
		Columns: []schema.Column{col("id", int8Type, 0), col("title", textType, 1)},
	},
	"SELECT id, name, role, extra FROM users WHERE id = $1": {
		Params: []schema.TypeDescriptor{int8Type},
		Columns: []schema.Column{
			col("id", int8Type, 0), col("name", textType, 1), col("role", roleType, 2), col("extra", textType, 3),
		},
	},
	"DELETE FROM users WHERE id = $1": {
		Params: []schema.TypeDescriptor{int8Type},
	},
	"SELECT count(*) FROM users": {
		Columns: []schema.Column{col("count", int8Type, 0)},
	},
	"SELECT count(*) FROM users WHERE role = $1": {
		Params:  []schema.TypeDescriptor{roleType},
		Columns: []schema.Column{col("count", int8Type, 0)},
	},
	"SELECT name FROM users WHERE id = $1": {
		Params:  []schema.TypeDescriptor{int8Type},
		Columns: []schema.Column{col("name", textType, 0)},
	},
}

func compile(t *testing.T, src string) (*querydef.Resolved, []*plan.Plan) {
	t.Helper()
	f, err := querydef.Parse("queries/users.yaml", []byte(src))
	require.NoError(t, err)
	res, err := querydef.Resolve(f)
	require.NoError(t, err)

	oracle := introspect.OracleFunc(func(_ context.Context, sql string) (*introspect.Description, error) {
		if d, ok := statements[sql]; ok {
			return d, nil
		}
		return nil, diag.Newf(diag.Schema, "unexpected statement %q", sql)
	})
	invs := make([]compiler.Invocation, len(res.Queries))
	for i, q := range res.Queries {
		invs[i] = q.Invocation
	}
	plans, err := compiler.New(compiler.WithOracle(oracle)).CompileAll(context.Background(), invs)
	require.NoError(t, err)
	return res, plans
}

func TestGenerate(t *testing.T) {
	// User is any_columns, so the extra column is scanned into nil.
	res, plans := compile(t, defs)

	out, err := Generate(res, plans, Options{})
	require.NoError(t, err)
	code := string(out)

	_, err = parser.ParseFile(token.NewFileSet(), "users.sqlm.go", out, parser.AllErrors)
	require.NoError(t, err, code)

	for _, want := range []string{
		"// Code generated by sqlm. DO NOT EDIT.",
		"// source: queries/users.yaml",
		"package store",
		"// Role mirrors the database enum role.",
		"type Role string",
		`func (Role) EnumLabels() []string {`,
		`return []string{"user", "super_admin", "visitor"}`,
		"type User struct {",
		"type PostRow struct {",

		`const ListPostsSQL = "SELECT id, title FROM posts WHERE id > $1 AND id < $2"`,
		"// ListPosts pages through posts by id.",
		"func ListPosts(ctx context.Context, db database.Querier, after int64) ([]PostRow, error) {",
		"rows, err := db.Query(ctx, ListPostsSQL, after, int64(42))",
		"defer rows.Close()",
		"if err := rows.Scan(&r.ID, &r.Title); err != nil {",
		"out = append(out, r)",

		"func GetUser(ctx context.Context, db database.Querier, id int64) (*User, error) {",
		"var vRole *Role",
		"if err := rows.Scan(&r.ID, &r.Name, &vRole, nil); err != nil {",
		"r.Role = *vRole",
		"r.Role = Role(RoleUser)",
		`dNickname := string("anon")`,
		"r.Nickname = &dNickname",
		"return &r, rows.Err()",

		"func DeleteUser(ctx context.Context, db database.Querier, id int64) (pgconn.CommandTag, error) {",
		"return db.Exec(ctx, DeleteUserSQL, id)",

		"func CountUsers(ctx context.Context, db database.Querier) (int64, error) {",
		"if err := db.QueryRow(ctx, CountUsersSQL).Scan(&r); err != nil {",
		"return r, database.NotFound(err)",
	} {
		assert.Contains(t, code, want)
	}
}

const extraDefs = `package: store
queries:
  - name: CountAdmins
    sql: "SELECT count(*) FROM users WHERE role = {role}"
    args: [{name: role, expr: '"super_admin"'}]
    type: int64
  - name: FindName
    sql: "SELECT name FROM users WHERE id = {id}"
    params: [{name: id, type: int64}]
    returns: optional
    type: "*string"
`

func TestGenerateQueryVariants(t *testing.T) {
	res, plans := compile(t, extraDefs)

	out, err := Generate(res, plans, Options{})
	require.NoError(t, err)
	code := string(out)

	_, err = parser.ParseFile(token.NewFileSet(), "users.sqlm.go", out, parser.AllErrors)
	require.NoError(t, err, code)

	tests := []struct {
		name string
		want []string
	}{
		{
			name: "enum label constant",
			want: []string{
				"func CountAdmins(ctx context.Context, db database.Querier) (int64, error) {",
				`db.QueryRow(ctx, CountAdminsSQL, "super_admin").Scan(&r)`,
			},
		},
		{
			name: "optional pointer scalar",
			want: []string{
				"func FindName(ctx context.Context, db database.Querier, id int64) (*string, error) {",
				"var r *string",
				"return r, rows.Err()",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				assert.Contains(t, code, want)
			}
		})
	}
	assert.NotContains(t, code, "**string")
}

func TestGenerateRejectsUnknownEnumLabel(t *testing.T) {
	f, err := querydef.Parse("queries/users.yaml", []byte(strings.Replace(extraDefs, `"super_admin"`, `"superuser"`, 1)))
	require.NoError(t, err)
	res, err := querydef.Resolve(f)
	require.NoError(t, err)

	oracle := introspect.OracleFunc(func(_ context.Context, sql string) (*introspect.Description, error) {
		return statements[sql], nil
	})
	_, err = compiler.New(compiler.WithOracle(oracle)).Compile(context.Background(), res.Queries[0].Invocation)
	require.Error(t, err)
	assert.Equal(t, diag.Type, diag.KindOf(err))
	assert.ErrorContains(t, err, "query CountAdmins")
	assert.ErrorContains(t, err, `"superuser" is not a label of enum role [super_admin user visitor]`)
}

func TestGenerateErrors(t *testing.T) {
	res, plans := compile(t, defs)

	_, err := Generate(res, plans[:1], Options{})
	assert.ErrorContains(t, err, "1 plans for 4 queries")

	broken := append([]*plan.Plan(nil), plans...)
	broken[2] = nil
	_, err = Generate(res, broken, Options{})
	assert.ErrorContains(t, err, "query DeleteUser was not compiled")

	res.File.Package = ""
	_, err = Generate(res, plans, Options{})
	assert.ErrorContains(t, err, "no package name")

	out, err := Generate(res, plans, Options{Package: "fallback"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "package fallback")
}

func TestParamTypeUnused(t *testing.T) {
	p := &plan.Plan{}
	_, err := paramType(querydef.Param{Name: "ghost"}, p)
	assert.EqualError(t, err, "param ghost has no type and the template does not use it")
}

func TestTypeCode(t *testing.T) {
	tests := []struct {
		in   schema.HostType
		want string
	}{
		{schema.Int64, "int64"},
		{schema.PointerTo(schema.String), "*string"},
		{schema.SliceOf(schema.Int32), "[]int32"},
		{schema.Bytes, "[]byte"},
		{schema.Vector, "[]float32"},
		{schema.UUID, "uuid.UUID"},
		{schema.SliceOf(schema.Time), "[]time.Time"},
		{schema.UntypedFloat, "float64"},
		{schema.NewEnum("", "mood", schema.Variant{Name: "ok", Label: "ok"}), "string"},
		{schema.NewEnum("Mood", "mood"), "Mood"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, typeCode(tt.in).GoString())
		})
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "posts.sqlm.go", OutputName("queries/posts.yaml"))
	assert.Equal(t, "users.sqlm.go", OutputName("users.yml"))
}
