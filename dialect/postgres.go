package dialect

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Postgres struct{}

func NewPostgresDialect() Dialect {
	return &Postgres{}
}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (Postgres) Sigil() (rune, bool) {
	return '$', true
}

// RenderValue renders v as a SQL literal. It is only used to preview a
// compiled query with its values inlined; execution always binds parameters.
func (p Postgres) RenderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32, float64:
		return strconv.FormatFloat(reflect.ValueOf(val).Float(), 'f', -1, 64)
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05.999999Z07:00") + "'"
	case uuid.UUID:
		return "'" + val.String() + "'"
	case []byte:
		return `'\x` + hex.EncodeToString(val) + "'"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL"
		}
		return p.RenderValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = p.RenderValue(rv.Index(i).Interface())
		}
		return "ARRAY[" + strings.Join(parts, ", ") + "]"
	case reflect.String:
		return p.RenderValue(rv.String())
	}
	return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
}

func (Postgres) SupportsVector() bool {
	return true
}
