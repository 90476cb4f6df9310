package schema

import (
	"encoding/json"
	"net/netip"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTypeMap maps Postgres type names (pg_type.typname) to Go types.
var DBTypeMap = map[string]HostType{
	// Character types
	"text":    String,
	"varchar": String,
	"bpchar":  String,
	"char":    String,
	"name":    String,
	"citext":  String,

	// Integers
	"int2": Int16,
	"int4": Int32,
	"int8": Int64,
	"oid":  Uint32,

	// Floating point
	"float4": Float32,
	"float8": Float64,

	"bool":  Bool,
	"bytea": Bytes,

	// Date and time
	"timestamp":   Time,
	"timestamptz": Time,
	"date":        Date,
	"time":        TimeOfDay,
	"interval":    Interval,

	"uuid":    UUID,
	"json":    JSON,
	"jsonb":   JSON,
	"numeric": Numeric,
	"inet":    Prefix,
	"cidr":    Prefix,
}

// vectorTypes are only mapped when the dialect supports vectors.
var vectorTypes = map[string]HostType{
	"vector": Vector,
}

// reflectTypeMap maps Go types to their host type for reflected targets.
var reflectTypeMap = map[reflect.Type]HostType{
	reflect.TypeOf(""):                String,
	reflect.TypeOf(false):             Bool,
	reflect.TypeOf(int(0)):            Int,
	reflect.TypeOf(int8(0)):           Int8,
	reflect.TypeOf(int16(0)):          Int16,
	reflect.TypeOf(int32(0)):          Int32,
	reflect.TypeOf(int64(0)):          Int64,
	reflect.TypeOf(uint8(0)):          Uint8,
	reflect.TypeOf(uint16(0)):         Uint16,
	reflect.TypeOf(uint32(0)):         Uint32,
	reflect.TypeOf(float32(0)):        Float32,
	reflect.TypeOf(float64(0)):        Float64,
	reflect.TypeOf([]byte(nil)):       Bytes,
	reflect.TypeOf(time.Time{}):       Time,
	reflect.TypeOf(uuid.UUID{}):       UUID,
	reflect.TypeOf(json.RawMessage{}): JSON,
	reflect.TypeOf(pgtype.Numeric{}):  Numeric,
	reflect.TypeOf(pgtype.Interval{}): Interval,
	reflect.TypeOf(pgtype.Time{}):     TimeOfDay,
	reflect.TypeOf(pgtype.Date{}):     Date,
	reflect.TypeOf(netip.Prefix{}):    Prefix,
}

// basicKinds resolves named types such as `type UserID int64` to the
// builtin they are defined over.
var basicKinds = map[reflect.Kind]HostType{
	reflect.String:  String,
	reflect.Bool:    Bool,
	reflect.Int:     Int,
	reflect.Int8:    Int8,
	reflect.Int16:   Int16,
	reflect.Int32:   Int32,
	reflect.Int64:   Int64,
	reflect.Uint8:   Uint8,
	reflect.Uint16:  Uint16,
	reflect.Uint32:  Uint32,
	reflect.Float32: Float32,
	reflect.Float64: Float64,
}

// knownScalars indexes every scalar by its Go spelling, for type
// expressions written in query definition files.
var knownScalars = func() map[string]HostType {
	m := make(map[string]HostType)
	for _, h := range DBTypeMap {
		m[h.String()] = h
	}
	for _, h := range reflectTypeMap {
		m[h.String()] = h
	}
	m["byte"] = Uint8
	return m
}()

// LookupScalar finds a scalar by its Go spelling, e.g. "int64" or "uuid.UUID".
func LookupScalar(name string) (HostType, bool) {
	h, ok := knownScalars[name]
	return h, ok
}
