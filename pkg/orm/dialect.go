package orm

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/RogWilco/Bedrock-Framework-sub000/pkg/config"
)

// Dialect renders the engine-specific SQL used by tables, queries and
// records.
type Dialect interface {
	Name() string

	// Quote quotes an identifier. Dotted names are quoted per part.
	Quote(ident string) string
	Placeholder(n int) string
	Literal(v any) string
	NullSafeEqual() string
	Limit(start, count int) string
	Now() string

	ColumnDefinition(c *Column) (string, error)
	CreateTable(t *Table) ([]string, error)
	AlterTable(t *Table) ([]string, error)
	// CopyTable copies structure and rows of src into a new table dst.
	CopyTable(dst, src string) []string
	// RestoreTable recreates t with the rows of backup.
	RestoreTable(t *Table, backup string) ([]string, error)
	DropTable(name string, ifExists bool) string
	ResetTable(name string) []string
	// SyncKeys moves the key generator of t past the stored keys.
	SyncKeys(t *Table) []string
	Returning(pk *Column) string
	Call(name string, args []string) string

	IsTableNotFound(err error) bool
}

var dialectsByDriver = map[string]Dialect{
	"mysql":    mysqlDialect{},
	"postgres": postgresDialect{},
}

// DialectFor returns the Dialect for a driver name or alias.
func DialectFor(driver string) (Dialect, error) {
	d, ok := dialectsByDriver[config.NormalizeDriver(driver)]
	if !ok {
		return nil, fmt.Errorf("no dialect for driver %q", driver)
	}
	return d, nil
}

// binder collects bound arguments while a statement is rendered. With
// inline set it writes literals instead of placeholders.
type binder struct {
	d      Dialect
	inline bool
	args   []any
}

func (b *binder) bind(v any) string {
	if b.inline {
		return b.d.Literal(v)
	}
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// bindList binds every element of a slice value.
func (b *binder) bindList(list []any) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = b.bind(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// listValue returns the elements of v when v is a slice other than []byte.
func listValue(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = driverArg(rv.Index(i).Interface())
	}
	return out, true
}

// driverArg converts v into a value database/sql accepts.
func driverArg(v any) any {
	switch x := v.(type) {
	case Value:
		return x.Any()
	case *Value:
		if x == nil {
			return nil
		}
		return x.Any()
	}
	return ValueOf(v).Any()
}

// literal renders v as SQL text; quote handles strings.
func literal(v any, quote func(string) string, boolean func(bool) string, bytes func([]byte) string) string {
	switch x := driverArg(v).(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return boolean(x)
	case []byte:
		return bytes(x)
	case time.Time:
		return quote(x.Format(DateTimeLayout))
	case string:
		return quote(x)
	default:
		return quote(fmt.Sprint(x))
	}
}

func quoteParts(ident string, quote func(string) string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// tableOptions lists the property assignments appended to CREATE and ALTER.
func tableOptions(t *Table, quote func(string) string) []string {
	var opts []string
	if v := t.properties[PropEngine]; v != "" {
		opts = append(opts, "ENGINE="+v)
	}
	if v := t.properties[PropCharset]; v != "" {
		opts = append(opts, "DEFAULT CHARSET="+v)
	}
	if v := t.properties[PropCollation]; v != "" {
		opts = append(opts, "COLLATE="+v)
	}
	opts = append(opts, "COMMENT="+quote(t.GetMappingString()))
	return opts
}
