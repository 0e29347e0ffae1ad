package extractors

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/db"
	"github.com/RogWilco/Bedrock-Framework-sub000/internal/introspect"
)

// pgExtractor implements Extractor using pg_catalog + information_schema queries.
type pgExtractor struct{}

const pgTablesQuery = `
        SELECT c.relname, c.relkind = 'v', COALESCE(obj_description(c.oid, 'pg_class'), ''),
               c.reltuples::bigint
        FROM pg_class c
        JOIN pg_namespace n ON n.oid = c.relnamespace
        WHERE n.nspname = current_schema() AND c.relkind IN ('r', 'p', 'v')`

func (pgExtractor) Tables(ctx context.Context, q db.Querier) ([]introspect.TableStatus, error) {
	return pgTableStatus(ctx, q, pgTablesQuery+` ORDER BY c.relname`)
}

// Table returns the status row and full column listing for one PostgreSQL table.
func (pgExtractor) Table(ctx context.Context, q db.Querier, name string) (introspect.Table, error) {
	var t introspect.Table

	st, err := pgTableStatus(ctx, q, pgTablesQuery+` AND c.relname = $1`, name)
	if err != nil {
		return t, err
	}
	if len(st) == 0 {
		return t, fmt.Errorf("%s: %w", name, db.ErrTableNotFound)
	}
	t.Status = st[0]

	cr, err := q.QueryContext(ctx, `
            SELECT c.column_name, c.udt_name, c.character_maximum_length, c.numeric_precision,
                   c.numeric_scale, c.is_nullable = 'YES', c.column_default,
                   COALESCE(c.is_identity, 'NO') = 'YES',
                   COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass::oid,
                                            c.ordinal_position::int), ''),
                   COALESCE(c.collation_name, ''),
                   COALESCE((SELECT string_agg(tc.constraint_type, ',')
                             FROM information_schema.key_column_usage k
                             JOIN information_schema.table_constraints tc
                               ON tc.constraint_name = k.constraint_name
                              AND tc.table_schema = k.table_schema
                              AND tc.table_name = k.table_name
                             WHERE k.table_schema = c.table_schema
                               AND k.table_name = c.table_name
                               AND k.column_name = c.column_name
                               AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')), '')
            FROM information_schema.columns c
            WHERE c.table_schema = current_schema() AND c.table_name = $1
            ORDER BY c.ordinal_position`, name)
	if err != nil {
		return t, fmt.Errorf("query columns for %s: %w", name, err)
	}
	defer cr.Close()

	for cr.Next() {
		var col introspect.Column
		var udt, constraints string
		var charLen, precision, scale sql.NullInt64
		var dflt sql.NullString
		var identity bool
		if err := cr.Scan(&col.Name, &udt, &charLen, &precision, &scale, &col.Nullable, &dflt,
			&identity, &col.Comment, &col.Collation, &constraints); err != nil {
			return t, fmt.Errorf("scan column for %s: %w", name, err)
		}
		col.DataType = pgDataType(udt)
		switch {
		case charLen.Valid:
			col.Length = strconv.FormatInt(charLen.Int64, 10)
		case col.DataType == "decimal" && precision.Valid:
			col.Length = strconv.FormatInt(precision.Int64, 10)
			if scale.Valid {
				col.Length += "," + strconv.FormatInt(scale.Int64, 10)
			}
		}
		switch {
		case strings.Contains(constraints, "PRIMARY KEY"):
			col.Key = "PRI"
		case strings.Contains(constraints, "UNIQUE"):
			col.Key = "UNI"
		}
		col.AutoIncr = identity
		if dflt.Valid {
			if strings.HasPrefix(dflt.String, "nextval(") {
				col.AutoIncr = true
			} else {
				v := pgDefault(dflt.String)
				col.Default = &v
			}
		}
		t.Columns = append(t.Columns, col)
	}
	if err := cr.Err(); err != nil {
		return t, fmt.Errorf("read columns for %s: %w", name, err)
	}
	return t, nil
}

func pgTableStatus(ctx context.Context, q db.Querier, query string, args ...any) ([]introspect.TableStatus, error) {
	tr, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer tr.Close()

	var out []introspect.TableStatus
	for tr.Next() {
		var tab introspect.TableStatus
		var rows sql.NullInt64
		if err := tr.Scan(&tab.Name, &tab.View, &tab.Comment, &rows); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		if rows.Valid && rows.Int64 >= 0 {
			tab.Rows = &rows.Int64
		}
		out = append(out, tab)
	}
	if err := tr.Err(); err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	return out, nil
}

// pgDataType maps a udt_name onto the MySQL-style vocabulary used by the mapper.
func pgDataType(udt string) string {
	switch strings.ToLower(udt) {
	case "int2":
		return "smallint"
	case "int4":
		return "int"
	case "int8":
		return "bigint"
	case "float4":
		return "float"
	case "float8":
		return "double"
	case "numeric":
		return "decimal"
	case "bool":
		return "bool"
	case "bpchar":
		return "char"
	case "bytea":
		return "blob"
	case "timestamp", "timestamptz":
		return "datetime"
	case "time", "timetz":
		return "time"
	default:
		return strings.ToLower(udt)
	}
}

var pgCastDefault = regexp.MustCompile(`^'(.*)'::[a-z ]+(\[\])?$`)

// pgDefault strips the type cast postgres adds to literal defaults
// ('abc'::character varying -> abc).
func pgDefault(d string) string {
	if m := pgCastDefault.FindStringSubmatch(d); m != nil {
		return strings.ReplaceAll(m[1], "''", "'")
	}
	return d
}

func init() {
	db.Register("postgres", pgExtractor{})
	db.Register("postgresql", pgExtractor{})
}
