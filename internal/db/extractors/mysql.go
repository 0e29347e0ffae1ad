package extractors

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/db"
	"github.com/RogWilco/Bedrock-Framework-sub000/internal/introspect"
)

// myExtractor implements Extractor for MySQL (information_schema).
type myExtractor struct{}

const myTablesQuery = `
        SELECT table_name, table_type = 'VIEW', COALESCE(engine, ''), COALESCE(table_collation, ''),
               COALESCE(table_comment, ''), auto_increment, table_rows
        FROM information_schema.tables
        WHERE table_schema = DATABASE()`

func (myExtractor) Tables(ctx context.Context, q db.Querier) ([]introspect.TableStatus, error) {
	return myTableStatus(ctx, q, myTablesQuery+` ORDER BY table_name`)
}

// Table returns the status row and full column listing for one MySQL table.
func (myExtractor) Table(ctx context.Context, q db.Querier, name string) (introspect.Table, error) {
	var t introspect.Table

	st, err := myTableStatus(ctx, q, myTablesQuery+` AND table_name = ?`, name)
	if err != nil {
		return t, err
	}
	if len(st) == 0 {
		return t, fmt.Errorf("%s: %w", name, db.ErrTableNotFound)
	}
	t.Status = st[0]

	cr, err := q.QueryContext(ctx, `
            SELECT column_name, data_type, column_type, COALESCE(character_set_name, ''),
                   COALESCE(collation_name, ''), is_nullable = 'YES', column_key, column_default,
                   extra, column_comment
            FROM information_schema.columns
            WHERE table_schema = DATABASE() AND table_name = ?
            ORDER BY ordinal_position`, name)
	if err != nil {
		return t, fmt.Errorf("query columns for %s: %w", name, err)
	}
	defer cr.Close()

	for cr.Next() {
		var col introspect.Column
		var columnType, extra string
		var dflt sql.NullString
		if err := cr.Scan(&col.Name, &col.DataType, &columnType, &col.Charset, &col.Collation,
			&col.Nullable, &col.Key, &dflt, &extra, &col.Comment); err != nil {
			return t, fmt.Errorf("scan column for %s: %w", name, err)
		}
		col.DataType = strings.ToLower(col.DataType)
		col.Length, col.Unsigned, col.Zerofill = parseColumnType(columnType)
		col.AutoIncr = strings.Contains(strings.ToLower(extra), "auto_increment")
		if dflt.Valid {
			v := dflt.String
			col.Default = &v
		}
		t.Columns = append(t.Columns, col)
	}
	if err := cr.Err(); err != nil {
		return t, fmt.Errorf("read columns for %s: %w", name, err)
	}
	return t, nil
}

func myTableStatus(ctx context.Context, q db.Querier, query string, args ...any) ([]introspect.TableStatus, error) {
	tr, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer tr.Close()

	var out []introspect.TableStatus
	for tr.Next() {
		var tab introspect.TableStatus
		var autoInc, rows sql.NullInt64
		if err := tr.Scan(&tab.Name, &tab.View, &tab.Engine, &tab.Collation, &tab.Comment, &autoInc, &rows); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		if tab.View {
			// MySQL reports the literal comment "VIEW" for views
			tab.Comment = ""
		}
		if autoInc.Valid {
			tab.AutoIncrement = &autoInc.Int64
		}
		if rows.Valid {
			tab.Rows = &rows.Int64
		}
		out = append(out, tab)
	}
	if err := tr.Err(); err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	return out, nil
}

// parseColumnType splits a MySQL column_type such as "int(10) unsigned zerofill"
// into its length and flags.
func parseColumnType(ct string) (length string, unsigned, zerofill bool) {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if open := strings.IndexByte(ct, '('); open >= 0 {
		if end := strings.LastIndexByte(ct, ')'); end > open {
			length = ct[open+1 : end]
			ct = ct[:open] + ct[end+1:]
		}
	}
	for _, f := range strings.Fields(ct) {
		switch f {
		case "unsigned":
			unsigned = true
		case "zerofill":
			zerofill = true
		}
	}
	return length, unsigned, zerofill
}

func init() {
	db.Register("mysql", myExtractor{})
	db.Register("mariadb", myExtractor{})
}
