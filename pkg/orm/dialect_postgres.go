package orm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// undefined_table
const pqUndefinedTable = "42P01"

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Quote(ident string) string { return quoteParts(ident, pq.QuoteIdentifier) }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) Literal(v any) string {
	return literal(v, pq.QuoteLiteral,
		func(b bool) string {
			if b {
				return "TRUE"
			}
			return "FALSE"
		},
		func(b []byte) string { return pq.QuoteLiteral(`\x` + hex.EncodeToString(b)) })
}

func (postgresDialect) NullSafeEqual() string { return "IS NOT DISTINCT FROM" }

func (postgresDialect) Limit(start, count int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", count, start)
}

func (postgresDialect) Now() string { return "NOW()" }

func pgType(c *Column) (string, error) {
	switch c.Type {
	case TypeInt:
		auto := c.AutoIncrement()
		switch {
		case c.Size != 0 && c.Size < 1<<16:
			if auto {
				return "SMALLSERIAL", nil
			}
			return "SMALLINT", nil
		case c.Size == 0 || c.Size < 1<<32:
			if auto {
				return "SERIAL", nil
			}
			return "INTEGER", nil
		}
		if auto {
			return "BIGSERIAL", nil
		}
		return "BIGINT", nil
	case TypeFloat:
		return "REAL", nil
	case TypeDouble:
		return "DOUBLE PRECISION", nil
	case TypeDecimal:
		return "NUMERIC(" + orDefault(c.Length, "10,0") + ")", nil
	case TypeBool:
		return "BOOLEAN", nil
	case TypeVarchar:
		return "VARCHAR(" + orDefault(c.Length, "255") + ")", nil
	case TypeText:
		return "TEXT", nil
	case TypeBlob:
		return "BYTEA", nil
	case TypeDate:
		return "DATE", nil
	case TypeTime:
		return "TIME", nil
	case TypeDateTime:
		return "TIMESTAMP", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownType, c.Type)
}

func (d postgresDialect) defaultClause(c *Column) string {
	if c.Default == nil || c.AutoIncrement() {
		return ""
	}
	if c.Type == TypeBool {
		return pq.QuoteLiteral(*c.Default)
	}
	return c.defaultLiteral(pq.QuoteLiteral)
}

func (d postgresDialect) ColumnDefinition(c *Column) (string, error) {
	typ, err := pgType(c)
	if err != nil {
		return "", err
	}
	def := d.Quote(c.Name) + " " + typ
	if c.Nullable {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	if dflt := d.defaultClause(c); dflt != "" {
		def += " DEFAULT " + dflt
	}
	return def, nil
}

func (d postgresDialect) commentOnTable(t *Table) string {
	return "COMMENT ON TABLE " + d.Quote(t.name) + " IS " + pq.QuoteLiteral(t.GetMappingString())
}

func (d postgresDialect) commentOnColumn(table string, c *Column) string {
	comment := "NULL"
	if s := c.Comment(); s != "" {
		comment = pq.QuoteLiteral(s)
	}
	return "COMMENT ON COLUMN " + d.Quote(table+"."+c.Name) + " IS " + comment
}

func (d postgresDialect) CreateTable(t *Table) ([]string, error) {
	if len(t.columns) == 0 {
		return nil, fmt.Errorf("%w: %s has no columns", ErrColumnNotFound, t.name)
	}
	var lines []string
	for _, c := range t.columns {
		def, err := d.ColumnDefinition(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		lines = append(lines, def)
	}
	if t.primaryKey != nil {
		lines = append(lines, "PRIMARY KEY ("+d.Quote(t.primaryKey.Name)+")")
	}
	for _, c := range t.columns {
		if c.Unique && !c.PrimaryKey {
			lines = append(lines, "UNIQUE ("+d.Quote(c.Name)+")")
		}
	}
	stmts := []string{
		"CREATE TABLE " + d.Quote(t.name) + " (\n  " + strings.Join(lines, ",\n  ") + "\n)",
		d.commentOnTable(t),
	}
	for _, c := range t.columns {
		if c.Comment() != "" {
			stmts = append(stmts, d.commentOnColumn(t.name, c))
		}
	}
	return stmts, nil
}

// AlterTable ignores column positions; inserted columns are appended.
func (d postgresDialect) AlterTable(t *Table) ([]string, error) {
	var clauses []string
	var commented []*Column

	added := append([]*Column{}, t.columnsToAdd...)
	for _, ins := range t.columnsToInsert {
		added = append(added, ins.column)
	}
	for _, c := range added {
		def, err := d.ColumnDefinition(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		clauses = append(clauses, "ADD COLUMN "+def)
		if c.PrimaryKey {
			clauses = append(clauses, "ADD PRIMARY KEY ("+d.Quote(c.Name)+")")
		}
		if c.Comment() != "" {
			commented = append(commented, c)
		}
	}
	for _, c := range t.columnsToAlter {
		typ, err := pgType(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		col := d.Quote(c.Name)
		clauses = append(clauses, "ALTER COLUMN "+col+" TYPE "+strings.Replace(typ, "SERIAL", "INT", 1))
		if c.Nullable {
			clauses = append(clauses, "ALTER COLUMN "+col+" DROP NOT NULL")
		} else {
			clauses = append(clauses, "ALTER COLUMN "+col+" SET NOT NULL")
		}
		if dflt := d.defaultClause(c); dflt != "" {
			clauses = append(clauses, "ALTER COLUMN "+col+" SET DEFAULT "+dflt)
		} else if !c.AutoIncrement() {
			clauses = append(clauses, "ALTER COLUMN "+col+" DROP DEFAULT")
		}
		commented = append(commented, c)
	}
	for _, name := range t.columnsToDrop {
		clauses = append(clauses, "DROP COLUMN "+d.Quote(name))
	}

	var stmts []string
	if len(clauses) > 0 {
		stmts = append(stmts, "ALTER TABLE "+d.Quote(t.name)+" "+strings.Join(clauses, ", "))
	}
	stmts = append(stmts, d.commentOnTable(t))
	for _, c := range commented {
		stmts = append(stmts, d.commentOnColumn(t.name, c))
	}
	return stmts, nil
}

// CopyTable leaves out column defaults so the copy never depends on the
// serial sequences of src.
func (d postgresDialect) CopyTable(dst, src string) []string {
	return []string{
		"CREATE TABLE " + d.Quote(dst) + " (LIKE " + d.Quote(src) + " INCLUDING ALL EXCLUDING DEFAULTS)",
		"INSERT INTO " + d.Quote(dst) + " SELECT * FROM " + d.Quote(src),
	}
}

// RestoreTable rebuilds t from its model and moves the serial sequence
// past the restored keys.
func (d postgresDialect) RestoreTable(t *Table, backup string) ([]string, error) {
	create, err := d.CreateTable(t)
	if err != nil {
		return nil, err
	}
	stmts := append([]string{d.DropTable(t.name, true)}, create...)
	stmts = append(stmts, "INSERT INTO "+d.Quote(t.name)+" SELECT * FROM "+d.Quote(backup))
	return append(stmts, d.SyncKeys(t)...), nil
}

func (d postgresDialect) SyncKeys(t *Table) []string {
	pk := t.primaryKey
	if pk == nil || !pk.AutoIncrement() {
		return nil
	}
	return []string{fmt.Sprintf("SELECT setval(pg_get_serial_sequence(%s, %s), COALESCE(MAX(%s), 0) + 1, false) FROM %s",
		pq.QuoteLiteral(t.name), pq.QuoteLiteral(pk.Name), d.Quote(pk.Name), d.Quote(t.name))}
}

func (d postgresDialect) DropTable(name string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + d.Quote(name)
	}
	return "DROP TABLE " + d.Quote(name)
}

func (d postgresDialect) ResetTable(name string) []string {
	return []string{"TRUNCATE TABLE " + d.Quote(name) + " RESTART IDENTITY"}
}

func (d postgresDialect) Returning(pk *Column) string {
	if pk == nil {
		return ""
	}
	return " RETURNING " + d.Quote(pk.Name)
}

func (d postgresDialect) Call(name string, args []string) string {
	return "SELECT * FROM " + d.Quote(name) + "(" + strings.Join(args, ", ") + ")"
}

func (postgresDialect) IsTableNotFound(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && string(pe.Code) == pqUndefinedTable
}
