package orm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// errNoSuchTable is ER_NO_SUCH_TABLE.
const errNoSuchTable = 1146

type mysqlDialect struct{}

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

func quoteMySQLString(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

func quoteBacktick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Quote(ident string) string { return quoteParts(ident, quoteBacktick) }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) Literal(v any) string {
	return literal(v, quoteMySQLString,
		func(b bool) string {
			if b {
				return "1"
			}
			return "0"
		},
		func(b []byte) string { return "X'" + hex.EncodeToString(b) + "'" })
}

func (mysqlDialect) NullSafeEqual() string { return "<=>" }

func (mysqlDialect) Limit(start, count int) string {
	return fmt.Sprintf("LIMIT %d, %d", start, count)
}

func (mysqlDialect) Now() string { return "NOW()" }

func (mysqlDialect) ColumnDefinition(c *Column) (string, error) {
	return c.Definition()
}

func (d mysqlDialect) CreateTable(t *Table) ([]string, error) {
	if len(t.columns) == 0 {
		return nil, fmt.Errorf("%w: %s has no columns", ErrColumnNotFound, t.name)
	}
	var lines []string
	for _, c := range t.columns {
		def, err := c.Definition()
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
			lines = append(lines, "UNIQUE KEY "+d.Quote(c.Name)+" ("+d.Quote(c.Name)+")")
		}
	}
	stmt := "CREATE TABLE " + d.Quote(t.name) + " (\n  " + strings.Join(lines, ",\n  ") + "\n) " +
		strings.Join(tableOptions(t, quoteMySQLString), " ")
	return []string{stmt}, nil
}

func (d mysqlDialect) AlterTable(t *Table) ([]string, error) {
	var clauses []string
	for _, c := range t.columnsToAdd {
		def, err := c.Definition()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		clauses = append(clauses, "ADD COLUMN "+def)
		if c.PrimaryKey {
			clauses = append(clauses, "ADD PRIMARY KEY ("+d.Quote(c.Name)+")")
		}
	}
	for _, ins := range t.columnsToInsert {
		def, err := ins.column.Definition()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ins.column.Name, err)
		}
		pos := " FIRST"
		if ins.after != "" {
			pos = " AFTER " + d.Quote(ins.after)
		}
		clauses = append(clauses, "ADD COLUMN "+def+pos)
	}
	for _, c := range t.columnsToAlter {
		def, err := c.Definition()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		clauses = append(clauses, "MODIFY COLUMN "+def)
	}
	for _, name := range t.columnsToDrop {
		clauses = append(clauses, "DROP COLUMN "+d.Quote(name))
	}
	clauses = append(clauses, tableOptions(t, quoteMySQLString)...)
	return []string{"ALTER TABLE " + d.Quote(t.name) + " " + strings.Join(clauses, ", ")}, nil
}

func (d mysqlDialect) CopyTable(dst, src string) []string {
	return []string{
		"CREATE TABLE " + d.Quote(dst) + " LIKE " + d.Quote(src),
		"INSERT INTO " + d.Quote(dst) + " SELECT * FROM " + d.Quote(src),
	}
}

func (d mysqlDialect) RestoreTable(t *Table, backup string) ([]string, error) {
	return append([]string{d.DropTable(t.name, true)}, d.CopyTable(t.name, backup)...), nil
}

// SyncKeys is empty: MySQL never hands out an AUTO_INCREMENT value below
// the largest stored key.
func (mysqlDialect) SyncKeys(*Table) []string { return nil }

func (d mysqlDialect) DropTable(name string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + d.Quote(name)
	}
	return "DROP TABLE " + d.Quote(name)
}

func (d mysqlDialect) ResetTable(name string) []string {
	return []string{
		"DELETE FROM " + d.Quote(name),
		"ALTER TABLE " + d.Quote(name) + " AUTO_INCREMENT = 1",
	}
}

func (mysqlDialect) Returning(*Column) string { return "" }

func (d mysqlDialect) Call(name string, args []string) string {
	return "CALL " + d.Quote(name) + "(" + strings.Join(args, ", ") + ")"
}

func (mysqlDialect) IsTableNotFound(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errNoSuchTable
}
