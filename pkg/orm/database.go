package orm

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/db"
	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
	"github.com/RogWilco/Bedrock-Framework-sub000/pkg/config"

	_ "github.com/RogWilco/Bedrock-Framework-sub000/internal/db/extractors"
)

// Database is a connected schema together with the tables loaded from it.
// It issues one statement at a time and is not safe for concurrent use.
type Database struct {
	conn      *sql.DB
	name      string
	driver    string
	dialect   Dialect
	extractor db.Extractor
	tables    map[string]*Table
}

// Open connects using cfg and waits at most timeoutSec for the server.
func Open(cfg config.DBConfig, timeoutSec int) (*Database, error) {
	driver, dsn, err := config.BuildDriverAndDSN(cfg)
	if err != nil {
		return nil, schemaErr("open", cfg.DatabaseName, err)
	}
	conn, err := db.Connect(driver, dsn, timeoutSec)
	if err != nil {
		return nil, schemaErr("open", cfg.DatabaseName, err)
	}
	d, err := New(conn, driver, config.DatabaseName(cfg))
	if err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("connected to %s database %s", d.driver, d.name)
	return d, nil
}

// New wraps an open connection.
func New(conn *sql.DB, driver, name string) (*Database, error) {
	driver = config.NormalizeDriver(driver)
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, schemaErr("open", name, err)
	}
	extractor, err := db.Lookup(driver)
	if err != nil {
		return nil, schemaErr("open", name, err)
	}
	return &Database{
		conn:      conn,
		name:      name,
		driver:    driver,
		dialect:   dialect,
		extractor: extractor,
		tables:    map[string]*Table{},
	}, nil
}

func (d *Database) Close() error {
	return d.conn.Close()
}

func (d *Database) Name() string { return d.name }

func (d *Database) Driver() string { return d.driver }

func (d *Database) Dialect() Dialect { return d.dialect }

func (d *Database) Conn() *sql.DB { return d.conn }

// Get returns the cached table, loading it on first use.
func (d *Database) Get(ctx context.Context, name string) (*Table, error) {
	if t, ok := d.tables[name]; ok {
		return t, nil
	}
	t := newTable(d, name)
	if err := t.Load(ctx); err != nil {
		return nil, err
	}
	d.tables[name] = t
	return t, nil
}

// Load reloads every table and view in the schema.
func (d *Database) Load(ctx context.Context) error {
	statuses, err := d.extractor.Tables(ctx, d.conn)
	if err != nil {
		return schemaErr("load", d.name, err)
	}
	tables := make(map[string]*Table, len(statuses))
	for _, st := range statuses {
		t, ok := d.tables[st.Name]
		if !ok {
			t = newTable(d, st.Name)
		}
		if err := t.Load(ctx); err != nil {
			return err
		}
		tables[st.Name] = t
	}
	d.tables = tables
	logger.Info("loaded %d tables from %s", len(tables), d.name)
	return nil
}

// Tables returns the cached tables sorted by name.
func (d *Database) Tables() []*Table {
	out := make([]*Table, 0, len(d.tables))
	for _, t := range d.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// NewTable returns an empty table model. It is cached once saved.
func (d *Database) NewTable(name string) *Table {
	return newTable(d, name)
}

// Forget drops a table from the cache.
func (d *Database) Forget(name string) {
	delete(d.tables, name)
}

// MappingTableName finds the junction table linking a and b: the one
// table whose comment marks it as a map and whose name contains both.
// Leftover backup tables are ignored.
func (d *Database) MappingTableName(ctx context.Context, a, b string) (string, error) {
	statuses, err := d.extractor.Tables(ctx, d.conn)
	if err != nil {
		return "", queryErr("mapping table", a, err)
	}
	var found []string
	for _, st := range statuses {
		if kind, _ := DecodeTableComment(st.Comment); kind != KindJunction || st.View || isBackupTable(st.Name) {
			continue
		}
		if strings.Contains(st.Name, a) && strings.Contains(st.Name, b) {
			found = append(found, st.Name)
		}
	}
	switch len(found) {
	case 0:
		return "", queryErr("mapping table", a, fmt.Errorf("%w: no junction table for %s and %s", ErrMappingNotFound, a, b))
	case 1:
		return found[0], nil
	}
	return "", queryErr("mapping table", a, fmt.Errorf("%w: %s", ErrAmbiguousMapping, strings.Join(found, ", ")))
}

// AssociatedTableNames lists every table whose mappings mention table,
// together with the relation they record.
func (d *Database) AssociatedTableNames(ctx context.Context, table string) (map[string]RelationType, error) {
	statuses, err := d.extractor.Tables(ctx, d.conn)
	if err != nil {
		return nil, queryErr("associated tables", table, err)
	}
	out := map[string]RelationType{}
	for _, st := range statuses {
		kind, m := DecodeTableComment(st.Comment)
		if kind == KindJunction || st.View || st.Name == table || isBackupTable(st.Name) {
			continue
		}
		if rel, ok := m[table]; ok {
			out[st.Name] = rel
		}
	}
	return out, nil
}

func (d *Database) execAll(ctx context.Context, stmts []string) error {
	for _, s := range stmts {
		if _, err := d.exec(ctx, s, nil); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	logger.Debug("exec: %s %v", query, args)
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", firstLine(query), err)
	}
	return res, nil
}

func (d *Database) query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	logger.Debug("query: %s %v", query, args)
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", firstLine(query), err)
	}
	return rows, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
