package orm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeServer answers MySQL catalog queries from an in-memory table list,
// serves canned results for other queries and records every statement.
type fakeServer struct {
	mu     sync.Mutex
	tables map[string]*fakeTable
	rules  []fakeRule
	fails  []string
	calls  []fakeCall
	lastID int64

	// pending tables appear in the catalog once created
	pending map[string]*fakeTable
}

type fakeCall struct {
	exec  bool
	query string
	args  []any
}

type fakeRule struct {
	match string
	cols  []string
	rows  [][]driver.Value
}

type fakeTable struct {
	name      string
	view      bool
	engine    string
	collation string
	comment   string
	columns   []fakeColumn
}

type fakeColumn struct {
	name       string
	dataType   string
	columnType string
	nullable   bool
	key        string
	dflt       *string
	extra      string
	comment    string
}

func strPtr(s string) *string { return &s }

// Catalog fixtures shared by the tests.
func usersTable() *fakeTable {
	return &fakeTable{
		name: "users", engine: "InnoDB", collation: "utf8mb4_general_ci",
		comment: "table|mappings:groups(many_many),posts(one_many)",
		columns: []fakeColumn{
			{name: "id", dataType: "int", columnType: "int(10) unsigned", key: "PRI", extra: "auto_increment"},
			{name: "name", dataType: "varchar", columnType: "varchar(255)"},
			{name: "email", dataType: "varchar", columnType: "varchar(255)", nullable: true, key: "UNI"},
			{name: "status", dataType: "varchar", columnType: "varchar(20)", dflt: strPtr("active")},
		},
	}
}

func postsTable() *fakeTable {
	return &fakeTable{
		name: "posts", engine: "InnoDB", collation: "utf8mb4_general_ci",
		comment: "table|mappings:users(many_one)",
		columns: []fakeColumn{
			{name: "id", dataType: "int", columnType: "int(10) unsigned", key: "PRI", extra: "auto_increment"},
			{name: "user_id", dataType: "int", columnType: "int(10) unsigned", nullable: true, key: "MUL", comment: "fk:users"},
			{name: "title", dataType: "varchar", columnType: "varchar(255)"},
			{name: "created", dataType: "datetime", columnType: "datetime", nullable: true},
		},
	}
}

func groupsTable() *fakeTable {
	return &fakeTable{
		name: "groups", engine: "InnoDB", collation: "utf8mb4_general_ci",
		comment: "table|mappings:users(many_many)",
		columns: []fakeColumn{
			{name: "id", dataType: "int", columnType: "int(10) unsigned", key: "PRI", extra: "auto_increment"},
			{name: "name", dataType: "varchar", columnType: "varchar(255)"},
		},
	}
}

// profilesTable holds a one-to-one key to users. Pair it with a users
// fixture whose comment maps profiles(one_one).
func profilesTable() *fakeTable {
	return &fakeTable{
		name: "profiles", engine: "InnoDB", collation: "utf8mb4_general_ci",
		comment: "table|mappings:users(one_one)",
		columns: []fakeColumn{
			{name: "id", dataType: "int", columnType: "int(10) unsigned", key: "PRI", extra: "auto_increment"},
			{name: "user_id", dataType: "int", columnType: "int(10) unsigned", nullable: true, key: "UNI", comment: "fk:users"},
			{name: "bio", dataType: "text", columnType: "text", nullable: true},
		},
	}
}

func junctionTable(name string) *fakeTable {
	return &fakeTable{
		name: name, engine: "InnoDB", collation: "utf8mb4_general_ci", comment: "map",
		columns: []fakeColumn{
			{name: "id_users", dataType: "int", columnType: "int(10) unsigned"},
			{name: "id_groups", dataType: "int", columnType: "int(10) unsigned"},
		},
	}
}

// newFake returns a Database backed by a fakeServer holding tables.
func newFake(t *testing.T, tables ...*fakeTable) (*fakeServer, *Database) {
	t.Helper()
	s := &fakeServer{tables: map[string]*fakeTable{}}
	for _, ft := range tables {
		s.tables[ft.name] = ft
	}
	d, err := New(sql.OpenDB(&fakeConnector{s: s}), "mysql", "shop")
	if err != nil {
		t.Fatalf("\nnew database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return s, d
}

// on serves cols and rows to every query containing match.
func (s *fakeServer) on(match string, cols []string, rows ...[]driver.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, fakeRule{match: match, cols: cols, rows: rows})
}

// failOn makes every statement containing match fail.
func (s *fakeServer) failOn(match string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = append(s.fails, match)
}

// execs returns the statements run through Exec, in order.
func (s *fakeServer) execs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if c.exec {
			out = append(out, c.query)
		}
	}
	return out
}

// queries returns the non-catalog statements run through Query.
func (s *fakeServer) queries() []fakeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fakeCall
	for _, c := range s.calls {
		if !c.exec && !strings.Contains(c.query, "information_schema") {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeServer) record(exec bool, query string, args []driver.NamedValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := fakeCall{exec: exec, query: query}
	for _, a := range args {
		c.args = append(c.args, a.Value)
	}
	s.calls = append(s.calls, c)
	for _, f := range s.fails {
		if strings.Contains(query, f) {
			return fmt.Errorf("fake failure on %q", f)
		}
	}
	return nil
}

func (s *fakeServer) query(query string, args []driver.NamedValue) ([]string, [][]driver.Value, error) {
	if err := s.record(false, query, args); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(query, "information_schema.tables"):
		var names []string
		if strings.Contains(query, "table_name = ?") {
			names = []string{args[0].Value.(string)}
		} else {
			for n := range s.tables {
				names = append(names, n)
			}
			sort.Strings(names)
		}
		var rows [][]driver.Value
		for _, n := range names {
			ft, ok := s.tables[n]
			if !ok {
				continue
			}
			view := int64(0)
			if ft.view {
				view = 1
			}
			rows = append(rows, []driver.Value{ft.name, view, ft.engine, ft.collation, ft.comment, nil, nil})
		}
		return []string{"table_name", "is_view", "engine", "collation", "comment", "auto_increment", "rows"}, rows, nil
	case strings.Contains(query, "information_schema.columns"):
		var rows [][]driver.Value
		if ft, ok := s.tables[args[0].Value.(string)]; ok {
			for _, c := range ft.columns {
				nullable := int64(0)
				if c.nullable {
					nullable = 1
				}
				var dflt driver.Value
				if c.dflt != nil {
					dflt = *c.dflt
				}
				rows = append(rows, []driver.Value{c.name, c.dataType, c.columnType, "", "", nullable, c.key, dflt, c.extra, c.comment})
			}
		}
		return []string{"column_name", "data_type", "column_type", "charset", "collation", "nullable", "column_key",
			"column_default", "extra", "column_comment"}, rows, nil
	}
	for _, r := range s.rules {
		if strings.Contains(query, r.match) {
			return r.cols, r.rows, nil
		}
	}
	return nil, nil, fmt.Errorf("unexpected query %q", query)
}

func (s *fakeServer) exec(query string, args []driver.NamedValue) (driver.Result, error) {
	if err := s.record(true, query, args); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, ft := range s.pending {
		if strings.HasPrefix(query, "CREATE TABLE `"+name+"` (") {
			s.tables[name] = ft
			delete(s.pending, name)
		}
	}
	return fakeResult{lastID: s.lastID}, nil
}

// onCreate adds ft to the catalog when a CREATE TABLE for it runs.
func (s *fakeServer) onCreate(ft *fakeTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = map[string]*fakeTable{}
	}
	s.pending[ft.name] = ft
}

type fakeResult struct{ lastID int64 }

func (r fakeResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeConnector struct{ s *fakeServer }

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) { return &fakeConn{s: c.s}, nil }
func (c *fakeConnector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fakeDriver.Open should not be called; use sql.OpenDB with the connector")
}

type fakeConn struct{ s *fakeServer }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cols, rows, err := c.s.query(query, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{cols: cols, data: rows}, nil
}

func (c *fakeConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return c.s.exec(query, args)
}

type fakeRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *fakeRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}

// row is shorthand for a driver row.
func row(vals ...driver.Value) []driver.Value { return vals }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
