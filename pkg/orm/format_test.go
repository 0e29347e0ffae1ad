package orm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	var tests = []struct {
		in       string
		want     Format
		errIsNil bool
	}{
		{"sql", FormatSQL, true},
		{"XML", FormatXML, true},
		{"yml", FormatYAML, true},
		{" csv ", FormatCSV, true},
		{"json", 0, false},
	}

	for _, tt := range tests {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if got != tt.want || (err == nil) != tt.errIsNil {
				t.Errorf("\ngot %v %v, wanted %v", got, err, tt.want)
			}
			if err != nil && !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("\ngot %v, wanted %v", err, ErrUnsupportedFormat)
			}
		})
	}
}

func TestReadSQL(t *testing.T) {
	src := "-- dump\nCREATE TABLE `a;b` (`x` INT COMMENT 'semi;colon');\n" +
		"/* block; */ INSERT INTO \"t\" VALUES ('it''s; fine', 'back\\'slash');\n\n"
	stmts, err := readSQL(strings.NewReader(src))
	if err != nil {
		t.Fatalf("\ngot unexpected error: \"%v\"", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("\ngot %d statements, wanted 2: %v", len(stmts), stmts)
	}

	var tests = []struct {
		text  string
		verb  string
		table string
	}{
		{"CREATE TABLE `a;b` (`x` INT COMMENT 'semi;colon')", "CREATE", "a;b"},
		{"INSERT INTO \"t\" VALUES ('it''s; fine', 'back\\'slash')", "INSERT", "t"},
	}
	for i, tt := range tests {
		verb, table := stmts[i].target()
		if stmts[i].text != tt.text || verb != tt.verb || table != tt.table {
			t.Errorf("\ngot %q %s %q, wanted %q %s %q", stmts[i].text, verb, table, tt.text, tt.verb, tt.table)
		}
	}

	if _, err := readSQL(strings.NewReader("INSERT INTO t VALUES ('open);")); !errors.Is(err, ErrMalformedSource) {
		t.Errorf("\ngot %v for an unterminated string, wanted %v", err, ErrMalformedSource)
	}
}

func TestGroupStatements(t *testing.T) {
	stmts, err := readSQL(strings.NewReader(
		"CREATE TABLE a (x INT); COMMENT ON TABLE a IS 'table'; CREATE TABLE IF NOT EXISTS b (y INT);"))
	if err != nil {
		t.Fatalf("\ngot unexpected error: \"%v\"", err)
	}
	groups, err := groupStatements(stmts, "CREATE")
	if err != nil {
		t.Fatalf("\ngot unexpected error: \"%v\"", err)
	}
	if len(groups) != 2 || groups[0].table != "a" || len(groups[0].stmts) != 2 || groups[1].table != "b" {
		t.Errorf("\ngot groups %+v", groups)
	}

	stmts, _ = readSQL(strings.NewReader("COMMENT ON TABLE a IS 'x'; CREATE TABLE a (x INT);"))
	if _, err := groupStatements(stmts, "CREATE"); !errors.Is(err, ErrMalformedSource) {
		t.Errorf("\ngot %v for a comment before its table, wanted %v", err, ErrMalformedSource)
	}
	stmts, _ = readSQL(strings.NewReader("DROP TABLE a;"))
	if _, err := groupStatements(stmts, "INSERT"); !errors.Is(err, ErrMalformedSource) {
		t.Errorf("\ngot %v for a drop, wanted %v", err, ErrMalformedSource)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, f := range []Format{FormatXML, FormatYAML, FormatCSV} {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(f.String(), func(t *testing.T) {
			_, d := newFake(t, usersTable(), postsTable())
			var b strings.Builder
			if err := d.ExportTableSchemas(ctx, &b, f); err != nil {
				t.Fatalf("\nexport: %v", err)
			}
			schemas, err := decodeSchemas(strings.NewReader(b.String()), f)
			if err != nil {
				t.Fatalf("\ndecode: %v\n%s", err, b.String())
			}
			if len(schemas) != 2 {
				t.Fatalf("\ngot %d tables, wanted 2", len(schemas))
			}
			for _, s := range schemas {
				live, err := d.Get(ctx, s.Name)
				if err != nil {
					t.Fatalf("\nget %s: %v", s.Name, err)
				}
				rebuilt, err := buildTable(d, s.Name, s)
				if err != nil {
					t.Fatalf("\nbuild %s: %v", s.Name, err)
				}
				want, _ := d.dialect.CreateTable(live)
				got, err := d.dialect.CreateTable(rebuilt)
				if err != nil || !equalStrings(got, want) {
					t.Errorf("\ngot %q (%v), wanted %q", got, err, want)
				}
			}
		})
	}
}

func TestSQLSchemaExport(t *testing.T) {
	ctx := context.Background()
	_, d := newFake(t, usersTable(), postsTable())
	var b strings.Builder
	if err := d.ExportTableSchemas(ctx, &b, FormatSQL); err != nil {
		t.Fatalf("\nexport: %v", err)
	}
	stmts, err := readSQL(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("\nread: %v", err)
	}
	groups, err := groupStatements(stmts, "CREATE")
	if err != nil || len(groups) != 2 {
		t.Fatalf("\ngot %v %v", groups, err)
	}
	for _, g := range groups {
		live, _ := d.Get(ctx, g.table)
		want, _ := d.dialect.CreateTable(live)
		if got := g.texts(); !equalStrings(got, want) {
			t.Errorf("\ngot %q, wanted %q", got, want)
		}
	}
}

func exportUsers(s *fakeServer) {
	s.on("SELECT * FROM `users`", userColumns,
		row(int64(1), "ann", nil, "active"),
		row(int64(2), "o'neil <b>&\"x\",y", "o@x.io", "active"))
}

func TestDataRoundTrip(t *testing.T) {
	ctx := context.Background()
	want := []map[string]Value{
		{"id": Int(1), "name": Text("ann"), "email": Null(), "status": Text("active")},
		{"id": Int(2), "name": Text("o'neil <b>&\"x\",y"), "email": Text("o@x.io"), "status": Text("active")},
	}
	for _, f := range []Format{FormatXML, FormatYAML, FormatCSV} {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(f.String(), func(t *testing.T) {
			s, _, users := loadUsers(t)
			exportUsers(s)
			out, err := users.DataToString(ctx, f)
			if err != nil {
				t.Fatalf("\nexport: %v", err)
			}
			data, err := decodeData(strings.NewReader(out), f)
			if err != nil {
				t.Fatalf("\ndecode: %v\n%s", err, out)
			}
			td, err := pickData("users", data)
			if err != nil {
				t.Fatalf("\npick: %v", err)
			}
			records, err := td.records(users)
			if err != nil {
				t.Fatalf("\nrecords: %v", err)
			}
			if len(records) != len(want) {
				t.Fatalf("\ngot %d records, wanted %d\n%s", len(records), len(want), out)
			}
			for i, r := range records {
				for field, v := range want[i] {
					if got := r.MustGet(field); !got.Equal(v) {
						t.Errorf("\nrecord %d %s: got %#v, wanted %#v", i, field, got, v)
					}
				}
			}
		})
	}
}

func TestSQLDataExportImport(t *testing.T) {
	fixedBackupName(t)
	ctx := context.Background()
	s, _, users := loadUsers(t)
	exportUsers(s)

	out, err := users.DataToString(ctx, FormatSQL)
	if err != nil {
		t.Fatalf("\nexport: %v", err)
	}
	first := "INSERT INTO `users` (`id`, `name`, `email`, `status`) VALUES (1, 'ann', NULL, 'active')"
	second := "INSERT INTO `users` (`id`, `name`, `email`, `status`) VALUES (2, 'o\\'neil <b>&\"x\",y', 'o@x.io', 'active')"
	if want := first + ";\n" + second + ";\n\n"; out != want {
		t.Fatalf("\ngot %q, wanted %q", out, want)
	}

	if err := users.ImportData(ctx, strings.NewReader(out), FormatSQL); err != nil {
		t.Fatalf("\nimport: %v", err)
	}
	want := []string{
		"CREATE TABLE `users_backup` LIKE `users`",
		"INSERT INTO `users_backup` SELECT * FROM `users`",
		"DELETE FROM `users`",
		"ALTER TABLE `users` AUTO_INCREMENT = 1",
		first,
		second,
		"DROP TABLE `users_backup`",
	}
	if got := s.execs(); !equalStrings(got, want) {
		t.Errorf("\ngot %q, wanted %q", got, want)
	}
}

func TestDatabaseDataExport(t *testing.T) {
	ctx := context.Background()
	s, d := newFake(t, usersTable(), groupsTable())
	s.on("SELECT * FROM `users`", userColumns, row(int64(1), "ann", nil, "active"))
	s.on("SELECT * FROM `groups`", []string{"id", "name"}, row(int64(7), "admins"))

	var b strings.Builder
	if err := d.ExportTableData(ctx, &b, FormatCSV); err != nil {
		t.Fatalf("\nexport: %v", err)
	}
	want := "#table,groups\nid,name\n7,admins\n#table,users\nid,name,email,status\n1,ann,\\N,active\n"
	if b.String() != want {
		t.Errorf("\ngot %q, wanted %q", b.String(), want)
	}
}

func TestDatabaseDataImport(t *testing.T) {
	fixedBackupName(t)
	ctx := context.Background()
	s, d := newFake(t, usersTable(), groupsTable())
	src := "#table,groups\nid,name\n7,admins\n#table,users\nid,name,email,status\n1,ann,\\N,active\n"

	if err := d.ImportTableData(ctx, strings.NewReader(src), FormatCSV); err != nil {
		t.Fatalf("\nimport: %v", err)
	}
	want := []string{
		"CREATE TABLE `groups_backup` LIKE `groups`",
		"INSERT INTO `groups_backup` SELECT * FROM `groups`",
		"DELETE FROM `groups`",
		"ALTER TABLE `groups` AUTO_INCREMENT = 1",
		"INSERT INTO `groups` (`id`, `name`) VALUES (?, ?)",
		"DROP TABLE `groups_backup`",
		"CREATE TABLE `users_backup` LIKE `users`",
		"INSERT INTO `users_backup` SELECT * FROM `users`",
		"DELETE FROM `users`",
		"ALTER TABLE `users` AUTO_INCREMENT = 1",
		"INSERT INTO `users` (`id`, `name`, `email`, `status`) VALUES (?, ?, NULL, ?)",
		"DROP TABLE `users_backup`",
	}
	if got := s.execs(); !equalStrings(got, want) {
		t.Errorf("\ngot %q, wanted %q", got, want)
	}
}

func TestImportNewTableSchema(t *testing.T) {
	ctx := context.Background()
	s, d := newFake(t, usersTable())
	s.onCreate(&fakeTable{name: "tags", engine: "InnoDB", comment: "table", columns: []fakeColumn{
		{name: "id", dataType: "int", columnType: "int(11)", key: "PRI", extra: "auto_increment"},
		{name: "label", dataType: "varchar", columnType: "varchar(40)"},
	}})
	src := `database: shop
tables:
  - name: tags
    properties:
      engine: InnoDB
      comment: table
    columns:
      - name: id
        type: int
        flags: [primary_key, auto_increment]
      - name: label
        type: varchar
        length: "40"
`
	if err := d.ImportTableSchemas(ctx, strings.NewReader(src), FormatYAML); err != nil {
		t.Fatalf("\nimport: %v", err)
	}
	want := []string{"CREATE TABLE `tags` (\n" +
		"  `id` INT NOT NULL AUTO_INCREMENT,\n" +
		"  `label` VARCHAR(40) NOT NULL,\n" +
		"  PRIMARY KEY (`id`)\n" +
		") ENGINE=InnoDB COMMENT='table'"}
	if got := s.execs(); !equalStrings(got, want) {
		t.Errorf("\ngot %q, wanted %q", got, want)
	}
	tags, err := d.Get(ctx, "tags")
	if err != nil || tags.State() != StateUnchanged || tags.PrimaryKey() == nil {
		t.Errorf("\nimported table should be loaded, got %v %v", tags, err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, _, users := loadUsers(t)
	if _, err := users.SchemaToString(Format(99)); !errors.Is(err, ErrUnsupportedFormat) || !errors.Is(err, ErrImportExport) {
		t.Errorf("\ngot %v, wanted %v", err, ErrUnsupportedFormat)
	}
}

func TestCSVNullMarker(t *testing.T) {
	var tests = []struct {
		name    string
		cell    *string
		written string
	}{
		{"null", nil, `\N`},
		{"literal marker", strPtr(`\N`), `\\N`},
		{"escaped marker", strPtr(`\\N`), `\\\N`},
		{"plain n", strPtr("N"), "N"},
		{"other backslash", strPtr(`\n`), `\n`},
	}

	for _, tt := range tests {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(tt.name, func(t *testing.T) {
			in := []tableData{{Name: "notes", Columns: []string{"note"}, Rows: [][]*string{{tt.cell}}}}
			var b strings.Builder
			if err := writeCSVData(&b, in, false); err != nil {
				t.Fatalf("\ngot unexpected error: \"%v\"", err)
			}
			if want := "note\n" + tt.written + "\n"; b.String() != want {
				t.Errorf("\ngot %q, wanted %q", b.String(), want)
			}

			out, err := readCSVData(strings.NewReader(b.String()))
			if err != nil {
				t.Fatalf("\ngot unexpected error: \"%v\"", err)
			}
			if len(out) != 1 || len(out[0].Rows) != 1 {
				t.Fatalf("\ngot %+v, wanted one row", out)
			}
			got := out[0].Rows[0][0]
			switch {
			case tt.cell == nil && got != nil:
				t.Errorf("\ngot %q, wanted NULL", *got)
			case tt.cell != nil && (got == nil || *got != *tt.cell):
				t.Errorf("\ngot %v, wanted %q", got, *tt.cell)
			}
		})
	}
}
