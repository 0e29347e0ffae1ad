package orm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format is an import/export serialization.
type Format int

const (
	FormatSQL Format = iota + 1
	FormatXML
	FormatYAML
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatSQL:
		return "sql"
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	case FormatCSV:
		return "csv"
	}
	return "unknown"
}

// ParseFormat reads a format name; "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sql":
		return FormatSQL, nil
	case "xml":
		return FormatXML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Column flags written by the text formats.
const (
	flagNullable   = "nullable"
	flagUnique     = "unique"
	flagPrimaryKey = "primary_key"
)

// tableSchema is the format-neutral description of a table definition.
type tableSchema struct {
	Name       string            `yaml:"name"`
	Properties map[string]string `yaml:"properties,omitempty"`
	Columns    []columnSchema    `yaml:"columns"`
}

type columnSchema struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	Length         string   `yaml:"length,omitempty"`
	Size           uint64   `yaml:"size,omitempty"`
	Default        *string  `yaml:"default,omitempty"`
	Flags          []string `yaml:"flags,omitempty"`
	ForeignKey     string   `yaml:"foreign_key,omitempty"`
	ForeignKeyType string   `yaml:"foreign_key_type,omitempty"`
	Charset        string   `yaml:"charset,omitempty"`
	Collation      string   `yaml:"collation,omitempty"`
	Comment        string   `yaml:"comment,omitempty"`
}

// tableData is the format-neutral form of a table's rows. A nil cell is
// NULL.
type tableData struct {
	Name    string
	Columns []string
	Types   []Type
	Rows    [][]*string
}

func describeTable(t *Table) tableSchema {
	s := tableSchema{Name: t.name, Properties: map[string]string{}}
	for _, k := range []string{PropEngine, PropCharset, PropCollation} {
		if v := t.properties[k]; v != "" {
			s.Properties[k] = v
		}
	}
	s.Properties[PropComment] = t.GetMappingString()
	for _, c := range t.columns {
		cs := columnSchema{
			Name:      c.Name,
			Type:      c.Type.String(),
			Length:    c.Length,
			Size:      c.Size,
			Default:   c.Default,
			Charset:   c.Properties[PropCharset],
			Collation: c.Properties[PropCollation],
			Comment:   c.Properties[PropComment],
		}
		if c.Nullable {
			cs.Flags = append(cs.Flags, flagNullable)
		}
		if c.Unique {
			cs.Flags = append(cs.Flags, flagUnique)
		}
		if c.PrimaryKey {
			cs.Flags = append(cs.Flags, flagPrimaryKey)
		}
		for _, f := range []string{PropAutoIncrement, PropUnsigned, PropZerofill} {
			if c.Flag(f) {
				cs.Flags = append(cs.Flags, f)
			}
		}
		if c.ForeignKey != "" {
			cs.ForeignKey = c.ForeignKey
			cs.ForeignKeyType = c.ForeignKeyType.String()
		}
		s.Columns = append(s.Columns, cs)
	}
	return s
}

// buildTable turns a schema description into a New table model named name.
func buildTable(d *Database, name string, s tableSchema) (*Table, error) {
	t := newTable(d, name)
	t.kind, t.mappings = DecodeTableComment(s.Properties[PropComment])
	for k, v := range s.Properties {
		if v != "" {
			t.properties[k] = v
		}
	}
	for _, cs := range s.Columns {
		typ, err := ParseType(cs.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", cs.Name, err)
		}
		c := NewColumn(cs.Name, typ)
		c.Length = cs.Length
		c.Size = cs.Size
		if cs.Default != nil {
			v := *cs.Default
			c.Default = &v
		}
		for _, f := range cs.Flags {
			switch strings.TrimSpace(f) {
			case flagNullable:
				c.Nullable = true
			case flagUnique:
				c.Unique = true
			case flagPrimaryKey:
				c.PrimaryKey = true
			case PropAutoIncrement, PropUnsigned, PropZerofill:
				c.SetFlag(strings.TrimSpace(f), true)
			case "":
			default:
				return nil, fmt.Errorf("%w: column %s has unknown flag %q", ErrMalformedSource, cs.Name, f)
			}
		}
		c.SetProperty(PropCharset, cs.Charset)
		c.SetProperty(PropCollation, cs.Collation)
		c.SetProperty(PropComment, cs.Comment)
		if cs.ForeignKey != "" {
			c.ForeignKey = cs.ForeignKey
			if cs.ForeignKeyType != "" {
				c.ForeignKeyType = ParseRelationType(cs.ForeignKeyType)
			}
		}
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// collectData reads every row of t.
func collectData(ctx context.Context, t *Table) (tableData, error) {
	td := tableData{Name: t.name}
	for _, c := range t.columns {
		td.Columns = append(td.Columns, c.Name)
		td.Types = append(td.Types, c.Type)
	}
	rs, err := t.db.From(t.name).Execute(ctx)
	if err != nil {
		return td, err
	}
	for _, r := range rs.records {
		row := make([]*string, len(t.columns))
		for i, c := range t.columns {
			if v := r.data[c.Name]; !v.IsNull() {
				s := encodeText(c, v)
				row[i] = &s
			}
		}
		td.Rows = append(td.Rows, row)
	}
	return td, nil
}

// records converts decoded rows into New records of t.
func (td tableData) records(t *Table) ([]*Record, error) {
	cols := make([]*Column, len(td.Columns))
	for i, name := range td.Columns {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.name, name)
		}
		cols[i] = c
	}
	out := make([]*Record, 0, len(td.Rows))
	for n, row := range td.Rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrMalformedSource, n+1, len(row), len(cols))
		}
		r := t.emptyRecord()
		for i, cell := range row {
			if cell == nil {
				continue
			}
			v, err := decodeText(cols[i], *cell)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %w", ErrMalformedSource, n+1, err)
			}
			r.data[cols[i].Name] = v
		}
		out = append(out, r)
	}
	return out, nil
}

// pickSchema selects the description for table name. A lone description
// is used whatever its name.
func pickSchema(name string, schemas []tableSchema) (tableSchema, error) {
	if len(schemas) == 1 {
		return schemas[0], nil
	}
	for _, s := range schemas {
		if s.Name == name {
			return s, nil
		}
	}
	return tableSchema{}, fmt.Errorf("%w: no definition for %s", ErrMalformedSource, name)
}

func pickData(name string, data []tableData) (tableData, error) {
	if len(data) == 1 {
		return data[0], nil
	}
	for _, td := range data {
		if td.Name == name {
			return td, nil
		}
	}
	return tableData{}, fmt.Errorf("%w: no records for %s", ErrMalformedSource, name)
}

func encodeSchemas(w io.Writer, f Format, dbName string, schemas []tableSchema, multi bool) error {
	switch f {
	case FormatXML:
		return writeXMLSchemas(w, dbName, schemas, multi)
	case FormatYAML:
		return writeYAMLSchemas(w, dbName, schemas, multi)
	case FormatCSV:
		return writeCSVSchemas(w, schemas)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

func decodeSchemas(r io.Reader, f Format) ([]tableSchema, error) {
	switch f {
	case FormatXML:
		return readXMLSchemas(r)
	case FormatYAML:
		return readYAMLSchemas(r)
	case FormatCSV:
		return readCSVSchemas(r)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

func encodeData(w io.Writer, f Format, dbName string, data []tableData, multi bool) error {
	switch f {
	case FormatXML:
		return writeXMLData(w, dbName, data, multi)
	case FormatYAML:
		return writeYAMLData(w, dbName, data, multi)
	case FormatCSV:
		return writeCSVData(w, data, multi)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

func decodeData(r io.Reader, f Format) ([]tableData, error) {
	switch f {
	case FormatXML:
		return readXMLData(r)
	case FormatYAML:
		return readYAMLData(r)
	case FormatCSV:
		return readCSVData(r)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// SchemaToString renders the table definition in format f.
func (t *Table) SchemaToString(f Format) (string, error) {
	var b strings.Builder
	if err := t.ExportSchema(&b, f); err != nil {
		return "", err
	}
	return b.String(), nil
}

// DataToString renders every row of the table in format f.
func (t *Table) DataToString(ctx context.Context, f Format) (string, error) {
	var b strings.Builder
	if err := t.ExportData(ctx, &b, f); err != nil {
		return "", err
	}
	return b.String(), nil
}

// ExportSchema writes the table definition to w.
func (t *Table) ExportSchema(w io.Writer, f Format) error {
	var err error
	if f == FormatSQL {
		err = writeSQLSchema(w, t)
	} else {
		err = encodeSchemas(w, f, t.db.name, []tableSchema{describeTable(t)}, false)
	}
	if err != nil {
		return importErr("export schema", t.name, f, err)
	}
	return nil
}

// ExportData writes every row of the table to w.
func (t *Table) ExportData(ctx context.Context, w io.Writer, f Format) error {
	var err error
	if f == FormatSQL {
		err = writeSQLData(ctx, w, t)
	} else {
		var td tableData
		if td, err = collectData(ctx, t); err == nil {
			err = encodeData(w, f, t.db.name, []tableData{td}, false)
		}
	}
	if err != nil {
		return importErr("export data", t.name, f, err)
	}
	return nil
}

// ImportSchema replaces the table definition with the one read from r.
// The source is decoded before anything is changed; an existing table is
// backed up and restored if the replacement fails.
func (t *Table) ImportSchema(ctx context.Context, r io.Reader, f Format) error {
	stmts, err := t.schemaStatements(r, f)
	if err != nil {
		return importErr("import schema", t.name, f, err)
	}
	if err := t.replaceSchema(ctx, stmts); err != nil {
		return importErr("import schema", t.name, f, err)
	}
	return nil
}

func (t *Table) schemaStatements(r io.Reader, f Format) ([]string, error) {
	if f == FormatSQL {
		stmts, err := readSQL(r)
		if err != nil {
			return nil, err
		}
		return schemaScript(t.name, stmts)
	}
	schemas, err := decodeSchemas(r, f)
	if err != nil {
		return nil, err
	}
	s, err := pickSchema(t.name, schemas)
	if err != nil {
		return nil, err
	}
	tmpl, err := buildTable(t.db, t.name, s)
	if err != nil {
		return nil, err
	}
	return t.db.dialect.CreateTable(tmpl)
}

// replaceSchema creates the table from stmts, dropping the live table
// first under a swap when it exists.
func (t *Table) replaceSchema(ctx context.Context, stmts []string) error {
	d := t.db
	if t.state == StateNew {
		if err := d.execAll(ctx, stmts); err != nil {
			return err
		}
		if err := t.Load(ctx); err != nil {
			return err
		}
		d.tables[t.name] = t
		return nil
	}
	return t.guard(ctx, func(ctx context.Context) error {
		return d.execAll(ctx, append([]string{d.dialect.DropTable(t.name, false)}, stmts...))
	})
}

// ImportData replaces every row of the table with the rows read from r.
// The table is backed up first and restored if any insert fails.
func (t *Table) ImportData(ctx context.Context, r io.Reader, f Format) error {
	if t.state == StateNew {
		if err := t.Load(ctx); err != nil {
			return importErr("import data", t.name, f, err)
		}
	}
	fill, err := t.dataFiller(r, f)
	if err != nil {
		return importErr("import data", t.name, f, err)
	}
	if err := t.replaceData(ctx, fill); err != nil {
		return importErr("import data", t.name, f, err)
	}
	return nil
}

// dataFiller decodes r and returns the function that writes the rows.
func (t *Table) dataFiller(r io.Reader, f Format) (func(context.Context) error, error) {
	if f == FormatSQL {
		stmts, err := readSQL(r)
		if err != nil {
			return nil, err
		}
		script, err := dataScript(t.name, stmts)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return t.db.execAll(ctx, script) }, nil
	}
	data, err := decodeData(r, f)
	if err != nil {
		return nil, err
	}
	td, err := pickData(t.name, data)
	if err != nil {
		return nil, err
	}
	return t.recordFiller(td)
}

func (t *Table) recordFiller(td tableData) (func(context.Context) error, error) {
	records, err := td.records(t)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		for _, rec := range records {
			if err := rec.insert(ctx, true); err != nil {
				return err
			}
			rec.state = StateUnchanged
		}
		return nil
	}, nil
}

func (t *Table) replaceData(ctx context.Context, fill func(context.Context) error) error {
	return t.guard(ctx, func(ctx context.Context) error {
		if err := t.db.execAll(ctx, t.db.dialect.ResetTable(t.name)); err != nil {
			return err
		}
		if err := fill(ctx); err != nil {
			return err
		}
		return t.db.execAll(ctx, t.db.dialect.SyncKeys(t))
	})
}

// exportable lists the loaded tables that carry a definition of their own.
func (d *Database) exportable(ctx context.Context) ([]*Table, error) {
	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	var out []*Table
	for _, t := range d.Tables() {
		if t.kind != KindView {
			out = append(out, t)
		}
	}
	return out, nil
}

// ExportTableSchemas writes the definition of every table to w.
func (d *Database) ExportTableSchemas(ctx context.Context, w io.Writer, f Format) error {
	tables, err := d.exportable(ctx)
	if err != nil {
		return importErr("export schemas", d.name, f, err)
	}
	if f == FormatSQL {
		for _, t := range tables {
			if err := writeSQLSchema(w, t); err != nil {
				return importErr("export schemas", t.name, f, err)
			}
		}
		return nil
	}
	schemas := make([]tableSchema, len(tables))
	for i, t := range tables {
		schemas[i] = describeTable(t)
	}
	if err := encodeSchemas(w, f, d.name, schemas, true); err != nil {
		return importErr("export schemas", d.name, f, err)
	}
	return nil
}

// ExportTableData writes the rows of every table to w.
func (d *Database) ExportTableData(ctx context.Context, w io.Writer, f Format) error {
	tables, err := d.exportable(ctx)
	if err != nil {
		return importErr("export data", d.name, f, err)
	}
	if f == FormatSQL {
		for _, t := range tables {
			if err := writeSQLData(ctx, w, t); err != nil {
				return importErr("export data", t.name, f, err)
			}
		}
		return nil
	}
	data := make([]tableData, len(tables))
	for i, t := range tables {
		if data[i], err = collectData(ctx, t); err != nil {
			return importErr("export data", t.name, f, err)
		}
	}
	if err := encodeData(w, f, d.name, data, true); err != nil {
		return importErr("export data", d.name, f, err)
	}
	return nil
}

// tableOrNew returns the live table, or a New model when it does not exist.
func (d *Database) tableOrNew(ctx context.Context, name string) (*Table, error) {
	t, err := d.Get(ctx, name)
	if errors.Is(err, ErrTableNotFound) {
		return d.NewTable(name), nil
	}
	return t, err
}

// ImportTableSchemas creates or replaces every table defined in r. The
// whole source is decoded before any table is touched.
func (d *Database) ImportTableSchemas(ctx context.Context, r io.Reader, f Format) error {
	type job struct {
		name  string
		stmts []string
	}
	var jobs []job
	if f == FormatSQL {
		stmts, err := readSQL(r)
		if err != nil {
			return importErr("import schemas", d.name, f, err)
		}
		groups, err := groupStatements(stmts, "CREATE")
		if err != nil {
			return importErr("import schemas", d.name, f, err)
		}
		for _, g := range groups {
			jobs = append(jobs, job{g.table, g.texts()})
		}
	} else {
		schemas, err := decodeSchemas(r, f)
		if err != nil {
			return importErr("import schemas", d.name, f, err)
		}
		for _, s := range schemas {
			tmpl, err := buildTable(d, s.Name, s)
			if err != nil {
				return importErr("import schemas", s.Name, f, err)
			}
			stmts, err := d.dialect.CreateTable(tmpl)
			if err != nil {
				return importErr("import schemas", s.Name, f, err)
			}
			jobs = append(jobs, job{s.Name, stmts})
		}
	}
	for _, j := range jobs {
		t, err := d.tableOrNew(ctx, j.name)
		if err != nil {
			return importErr("import schemas", j.name, f, err)
		}
		if err := t.replaceSchema(ctx, j.stmts); err != nil {
			return importErr("import schemas", j.name, f, err)
		}
	}
	return nil
}

// ImportTableData replaces the rows of every table present in r.
func (d *Database) ImportTableData(ctx context.Context, r io.Reader, f Format) error {
	type job struct {
		table *Table
		fill  func(context.Context) error
	}
	var jobs []job
	if f == FormatSQL {
		stmts, err := readSQL(r)
		if err != nil {
			return importErr("import data", d.name, f, err)
		}
		groups, err := groupStatements(stmts, "INSERT")
		if err != nil {
			return importErr("import data", d.name, f, err)
		}
		for _, g := range groups {
			t, err := d.Get(ctx, g.table)
			if err != nil {
				return importErr("import data", g.table, f, err)
			}
			script := g.texts()
			jobs = append(jobs, job{t, func(ctx context.Context) error { return d.execAll(ctx, script) }})
		}
	} else {
		data, err := decodeData(r, f)
		if err != nil {
			return importErr("import data", d.name, f, err)
		}
		for _, td := range data {
			t, err := d.Get(ctx, td.Name)
			if err != nil {
				return importErr("import data", td.Name, f, err)
			}
			fill, err := t.recordFiller(td)
			if err != nil {
				return importErr("import data", td.Name, f, err)
			}
			jobs = append(jobs, job{t, fill})
		}
	}
	for _, j := range jobs {
		if err := j.table.replaceData(ctx, j.fill); err != nil {
			return importErr("import data", j.table.name, f, err)
		}
	}
	return nil
}
