package orm

import (
	"context"
	"errors"
	"fmt"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/db"
	"github.com/RogWilco/Bedrock-Framework-sub000/internal/introspect"
	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
)

type insertion struct {
	after  string // "" places the column first
	column *Column
}

// Table is the in-memory model of one table, junction table or view. Schema
// changes are staged with AddColumn, InsertColumn, AlterColumn,
// DeleteColumn, SetProperty and SetMapping and applied by Save.
type Table struct {
	db    *Database
	name  string
	kind  TableKind
	state State

	columns     []*Column
	primaryKey  *Column
	foreignKeys map[string]*Column
	mappings    Mappings
	properties  map[string]string

	columnsToAdd    []*Column
	columnsToInsert []insertion
	columnsToAlter  []*Column
	columnsToDrop   []string
}

func newTable(d *Database, name string) *Table {
	return &Table{
		db:          d,
		name:        name,
		kind:        KindTable,
		state:       StateNew,
		foreignKeys: map[string]*Column{},
		mappings:    Mappings{},
		properties:  map[string]string{},
	}
}

func (t *Table) Name() string { return t.name }

func (t *Table) Kind() TableKind { return t.kind }

func (t *Table) State() State { return t.state }

func (t *Table) Database() *Database { return t.db }

func (t *Table) PrimaryKey() *Column { return t.primaryKey }

func (t *Table) Mappings() Mappings { return t.mappings.clone() }

func (t *Table) Property(key string) string { return t.properties[key] }

// SetKind changes the kind of a table that has not been created yet.
func (t *Table) SetKind(k TableKind) error {
	if t.state != StateNew {
		return schemaErr("set kind", t.name, fmt.Errorf("%w: table already exists", ErrInvalidState))
	}
	t.kind = k
	return nil
}

// Columns returns the columns in storage order.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.columns...)
}

func (t *Table) Column(name string) (*Column, bool) {
	i := t.columnIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.columns[i], true
}

func (t *Table) columnIndex(name string) int {
	for i, c := range t.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ForeignKey returns the column referencing target.
func (t *Table) ForeignKey(target string) (*Column, bool) {
	c, ok := t.foreignKeys[target]
	return c, ok
}

// Mapping returns the relation recorded with target, or RelationNone.
func (t *Table) Mapping(target string) RelationType {
	return t.mappings[target]
}

// Properties returns a copy of the table properties.
func (t *Table) Properties() map[string]string {
	out := make(map[string]string, len(t.properties))
	for k, v := range t.properties {
		out[k] = v
	}
	return out
}

// GetMappingString renders the table comment that persists the mappings.
func (t *Table) GetMappingString() string {
	return EncodeTableComment(t.kind, t.mappings)
}

func (t *Table) markChanged() {
	if t.state == StateUnchanged {
		t.state = StateChanged
	}
}

func (t *Table) clearPending() {
	t.columnsToAdd = nil
	t.columnsToInsert = nil
	t.columnsToAlter = nil
	t.columnsToDrop = nil
}

// Load replaces the in-memory model with the live definition.
func (t *Table) Load(ctx context.Context) error {
	info, err := t.db.extractor.Table(ctx, t.db.conn, t.name)
	if err != nil {
		if errors.Is(err, db.ErrTableNotFound) || t.db.dialect.IsTableNotFound(err) {
			return schemaErr("load", t.name, fmt.Errorf("%w: %w", ErrTableNotFound, err))
		}
		return schemaErr("load", t.name, err)
	}
	t.apply(info)
	logger.Debug("loaded table %s (%d columns)", t.name, len(t.columns))
	return nil
}

// apply rebuilds the model from catalog rows and marks it Unchanged.
func (t *Table) apply(info introspect.Table) {
	t.kind, t.mappings = DecodeTableComment(info.Status.Comment)
	if info.Status.View {
		t.kind = KindView
	}
	t.properties = map[string]string{}
	if info.Status.Engine != "" {
		t.properties[PropEngine] = info.Status.Engine
	}
	if cs := info.Status.Charset(); cs != "" {
		t.properties[PropCharset] = cs
	}
	if info.Status.Collation != "" {
		t.properties[PropCollation] = info.Status.Collation
	}
	if info.Status.Comment != "" {
		t.properties[PropComment] = info.Status.Comment
	}

	t.columns = nil
	t.primaryKey = nil
	t.foreignKeys = map[string]*Column{}
	for _, ci := range info.Columns {
		c := ColumnFromInfo(ci)
		if c.PrimaryKey {
			if t.primaryKey != nil {
				// composite keys keep their first column as the key
				c.PrimaryKey = false
			} else {
				t.primaryKey = c
			}
		}
		t.columns = append(t.columns, c)
		t.registerForeignKey(c)
	}
	t.clearPending()
	t.state = StateUnchanged
}

// registerForeignKey indexes a foreign key column and makes sure a mapping
// exists for its target.
func (t *Table) registerForeignKey(c *Column) {
	if c.ForeignKey == "" {
		return
	}
	rel := t.mappings[c.ForeignKey]
	if rel == RelationNone {
		rel = c.ForeignKeyType
	}
	if rel == RelationNone {
		rel = ManyToOne
	}
	t.mappings[c.ForeignKey] = rel
	c.ForeignKeyType = rel
	t.foreignKeys[c.ForeignKey] = c
}

func (t *Table) unregisterForeignKey(c *Column) {
	if c.ForeignKey == "" {
		return
	}
	delete(t.foreignKeys, c.ForeignKey)
	if t.mappings[c.ForeignKey] != ManyToMany {
		delete(t.mappings, c.ForeignKey)
	}
}

// Save creates or alters the table so storage matches the model. A table
// without pending changes is left alone.
func (t *Table) Save(ctx context.Context) error {
	var stmts []string
	var err error
	switch {
	case t.state == StateUnchanged:
		logger.Debug("table %s unchanged, nothing to save", t.name)
		return nil
	case t.kind == KindView:
		return schemaErr("save", t.name, fmt.Errorf("%w: views are read-only", ErrInvalidState))
	case t.state == StateNew:
		stmts, err = t.db.dialect.CreateTable(t)
	default:
		stmts, err = t.db.dialect.AlterTable(t)
	}
	if err != nil {
		return schemaErr("save", t.name, err)
	}
	if err := t.db.execAll(ctx, stmts); err != nil {
		return schemaErr("save", t.name, err)
	}
	t.properties[PropComment] = t.GetMappingString()
	t.clearPending()
	t.state = StateUnchanged
	t.db.tables[t.name] = t
	logger.Info("saved table %s", t.name)
	return nil
}

// Drop removes the table from storage. The model stays usable as a New table.
func (t *Table) Drop(ctx context.Context) error {
	if err := t.db.execAll(ctx, []string{t.db.dialect.DropTable(t.name, false)}); err != nil {
		return schemaErr("drop", t.name, err)
	}
	t.db.Forget(t.name)
	t.state = StateNew
	logger.Info("dropped table %s", t.name)
	return nil
}

// Reset deletes every row and restarts the auto-increment counter.
func (t *Table) Reset(ctx context.Context) error {
	if err := t.db.execAll(ctx, t.db.dialect.ResetTable(t.name)); err != nil {
		return schemaErr("reset", t.name, err)
	}
	logger.Info("reset table %s", t.name)
	return nil
}

// Revert replaces the table with the contents of backup, drops backup and
// reloads the model. The table is recreated from the current model where
// the engine cannot copy a definition exactly.
func (t *Table) Revert(ctx context.Context, backup string) error {
	restore, err := t.db.dialect.RestoreTable(t, backup)
	if err != nil {
		return schemaErr("revert", t.name, err)
	}
	return t.revert(ctx, backup, restore)
}

func (t *Table) revert(ctx context.Context, backup string, restore []string) error {
	stmts := append(restore, t.db.dialect.DropTable(backup, false))
	if err := t.db.execAll(ctx, stmts); err != nil {
		return schemaErr("revert", t.name, err)
	}
	logger.Warn("table %s reverted from %s", t.name, backup)
	return t.Load(ctx)
}

// AddColumn appends c to the table.
func (t *Table) AddColumn(c *Column) error {
	if err := t.checkNewColumn("add column", c); err != nil {
		return err
	}
	t.columns = append(t.columns, c)
	t.adopt(c)
	if t.state != StateNew {
		t.columnsToAdd = append(t.columnsToAdd, c)
		t.markChanged()
	}
	return nil
}

// InsertColumn places c directly after the column named after, or first
// when after is empty.
func (t *Table) InsertColumn(after string, c *Column) error {
	if err := t.checkNewColumn("insert column", c); err != nil {
		return err
	}
	pos := 0
	if after != "" {
		i := t.columnIndex(after)
		if i < 0 {
			return fail(&SchemaError{Op: "insert column", Table: t.name, Column: after, Err: ErrColumnNotFound})
		}
		pos = i + 1
	}
	t.columns = append(t.columns[:pos], append([]*Column{c}, t.columns[pos:]...)...)
	t.adopt(c)
	if t.state != StateNew {
		t.columnsToInsert = append(t.columnsToInsert, insertion{after: after, column: c})
		t.markChanged()
	}
	return nil
}

func (t *Table) checkNewColumn(op string, c *Column) error {
	if c == nil || c.Name == "" {
		return schemaErr(op, t.name, fmt.Errorf("%w: column has no name", ErrInvalidState))
	}
	if t.columnIndex(c.Name) >= 0 {
		return fail(&SchemaError{Op: op, Table: t.name, Column: c.Name, Err: ErrDuplicateColumn})
	}
	if c.PrimaryKey && t.primaryKey != nil {
		return fail(&SchemaError{Op: op, Table: t.name, Column: c.Name,
			Err: fmt.Errorf("%w: primary key already set to %s", ErrInvalidState, t.primaryKey.Name)})
	}
	return nil
}

func (t *Table) adopt(c *Column) {
	if c.Properties == nil {
		c.Properties = map[string]string{}
	}
	if c.PrimaryKey {
		t.primaryKey = c
	}
	t.registerForeignKey(c)
}

// DeleteColumn removes a column. Dropping a foreign key column also drops
// its mapping unless the mapping is many-to-many.
func (t *Table) DeleteColumn(name string) error {
	i := t.columnIndex(name)
	if i < 0 {
		return fail(&SchemaError{Op: "delete column", Table: t.name, Column: name, Err: ErrColumnNotFound})
	}
	c := t.columns[i]
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	if t.primaryKey == c {
		t.primaryKey = nil
	}
	t.unregisterForeignKey(c)
	if t.state == StateNew {
		return nil
	}
	if t.unstage(c) {
		return nil
	}
	t.columnsToDrop = append(t.columnsToDrop, name)
	t.markChanged()
	return nil
}

// unstage drops c from the pending additions. It reports whether c was
// only pending.
func (t *Table) unstage(c *Column) bool {
	for i, a := range t.columnsToAdd {
		if a == c {
			t.columnsToAdd = append(t.columnsToAdd[:i], t.columnsToAdd[i+1:]...)
			return true
		}
	}
	for i, ins := range t.columnsToInsert {
		if ins.column == c {
			t.columnsToInsert = append(t.columnsToInsert[:i], t.columnsToInsert[i+1:]...)
			return true
		}
	}
	for i, a := range t.columnsToAlter {
		if a.Name == c.Name {
			t.columnsToAlter = append(t.columnsToAlter[:i], t.columnsToAlter[i+1:]...)
			break
		}
	}
	return false
}

// AlterColumn replaces the definition of the column with the same name.
func (t *Table) AlterColumn(c *Column) error {
	i := t.columnIndex(c.Name)
	if i < 0 {
		return fail(&SchemaError{Op: "alter column", Table: t.name, Column: c.Name, Err: ErrColumnNotFound})
	}
	old := t.columns[i]
	if c.PrimaryKey && t.primaryKey != nil && t.primaryKey != old {
		return fail(&SchemaError{Op: "alter column", Table: t.name, Column: c.Name,
			Err: fmt.Errorf("%w: primary key already set to %s", ErrInvalidState, t.primaryKey.Name)})
	}
	t.unregisterForeignKey(old)
	if t.primaryKey == old {
		t.primaryKey = nil
	}
	t.columns[i] = c
	t.adopt(c)
	if t.state == StateNew {
		return nil
	}
	for j, a := range t.columnsToAdd {
		if a == old {
			t.columnsToAdd[j] = c
			return nil
		}
	}
	for j, ins := range t.columnsToInsert {
		if ins.column == old {
			t.columnsToInsert[j].column = c
			return nil
		}
	}
	for j, a := range t.columnsToAlter {
		if a.Name == c.Name {
			t.columnsToAlter[j] = c
			return nil
		}
	}
	t.columnsToAlter = append(t.columnsToAlter, c)
	t.markChanged()
	return nil
}

// SetProperty stages a table property such as PropEngine.
func (t *Table) SetProperty(key, value string) {
	if value == "" {
		delete(t.properties, key)
	} else {
		t.properties[key] = value
	}
	t.markChanged()
}

// SetMapping records the relation with target. RelationNone removes it.
func (t *Table) SetMapping(target string, rel RelationType) {
	if rel == RelationNone {
		delete(t.mappings, target)
	} else {
		t.mappings[target] = rel
	}
	if c, ok := t.foreignKeys[target]; ok && rel != RelationNone {
		c.ForeignKeyType = rel
	}
	t.markChanged()
}
