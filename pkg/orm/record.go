package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
)

// Record is one row of a table. Every column of the table has an entry.
type Record struct {
	table *Table
	data  map[string]Value
	state State
}

func (t *Table) emptyRecord() *Record {
	r := &Record{table: t, data: make(map[string]Value, len(t.columns)), state: StateNew}
	for _, c := range t.columns {
		r.data[c.Name] = Null()
	}
	return r
}

// NewRecord returns an unsaved record holding values. Fields not named in
// values are NULL.
func (t *Table) NewRecord(values map[string]any) (*Record, error) {
	r := t.emptyRecord()
	for k, v := range values {
		if _, ok := r.data[k]; !ok {
			return nil, recordErr("new", t.name, k, ErrUnknownField)
		}
		r.data[k] = ValueOf(v)
	}
	return r, nil
}

func (r *Record) Table() *Table { return r.table }

func (r *Record) State() State { return r.state }

// Get returns the value of field.
func (r *Record) Get(field string) (Value, error) {
	v, ok := r.data[field]
	if !ok {
		return Null(), recordErr("get", r.table.name, field, ErrUnknownField)
	}
	return v, nil
}

// MustGet is Get for fields known to exist; unknown fields read as NULL.
func (r *Record) MustGet(field string) Value {
	return r.data[field]
}

// Set assigns field and marks a persisted record Changed.
func (r *Record) Set(field string, value any) error {
	if _, ok := r.data[field]; !ok {
		return recordErr("set", r.table.name, field, ErrUnknownField)
	}
	r.data[field] = ValueOf(value)
	if r.state == StateUnchanged {
		r.state = StateChanged
	}
	return nil
}

// ToArray returns a copy of the field values.
func (r *Record) ToArray() map[string]Value {
	out := make(map[string]Value, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

// ID returns the primary key value, NULL for tables without one.
func (r *Record) ID() Value {
	if r.table.primaryKey == nil {
		return Null()
	}
	return r.data[r.table.primaryKey.Name]
}

func (r *Record) persisted() bool {
	return r.state != StateNew && !r.ID().IsEmpty()
}

// Save writes the record: INSERT for New records, UPDATE of every column
// for Changed ones. Unchanged records are left alone.
func (r *Record) Save(ctx context.Context) error {
	t := r.table
	if r.state == StateUnchanged {
		return nil
	}
	if t.kind == KindView {
		return recordErr("save", t.name, "", fmt.Errorf("%w: views are read-only", ErrInvalidState))
	}
	var err error
	if r.state == StateNew {
		err = r.insert(ctx, false)
	} else {
		err = r.update(ctx)
	}
	if err != nil {
		return err
	}
	r.state = StateUnchanged
	return nil
}

func (r *Record) update(ctx context.Context) error {
	t := r.table
	pk := t.primaryKey
	if pk == nil {
		return recordErr("save", t.name, "", ErrNoPrimaryKey)
	}
	b := &binder{d: t.db.dialect}
	var sets []string
	for _, c := range t.columns {
		if c == pk {
			continue
		}
		expr, err := r.assignment(b, c)
		if err != nil {
			return recordErr("save", t.name, c.Name, err)
		}
		sets = append(sets, b.d.Quote(c.Name)+" = "+expr)
	}
	if len(sets) == 0 {
		return nil
	}
	query := "UPDATE " + b.d.Quote(t.name) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + b.d.Quote(pk.Name) + " = " + b.bind(r.ID().Any())
	if _, err := t.db.exec(ctx, query, b.args); err != nil {
		return recordErr("save", t.name, "", err)
	}
	logger.Debug("updated %s %s", t.name, r.ID())
	return nil
}

// insert writes the record as a new row. The primary key is written when
// it holds a value and either keepKey is set or the key is not generated.
func (r *Record) insert(ctx context.Context, keepKey bool) error {
	t := r.table
	stmt, args, err := r.insertSQL(&binder{d: t.db.dialect}, keepKey)
	if err != nil {
		return err
	}
	pk := t.primaryKey
	generated := pk != nil && r.skipKey(pk, keepKey)

	if generated && t.db.dialect.Returning(pk) != "" {
		stmt += t.db.dialect.Returning(pk)
		logger.Debug("query: %s %v", stmt, args)
		var id any
		if err := t.db.conn.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return recordErr("save", t.name, "", err)
		}
		r.data[pk.Name] = fromDriver(pk.Type, id)
		return nil
	}
	res, err := t.db.exec(ctx, stmt, args)
	if err != nil {
		return recordErr("save", t.name, "", err)
	}
	if generated && pk.AutoIncrement() {
		id, err := res.LastInsertId()
		if err != nil {
			return recordErr("save", t.name, pk.Name, err)
		}
		r.data[pk.Name] = Int(id)
	}
	return nil
}

// skipKey reports whether the primary key is left to the database.
func (r *Record) skipKey(pk *Column, keepKey bool) bool {
	return r.data[pk.Name].IsEmpty() || !keepKey && pk.AutoIncrement()
}

func (r *Record) insertSQL(b *binder, keepKey bool) (string, []any, error) {
	t := r.table
	pk := t.primaryKey
	var cols, vals []string
	for _, c := range t.columns {
		if c == pk && r.skipKey(c, keepKey) {
			continue
		}
		expr, err := r.assignment(b, c)
		if err != nil {
			return "", nil, recordErr("save", t.name, c.Name, err)
		}
		cols = append(cols, b.d.Quote(c.Name))
		vals = append(vals, expr)
	}
	return "INSERT INTO " + b.d.Quote(t.name) + " (" + strings.Join(cols, ", ") +
		") VALUES (" + strings.Join(vals, ", ") + ")", b.args, nil
}

// assignment renders the value written for column c. Empty numbers become
// NULL, the default or 0; empty temporal values become the current time.
// NULL in a NOT NULL text column becomes the default or the empty string.
func (r *Record) assignment(b *binder, c *Column) (string, error) {
	v := r.data[c.Name]
	switch {
	case c.Type.numeric():
		if v.IsEmpty() {
			switch {
			case c.Nullable:
				return "NULL", nil
			case c.Default != nil:
				return b.bind(parseAs(c.Type, *c.Default).Any()), nil
			}
			return b.bind(int64(0)), nil
		}
		return b.bind(v.Any()), nil
	case c.Type == TypeBool:
		if v.IsNull() && c.Nullable {
			return "NULL", nil
		}
		return b.bind(v.Bool()), nil
	case c.Type.temporal():
		if v.IsEmpty() {
			if c.Nullable && v.IsNull() {
				return "NULL", nil
			}
			return b.d.Now(), nil
		}
		tm, ok := v.Time()
		if !ok {
			return "", fmt.Errorf("%w: %q is not a %s", ErrInvalidClause, v.String(), c.Type)
		}
		return b.bind(c.formatTime(tm)), nil
	case v.IsNull() && c.Nullable:
		return "NULL", nil
	case v.IsNull() && c.Default != nil:
		return b.bind(*c.Default), nil
	case c.Type == TypeBlob:
		return b.bind([]byte(v.String())), nil
	}
	return b.bind(v.String()), nil
}

// Delete removes the row. Only Unchanged records can be deleted.
func (r *Record) Delete(ctx context.Context) error {
	t := r.table
	if r.state != StateUnchanged {
		return recordErr("delete", t.name, "", fmt.Errorf("%w: record is %s", ErrInvalidState, r.state))
	}
	pk := t.primaryKey
	if pk == nil {
		return recordErr("delete", t.name, "", ErrNoPrimaryKey)
	}
	b := &binder{d: t.db.dialect}
	query := "DELETE FROM " + b.d.Quote(t.name) + " WHERE " + b.d.Quote(pk.Name) + " = " + b.bind(r.ID().Any())
	if _, err := t.db.exec(ctx, query, b.args); err != nil {
		return recordErr("delete", t.name, "", err)
	}
	r.state = StateNew
	logger.Debug("deleted %s %s", t.name, r.ID())
	return nil
}

// Associate links r with other. See Associate.
func (r *Record) Associate(ctx context.Context, other *Record) error {
	return Associate(ctx, r, other)
}

// Dissociate unlinks r from other. See Dissociate.
func (r *Record) Dissociate(ctx context.Context, other *Record) error {
	return Dissociate(ctx, r, other)
}

// Associated returns the records of target linked to r.
func (r *Record) Associated(ctx context.Context, target string, limit *Limit) (*ResultSet, error) {
	return Associated(ctx, r, target, limit)
}
