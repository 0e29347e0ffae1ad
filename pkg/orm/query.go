package orm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
)

// Operators accepted by Where. Anything else is treated as "=".
var operators = map[string]bool{
	"=":           true,
	"<=>":         true,
	"LIKE":        true,
	">":           true,
	">=":          true,
	"<":           true,
	"<=":          true,
	"<>":          true,
	"IS NOT":      true,
	"IS NULL":     true,
	"IS NOT NULL": true,
}

// Limit selects Count rows starting at row Start.
type Limit struct {
	Start int
	Count int
}

type clause struct {
	field string
	op    string
	value any
}

type order struct {
	field string
	dir   string
}

type param struct {
	name  string
	value any
}

// join restricts a table query to rows linked through a junction table.
type join struct {
	table  string // junction table
	column string // junction column referencing the queried table
}

// Query describes a SELECT against a table or a stored procedure call.
// Builder methods record the first error; Execute reports it.
type Query struct {
	db        *Database
	target    string
	procedure bool
	where     []clause
	sort      []order
	limit     *Limit
	params    []param
	join      *join
	err       error
}

// From starts a query against a table.
func (d *Database) From(table string) *Query {
	return &Query{db: d, target: table}
}

// Procedure starts a stored procedure call.
func (d *Database) Procedure(name string) *Query {
	return &Query{db: d, target: name, procedure: true}
}

func (q *Query) setErr(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Err returns the first error recorded by a builder method.
func (q *Query) Err() error { return q.err }

// Where adds a condition. A slice value with "=" or "<>" becomes IN or
// NOT IN. IS NULL and IS NOT NULL ignore the value.
func (q *Query) Where(field, op string, value any) *Query {
	if q.procedure {
		q.setErr(fmt.Errorf("%w: where on procedure %s", ErrInvalidClause, q.target))
		return q
	}
	op = strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if !operators[op] {
		logger.Warn("unknown operator %q on %s.%s, using =", op, q.target, field)
		op = "="
	}
	if op == "IS NULL" || op == "IS NOT NULL" {
		value = nil
	}
	if _, ok := listValue(value); ok && op != "=" && op != "<>" {
		q.setErr(fmt.Errorf("%w: operator %s does not take a list", ErrInvalidClause, op))
		return q
	}
	q.where = append(q.where, clause{field: field, op: op, value: value})
	return q
}

// Sort adds orderings from a spec such as "name DESC, id".
func (q *Query) Sort(spec string) *Query {
	if q.procedure {
		q.setErr(fmt.Errorf("%w: sort on procedure %s", ErrInvalidClause, q.target))
		return q
	}
	for _, part := range strings.Split(spec, ",") {
		f := strings.Fields(part)
		switch {
		case len(f) == 0:
			continue
		case len(f) > 2:
			q.setErr(fmt.Errorf("%w: sort %q", ErrInvalidClause, part))
			return q
		}
		dir := "ASC"
		if len(f) == 2 {
			dir = strings.ToUpper(f[1])
			if dir != "ASC" && dir != "DESC" {
				q.setErr(fmt.Errorf("%w: sort direction %q", ErrInvalidClause, f[1]))
				return q
			}
		}
		q.sort = append(q.sort, order{field: f[0], dir: dir})
	}
	return q
}

// Limit restricts the result to count rows starting at start.
func (q *Query) Limit(start, count int) *Query {
	if q.procedure {
		q.setErr(fmt.Errorf("%w: limit on procedure %s", ErrInvalidClause, q.target))
		return q
	}
	if start < 0 || count < 0 {
		q.setErr(fmt.Errorf("%w: limit %d, %d", ErrInvalidClause, start, count))
		return q
	}
	q.limit = &Limit{Start: start, Count: count}
	return q
}

// Match adds an equality condition for every non-empty field of r.
func (q *Query) Match(r *Record) *Query {
	for _, c := range r.table.columns {
		if v := r.data[c.Name]; !v.IsEmpty() {
			q.Where(c.Name, "=", v)
		}
	}
	return q
}

// Param appends a procedure argument. Arguments are passed in call order.
func (q *Query) Param(name string, value any) *Query {
	if !q.procedure {
		q.setErr(fmt.Errorf("%w: param on table %s", ErrInvalidClause, q.target))
		return q
	}
	q.params = append(q.params, param{name: name, value: value})
	return q
}

// SQL renders the statement with placeholders and returns its arguments.
func (q *Query) SQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	b := &binder{d: q.db.dialect}
	return q.render(b, false), b.args, nil
}

// Debug renders the statement with its arguments inlined.
func (q *Query) Debug() string {
	if q.err != nil {
		return "-- " + q.err.Error()
	}
	return q.render(&binder{d: q.db.dialect, inline: true}, false)
}

func (q *Query) render(b *binder, count bool) string {
	d := b.d
	if q.procedure {
		args := make([]string, len(q.params))
		for i, p := range q.params {
			args[i] = b.bind(driverArg(p.value))
		}
		return d.Call(q.target, args)
	}

	var s strings.Builder
	switch {
	case count:
		s.WriteString("SELECT COUNT(*) FROM " + d.Quote(q.target))
	case q.join != nil:
		s.WriteString("SELECT " + d.Quote(q.target+".*") + " FROM " + d.Quote(q.target))
	default:
		s.WriteString("SELECT * FROM " + d.Quote(q.target))
	}
	if q.join != nil {
		pk := "id"
		if t, ok := q.db.tables[q.target]; ok && t.primaryKey != nil {
			pk = t.primaryKey.Name
		}
		s.WriteString(" INNER JOIN " + d.Quote(q.join.table) + " ON " +
			d.Quote(q.join.table+"."+q.join.column) + " = " + d.Quote(q.target+"."+pk))
	}
	if len(q.where) > 0 {
		conds := make([]string, len(q.where))
		for i, c := range q.where {
			conds[i] = c.render(b)
		}
		s.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	if count {
		return s.String()
	}
	if len(q.sort) > 0 {
		parts := make([]string, len(q.sort))
		for i, o := range q.sort {
			parts[i] = d.Quote(o.field) + " " + o.dir
		}
		s.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.limit != nil {
		s.WriteString(" " + d.Limit(q.limit.Start, q.limit.Count))
	}
	return s.String()
}

func (c clause) render(b *binder) string {
	field := b.d.Quote(c.field)
	switch c.op {
	case "IS NULL", "IS NOT NULL":
		return field + " " + c.op
	case "IS NOT":
		switch v := driverArg(c.value).(type) {
		case nil:
			return field + " IS NOT NULL"
		case bool:
			if v {
				return field + " IS NOT TRUE"
			}
			return field + " IS NOT FALSE"
		default:
			return field + " <> " + b.bind(v)
		}
	case "<=>":
		return field + " " + b.d.NullSafeEqual() + " " + b.bind(driverArg(c.value))
	}
	if list, ok := listValue(c.value); ok {
		switch {
		case len(list) == 0 && c.op == "=":
			return "1 = 0"
		case len(list) == 0:
			return "1 = 1"
		case c.op == "=":
			return field + " IN " + b.bindList(list)
		default:
			return field + " NOT IN " + b.bindList(list)
		}
	}
	return field + " " + c.op + " " + b.bind(driverArg(c.value))
}

// validate checks every referenced field against the table columns.
func (q *Query) validate(t *Table) error {
	check := func(field string) error {
		if q.join != nil && strings.Contains(field, ".") {
			return nil
		}
		if _, ok := t.Column(field); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		return nil
	}
	for _, c := range q.where {
		if err := check(c.field); err != nil {
			return err
		}
	}
	for _, o := range q.sort {
		if err := check(o.field); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the query. When a limit is set the result also carries the
// row count without the limit.
func (q *Query) Execute(ctx context.Context) (*ResultSet, error) {
	return q.execute(ctx, true)
}

// ExecuteFirst runs the query limited to one row. It returns nil when
// nothing matches.
func (q *Query) ExecuteFirst(ctx context.Context) (*Record, error) {
	if !q.procedure {
		q.Limit(0, 1)
	}
	rs, err := q.execute(ctx, false)
	if err != nil {
		return nil, err
	}
	return rs.First(), nil
}

func (q *Query) execute(ctx context.Context, withTotal bool) (*ResultSet, error) {
	if q.err != nil {
		return nil, queryErr("build", q.target, q.err)
	}
	if q.procedure {
		return q.call(ctx)
	}
	t, err := q.db.Get(ctx, q.target)
	if err != nil {
		return nil, queryErr("execute", q.target, err)
	}
	if err := q.validate(t); err != nil {
		return nil, queryErr("execute", q.target, err)
	}

	b := &binder{d: q.db.dialect}
	query := q.render(b, false)
	rows, err := q.db.query(ctx, query, b.args)
	if err != nil {
		return nil, queryErr("execute", q.target, err)
	}
	records, err := scanRecords(t, rows)
	if err != nil {
		return nil, queryErr("execute", q.target, err)
	}

	rs := &ResultSet{records: records, total: len(records)}
	if q.limit != nil && withTotal {
		cb := &binder{d: q.db.dialect}
		var total int
		if err := q.db.conn.QueryRowContext(ctx, q.render(cb, true), cb.args...).Scan(&total); err != nil {
			return nil, queryErr("count", q.target, err)
		}
		rs.total = total
		rs.hasTotal = true
	}
	logger.Debug("query on %s returned %d records", q.target, len(records))
	return rs, nil
}

// call runs a stored procedure. Its records belong to an ad-hoc view built
// from the result columns.
func (q *Query) call(ctx context.Context) (*ResultSet, error) {
	b := &binder{d: q.db.dialect}
	rows, err := q.db.query(ctx, q.render(b, false), b.args)
	if err != nil {
		return nil, queryErr("call", q.target, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, queryErr("call", q.target, err)
	}
	view := newTable(q.db, q.target)
	view.kind = KindView
	view.state = StateUnchanged
	for _, ct := range types {
		dt, ok := dataTypes[strings.ToLower(ct.DatabaseTypeName())]
		if !ok {
			dt = dataType{TypeText, 0}
		}
		c := NewColumn(ct.Name(), dt.t)
		c.Size = dt.size
		c.Nullable = true
		view.columns = append(view.columns, c)
	}
	records, err := scanRecords(view, rows)
	if err != nil {
		return nil, queryErr("call", q.target, err)
	}
	return &ResultSet{records: records, total: len(records)}, nil
}

// scanRecords reads every row into a record of t and closes rows.
func scanRecords(t *Table, rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := t.emptyRecord()
		for i, name := range cols {
			c, ok := t.Column(name)
			if !ok {
				continue
			}
			r.data[name] = fromDriver(c.Type, vals[i])
		}
		r.state = StateUnchanged
		if t.primaryKey != nil && r.data[t.primaryKey.Name].IsEmpty() {
			r.state = StateNew
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
