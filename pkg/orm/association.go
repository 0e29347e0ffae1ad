package orm

import (
	"context"
	"fmt"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
)

// link is a resolved foreign key association: owner holds column fk that
// references ref.
type link struct {
	owner *Record
	ref   *Record
	fk    *Column
}

// resolveLink finds the foreign key column joining a and b for a relation
// of kind rel recorded on a. One-to-many keys live on b, many-to-one keys
// on a, one-to-one keys on whichever side has them.
func resolveLink(a, b *Record, rel RelationType) (link, error) {
	onB := func() (link, bool) {
		fk, ok := b.table.ForeignKey(a.table.name)
		return link{owner: b, ref: a, fk: fk}, ok
	}
	onA := func() (link, bool) {
		fk, ok := a.table.ForeignKey(b.table.name)
		return link{owner: a, ref: b, fk: fk}, ok
	}
	var l link
	var ok bool
	switch rel {
	case OneToMany:
		l, ok = onB()
	case ManyToOne:
		l, ok = onA()
	case OneToOne:
		if l, ok = onB(); !ok {
			l, ok = onA()
		}
	}
	if !ok {
		return l, fmt.Errorf("%w: no foreign key between %s and %s", ErrMappingNotFound, a.table.name, b.table.name)
	}
	return l, nil
}

// junctionColumns names the junction columns for a and b: <pk>_<table>.
func junctionColumns(a, b *Table) (string, string) {
	return a.primaryKey.Name + "_" + a.name, b.primaryKey.Name + "_" + b.name
}

func checkPersisted(op string, records ...*Record) error {
	for _, r := range records {
		if r.table.primaryKey == nil {
			return queryErr(op, r.table.name, ErrNoPrimaryKey)
		}
		if !r.persisted() {
			return queryErr(op, r.table.name, fmt.Errorf("%w: record is not saved", ErrInvalidState))
		}
	}
	return nil
}

// Associate links two saved records according to the mapping first's
// table records for second's table. Many-to-many links are written to the
// junction table once; repeated calls do nothing.
func Associate(ctx context.Context, first, second *Record) error {
	return associate(ctx, "associate", first, second, true)
}

// Dissociate removes the link made by Associate. Dissociating records that
// are not linked is not an error.
func Dissociate(ctx context.Context, first, second *Record) error {
	return associate(ctx, "dissociate", first, second, false)
}

func associate(ctx context.Context, op string, first, second *Record, on bool) error {
	if err := checkPersisted(op, first, second); err != nil {
		return err
	}
	a, b := first.table, second.table
	d := a.db
	rel := a.Mapping(b.name)
	if rel == RelationNone {
		return queryErr(op, a.name, fmt.Errorf("%w: %s has no mapping to %s", ErrMappingNotFound, a.name, b.name))
	}

	if rel == ManyToMany {
		junction, err := d.MappingTableName(ctx, a.name, b.name)
		if err != nil {
			return err
		}
		colA, colB := junctionColumns(a, b)
		bd := &binder{d: d.dialect}
		where := " WHERE " + bd.d.Quote(colA) + " = " + bd.bind(first.ID().Any()) +
			" AND " + bd.d.Quote(colB) + " = " + bd.bind(second.ID().Any())
		if !on {
			if _, err := d.exec(ctx, "DELETE FROM "+bd.d.Quote(junction)+where, bd.args); err != nil {
				return queryErr(op, junction, err)
			}
			return nil
		}
		var n int
		if err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+bd.d.Quote(junction)+where, bd.args...).Scan(&n); err != nil {
			return queryErr(op, junction, err)
		}
		if n > 0 {
			logger.Debug("%s %s and %s %s already linked", a.name, first.ID(), b.name, second.ID())
			return nil
		}
		ib := &binder{d: d.dialect}
		insert := "INSERT INTO " + ib.d.Quote(junction) + " (" + ib.d.Quote(colA) + ", " + ib.d.Quote(colB) +
			") VALUES (" + ib.bind(first.ID().Any()) + ", " + ib.bind(second.ID().Any()) + ")"
		if _, err := d.exec(ctx, insert, ib.args); err != nil {
			return queryErr(op, junction, err)
		}
		return nil
	}

	l, err := resolveLink(first, second, rel)
	if err != nil {
		return queryErr(op, a.name, err)
	}
	value := Null()
	if on {
		value = l.ref.ID()
	}
	bd := &binder{d: d.dialect}
	owner := l.owner.table
	stmt := "UPDATE " + bd.d.Quote(owner.name) + " SET " + bd.d.Quote(l.fk.Name) + " = " + bd.bind(value.Any()) +
		" WHERE " + bd.d.Quote(owner.primaryKey.Name) + " = " + bd.bind(l.owner.ID().Any())
	if _, err := d.exec(ctx, stmt, bd.args); err != nil {
		return queryErr(op, owner.name, err)
	}
	l.owner.data[l.fk.Name] = value
	return nil
}

// Associated returns the records of target linked to r, optionally limited.
func Associated(ctx context.Context, r *Record, target string, limit *Limit) (*ResultSet, error) {
	if err := checkPersisted("associated", r); err != nil {
		return nil, err
	}
	src := r.table
	d := src.db
	rel := src.Mapping(target)
	if rel == RelationNone {
		return nil, queryErr("associated", src.name, fmt.Errorf("%w: %s has no mapping to %s", ErrMappingNotFound, src.name, target))
	}
	tt, err := d.Get(ctx, target)
	if err != nil {
		return nil, queryErr("associated", target, err)
	}
	if tt.primaryKey == nil {
		return nil, queryErr("associated", target, ErrNoPrimaryKey)
	}

	q := d.From(target)
	switch rel {
	case ManyToMany:
		junction, err := d.MappingTableName(ctx, src.name, target)
		if err != nil {
			return nil, err
		}
		colSrc, colTarget := junctionColumns(src, tt)
		q.join = &join{table: junction, column: colTarget}
		q.Where(junction+"."+colSrc, "=", r.ID())
	default:
		l, err := resolveLink(r, tt.emptyRecord(), rel)
		if err != nil {
			return nil, queryErr("associated", src.name, err)
		}
		if l.owner == r {
			ref := r.data[l.fk.Name]
			if ref.IsEmpty() {
				return &ResultSet{hasTotal: limit != nil}, nil
			}
			q.Where(tt.primaryKey.Name, "=", ref)
		} else {
			q.Where(l.fk.Name, "=", r.ID())
		}
	}
	if limit != nil {
		q.Limit(limit.Start, limit.Count)
	}
	return q.Execute(ctx)
}
