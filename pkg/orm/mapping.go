package orm

import (
	"sort"
	"strings"
)

// RelationType is the cardinality of an association between two tables.
type RelationType int

const (
	RelationNone RelationType = iota
	OneToOne
	OneToMany
	ManyToOne
	ManyToMany
)

var relationNames = map[RelationType]string{
	OneToOne:   "one_one",
	OneToMany:  "one_many",
	ManyToOne:  "many_one",
	ManyToMany: "many_many",
}

func (r RelationType) String() string {
	if n, ok := relationNames[r]; ok {
		return n
	}
	return "none"
}

// ParseRelationType reads a relation keyword. Unrecognised keywords yield
// OneToMany.
func ParseRelationType(s string) RelationType {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, n := range relationNames {
		if n == s {
			return r
		}
	}
	return OneToMany
}

// Mappings maps a related table name to the relation held with it.
type Mappings map[string]RelationType

func (m Mappings) clone() Mappings {
	out := make(Mappings, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

const (
	commentSep      = "|"
	mappingsPrefix  = "mappings:"
	foreignKeyLabel = "fk:"
)

// DecodeTableComment parses a table comment of the form
//
//	table|mappings:posts(one_many),groups(many_many)
//
// Comments that do not start with "map" are ordinary tables; free text
// carries no mappings.
func DecodeTableComment(comment string) (TableKind, Mappings) {
	kind := KindTable
	m := Mappings{}
	parts := strings.Split(comment, commentSep)
	if strings.TrimSpace(parts[0]) == KindJunction.String() {
		kind = KindJunction
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, mappingsPrefix) {
			continue
		}
		for _, entry := range strings.Split(strings.TrimPrefix(part, mappingsPrefix), ",") {
			name, rel := parseMappingEntry(entry)
			if name != "" {
				m[name] = rel
			}
		}
	}
	return kind, m
}

// parseMappingEntry reads "name(keyword)". A missing keyword yields OneToMany.
func parseMappingEntry(entry string) (string, RelationType) {
	entry = strings.TrimSpace(entry)
	open := strings.IndexByte(entry, '(')
	if open < 0 {
		return entry, OneToMany
	}
	keyword := strings.TrimSuffix(entry[open+1:], ")")
	return strings.TrimSpace(entry[:open]), ParseRelationType(keyword)
}

// EncodeTableComment is the inverse of DecodeTableComment. Entries are
// written in name order; RelationNone entries are skipped.
func EncodeTableComment(kind TableKind, m Mappings) string {
	head := KindTable.String()
	if kind == KindJunction {
		head = KindJunction.String()
	}
	names := make([]string, 0, len(m))
	for name, rel := range m {
		if rel != RelationNone {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return head
	}
	sort.Strings(names)
	entries := make([]string, len(names))
	for i, name := range names {
		entries[i] = name + "(" + m[name].String() + ")"
	}
	return head + commentSep + mappingsPrefix + strings.Join(entries, ",")
}

// DecodeColumnComment extracts the referenced table from a foreign key
// column comment ("fk:users").
func DecodeColumnComment(comment string) (string, bool) {
	comment = strings.TrimSpace(comment)
	if !strings.HasPrefix(comment, foreignKeyLabel) {
		return "", false
	}
	target := strings.TrimSpace(strings.TrimPrefix(comment, foreignKeyLabel))
	return target, target != ""
}

func EncodeColumnComment(target string) string {
	return foreignKeyLabel + target
}
