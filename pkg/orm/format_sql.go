package orm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// sqlLexer tokenizes SQL scripts just far enough to split statements and
// read their leading keywords. Unterminated strings, quoted identifiers
// and comments fail to lex.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|#[^\n]*|/\*([^*]|\*+[^*/])*\*+/`},
	{Name: "String", Pattern: `'(\\.|''|[^'\\])*'`},
	{Name: "Quoted", Pattern: "`(``|[^`])*`|\"(\"\"|[^\"])*\""},
	{Name: "Word", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
	{Name: "Number", Pattern: `[0-9]+(\.[0-9]+)?`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Punct", Pattern: "[^\\sA-Za-z0-9_;'\"`]"},
})

const sqlHeadWords = 8

// sqlStatement is one statement of a script with its leading words,
// identifiers unquoted.
type sqlStatement struct {
	text string
	head []string
}

// readSQL splits a script into statements.
func readSQL(r io.Reader) ([]sqlStatement, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lex, err := sqlLexer.LexString("", string(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	syms := sqlLexer.Symbols()

	var out []sqlStatement
	var cur strings.Builder
	var head []string
	flush := func() {
		if text := strings.TrimSpace(cur.String()); text != "" {
			out = append(out, sqlStatement{text: text, head: head})
		}
		cur.Reset()
		head = nil
	}
	for _, tok := range tokens {
		switch tok.Type {
		case lexer.EOF:
		case syms["Comment"]:
			cur.WriteString(" ")
		case syms["Semicolon"]:
			flush()
		default:
			cur.WriteString(tok.Value)
			if len(head) >= sqlHeadWords {
				continue
			}
			switch tok.Type {
			case syms["Word"]:
				head = append(head, tok.Value)
			case syms["Quoted"]:
				head = append(head, unquoteIdent(tok.Value))
			}
		}
	}
	flush()
	return out, nil
}

func unquoteIdent(s string) string {
	if len(s) < 2 {
		return s
	}
	q := s[:1]
	return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
}

// target returns the upper-cased statement verb and the table it applies to.
func (s sqlStatement) target() (verb, table string) {
	h := s.head
	word := func(i int) string {
		if i < len(h) {
			return h[i]
		}
		return ""
	}
	kw := func(i int) string { return strings.ToUpper(word(i)) }
	switch {
	case kw(0) == "CREATE" && kw(1) == "TABLE":
		if kw(2) == "IF" && kw(3) == "NOT" && kw(4) == "EXISTS" {
			return "CREATE", word(5)
		}
		return "CREATE", word(2)
	case kw(0) == "INSERT" && kw(1) == "INTO":
		return "INSERT", word(2)
	case kw(0) == "COMMENT" && kw(1) == "ON" && (kw(2) == "TABLE" || kw(2) == "COLUMN"):
		return "COMMENT", word(3)
	}
	return kw(0), ""
}

func sameTable(a, b string) bool {
	return a == b || strings.EqualFold(a, b)
}

// schemaScript checks that stmts define exactly table and returns them.
func schemaScript(table string, stmts []sqlStatement) ([]string, error) {
	var out []string
	created := false
	for i, s := range stmts {
		verb, name := s.target()
		switch {
		case verb == "CREATE" && sameTable(name, table) && !created:
			created = true
		case verb == "COMMENT" && sameTable(name, table) && created:
		default:
			return nil, fmt.Errorf("%w: statement %d is not part of the definition of %s", ErrMalformedSource, i+1, table)
		}
		out = append(out, s.text)
	}
	if !created {
		return nil, fmt.Errorf("%w: no CREATE TABLE %s", ErrMalformedSource, table)
	}
	return out, nil
}

// dataScript checks that every statement inserts into table.
func dataScript(table string, stmts []sqlStatement) ([]string, error) {
	out := make([]string, 0, len(stmts))
	for i, s := range stmts {
		if verb, name := s.target(); verb != "INSERT" || !sameTable(name, table) {
			return nil, fmt.Errorf("%w: statement %d does not insert into %s", ErrMalformedSource, i+1, table)
		}
		out = append(out, s.text)
	}
	return out, nil
}

type statementGroup struct {
	table string
	stmts []sqlStatement
}

func (g statementGroup) texts() []string {
	out := make([]string, len(g.stmts))
	for i, s := range g.stmts {
		out[i] = s.text
	}
	return out
}

// groupStatements splits a multi-table script into per-table groups. A
// group starts at each statement with verb lead; COMMENT statements join
// the group of their table.
func groupStatements(stmts []sqlStatement, lead string) ([]statementGroup, error) {
	var groups []statementGroup
	index := map[string]int{}
	for i, s := range stmts {
		verb, name := s.target()
		if name == "" || verb != lead && !(lead == "CREATE" && verb == "COMMENT") {
			return nil, fmt.Errorf("%w: unexpected statement %d (%s)", ErrMalformedSource, i+1, verb)
		}
		g, ok := index[name]
		if !ok {
			if verb != lead {
				return nil, fmt.Errorf("%w: statement %d precedes the definition of %s", ErrMalformedSource, i+1, name)
			}
			g = len(groups)
			index[name] = g
			groups = append(groups, statementGroup{table: name})
		}
		groups[g].stmts = append(groups[g].stmts, s)
	}
	return groups, nil
}

func writeStatements(w io.Writer, stmts []string) error {
	for _, s := range stmts {
		if _, err := io.WriteString(w, s+";\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeSQLSchema(w io.Writer, t *Table) error {
	stmts, err := t.db.dialect.CreateTable(t)
	if err != nil {
		return err
	}
	return writeStatements(w, stmts)
}

// writeSQLData writes one INSERT per row with the values inlined.
func writeSQLData(ctx context.Context, w io.Writer, t *Table) error {
	rs, err := t.db.From(t.name).Execute(ctx)
	if err != nil {
		return err
	}
	stmts := make([]string, 0, rs.Len())
	for _, r := range rs.records {
		stmt, _, err := r.insertSQL(&binder{d: t.db.dialect, inline: true}, true)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}
	return writeStatements(w, stmts)
}
