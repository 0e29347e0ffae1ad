package introspect

import "strings"

// TableStatus is one row of the engine's table-status listing.
type TableStatus struct {
	Name          string `json:"name"`
	View          bool   `json:"view,omitempty"`
	Engine        string `json:"engine,omitempty"`
	Collation     string `json:"collation,omitempty"`
	Comment       string `json:"comment"`
	AutoIncrement *int64 `json:"auto_increment,omitempty"`
	Rows          *int64 `json:"rows,omitempty"` // optional row estimate
}

// Charset derives the character set from the collation name (utf8mb4_general_ci -> utf8mb4).
func (t TableStatus) Charset() string {
	if i := strings.IndexByte(t.Collation, '_'); i > 0 {
		return t.Collation[:i]
	}
	return ""
}

// Column is one row of the engine's full column listing.
type Column struct {
	Name      string  `json:"name"`
	DataType  string  `json:"data_type"`        // base type name, lower case: int, varchar, text, ...
	Length    string  `json:"length,omitempty"` // display length or precision,scale
	Unsigned  bool    `json:"unsigned,omitempty"`
	Zerofill  bool    `json:"zerofill,omitempty"`
	Charset   string  `json:"charset,omitempty"`
	Collation string  `json:"collation,omitempty"`
	Nullable  bool    `json:"nullable"`
	Key       string  `json:"key,omitempty"` // PRI, UNI, MUL or empty
	Default   *string `json:"default,omitempty"`
	AutoIncr  bool    `json:"auto_increment,omitempty"`
	Comment   string  `json:"comment"`
}

// PK reports whether the column is (part of) the primary key.
func (c Column) PK() bool { return c.Key == "PRI" }

// Unique reports whether the column carries a single-column unique key.
func (c Column) Unique() bool { return c.Key == "UNI" }

// Table is a table status together with its ordered columns.
type Table struct {
	Status  TableStatus `json:"status"`
	Columns []Column    `json:"columns"`
}
