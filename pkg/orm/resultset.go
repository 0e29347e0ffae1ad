package orm

// ResultSet holds the records returned by a query.
type ResultSet struct {
	records  []*Record
	total    int
	hasTotal bool
}

func (rs *ResultSet) Records() []*Record { return rs.records }

func (rs *ResultSet) Len() int { return len(rs.records) }

func (rs *ResultSet) At(i int) *Record {
	if i < 0 || i >= len(rs.records) {
		return nil
	}
	return rs.records[i]
}

// First returns the first record or nil.
func (rs *ResultSet) First() *Record {
	return rs.At(0)
}

// TotalCount is the number of matching rows ignoring the limit. Without a
// limit it equals Len.
func (rs *ResultSet) TotalCount() int { return rs.total }

// HasTotal reports whether TotalCount came from a separate count query.
func (rs *ResultSet) HasTotal() bool { return rs.hasTotal }

// ToArray returns the field values of every record.
func (rs *ResultSet) ToArray() []map[string]Value {
	out := make([]map[string]Value, len(rs.records))
	for i, r := range rs.records {
		out[i] = r.ToArray()
	}
	return out
}
