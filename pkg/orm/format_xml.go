package orm

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

type xmlDatabase struct {
	XMLName xml.Name   `xml:"database"`
	Name    string     `xml:"name,attr,omitempty"`
	Tables  []xmlTable `xml:"table"`
}

type xmlTable struct {
	XMLName    xml.Name       `xml:"table"`
	Name       string         `xml:"name,attr"`
	Properties *xmlProperties `xml:"properties,omitempty"`
	Columns    []xmlColumn    `xml:"columns>column,omitempty"`
	Records    []xmlRecord    `xml:"records>record,omitempty"`
}

type xmlProperties struct {
	Engine    string `xml:"engine,omitempty"`
	Charset   string `xml:"charset,omitempty"`
	Collation string `xml:"collation,omitempty"`
	Comment   string `xml:"comment,omitempty"`
}

type xmlColumn struct {
	Name           string  `xml:"name,attr"`
	Type           string  `xml:"type"`
	Length         string  `xml:"length,omitempty"`
	Size           uint64  `xml:"size,omitempty"`
	Default        *string `xml:"default,omitempty"`
	Flags          string  `xml:"flags,omitempty"`
	ForeignKey     string  `xml:"foreign_key,omitempty"`
	ForeignKeyType string  `xml:"foreign_key_type,omitempty"`
	Charset        string  `xml:"charset,omitempty"`
	Collation      string  `xml:"collation,omitempty"`
	Comment        string  `xml:"comment,omitempty"`
}

// xmlRecord holds one element per non-NULL field, named after the column.
type xmlRecord struct {
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

var (
	xmlTablesExpr  = xpath.MustCompile("/table | /database/table")
	xmlColumnsExpr = xpath.MustCompile("columns/column")
	xmlRecordsExpr = xpath.MustCompile("records/record")
	xmlPropsExpr   = xpath.MustCompile("properties")
)

func writeXML(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeXMLTables(w io.Writer, dbName string, tables []xmlTable, multi bool) error {
	if multi || len(tables) != 1 {
		return writeXML(w, xmlDatabase{Name: dbName, Tables: tables})
	}
	return writeXML(w, tables[0])
}

func writeXMLSchemas(w io.Writer, dbName string, schemas []tableSchema, multi bool) error {
	tables := make([]xmlTable, len(schemas))
	for i, s := range schemas {
		xt := xmlTable{Name: s.Name, Properties: &xmlProperties{
			Engine:    s.Properties[PropEngine],
			Charset:   s.Properties[PropCharset],
			Collation: s.Properties[PropCollation],
			Comment:   s.Properties[PropComment],
		}}
		for _, c := range s.Columns {
			xt.Columns = append(xt.Columns, xmlColumn{
				Name:           c.Name,
				Type:           c.Type,
				Length:         c.Length,
				Size:           c.Size,
				Default:        c.Default,
				Flags:          strings.Join(c.Flags, ","),
				ForeignKey:     c.ForeignKey,
				ForeignKeyType: c.ForeignKeyType,
				Charset:        c.Charset,
				Collation:      c.Collation,
				Comment:        c.Comment,
			})
		}
		tables[i] = xt
	}
	return writeXMLTables(w, dbName, tables, multi)
}

func writeXMLData(w io.Writer, dbName string, data []tableData, multi bool) error {
	tables := make([]xmlTable, len(data))
	for i, td := range data {
		xt := xmlTable{Name: td.Name}
		for _, row := range td.Rows {
			var rec xmlRecord
			for j, cell := range row {
				if cell != nil {
					rec.Fields = append(rec.Fields, xmlField{XMLName: xml.Name{Local: td.Columns[j]}, Value: *cell})
				}
			}
			xt.Records = append(xt.Records, rec)
		}
		tables[i] = xt
	}
	return writeXMLTables(w, dbName, tables, multi)
}

func parseXMLTables(r io.Reader) ([]*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	tables := xmlquery.QuerySelectorAll(doc, xmlTablesExpr)
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no <table> element", ErrMalformedSource)
	}
	return tables, nil
}

func childText(n *xmlquery.Node, name string) string {
	if c := n.SelectElement(name); c != nil {
		return strings.TrimSpace(c.InnerText())
	}
	return ""
}

func childElements(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func readXMLSchemas(r io.Reader) ([]tableSchema, error) {
	tables, err := parseXMLTables(r)
	if err != nil {
		return nil, err
	}
	out := make([]tableSchema, 0, len(tables))
	for _, tn := range tables {
		s := tableSchema{Name: tn.SelectAttr("name"), Properties: map[string]string{}}
		if pn := xmlquery.QuerySelector(tn, xmlPropsExpr); pn != nil {
			for _, p := range childElements(pn) {
				s.Properties[p.Data] = p.InnerText()
			}
		}
		for _, cn := range xmlquery.QuerySelectorAll(tn, xmlColumnsExpr) {
			cs := columnSchema{
				Name:           cn.SelectAttr("name"),
				Type:           childText(cn, "type"),
				Length:         childText(cn, "length"),
				ForeignKey:     childText(cn, "foreign_key"),
				ForeignKeyType: childText(cn, "foreign_key_type"),
				Charset:        childText(cn, "charset"),
				Collation:      childText(cn, "collation"),
				Comment:        childText(cn, "comment"),
			}
			if cs.Name == "" {
				return nil, fmt.Errorf("%w: column without name in %s", ErrMalformedSource, s.Name)
			}
			if size := childText(cn, "size"); size != "" {
				if cs.Size, err = strconv.ParseUint(size, 10, 64); err != nil {
					return nil, fmt.Errorf("%w: column %s size: %w", ErrMalformedSource, cs.Name, err)
				}
			}
			if dn := cn.SelectElement("default"); dn != nil {
				v := dn.InnerText()
				cs.Default = &v
			}
			if flags := childText(cn, "flags"); flags != "" {
				cs.Flags = strings.Split(flags, ",")
			}
			s.Columns = append(s.Columns, cs)
		}
		out = append(out, s)
	}
	return out, nil
}

// readXMLData reads records; the column list is the union of field names
// in order of first appearance and missing fields are NULL.
func readXMLData(r io.Reader) ([]tableData, error) {
	tables, err := parseXMLTables(r)
	if err != nil {
		return nil, err
	}
	out := make([]tableData, 0, len(tables))
	for _, tn := range tables {
		td := tableData{Name: tn.SelectAttr("name")}
		index := map[string]int{}
		var rows []map[string]string
		for _, rn := range xmlquery.QuerySelectorAll(tn, xmlRecordsExpr) {
			row := map[string]string{}
			for _, f := range childElements(rn) {
				if _, ok := index[f.Data]; !ok {
					index[f.Data] = len(td.Columns)
					td.Columns = append(td.Columns, f.Data)
				}
				row[f.Data] = f.InnerText()
			}
			rows = append(rows, row)
		}
		for _, row := range rows {
			cells := make([]*string, len(td.Columns))
			for name, v := range row {
				v := v
				cells[index[name]] = &v
			}
			td.Rows = append(td.Rows, cells)
		}
		out = append(out, td)
	}
	return out, nil
}
