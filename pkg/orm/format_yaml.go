package orm

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlSchemaDoc struct {
	Database string        `yaml:"database,omitempty"`
	Table    *tableSchema  `yaml:"table,omitempty"`
	Tables   []tableSchema `yaml:"tables,omitempty"`
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeYAMLSchemas(w io.Writer, dbName string, schemas []tableSchema, multi bool) error {
	if multi || len(schemas) != 1 {
		return writeYAML(w, yamlSchemaDoc{Database: dbName, Tables: schemas})
	}
	return writeYAML(w, yamlSchemaDoc{Table: &schemas[0]})
}

func readYAMLSchemas(r io.Reader) ([]tableSchema, error) {
	var doc yamlSchemaDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	schemas := doc.Tables
	if doc.Table != nil {
		schemas = append([]tableSchema{*doc.Table}, schemas...)
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("%w: no table definition", ErrMalformedSource)
	}
	return schemas, nil
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func mapping(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: pairs}
}

// yamlTag picks the scalar tag that keeps a value of type t readable.
func yamlTag(t Type) string {
	switch t {
	case TypeInt, TypeBool:
		return "!!int"
	case TypeFloat, TypeDouble:
		return "!!float"
	}
	return "!!str"
}

// yamlTableData renders rows as an ordered mapping per record.
func yamlTableData(td tableData) *yaml.Node {
	records := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, row := range td.Rows {
		rec := mapping()
		for i, cell := range row {
			v := scalar("!!null", "null")
			if cell != nil {
				v = scalar(yamlTag(td.Types[i]), *cell)
			}
			rec.Content = append(rec.Content, scalar("!!str", td.Columns[i]), v)
		}
		records.Content = append(records.Content, rec)
	}
	return mapping(
		scalar("!!str", "table"), scalar("!!str", td.Name),
		scalar("!!str", "records"), records,
	)
}

func writeYAMLData(w io.Writer, dbName string, data []tableData, multi bool) error {
	if !multi && len(data) == 1 {
		return writeYAML(w, yamlTableData(data[0]))
	}
	tables := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, td := range data {
		tables.Content = append(tables.Content, yamlTableData(td))
	}
	return writeYAML(w, mapping(
		scalar("!!str", "database"), scalar("!!str", dbName),
		scalar("!!str", "tables"), tables,
	))
}

// lookup returns the value node for key in a mapping node.
func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func readYAMLData(r io.Reader) ([]tableData, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedSource)
	}
	root := doc.Content[0]
	nodes := []*yaml.Node{root}
	if tables := lookup(root, "tables"); tables != nil {
		if tables.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%w: tables is not a list", ErrMalformedSource)
		}
		nodes = tables.Content
	}
	out := make([]tableData, 0, len(nodes))
	for _, n := range nodes {
		td, err := yamlNodeData(n)
		if err != nil {
			return nil, err
		}
		out = append(out, td)
	}
	return out, nil
}

func yamlNodeData(n *yaml.Node) (tableData, error) {
	var td tableData
	if name := lookup(n, "table"); name != nil {
		td.Name = name.Value
	}
	records := lookup(n, "records")
	if records == nil {
		return td, fmt.Errorf("%w: no records for %q", ErrMalformedSource, td.Name)
	}
	if records.Kind != yaml.SequenceNode {
		return td, fmt.Errorf("%w: records of %q is not a list", ErrMalformedSource, td.Name)
	}
	index := map[string]int{}
	var rows []map[string]*string
	for _, rec := range records.Content {
		if rec.Kind != yaml.MappingNode {
			return td, fmt.Errorf("%w: record in %q is not a mapping", ErrMalformedSource, td.Name)
		}
		row := map[string]*string{}
		for i := 0; i+1 < len(rec.Content); i += 2 {
			key, val := rec.Content[i].Value, rec.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return td, fmt.Errorf("%w: field %s in %q is not a scalar", ErrMalformedSource, key, td.Name)
			}
			if _, ok := index[key]; !ok {
				index[key] = len(td.Columns)
				td.Columns = append(td.Columns, key)
			}
			if val.Tag == "!!null" {
				row[key] = nil
				continue
			}
			v := val.Value
			row[key] = &v
		}
		rows = append(rows, row)
	}
	for _, row := range rows {
		cells := make([]*string, len(td.Columns))
		for name, v := range row {
			cells[index[name]] = v
		}
		td.Rows = append(td.Rows, cells)
	}
	return td, nil
}
