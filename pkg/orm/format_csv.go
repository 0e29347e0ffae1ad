package orm

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvNull marks a NULL cell. Text made of backslashes followed by N gets
// one more leading backslash so it never reads back as NULL.
const csvNull = `\N`

// csvTableMarker starts a table block in multi-table data files.
const csvTableMarker = "#table"

var csvSchemaHeader = []string{
	"class", "name", "type", "length", "size", "default", "flags",
	"foreign_key", "foreign_key_type", "charset", "collation", "comment", "engine",
}

func nullable(s *string) string {
	if s == nil {
		return csvNull
	}
	if isNullMarker(*s) {
		return `\` + *s
	}
	return *s
}

// unnullable reverses nullable.
func unnullable(s string) *string {
	switch {
	case s == csvNull:
		return nil
	case isNullMarker(s):
		s = s[1:]
	}
	return &s
}

func isNullMarker(s string) bool {
	rest := strings.TrimLeft(s, `\`)
	return rest == "N" && len(rest) < len(s)
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// writeCSVSchemas writes one "table" row per table followed by one
// "column" row per column.
func writeCSVSchemas(w io.Writer, schemas []tableSchema) error {
	rows := [][]string{csvSchemaHeader}
	for _, s := range schemas {
		rows = append(rows, []string{
			"table", s.Name, "", "", "", "", "", "", "",
			s.Properties[PropCharset], s.Properties[PropCollation], s.Properties[PropComment], s.Properties[PropEngine],
		})
		for _, c := range s.Columns {
			size := ""
			if c.Size != 0 {
				size = strconv.FormatUint(c.Size, 10)
			}
			rows = append(rows, []string{
				"column", c.Name, c.Type, c.Length, size, nullable(c.Default), strings.Join(c.Flags, " "),
				c.ForeignKey, c.ForeignKeyType, c.Charset, c.Collation, c.Comment, "",
			})
		}
	}
	return writeCSV(w, rows)
}

func readCSVRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty csv", ErrMalformedSource)
	}
	return rows, nil
}

func readCSVSchemas(r io.Reader) ([]tableSchema, error) {
	rows, err := readCSVRows(r)
	if err != nil {
		return nil, err
	}
	if strings.Join(rows[0], ",") != strings.Join(csvSchemaHeader, ",") {
		return nil, fmt.Errorf("%w: unexpected schema header %v", ErrMalformedSource, rows[0])
	}
	var out []tableSchema
	for n, row := range rows[1:] {
		if len(row) != len(csvSchemaHeader) {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformedSource, n+2, len(row))
		}
		switch row[0] {
		case "table":
			s := tableSchema{Name: row[1], Properties: map[string]string{}}
			for i, k := range map[int]string{9: PropCharset, 10: PropCollation, 11: PropComment, 12: PropEngine} {
				if row[i] != "" {
					s.Properties[k] = row[i]
				}
			}
			out = append(out, s)
		case "column":
			if len(out) == 0 {
				return nil, fmt.Errorf("%w: line %d: column before any table", ErrMalformedSource, n+2)
			}
			cs := columnSchema{
				Name:           row[1],
				Type:           row[2],
				Length:         row[3],
				ForeignKey:     row[7],
				ForeignKeyType: row[8],
				Charset:        row[9],
				Collation:      row[10],
				Comment:        row[11],
				Flags:          strings.Fields(row[6]),
			}
			if row[4] != "" {
				if cs.Size, err = strconv.ParseUint(row[4], 10, 64); err != nil {
					return nil, fmt.Errorf("%w: line %d size: %w", ErrMalformedSource, n+2, err)
				}
			}
			cs.Default = unnullable(row[5])
			last := &out[len(out)-1]
			last.Columns = append(last.Columns, cs)
		default:
			return nil, fmt.Errorf("%w: line %d: unknown class %q", ErrMalformedSource, n+2, row[0])
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no table definition", ErrMalformedSource)
	}
	return out, nil
}

func csvTableRows(td tableData) [][]string {
	rows := [][]string{td.Columns}
	for _, row := range td.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = nullable(cell)
		}
		rows = append(rows, cells)
	}
	return rows
}

// writeCSVData writes a header row and one row per record. Multi-table
// files precede each table with a marker row naming it.
func writeCSVData(w io.Writer, data []tableData, multi bool) error {
	if !multi && len(data) == 1 {
		return writeCSV(w, csvTableRows(data[0]))
	}
	var rows [][]string
	for _, td := range data {
		rows = append(rows, []string{csvTableMarker, td.Name})
		rows = append(rows, csvTableRows(td)...)
	}
	return writeCSV(w, rows)
}

func readCSVData(r io.Reader) ([]tableData, error) {
	rows, err := readCSVRows(r)
	if err != nil {
		return nil, err
	}
	var out []tableData
	var cur *tableData
	for n, row := range rows {
		switch {
		case len(row) == 2 && row[0] == csvTableMarker:
			out = append(out, tableData{Name: row[1]})
			cur = &out[len(out)-1]
			continue
		case n == 0:
			out = append(out, tableData{})
			cur = &out[0]
		}
		if cur.Columns == nil {
			cur.Columns = row
			continue
		}
		if len(row) != len(cur.Columns) {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrMalformedSource, n+1, len(row), len(cur.Columns))
		}
		cells := make([]*string, len(row))
		for i, v := range row {
			cells[i] = unnullable(v)
		}
		cur.Rows = append(cur.Rows, cells)
	}
	return out, nil
}
