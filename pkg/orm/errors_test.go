package orm

import (
	"context"
	"errors"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	var tests = []struct {
		name      string
		err       error
		component error
		cause     error
		msg       string
	}{
		{"schema", &SchemaError{Op: "load", Table: "users", Err: ErrTableNotFound}, ErrSchema, ErrTableNotFound,
			"schema load users: table not found"},
		{"schema column", &SchemaError{Op: "delete column", Table: "users", Column: "age", Err: ErrColumnNotFound}, ErrSchema,
			ErrColumnNotFound, "schema delete column users.age: column not found"},
		{"query", &QueryError{Op: "execute", Table: "users", Err: ErrInvalidClause}, ErrQuery, ErrInvalidClause,
			"query execute users: invalid clause"},
		{"record", &RecordError{Op: "get", Table: "users", Field: "nick", Err: ErrUnknownField}, ErrRecord, ErrUnknownField,
			"record get users.nick: unknown field"},
		{"import", &ImportExportError{Op: "import data", Table: "users", Format: FormatCSV, Err: ErrMalformedSource},
			ErrImportExport, ErrMalformedSource, "import data users (csv): malformed source"},
	}

	components := []error{ErrSchema, ErrQuery, ErrRecord, ErrImportExport}
	for _, tt := range tests {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("\ngot %q, wanted %q", tt.err.Error(), tt.msg)
			}
			if !errors.Is(tt.err, tt.cause) {
				t.Errorf("\n%v should wrap %v", tt.err, tt.cause)
			}
			for _, c := range components {
				if got := errors.Is(tt.err, c); got != (c == tt.component) {
					t.Errorf("\nerrors.Is(%v, %v) = %v", tt.err, c, got)
				}
			}
		})
	}
}

func TestNestedErrorKinds(t *testing.T) {
	inner := &SchemaError{Op: "load", Table: "users", Err: ErrTableNotFound}
	err := queryErr("execute", "users", inner)

	var qe *QueryError
	if !errors.As(err, &qe) || qe.Op != "execute" {
		t.Fatalf("\ngot %T %v, wanted the outer error to be a query error", err, err)
	}
	for _, want := range []error{ErrQuery, ErrSchema, ErrTableNotFound} {
		if !errors.Is(err, want) {
			t.Errorf("\n%v should match %v", err, want)
		}
	}
	if errors.Is(err, ErrRecord) || errors.Is(err, ErrImportExport) {
		t.Errorf("\n%v should not match the record or import/export components", err)
	}
}

func TestExecuteMissingTableErrorKinds(t *testing.T) {
	_, d := newFake(t)
	_, err := d.From("ghosts").Execute(context.Background())
	if !errors.Is(err, ErrQuery) || !errors.Is(err, ErrSchema) || !errors.Is(err, ErrTableNotFound) {
		t.Errorf("\ngot %v, wanted a query error wrapping a schema error for a missing table", err)
	}
}
