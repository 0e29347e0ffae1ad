package orm

import (
	"errors"
	"fmt"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
)

// Component sentinels. Every error returned by this package matches at
// least one of them with errors.Is. The outermost error names the failing
// component; a wrapped cause may match another, as when a query fails to
// load its table schema.
var (
	ErrSchema       = errors.New("schema error")
	ErrQuery        = errors.New("query error")
	ErrRecord       = errors.New("record error")
	ErrImportExport = errors.New("import/export error")
)

// Causes carried inside the component errors.
var (
	ErrTableNotFound     = errors.New("table not found")
	ErrColumnNotFound    = errors.New("column not found")
	ErrDuplicateColumn   = errors.New("duplicate column")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownType       = errors.New("unknown column type")
	ErrMappingNotFound   = errors.New("mapping not found")
	ErrAmbiguousMapping  = errors.New("ambiguous mapping table")
	ErrInvalidState      = errors.New("invalid state")
	ErrNoPrimaryKey      = errors.New("no primary key")
	ErrInvalidClause     = errors.New("invalid clause")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformedSource   = errors.New("malformed source")
)

// SchemaError reports a failure to introspect or change a table definition.
type SchemaError struct {
	Op     string // load, save, drop, ...
	Table  string
	Column string // optional
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema %s %s.%s: %v", e.Op, e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("schema %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error        { return e.Err }
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// QueryError reports an invalid query description or a failed statement.
type QueryError struct {
	Op    string
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *QueryError) Unwrap() error        { return e.Err }
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// RecordError reports an illegal field access or record state transition.
type RecordError struct {
	Op    string
	Table string
	Field string // optional
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record %s %s.%s: %v", e.Op, e.Table, e.Field, e.Err)
	}
	return fmt.Sprintf("record %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *RecordError) Unwrap() error        { return e.Err }
func (e *RecordError) Is(target error) bool { return target == ErrRecord }

// ImportExportError reports an unreadable source or a failed import/export.
type ImportExportError struct {
	Op     string
	Table  string
	Format Format
	Err    error
}

func (e *ImportExportError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Table, e.Format, e.Err)
}

func (e *ImportExportError) Unwrap() error        { return e.Err }
func (e *ImportExportError) Is(target error) bool { return target == ErrImportExport }

// fail hands err to the exception sink and returns it unchanged.
func fail(err error) error {
	logger.Exception(err)
	return err
}

func schemaErr(op, table string, err error) error {
	return fail(&SchemaError{Op: op, Table: table, Err: err})
}

func queryErr(op, table string, err error) error {
	return fail(&QueryError{Op: op, Table: table, Err: err})
}

func recordErr(op, table, field string, err error) error {
	return fail(&RecordError{Op: op, Table: table, Field: field, Err: err})
}

func importErr(op, table string, f Format, err error) error {
	return fail(&ImportExportError{Op: op, Table: table, Format: f, Err: err})
}
