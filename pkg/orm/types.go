package orm

import (
	"fmt"
	"strings"
)

// Type is the abstract storage type of a column.
type Type int

const (
	TypeUnknown Type = iota
	TypeInt
	TypeFloat
	TypeDouble
	TypeDecimal
	TypeBool
	TypeVarchar
	TypeText
	TypeBlob
	TypeDate
	TypeTime
	TypeDateTime
)

var typeNames = [...]string{
	TypeUnknown:  "unknown",
	TypeInt:      "int",
	TypeFloat:    "float",
	TypeDouble:   "double",
	TypeDecimal:  "decimal",
	TypeBool:     "bool",
	TypeVarchar:  "varchar",
	TypeText:     "text",
	TypeBlob:     "blob",
	TypeDate:     "date",
	TypeTime:     "time",
	TypeDateTime: "datetime",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if i != int(TypeUnknown) && n == s {
			return Type(i), nil
		}
	}
	return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// numeric reports whether values of t are rendered without quotes.
func (t Type) numeric() bool {
	switch t {
	case TypeInt, TypeFloat, TypeDouble, TypeDecimal:
		return true
	}
	return false
}

func (t Type) temporal() bool {
	return t == TypeDate || t == TypeTime || t == TypeDateTime
}

func (t Type) textual() bool {
	return t == TypeVarchar || t == TypeText
}

// TableKind distinguishes ordinary tables from junction tables and views.
type TableKind int

const (
	KindTable TableKind = iota
	KindJunction
	KindView
)

func (k TableKind) String() string {
	switch k {
	case KindJunction:
		return "map"
	case KindView:
		return "view"
	default:
		return "table"
	}
}

// State tracks whether a Table or Record matches persisted storage.
type State int

const (
	StateUnchanged State = iota
	StateChanged
	StateNew
)

func (s State) String() string {
	switch s {
	case StateChanged:
		return "changed"
	case StateNew:
		return "new"
	default:
		return "unchanged"
	}
}
