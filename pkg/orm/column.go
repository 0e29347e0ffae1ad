package orm

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/introspect"
)

// Property keys shared by tables and columns.
const (
	PropEngine        = "engine"
	PropCharset       = "charset"
	PropCollation     = "collation"
	PropComment       = "comment"
	PropUnsigned      = "unsigned"
	PropZerofill      = "zerofill"
	PropAutoIncrement = "auto_increment"
)

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     Type
	Length   string // display length or "precision,scale"
	Size     uint64 // maximum storage size in bytes, 0 if unspecified
	Nullable bool
	Default  *string

	Unique     bool
	PrimaryKey bool

	// ForeignKey names the referenced table; ForeignKeyType is the relation
	// recorded for it in the owning table's mappings.
	ForeignKey     string
	ForeignKeyType RelationType

	Properties map[string]string
}

// NewColumn returns a NOT NULL column of type t without properties.
func NewColumn(name string, t Type) *Column {
	return &Column{Name: name, Type: t, Properties: map[string]string{}}
}

type dataType struct {
	t    Type
	size uint64
}

// dataTypes maps catalog data types onto column types and their storage size.
var dataTypes = map[string]dataType{
	"tinyint":           {TypeInt, 1<<8 - 1},
	"smallint":          {TypeInt, 1<<16 - 1},
	"mediumint":         {TypeInt, 1<<24 - 1},
	"int":               {TypeInt, 1<<32 - 1},
	"integer":           {TypeInt, 1<<32 - 1},
	"bigint":            {TypeInt, math.MaxUint64},
	"year":              {TypeInt, 1<<16 - 1},
	"float":             {TypeFloat, 0},
	"real":              {TypeDouble, 0},
	"double":            {TypeDouble, 0},
	"double precision":  {TypeDouble, 0},
	"decimal":           {TypeDecimal, 0},
	"numeric":           {TypeDecimal, 0},
	"bool":              {TypeBool, 0},
	"boolean":           {TypeBool, 0},
	"char":              {TypeVarchar, 0},
	"varchar":           {TypeVarchar, 0},
	"character varying": {TypeVarchar, 0},
	"enum":              {TypeVarchar, 0},
	"set":               {TypeVarchar, 0},
	"uuid":              {TypeVarchar, 0},
	"tinytext":          {TypeText, 1<<8 - 1},
	"text":              {TypeText, 1<<16 - 1},
	"mediumtext":        {TypeText, 1<<24 - 1},
	"longtext":          {TypeText, 1<<32 - 1},
	"json":              {TypeText, 1<<32 - 1},
	"jsonb":             {TypeText, 1<<32 - 1},
	"tinyblob":          {TypeBlob, 1<<8 - 1},
	"blob":              {TypeBlob, 1<<16 - 1},
	"mediumblob":        {TypeBlob, 1<<24 - 1},
	"longblob":          {TypeBlob, 1<<32 - 1},
	"binary":            {TypeBlob, 1<<8 - 1},
	"varbinary":         {TypeBlob, 1<<16 - 1},
	"date":              {TypeDate, 0},
	"time":              {TypeTime, 0},
	"datetime":          {TypeDateTime, 0},
	"timestamp":         {TypeDateTime, 0},
}

// ColumnFromInfo builds a Column from one catalog row. Data types outside
// the known vocabulary become text columns.
func ColumnFromInfo(info introspect.Column) *Column {
	dt, ok := dataTypes[strings.ToLower(info.DataType)]
	if !ok {
		dt = dataType{TypeText, 0}
	}
	c := &Column{
		Name:       info.Name,
		Type:       dt.t,
		Length:     info.Length,
		Size:       dt.size,
		Nullable:   info.Nullable,
		Unique:     info.Unique(),
		PrimaryKey: info.PK(),
		Properties: map[string]string{},
	}
	if dt.t == TypeInt && info.DataType == "tinyint" && info.Length == "1" {
		c.Type, c.Size, c.Length = TypeBool, 0, ""
	}
	switch c.Type {
	case TypeBool, TypeText, TypeBlob, TypeDate, TypeTime, TypeDateTime:
		c.Length = ""
	}
	if info.DataType == "enum" || info.DataType == "set" {
		// member lists do not survive as a varchar length
		c.Length = ""
	}
	if info.Default != nil {
		d := *info.Default
		c.Default = &d
	}
	if info.Charset != "" {
		c.Properties[PropCharset] = info.Charset
	}
	if info.Collation != "" {
		c.Properties[PropCollation] = info.Collation
	}
	c.SetFlag(PropUnsigned, info.Unsigned)
	c.SetFlag(PropZerofill, info.Zerofill)
	c.SetFlag(PropAutoIncrement, info.AutoIncr)
	if target, ok := DecodeColumnComment(info.Comment); ok {
		c.ForeignKey = target
	} else if info.Comment != "" {
		c.Properties[PropComment] = info.Comment
	}
	return c
}

func (c *Column) Property(key string) string {
	return c.Properties[key]
}

func (c *Column) SetProperty(key, value string) {
	if c.Properties == nil {
		c.Properties = map[string]string{}
	}
	if value == "" {
		delete(c.Properties, key)
		return
	}
	c.Properties[key] = value
}

// Flag reports a boolean property such as PropUnsigned.
func (c *Column) Flag(key string) bool {
	return c.Properties[key] == "1"
}

func (c *Column) SetFlag(key string, on bool) {
	if on {
		c.SetProperty(key, "1")
	} else {
		c.SetProperty(key, "")
	}
}

func (c *Column) AutoIncrement() bool { return c.Flag(PropAutoIncrement) }

// Comment is the comment stored in the catalog: the foreign key marker for
// foreign key columns, the free-text comment otherwise.
func (c *Column) Comment() string {
	if c.ForeignKey != "" {
		return EncodeColumnComment(c.ForeignKey)
	}
	return c.Properties[PropComment]
}

func (c *Column) Clone() *Column {
	out := *c
	if c.Default != nil {
		d := *c.Default
		out.Default = &d
	}
	out.Properties = make(map[string]string, len(c.Properties))
	for k, v := range c.Properties {
		out.Properties[k] = v
	}
	return &out
}

// sizeTier picks one of five names by storage size. Size 0 selects fallback.
func sizeTier(size uint64, names [5]string, fallback string) string {
	switch {
	case size == 0:
		return fallback
	case size < 1<<8:
		return names[0]
	case size < 1<<16:
		return names[1]
	case size < 1<<24:
		return names[2]
	case size < 1<<32:
		return names[3]
	}
	return names[4]
}

var (
	intTiers  = [5]string{"TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT"}
	textTiers = [5]string{"TINYTEXT", "TEXT", "MEDIUMTEXT", "LONGTEXT", "LONGTEXT"}
	blobTiers = [5]string{"TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB", "LONGBLOB"}
)

// TypeToString renders the MySQL column type, e.g. "INT(10) UNSIGNED".
func (c *Column) TypeToString() (string, error) {
	withLength := func(name string) string {
		if c.Length == "" {
			return name
		}
		return name + "(" + c.Length + ")"
	}
	var s string
	switch c.Type {
	case TypeInt:
		s = withLength(sizeTier(c.Size, intTiers, "INT"))
		if c.Flag(PropUnsigned) {
			s += " UNSIGNED"
		}
		if c.Flag(PropZerofill) {
			s += " ZEROFILL"
		}
	case TypeFloat:
		s = withLength("FLOAT")
	case TypeDouble:
		s = withLength("DOUBLE")
	case TypeDecimal:
		s = "DECIMAL(" + orDefault(c.Length, "10,0") + ")"
	case TypeBool:
		s = "TINYINT(1)"
	case TypeVarchar:
		s = "VARCHAR(" + orDefault(c.Length, "255") + ")"
	case TypeText:
		s = sizeTier(c.Size, textTiers, "TEXT")
	case TypeBlob:
		s = sizeTier(c.Size, blobTiers, "BLOB")
	case TypeDate:
		s = "DATE"
	case TypeTime:
		s = "TIME"
	case TypeDateTime:
		s = "DATETIME"
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownType, c.Type)
	}
	return s, nil
}

// Definition renders the MySQL column definition used in CREATE and ALTER
// statements, e.g. "`id` INT(10) UNSIGNED NOT NULL AUTO_INCREMENT".
func (c *Column) Definition() (string, error) {
	typ, err := c.TypeToString()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(quoteBacktick(c.Name))
	b.WriteString(" ")
	b.WriteString(typ)
	if c.Type.textual() {
		if cs := c.Properties[PropCharset]; cs != "" {
			b.WriteString(" CHARACTER SET " + cs)
		}
		if co := c.Properties[PropCollation]; co != "" {
			b.WriteString(" COLLATE " + co)
		}
	}
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT " + c.defaultLiteral(quoteMySQLString))
	}
	if c.AutoIncrement() {
		b.WriteString(" AUTO_INCREMENT")
	}
	if comment := c.Comment(); comment != "" {
		b.WriteString(" COMMENT " + quoteMySQLString(comment))
	}
	return b.String(), nil
}

// defaultLiteral renders the default value, quoting it unless the column
// is numeric or boolean or the default is a keyword.
func (c *Column) defaultLiteral(quote func(string) string) string {
	d := *c.Default
	upper := strings.ToUpper(strings.TrimSpace(d))
	switch {
	case upper == "NULL", strings.HasPrefix(upper, "CURRENT_TIMESTAMP"):
		return d
	case c.Type.numeric() || c.Type == TypeBool:
		if d == "" {
			return quote(d)
		}
		return d
	}
	return quote(d)
}

// formatTime renders t in the canonical layout for the column type.
func (c *Column) formatTime(t time.Time) string {
	switch c.Type {
	case TypeDate:
		return t.Format(DateLayout)
	case TypeTime:
		return t.Format(TimeLayout)
	}
	return t.Format(DateTimeLayout)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
