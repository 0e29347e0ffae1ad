package orm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical layouts used when temporal values are written back to storage.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02 15:04:05"
)

var parseLayouts = []string{
	DateTimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	DateLayout,
	TimeLayout,
}

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueText
	ValueBytes
	ValueTime
)

// Value is a single field value as read from or written to a record.
// The zero Value is SQL NULL.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    []byte
	t    time.Time
}

func Null() Value { return Value{} }

func Int(i int64) Value { return Value{kind: ValueInt, i: i} }

func Float(f float64) Value { return Value{kind: ValueFloat, f: f} }

func Text(s string) Value { return Value{kind: ValueText, s: s} }

func Time(t time.Time) Value { return Value{kind: ValueTime, t: t} }

func Bytes(b []byte) Value { return Value{kind: ValueBytes, b: b} }

func Bool(b bool) Value {
	if b {
		return Value{kind: ValueBool, i: 1}
	}
	return Value{kind: ValueBool}
}

// ValueOf converts a Go value into a Value. Unsupported types are stored in
// their fmt representation.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case *Value:
		if x == nil {
			return Null()
		}
		return *x
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return unsigned(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case bool:
		return Bool(x)
	case string:
		return Text(x)
	case *string:
		if x == nil {
			return Null()
		}
		return Text(*x)
	case []byte:
		return Bytes(x)
	case time.Time:
		return Time(x)
	case fmt.Stringer:
		return Text(x.String())
	default:
		return Text(fmt.Sprint(x))
	}
}

// unsigned keeps values above the int64 range as decimal text.
func unsigned(x uint64) Value {
	if x > math.MaxInt64 {
		return Text(strconv.FormatUint(x, 10))
	}
	return Int(int64(x))
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNull() bool { return v.kind == ValueNull }

// IsEmpty reports whether v is NULL or a zero-length text or byte value.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case ValueNull:
		return true
	case ValueText:
		return v.s == ""
	case ValueBytes:
		return len(v.b) == 0
	}
	return false
}

// String renders v the way it is written to text formats. NULL renders as
// the empty string; booleans as 1 or 0.
func (v Value) String() string {
	switch v.kind {
	case ValueInt, ValueBool:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case ValueText:
		return v.s
	case ValueBytes:
		return string(v.b)
	case ValueTime:
		return v.t.Format(DateTimeLayout)
	}
	return ""
}

// Any returns the driver argument for v.
func (v Value) Any() any {
	switch v.kind {
	case ValueInt:
		return v.i
	case ValueFloat:
		return v.f
	case ValueBool:
		return v.i != 0
	case ValueText:
		return v.s
	case ValueBytes:
		return v.b
	case ValueTime:
		return v.t
	}
	return nil
}

func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case ValueInt, ValueBool:
		return v.i, true
	case ValueFloat:
		return int64(v.f), true
	case ValueText:
		i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case ValueInt, ValueBool:
		return float64(v.i), true
	case ValueFloat:
		return v.f, true
	case ValueText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool reports the truth of v. Text is parsed with strconv.ParseBool.
func (v Value) Bool() bool {
	switch v.kind {
	case ValueInt, ValueBool:
		return v.i != 0
	case ValueFloat:
		return v.f != 0
	case ValueText:
		b, _ := strconv.ParseBool(strings.TrimSpace(v.s))
		return b
	}
	return false
}

// Time returns the instant held by v, parsing text in any of the accepted
// date and time layouts.
func (v Value) Time() (time.Time, bool) {
	switch v.kind {
	case ValueTime:
		return v.t, true
	case ValueText, ValueBytes:
		s := strings.TrimSpace(v.String())
		for _, layout := range parseLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Equal reports whether v and o hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueInt, ValueBool:
		return v.i == o.i
	case ValueFloat:
		return v.f == o.f
	case ValueText:
		return v.s == o.s
	case ValueBytes:
		return bytes.Equal(v.b, o.b)
	case ValueTime:
		return v.t.Equal(o.t)
	}
	return true
}

// fromDriver converts a scanned driver value into a Value typed for t.
func fromDriver(t Type, src any) Value {
	switch x := src.(type) {
	case nil:
		return Null()
	case []byte:
		if t == TypeBlob {
			return Bytes(bytes.Clone(x))
		}
		return parseAs(t, string(x))
	case string:
		return parseAs(t, x)
	case int64:
		if t == TypeBool {
			return Bool(x != 0)
		}
		return Int(x)
	case float64:
		return Float(x)
	case bool:
		return Bool(x)
	case time.Time:
		return Time(x)
	}
	return ValueOf(src)
}

// parseAs interprets s as a value of type t. Text that does not parse is
// kept verbatim.
func parseAs(t Type, s string) Value {
	switch t {
	case TypeInt:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
	case TypeFloat, TypeDouble:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
	case TypeBool:
		if b, err := strconv.ParseBool(s); err == nil {
			return Bool(b)
		}
	case TypeDate, TypeTime, TypeDateTime:
		if tm, ok := Text(s).Time(); ok {
			return Time(tm)
		}
	case TypeBlob:
		return Bytes([]byte(s))
	}
	return Text(s)
}

// encodeText renders v for a text export format. Blobs are base64 encoded.
func encodeText(c *Column, v Value) string {
	if c != nil && c.Type == TypeBlob && v.kind == ValueBytes {
		return base64.StdEncoding.EncodeToString(v.b)
	}
	if c != nil && v.kind == ValueTime {
		return c.formatTime(v.t)
	}
	return v.String()
}

// decodeText is the inverse of encodeText.
func decodeText(c *Column, s string) (Value, error) {
	if c.Type == TypeBlob {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Null(), fmt.Errorf("%s: %w", c.Name, err)
		}
		return Bytes(b), nil
	}
	return parseAs(c.Type, s), nil
}
