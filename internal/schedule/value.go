package schedule

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ValueKind enumerates the variants a Value can hold.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindDate
	KindDecimal
	KindList
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindDecimal:
		return "decimal"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// Value is a closed tagged union used for custom fields and field diffs.
// Exactly one variant is meaningful, selected by Kind.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	bl   bool
	date Date
	dec  decimal.Decimal
	list []string
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a float.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// IntValue wraps an integer as a number.
func IntValue(n int) Value { return NumberValue(float64(n)) }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{kind: KindBool, bl: b} }

// DateValue wraps a date.
func DateValue(d Date) Value { return Value{kind: KindDate, date: d} }

// DecimalValue wraps a decimal amount.
func DecimalValue(d decimal.Decimal) Value { return Value{kind: KindDecimal, dec: d} }

// ListValue wraps a copy of a string list.
func ListValue(items []string) Value {
	return Value{kind: KindList, list: slices.Clone(items)}
}

// Kind reports the held variant.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string variant.
func (v Value) Str() string { return v.str }

// Number returns the numeric variant.
func (v Value) Number() float64 { return v.num }

// Bool returns the bool variant.
func (v Value) Bool() bool { return v.bl }

// Date returns the date variant.
func (v Value) Date() Date { return v.date }

// Decimal returns the decimal variant.
func (v Value) Decimal() decimal.Decimal { return v.dec }

// List returns a copy of the list variant.
func (v Value) List() []string { return slices.Clone(v.list) }

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.bl == o.bl
	case KindDate:
		return v.date.Equal(o.date)
	case KindDecimal:
		return v.dec.Equal(o.dec)
	case KindList:
		return slices.Equal(v.list, o.list)
	default:
		return true
	}
}

// String renders the value for display; lists are comma-separated.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.bl)
	case KindDate:
		return v.date.String()
	case KindDecimal:
		return v.dec.String()
	case KindList:
		return "[" + strings.Join(v.list, ", ") + "]"
	default:
		return ""
	}
}

// MarshalJSON encodes the held variant as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.bl)
	case KindDate:
		return v.date.MarshalJSON()
	case KindDecimal:
		return []byte(v.dec.String()), nil
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes strings, numbers, bools and string lists. Strings
// shaped like YYYY-MM-DD decode as dates.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ValueOf converts a decoded JSON/TOML scalar or string list into a Value.
// Any other shape is rejected so custom fields stay closed.
func ValueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		if len(x) == len(DateLayout) {
			if d, err := ParseDate(x); err == nil {
				return DateValue(d), nil
			}
		}
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case float64:
		return NumberValue(x), nil
	case int64:
		return NumberValue(float64(x)), nil
	case int:
		return NumberValue(float64(x)), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("list items must be strings, got %T", item)
			}
			items = append(items, s)
		}
		return ListValue(items), nil
	case []string:
		return ListValue(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// Fields is a closed key to typed-value map for custom task attributes.
type Fields map[string]Value

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if v.kind == KindList {
			v = ListValue(v.list)
		}
		out[k] = v
	}
	return out
}

// Demand maps a resource type to the units a task occupies while it runs.
type Demand map[string]int

// Clone returns an independent copy.
func (d Demand) Clone() Demand {
	return maps.Clone(d)
}
