package fact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Value is a sealed interface over the attribute value types.
// Only String, Int, Bool and Array implement it. There is no float variant.
type Value interface {
	factValue() // Sealed - only these types implement it
}

// String is a text attribute.
type String string

func (String) factValue() {}

// Int is an integer attribute. Always int64, never float64.
type Int int64

func (Int) factValue() {}

// Bool is a boolean attribute.
type Bool bool

func (Bool) factValue() {}

// Array is an ordered list of values. Order is preserved on disk.
type Array []Value

func (Array) factValue() {}

// TimeLayout is the fixed-width layout used for timestamp attributes.
// Fixed width keeps lexical order equal to chronological order.
const TimeLayout = "2006-01-02T15:04:05Z"

// Time encodes a timestamp as a second-precision UTC string.
// Times are stored as strings so they sort lexically and stay float-free.
func Time(t time.Time) String {
	return String(t.UTC().Format(TimeLayout))
}

// Ints builds an Array of Int values from ids, preserving order.
func Ints(ids []int64) Array {
	arr := make(Array, len(ids))
	for i, id := range ids {
		arr[i] = Int(id)
	}
	return arr
}

// MarshalValue marshals a Value to canonical JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return marshalString(string(val))
	case Int:
		return []byte(fmt.Sprintf("%d", int64(val))), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case nil:
		return nil, fmt.Errorf("null is forbidden in fact attributes")
	default:
		return nil, fmt.Errorf("unknown fact value type: %T", v)
	}
}

// UnmarshalValue decodes a JSON value into a Value.
// Floats, nulls and nested objects are rejected.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return convert(raw)
}

// FromAny converts a plain Go value (as produced by YAML or JSON decoding)
// to a Value. Used by scenario fixtures and the CLI filters.
func FromAny(v any) (Value, error) {
	return convert(v)
}

func convert(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in fact attributes")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in fact attributes: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in fact attributes: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			fv, err := convert(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = fv
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported fact value type: %T", v)
	}
}
