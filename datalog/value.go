package datalog

import (
	"errors"
	"fmt"
	"math"
)

// Value represents any value that can be stored in a Fact.
// Like janus datoms, values are plain Go types behind an interface{}.
type Value interface{}

// Valid value types:
// - string
// - float64 (every number is a float64, as on the wire)
// - bool

// ErrInvalidValue is returned when a value is not a string, number or boolean.
var ErrInvalidValue = errors.New("invalid value")

// ValueType represents the type of a value. The numeric order of the
// constants is the cross-type sort order: boolean < number < string.
type ValueType byte

const (
	TypeBool ValueType = iota + 1
	TypeNumber
	TypeString
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("ValueType(%d)", byte(t))
	}
}

// Helper functions for creating typed values
func String(s string) Value  { return s }
func Number(f float64) Value { return f }
func Bool(b bool) Value      { return b }

// Type returns the type of a value. It panics on values that did not pass
// NormalizeValue; callers inside the core only ever see normalized values.
func Type(v Value) ValueType {
	switch val := v.(type) {
	case string:
		return TypeString
	case float64:
		return TypeNumber
	case bool:
		return TypeBool
	default:
		panic(fmt.Sprintf("unknown value type: %T", val))
	}
}

// NormalizeValue converts Go numeric types to float64 and rejects anything
// that is not a string, number or boolean. Strings are stored exactly as
// given. NaN is rejected: it is not equal to itself. -0 becomes 0.
func NormalizeValue(v interface{}) (Value, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return val, nil
	case float64:
		if math.IsNaN(val) {
			return nil, fmt.Errorf("%w: NaN", ErrInvalidValue)
		}
		if val == 0 {
			return float64(0), nil
		}
		return val, nil
	case float32:
		return NormalizeValue(float64(val))
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case nil:
		return nil, fmt.Errorf("%w: null", ErrInvalidValue)
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
}

// FormatValue renders a value for display: strings bare, numbers without a
// trailing ".0" when integral.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case Bound:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
