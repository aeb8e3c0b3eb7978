package datalog

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Order-preserving value encoding for byte-ordered backends (Badger, Pebble,
// SQLite BLOB columns). bytes.Compare over two encodings agrees with
// CompareValues over the decoded values, including the cross-type order.
//
// Layout: 1 tag byte (the ValueType) followed by
//   - bool:   1 byte, 0 or 1
//   - number: 8 bytes, IEEE-754 bits with the sign bit flipped for positives
//     and every bit flipped for negatives
//   - string: raw bytes with 0x00 escaped as 0x00 0xFF, terminated by 0x00 0x01

const (
	escapeByte     = 0x00
	escapedZero    = 0xFF
	terminatorByte = 0x01
)

// AppendValue appends the order-preserving encoding of v to buf.
func AppendValue(buf []byte, v Value) []byte {
	switch val := v.(type) {
	case bool:
		buf = append(buf, byte(TypeBool))
		if val {
			return append(buf, 1)
		}
		return append(buf, 0)
	case float64:
		buf = append(buf, byte(TypeNumber))
		if val == 0 {
			val = 0 // fold -0 into +0
		}
		bits := math.Float64bits(val)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return binary.BigEndian.AppendUint64(buf, bits)
	case string:
		buf = append(buf, byte(TypeString))
		for i := 0; i < len(val); i++ {
			if val[i] == escapeByte {
				buf = append(buf, escapeByte, escapedZero)
				continue
			}
			buf = append(buf, val[i])
		}
		return append(buf, escapeByte, terminatorByte)
	default:
		panic(fmt.Sprintf("unknown value type: %T", v))
	}
}

// EncodeValues concatenates the encodings of vs.
func EncodeValues(vs ...Value) []byte {
	buf := make([]byte, 0, 16*len(vs))
	for _, v := range vs {
		buf = AppendValue(buf, v)
	}
	return buf
}

// DecodeValue decodes one value from the front of data and returns the
// remaining bytes.
func DecodeValue(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("decode value: empty input")
	}
	tag, data := ValueType(data[0]), data[1:]
	switch tag {
	case TypeBool:
		if len(data) < 1 {
			return nil, nil, fmt.Errorf("decode bool: truncated")
		}
		return data[0] == 1, data[1:], nil
	case TypeNumber:
		if len(data) < 8 {
			return nil, nil, fmt.Errorf("decode number: truncated")
		}
		bits := binary.BigEndian.Uint64(data[:8])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), data[8:], nil
	case TypeString:
		out := make([]byte, 0, len(data))
		for i := 0; i < len(data); i++ {
			if data[i] != escapeByte {
				out = append(out, data[i])
				continue
			}
			if i+1 >= len(data) {
				return nil, nil, fmt.Errorf("decode string: dangling escape")
			}
			switch data[i+1] {
			case terminatorByte:
				return string(out), data[i+2:], nil
			case escapedZero:
				out = append(out, escapeByte)
				i++
			default:
				return nil, nil, fmt.Errorf("decode string: bad escape 0x%02x", data[i+1])
			}
		}
		return nil, nil, fmt.Errorf("decode string: missing terminator")
	default:
		return nil, nil, fmt.Errorf("decode value: unknown type tag 0x%02x", byte(tag))
	}
}

// DecodeValues decodes exactly n values from data.
func DecodeValues(data []byte, n int) ([]Value, error) {
	out := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		v, rest, err := DecodeValue(data)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		out = append(out, v)
		data = rest
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("decode values: %d trailing bytes", len(data))
	}
	return out, nil
}
