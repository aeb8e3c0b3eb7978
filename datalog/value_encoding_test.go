package datalog

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEncodingPreservesOrder(t *testing.T) {
	values := []Value{
		false, true,
		math.Inf(-1), -1e9, -2.5, -1.0, 0.0, 0.25, 1.0, 7.0, 1e12, math.Inf(1),
		"", "\x00", "\x00\x00", "\x01", "a", "a\x00", "a\x00b", "ab", "b", "é",
	}

	for i := range values {
		for j := range values {
			want := CompareValues(values[i], values[j])
			got := bytes.Compare(EncodeValues(values[i]), EncodeValues(values[j]))
			if want != got {
				t.Errorf("order mismatch for %q vs %q: compare=%d bytes=%d",
					values[i], values[j], want, got)
			}
		}
	}
}

func TestValueEncodingTupleOrder(t *testing.T) {
	// Prefix strings inside a tuple must not leak into the next column.
	a := EncodeValues("a", "z")
	b := EncodeValues("ab", "a")
	assert.Equal(t, -1, bytes.Compare(a, b))
}

func TestValueEncodingRoundTrip(t *testing.T) {
	in := []Value{"hello\x00world", -3.75, true, "", 0.0}
	decoded, err := DecodeValues(EncodeValues(in...), len(in))
	require.NoError(t, err)
	assert.Equal(t, in, decoded)
}

func TestValueEncodingNegativeZero(t *testing.T) {
	assert.Equal(t, EncodeValues(0.0), EncodeValues(math.Copysign(0, -1)))
}

func TestDecodeValueErrors(t *testing.T) {
	_, _, err := DecodeValue(nil)
	assert.Error(t, err)

	_, _, err = DecodeValue([]byte{byte(TypeNumber), 1, 2})
	assert.Error(t, err)

	_, _, err = DecodeValue([]byte{byte(TypeString), 'a', 'b'})
	assert.Error(t, err)

	_, _, err = DecodeValue([]byte{0x7f})
	assert.Error(t, err)

	_, err = DecodeValues(append(EncodeValues("a"), 0x01), 1)
	assert.Error(t, err)
}
