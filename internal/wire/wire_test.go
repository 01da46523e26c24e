package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeDecodeScalarFields(t *testing.T) {
	e := NewEncoder()
	e.String(1, "hello")
	e.Varint(2, 42)
	e.ByteField(3, []byte{0xde, 0xad})

	var gotString string
	var gotVarint uint64
	var gotBytes []byte

	require.NoError(t, NewDecoder(e.Bytes()).Walk(func(f Field) error {
		switch f.Number {
		case 1:
			gotString = f.AsString()
		case 2:
			gotVarint = f.Varint
		case 3:
			gotBytes = f.Raw
		}
		return nil
	}))

	assert.Equal(t, "hello", gotString)
	assert.Equal(t, uint64(42), gotVarint)
	assert.Equal(t, []byte{0xde, 0xad}, gotBytes)
}

func TestEncodeOmitsEmptyOptionalFields(t *testing.T) {
	e := NewEncoder()
	e.String(1, "")
	e.ByteField(2, nil)
	e.Bool(3, false)
	assert.Empty(t, e.Bytes())
}

func TestEncodeMessageNestsSubmessage(t *testing.T) {
	e := NewEncoder()
	e.Message(1, func(sub *Encoder) {
		sub.String(1, "inner")
	})

	var innerValue string
	require.NoError(t, NewDecoder(e.Bytes()).Walk(func(f Field) error {
		require.Equal(t, protowire.Number(1), f.Number)
		require.NoError(t, NewDecoder(f.Raw).Walk(func(inner Field) error {
			innerValue = inner.AsString()
			return nil
		}))
		return nil
	}))
	assert.Equal(t, "inner", innerValue)
}

func TestRepeatedEncodesOnePerItem(t *testing.T) {
	e := NewEncoder()
	Repeated(e, 5, []string{"a", "b", "c"}, func(sub *Encoder, item string) {
		sub.String(1, item)
	})

	var got []string
	require.NoError(t, NewDecoder(e.Bytes()).Walk(func(f Field) error {
		require.Equal(t, protowire.Number(5), f.Number)
		return NewDecoder(f.Raw).Walk(func(inner Field) error {
			got = append(got, inner.AsString())
			return nil
		})
	}))
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestWalkRejectsMalformedTag(t *testing.T) {
	err := NewDecoder([]byte{0xff}).Walk(func(Field) error { return nil })
	assert.Error(t, err)
}
