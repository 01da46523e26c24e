// Package wire implements a generic binding between Go structs and the
// service's length-prefixed binary message format. Each message type
// supplies its own encode function (a sequence of Encoder calls) and a
// decode visitor passed to Decoder.Walk; the codec does not know message
// shapes ahead of time, only how to walk fields.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/fliper/connectd/internal/ctlerr"
)

// Encoder accumulates a single message's encoded bytes.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated encoded message.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// String appends a length-delimited string field.
func (e *Encoder) String(field protowire.Number, s string) {
	if s == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, field, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, s)
}

// ByteField appends a length-delimited byte field.
func (e *Encoder) ByteField(field protowire.Number, b []byte) {
	if len(b) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, field, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
}

// Varint appends a varint field unconditionally (zero is a meaningful
// value for counters and indices).
func (e *Encoder) Varint(field protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, field, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

// Bool appends a varint boolean field, only when true — absent means
// false per the optional/has_value convention used throughout.
func (e *Encoder) Bool(field protowire.Number, b bool) {
	if !b {
		return
	}
	e.Varint(field, 1)
}

// Message appends a length-delimited submessage built by encode.
func (e *Encoder) Message(field protowire.Number, encode func(*Encoder)) {
	sub := NewEncoder()
	encode(sub)
	e.buf = protowire.AppendTag(e.buf, field, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, sub.Bytes())
}

// Repeated calls encodeOne once per item, each producing its own
// length-delimited submessage under the same field number — the wire
// representation of a repeated message field.
func Repeated[T any](e *Encoder, field protowire.Number, items []T, encodeOne func(*Encoder, T)) {
	for _, item := range items {
		e.Message(field, func(sub *Encoder) { encodeOne(sub, item) })
	}
}

// Decoder walks a message's fields in wire order, handing each one to a
// caller-supplied visitor.
type Decoder struct {
	data []byte
}

// NewDecoder wraps a message's raw bytes for field-by-field decoding.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Field is one decoded field: its number, wire type, and raw value
// bytes (for BytesType) or raw varint (for VarintType, decoded already).
type Field struct {
	Number protowire.Number
	Type   protowire.Type
	Raw    []byte
	Varint uint64
}

// Walk invokes visit once per top-level field until the message is
// exhausted or visit returns an error.
func (d *Decoder) Walk(visit func(Field) error) error {
	b := d.data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ctlerr.New(ctlerr.BadMessage, "malformed wire tag", nil)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ctlerr.New(ctlerr.BadMessage, "malformed wire varint", nil)
			}
			b = b[n:]
			if err := visit(Field{Number: num, Type: typ, Varint: v}); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ctlerr.New(ctlerr.BadMessage, "malformed wire bytes field", nil)
			}
			b = b[n:]
			if err := visit(Field{Number: num, Type: typ, Raw: v}); err != nil {
				return err
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return ctlerr.New(ctlerr.BadMessage, "malformed wire fixed32", nil)
			}
			b = b[n:]
			if err := visit(Field{Number: num, Type: typ, Varint: uint64(v)}); err != nil {
				return err
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return ctlerr.New(ctlerr.BadMessage, "malformed wire fixed64", nil)
			}
			b = b[n:]
			if err := visit(Field{Number: num, Type: typ, Varint: v}); err != nil {
				return err
			}
		default:
			return ctlerr.New(ctlerr.BadMessage, fmt.Sprintf("unsupported wire type %v", typ), nil)
		}
	}
	return nil
}

// AsString returns the field's bytes interpreted as a string.
func (f Field) AsString() string {
	return string(f.Raw)
}
