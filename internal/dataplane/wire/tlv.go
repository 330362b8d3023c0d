package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const fieldHeaderLen = 7

var (
	ErrShortField    = errors.New("wire: short field")
	ErrFieldType     = errors.New("wire: field type mismatch")
	ErrMissingField  = errors.New("wire: missing field")
	ErrFieldEncoding = errors.New("wire: bad field encoding")
)

type FieldType uint8

const (
	FieldU8 FieldType = iota + 1
	FieldU32
	FieldString
	FieldBytes
)

// Field ids used in payloads.
const (
	IDObject uint16 = 1
	IDKind   uint16 = 2
	IDArg    uint16 = 3
	IDRetval uint16 = 4
	IDRecord uint16 = 5
	IDError  uint16 = 6
)

type Field struct {
	ID    uint16
	Type  FieldType
	Value []byte
}

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: FieldU8, Value: []byte{v}}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: FieldU32, Value: buf}
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: FieldString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: FieldBytes, Value: append([]byte(nil), v...)}
}

func (f Field) U8() (uint8, error) {
	if f.Type != FieldU8 {
		return 0, fmt.Errorf("%w: field %d", ErrFieldType, f.ID)
	}
	if len(f.Value) != 1 {
		return 0, fmt.Errorf("%w: field %d u8 length %d", ErrFieldEncoding, f.ID, len(f.Value))
	}
	return f.Value[0], nil
}

func (f Field) U32() (uint32, error) {
	if f.Type != FieldU32 {
		return 0, fmt.Errorf("%w: field %d", ErrFieldType, f.ID)
	}
	if len(f.Value) != 4 {
		return 0, fmt.Errorf("%w: field %d u32 length %d", ErrFieldEncoding, f.ID, len(f.Value))
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

func (f Field) Str() (string, error) {
	if f.Type != FieldString {
		return "", fmt.Errorf("%w: field %d", ErrFieldType, f.ID)
	}
	return string(f.Value), nil
}

func EncodeFields(fields ...Field) []byte {
	size := 0
	for _, f := range fields {
		size += fieldHeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		var head [fieldHeaderLen]byte
		binary.BigEndian.PutUint16(head[0:2], f.ID)
		head[2] = byte(f.Type)
		binary.BigEndian.PutUint32(head[3:7], uint32(len(f.Value)))
		out = append(out, head[:]...)
		out = append(out, f.Value...)
	}
	return out
}

// DecodeFields keeps unknown field ids so newer peers can add fields.
func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 4)
	for i := 0; i < len(payload); {
		if len(payload)-i < fieldHeaderLen {
			return nil, ErrShortField
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		ft := FieldType(payload[i+2])
		n := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += fieldHeaderLen
		if uint64(n) > uint64(len(payload)-i) {
			return nil, ErrShortField
		}
		value := make([]byte, n)
		copy(value, payload[i:i+int(n)])
		i += int(n)
		fields = append(fields, Field{ID: id, Type: ft, Value: value})
	}
	return fields, nil
}

func first(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func all(fields []Field, id uint16) []Field {
	var out []Field
	for _, f := range fields {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}
