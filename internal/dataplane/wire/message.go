package wire

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/danmuck/fwdctl/internal/hw"
)

// RemoteError is an error reported by the peer in a TypeError frame.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "wire: remote error: " + e.Message
}

func Request(id uint64, msg hw.Message) Frame {
	fields := []Field{String(IDObject, msg.Object), U8(IDKind, uint8(msg.Kind))}
	fields = append(fields, argFields(msg.Args)...)
	return Frame{
		Header:  Header{ID: id, Type: TypeRequest},
		Payload: EncodeFields(fields...),
	}
}

func DecodeRequest(f Frame) (hw.Message, error) {
	if f.Type() != TypeRequest {
		return hw.Message{}, fmt.Errorf("%w: %s", ErrUnexpectedType, f.Type())
	}
	fields, err := DecodeFields(f.Payload)
	if err != nil {
		return hw.Message{}, err
	}
	objField, ok := first(fields, IDObject)
	if !ok {
		return hw.Message{}, fmt.Errorf("%w: object", ErrMissingField)
	}
	object, err := objField.Str()
	if err != nil {
		return hw.Message{}, err
	}
	kindField, ok := first(fields, IDKind)
	if !ok {
		return hw.Message{}, fmt.Errorf("%w: kind", ErrMissingField)
	}
	kind, err := kindField.U8()
	if err != nil {
		return hw.Message{}, err
	}
	args, err := decodeArgs(fields)
	if err != nil {
		return hw.Message{}, err
	}
	return hw.Message{Object: object, Kind: hw.Kind(kind), Args: args}, nil
}

func Reply(id uint64, reply hw.Reply) Frame {
	return Frame{
		Header:  Header{ID: id, Type: TypeReply, Flags: FlagResponse},
		Payload: EncodeFields(U32(IDRetval, uint32(reply.Retval))),
	}
}

func DecodeReply(f Frame) (hw.Reply, error) {
	if err := remote(f); err != nil {
		return hw.Reply{}, err
	}
	if f.Type() != TypeReply {
		return hw.Reply{}, fmt.Errorf("%w: %s", ErrUnexpectedType, f.Type())
	}
	fields, err := DecodeFields(f.Payload)
	if err != nil {
		return hw.Reply{}, err
	}
	rv, ok := first(fields, IDRetval)
	if !ok {
		return hw.Reply{}, fmt.Errorf("%w: retval", ErrMissingField)
	}
	v, err := rv.U32()
	if err != nil {
		return hw.Reply{}, err
	}
	return hw.Reply{Retval: int32(v)}, nil
}

func DumpReply(id uint64, records []hw.Args) Frame {
	fields := make([]Field, 0, len(records))
	for _, rec := range records {
		fields = append(fields, Bytes(IDRecord, EncodeFields(argFields(rec)...)))
	}
	return Frame{
		Header:  Header{ID: id, Type: TypeDumpReply, Flags: FlagResponse},
		Payload: EncodeFields(fields...),
	}
}

func DecodeDumpReply(f Frame) ([]hw.Args, error) {
	if err := remote(f); err != nil {
		return nil, err
	}
	if f.Type() != TypeDumpReply {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedType, f.Type())
	}
	fields, err := DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	records := make([]hw.Args, 0, len(fields))
	for _, rf := range all(fields, IDRecord) {
		if rf.Type != FieldBytes {
			return nil, fmt.Errorf("%w: record", ErrFieldType)
		}
		inner, err := DecodeFields(rf.Value)
		if err != nil {
			return nil, err
		}
		args, err := decodeArgs(inner)
		if err != nil {
			return nil, err
		}
		if args == nil {
			args = hw.Args{}
		}
		records = append(records, args)
	}
	return records, nil
}

func Error(id uint64, err error) Frame {
	return Frame{
		Header:  Header{ID: id, Type: TypeError, Flags: FlagResponse | FlagError},
		Payload: EncodeFields(String(IDError, err.Error())),
	}
}

func Ping(id uint64) Frame {
	return Frame{Header: Header{ID: id, Type: TypePing}}
}

func Pong(id uint64) Frame {
	return Frame{Header: Header{ID: id, Type: TypePong, Flags: FlagResponse}}
}

func remote(f Frame) error {
	if f.Type() != TypeError {
		return nil
	}
	fields, err := DecodeFields(f.Payload)
	if err != nil {
		return err
	}
	msg := "unknown"
	if ef, ok := first(fields, IDError); ok {
		if s, err := ef.Str(); err == nil {
			msg = s
		}
	}
	return &RemoteError{Message: msg}
}

// argFields encodes args as sorted "key=value" strings.
func argFields(args hw.Args) []Field {
	keys := slices.Sorted(maps.Keys(args))
	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, String(IDArg, k+"="+args[k]))
	}
	return out
}

func decodeArgs(fields []Field) (hw.Args, error) {
	var args hw.Args
	for _, f := range all(fields, IDArg) {
		s, err := f.Str()
		if err != nil {
			return nil, err
		}
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: arg %q", ErrFieldEncoding, s)
		}
		if args == nil {
			args = make(hw.Args)
		}
		args[k] = v
	}
	return args, nil
}
