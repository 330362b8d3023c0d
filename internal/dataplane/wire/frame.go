package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic     uint32 = 0xF3D0C7A1
	Version   uint16 = 1
	HeaderLen uint16 = 24

	FlagResponse uint16 = 0x01
	FlagError    uint16 = 0x02
)

// MessageType tags the payload layout of a frame.
type MessageType uint16

const (
	TypeRequest MessageType = iota + 1
	TypeReply
	TypeDumpReply
	TypePing
	TypePong
	TypeError
)

func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeReply:
		return "reply"
	case TypeDumpReply:
		return "dump-reply"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypeError:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", uint16(t))
	}
}

var (
	ErrShortHeader     = errors.New("wire: short header")
	ErrBadMagic        = errors.New("wire: bad magic")
	ErrBadVersion      = errors.New("wire: unsupported version")
	ErrBadHeaderLen    = errors.New("wire: bad header length")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	ErrUnexpectedType  = errors.New("wire: unexpected message type")
)

type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	ID         uint64
	Type       MessageType
	Flags      uint16
	PayloadLen uint32
}

// Frame is one message on the wire.
type Frame struct {
	Header  Header
	Payload []byte
}

func (f Frame) ID() uint64 {
	return f.Header.ID
}

func (f Frame) Type() MessageType {
	return f.Header.Type
}

type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 4 * 1024 * 1024}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame fills in magic, version and lengths before writing f.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = HeaderLen
	h.PayloadLen = uint32(len(f.Payload))

	buf := make([]byte, 0, int(HeaderLen)+len(f.Payload))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.ID)
	binary.BigEndian.PutUint16(buf[16:18], uint16(h.Type))
	binary.BigEndian.PutUint16(buf[18:20], h.Flags)
	binary.BigEndian.PutUint32(buf[20:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(HeaderLen) {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:  binary.BigEndian.Uint16(b[6:8]),
		ID:         binary.BigEndian.Uint64(b[8:16]),
		Type:       MessageType(binary.BigEndian.Uint16(b[16:18])),
		Flags:      binary.BigEndian.Uint16(b[18:20]),
		PayloadLen: binary.BigEndian.Uint32(b[20:24]),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	if h.Version != Version {
		return Header{}, ErrBadVersion
	}
	if h.HeaderLen != HeaderLen {
		return Header{}, ErrBadHeaderLen
	}
	return h, nil
}
