package hw

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Kind is the closed set of command kinds the dataplane understands.
type Kind uint8

const (
	KindCreate Kind = iota + 1
	KindDelete
	KindDump
)

func (k Kind) Valid() bool {
	return k >= KindCreate && k <= KindDump
}

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	case KindDump:
		return "dump"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Args are the named parameters of one dataplane message or dump record.
type Args map[string]string

func (a Args) String() string {
	keys := slices.Sorted(maps.Keys(a))
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(a[k])
	}
	return b.String()
}

func (a Args) Uint32(key string) (uint32, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(a[key]), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// Message is the transport-neutral form of a command.
type Message struct {
	Object string
	Kind   Kind
	Args   Args
}

func (m Message) String() string {
	return m.Object + "-" + m.Kind.String() + ": " + m.Args.String()
}

// Reply is the dataplane answer to a Create or Delete.
// Negative retvals are rejections; non-negative ones may carry an assigned handle.
type Reply struct {
	Retval int32
}

// Connection is the transport primitive consumed by the issuer.
type Connection interface {
	Call(ctx context.Context, msg Message) (Reply, error)
	Dump(ctx context.Context, msg Message) ([]Args, error)
}

// Cmd is one unit of work for the dataplane. Implementations are comparable
// values so two commands with equal parameters compare equal with ==.
type Cmd interface {
	Kind() Kind
	Message() Message
	String() string
}
