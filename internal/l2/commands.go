package l2

import (
	"strconv"

	"github.com/danmuck/fwdctl/internal/hw"
)

func u32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

type CreateInterface struct {
	Name string
}

func (c CreateInterface) Kind() hw.Kind { return hw.KindCreate }

func (c CreateInterface) Message() hw.Message {
	return hw.Message{Object: ObjectInterface, Kind: hw.KindCreate, Args: hw.Args{ArgName: c.Name}}
}

func (c CreateInterface) String() string { return "interface-create: " + c.Name }

type DeleteInterface struct {
	Name   string
	Handle uint32
}

func (c DeleteInterface) Kind() hw.Kind { return hw.KindDelete }

func (c DeleteInterface) Message() hw.Message {
	return hw.Message{Object: ObjectInterface, Kind: hw.KindDelete, Args: hw.Args{
		ArgName:      c.Name,
		ArgSwIfIndex: u32(c.Handle),
	}}
}

func (c DeleteInterface) String() string {
	return "interface-delete: " + c.Name + " sw_if_index:" + u32(c.Handle)
}

type DumpInterfaces struct{}

func (DumpInterfaces) Kind() hw.Kind { return hw.KindDump }

func (DumpInterfaces) Message() hw.Message {
	return hw.Message{Object: ObjectInterface, Kind: hw.KindDump}
}

func (DumpInterfaces) String() string { return "interface-dump" }

type CreateBridgeDomain struct {
	ID uint32
}

func (c CreateBridgeDomain) Kind() hw.Kind { return hw.KindCreate }

func (c CreateBridgeDomain) Message() hw.Message {
	return hw.Message{Object: ObjectBridgeDomain, Kind: hw.KindCreate, Args: hw.Args{ArgBDID: u32(c.ID)}}
}

func (c CreateBridgeDomain) String() string { return "bridge-domain-create: " + u32(c.ID) }

type DeleteBridgeDomain struct {
	ID uint32
}

func (c DeleteBridgeDomain) Kind() hw.Kind { return hw.KindDelete }

func (c DeleteBridgeDomain) Message() hw.Message {
	return hw.Message{Object: ObjectBridgeDomain, Kind: hw.KindDelete, Args: hw.Args{ArgBDID: u32(c.ID)}}
}

func (c DeleteBridgeDomain) String() string { return "bridge-domain-delete: " + u32(c.ID) }

type DumpBridgeDomains struct{}

func (DumpBridgeDomains) Kind() hw.Kind { return hw.KindDump }

func (DumpBridgeDomains) Message() hw.Message {
	return hw.Message{Object: ObjectBridgeDomain, Kind: hw.KindDump}
}

func (DumpBridgeDomains) String() string { return "bridge-domain-dump" }

type CreateEntry struct {
	BD       uint32
	MAC      MAC
	TxHandle uint32
}

func (c CreateEntry) Kind() hw.Kind { return hw.KindCreate }

func (c CreateEntry) Message() hw.Message {
	return hw.Message{Object: ObjectL2FIB, Kind: hw.KindCreate, Args: hw.Args{
		ArgBDID:      u32(c.BD),
		ArgMAC:       c.MAC.String(),
		ArgSwIfIndex: u32(c.TxHandle),
	}}
}

func (c CreateEntry) String() string {
	return "l2-fib-create: bd:" + u32(c.BD) + " mac:" + c.MAC.String() + " tx:" + u32(c.TxHandle)
}

type DeleteEntry struct {
	BD  uint32
	MAC MAC
}

func (c DeleteEntry) Kind() hw.Kind { return hw.KindDelete }

func (c DeleteEntry) Message() hw.Message {
	return hw.Message{Object: ObjectL2FIB, Kind: hw.KindDelete, Args: hw.Args{
		ArgBDID: u32(c.BD),
		ArgMAC:  c.MAC.String(),
	}}
}

func (c DeleteEntry) String() string {
	return "l2-fib-delete: bd:" + u32(c.BD) + " mac:" + c.MAC.String()
}

type DumpEntries struct{}

func (DumpEntries) Kind() hw.Kind { return hw.KindDump }

func (DumpEntries) Message() hw.Message {
	return hw.Message{Object: ObjectL2FIB, Kind: hw.KindDump}
}

func (DumpEntries) String() string { return "l2-fib-dump" }
