package l2

import (
	"bytes"
	"fmt"
	"net"
)

// MAC is a comparable 48-bit hardware address.
type MAC [6]byte

// ParseMAC accepts the colon, dash and dot forms handled by net.ParseMAC.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("l2: mac %q is not 48 bits", s)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

func MustParseMAC(s string) MAC {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

func (m MAC) Compare(other MAC) int {
	return bytes.Compare(m[:], other[:])
}
