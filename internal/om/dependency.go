package om

import "strconv"

// Dependency ranks object kinds. Kinds with a lower rank are populated and
// replayed first and swept last.
type Dependency int

const (
	DepGlobal Dependency = iota
	DepInterface
	DepTable
	DepForwardingDomain
	DepVirtualInterface
	DepBinding
	DepEntry
)

func (d Dependency) String() string {
	switch d {
	case DepGlobal:
		return "global"
	case DepInterface:
		return "interface"
	case DepTable:
		return "table"
	case DepForwardingDomain:
		return "forwarding-domain"
	case DepVirtualInterface:
		return "virtual-interface"
	case DepBinding:
		return "binding"
	case DepEntry:
		return "entry"
	default:
		return "dependency(" + strconv.Itoa(int(d)) + ")"
	}
}
