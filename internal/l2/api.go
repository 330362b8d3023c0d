package l2

// Object names and argument keys understood by the dataplane.
const (
	ObjectInterface    = "interface"
	ObjectBridgeDomain = "bridge_domain"
	ObjectL2FIB        = "l2_fib"

	ArgName      = "name"
	ArgSwIfIndex = "sw_if_index"
	ArgBDID      = "bd_id"
	ArgMAC       = "mac"
)

// Dataplane result codes. Zero and positive values are success; Create of an
// interface returns the assigned sw_if_index.
const (
	RetvalOK                 int32 = 0
	RetvalInvalidArgument    int32 = -1
	RetvalInvalidSwIfIndex   int32 = -2
	RetvalNoSuchBridgeDomain int32 = -3
	RetvalInUse              int32 = -4
	RetvalUnsupported        int32 = -5
	RetvalNoSuchEntry        int32 = -6
)

// DefaultBridgeDomain always exists in the dataplane and is never deleted.
const DefaultBridgeDomain uint32 = 0
