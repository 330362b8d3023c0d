// Package wire is the framed binary codec spoken between fwdctl and a
// dataplane endpoint.
//
// Every message is one frame: a fixed 24-byte big-endian header followed by a
// payload of TLV fields. Requests carry the object name, command kind and
// arguments; replies carry a retval, dump replies carry one nested TLV record
// per object.
package wire
