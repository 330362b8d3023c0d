// Package dataplane supplies the transport side of fwdctl: an in-memory
// dataplane (Sim), a TCP client implementing hw.Connection over the wire codec,
// and a server that exposes any hw.Connection backend on a listener.
package dataplane
