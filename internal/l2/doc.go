// Package l2 holds the layer-2 forwarding objects: interfaces, bridge domains
// and the MAC entries of each domain's forwarding table.
//
// Clients build a desired value with a Model constructor and hand it to
// om.Registry.Write. Commit resolves the value to the canonical instance in the
// kind's singular store and issues only the commands needed to reach it.
// Entries hold references on their bridge domain and egress interface; the
// reverse never happens.
package l2
