// Package hw owns the result-tracking command protocol toward the dataplane.
//
// Ownership boundary:
// - result items (value + reconciliation status)
// - command kinds and the connection contract
// - synchronous, bounded-time command issue
//
// hw does not know which objects exist; entity packages build commands and
// record the outcome in their own items.
package hw
