// Package om coordinates the lifecycle of dataplane objects across all object
// kinds.
//
// A Registry holds one Listener per kind, ordered by Dependency rank. It reads
// existing state at boot (Populate), records which client session wants which
// object (Write, Release, Mark), re-creates applied objects after a reconnect
// (Replay) and deletes objects nobody references (Sweep). All of these run
// under one lock, so no two commands for the same object are ever in flight.
package om
