// Package agent runs fwdctl as a long-lived process: it connects to the
// dataplane, adopts existing state, applies the desired-state file, keeps the
// session alive with heartbeats and replays desired state after a reconnect.
package agent
