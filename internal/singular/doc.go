// Package singular provides a deduplicating keyed store that hands out one
// shared instance per key and counts the holders of each instance.
//
// Release never deletes. An instance whose count reaches zero stays visible to
// Find until the owner removes it, so dependency lookups made during a sweep
// keep resolving.
package singular
