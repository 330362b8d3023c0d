package hw

import "fmt"

// Status is the reconciliation state of one Item.
type Status uint8

const (
	StatusUnset Status = iota
	StatusPending
	StatusApplied
	StatusFailed
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusPending:
		return "pending"
	case StatusApplied:
		return "applied"
	case StatusFailed:
		return "failed"
	case StatusStale:
		return "stale"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Item is a value together with whether it is reflected in the dataplane.
type Item[T comparable] struct {
	data   T
	status Status
}

func NewItem[T comparable](data T) Item[T] {
	return Item[T]{data: data}
}

// AppliedItem builds an item for state read back from the dataplane.
func AppliedItem[T comparable](data T) Item[T] {
	return Item[T]{data: data, status: StatusApplied}
}

func (i Item[T]) Data() T {
	return i.data
}

func (i Item[T]) Status() Status {
	return i.status
}

func (i Item[T]) Applied() bool {
	return i.status == StatusApplied
}

// Current reports whether want is already applied; no command is needed.
func (i Item[T]) Current(want T) bool {
	return i.status == StatusApplied && i.data == want
}

// Invalidate marks an applied value as superseded by a new desired value.
// The stale value is still in the dataplane until its Delete goes through.
func (i *Item[T]) Invalidate() {
	if i.status == StatusApplied {
		i.status = StatusStale
	}
}

// Restore undoes Invalidate when the stale value could not be removed. A
// timeout leaves the item pending since the Delete may have landed.
func (i *Item[T]) Restore(err error) {
	if i.status != StatusStale {
		return
	}
	if isTimeout(err) {
		i.status = StatusPending
		return
	}
	i.status = StatusApplied
}

// Begin records want as the value now in flight.
func (i *Item[T]) Begin(want T) {
	i.data = want
	i.status = StatusPending
}

// Resolve settles a pending item from the command outcome.
// A timeout leaves the item pending: the dataplane may or may not have applied it.
func (i *Item[T]) Resolve(err error) {
	if i.status != StatusPending {
		return
	}
	i.status = statusFor(err)
}

// ResolveWith settles a pending item whose value is assigned by the dataplane.
func (i *Item[T]) ResolveWith(data T, err error) {
	if i.status != StatusPending {
		return
	}
	if err == nil {
		i.data = data
	}
	i.status = statusFor(err)
}

// Fail marks the item failed without issuing anything.
func (i *Item[T]) Fail() {
	i.status = StatusFailed
}

// Clear returns the item to unset after the object was removed from the dataplane.
func (i *Item[T]) Clear() {
	i.status = StatusUnset
}

func (i Item[T]) String() string {
	return fmt.Sprintf("[%v:%s]", i.data, i.status)
}

func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusApplied
	case isTimeout(err):
		return StatusPending
	default:
		return StatusFailed
	}
}
