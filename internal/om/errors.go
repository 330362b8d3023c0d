package om

import (
	"errors"
	"fmt"
)

var (
	ErrDependencyUnresolved = errors.New("om: dependency unresolved")
	ErrInvalidState         = errors.New("om: invalid registry state")
	ErrDuplicateListener    = errors.New("om: duplicate listener")
	ErrTornDown             = errors.New("om: registry torn down")
	ErrUnknownListener      = errors.New("om: unknown listener")
)

// Unresolved reports a missing dependency of kind with the given key.
func Unresolved(kind string, key any) error {
	return fmt.Errorf("%w: %s %v", ErrDependencyUnresolved, kind, key)
}
