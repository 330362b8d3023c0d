package hw

import (
	"errors"
	"fmt"
)

var (
	ErrTransportTimeout   = errors.New("hw: transport timeout")
	ErrTransportFailure   = errors.New("hw: transport failure")
	ErrRejectedByHardware = errors.New("hw: rejected by hardware")
	ErrInvalidKind        = errors.New("hw: invalid command kind")
	ErrNoConnection       = errors.New("hw: no connection")
)

// RejectedError carries the negative result code returned by the dataplane.
type RejectedError struct {
	Cmd    string
	Retval int32
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s retval=%d", ErrRejectedByHardware, e.Cmd, e.Retval)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejectedByHardware
}

// Retval extracts the dataplane result code from a rejection.
func Retval(err error) (int32, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Retval, true
	}
	return 0, false
}
