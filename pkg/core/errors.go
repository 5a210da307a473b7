package core

import (
	"errors"
)

// Fatal for the component, requires full reconfiguration
var (
	ErrConfig = errors.New("configuration error")
	ErrFormat = wrap(ErrConfig, "format rejected")
)

var (
	// ErrResource - mapping or allocation failure, partial resources already released
	ErrResource = errors.New("resource error")

	// ErrDevice - device level I/O failure, the ring or pipeline must be rebuilt
	ErrDevice = errors.New("device error")

	// ErrBackpressure - no free buffer, caller may retry or drop the frame
	ErrBackpressure = errors.New("no free buffer")

	// ErrHardwareEvent - error event reported by the accelerator
	ErrHardwareEvent = errors.New("hardware error event")

	ErrClosed  = errors.New("closed")
	ErrTimeout = errors.New("timeout")
)

type wrapped struct {
	parent error
	msg    string
}

func wrap(parent error, msg string) error {
	return &wrapped{parent: parent, msg: msg}
}

func (e *wrapped) Error() string {
	return e.msg
}

func (e *wrapped) Unwrap() error {
	return e.parent
}

// Any return first non nil error
func Any(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
