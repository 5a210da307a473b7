package device

import "syscall"

// ErrNotReady - non-blocking dequeue found no filled buffer
var ErrNotReady error = syscall.EAGAIN
