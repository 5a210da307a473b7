package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	none  = 0
	write = 1
	read  = 2
)

// Ioctl retries on EINTR, any other errno is returned as is
func Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		}
		return errno
	}
}
