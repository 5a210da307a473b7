//go:build !linux

package ioctl

import (
	"errors"
	"unsafe"
)

const (
	none  = 0
	write = 1
	read  = 2
)

func Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	return errors.New("ioctl: unsupported platform")
}
