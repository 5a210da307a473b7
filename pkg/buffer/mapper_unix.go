//go:build unix

package buffer

import (
	"os"

	"golang.org/x/sys/unix"
)

// Anonymous - page aligned private mapping per slot
func Anonymous(size int) Mapper {
	return anonymous(size)
}

type anonymous int

func (a anonymous) Map(int) ([]byte, error) {
	page := os.Getpagesize()
	n := (int(a) + page - 1) / page * page

	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return b[:a], nil
}

func (a anonymous) Unmap(_ int, b []byte) error {
	// munmap wants the whole mapping back, len == cap
	return unix.Munmap(b[:cap(b)])
}
