//go:build !unix

package buffer

func Anonymous(size int) Mapper {
	return heap(size)
}
