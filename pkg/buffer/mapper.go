package buffer

// Heap - regular Go memory, for platforms without mmap and for tests
func Heap(size int) Mapper {
	return heap(size)
}

type heap int

func (h heap) Map(int) ([]byte, error) {
	return make([]byte, h), nil
}

func (h heap) Unmap(int, []byte) error {
	return nil
}
