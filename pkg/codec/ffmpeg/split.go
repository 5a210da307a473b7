package ffmpeg

import (
	"bufio"
	"bytes"
	"io"
)

// splitRaw - fixed size frames, a short tail is an error
func splitRaw(size int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if len(data) >= size {
			return size, data[:size], nil
		}
		if atEOF && len(data) > 0 {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return 0, nil, nil
	}
}

var (
	markerSOI = []byte{0xFF, 0xD8}
	markerEOI = []byte{0xFF, 0xD9}
)

// splitJPEG - from SOI to EOI, bytes between images are skipped.
// Entropy coded data never contains a bare EOI because of byte stuffing.
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	i := bytes.Index(data, markerSOI)
	if i < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// last byte may be the first half of SOI
		return max(len(data)-1, 0), nil, nil
	}

	j := bytes.Index(data[i+2:], markerEOI)
	if j < 0 {
		if atEOF {
			return len(data), nil, nil // truncated image
		}
		return i, nil, nil
	}

	end := i + 2 + j + 2
	return end, data[i:end], nil
}

func isAUDH264(b byte) bool {
	return b&0x1F == 9
}

func isAUDH265(b byte) bool {
	return (b>>1)&0x3F == 35
}

// splitAnnexB - one access unit from an AUD to the next one.
// The stream must have AUDs, the last unit is returned at EOF.
func splitAnnexB(isAUD func(b byte) bool) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		start := indexAUD(data, 0, isAUD)
		if start < 0 {
			if atEOF {
				return len(data), nil, nil
			}
			return 0, nil, nil
		}

		next := indexAUD(data, start+4, isAUD)
		if next < 0 {
			if atEOF {
				return len(data), data[start:], nil
			}
			return start, nil, nil
		}

		return next, data[start:next], nil
	}
}

// indexAUD returns the position of the AUD start code, including the zero_byte of a 4 bytes code
func indexAUD(data []byte, from int, isAUD func(b byte) bool) int {
	for i := from; i+3 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 || !isAUD(data[i+3]) {
			continue
		}
		if i > from && data[i-1] == 0 {
			return i - 1
		}
		return i
	}
	return -1
}
