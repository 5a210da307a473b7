//go:build linux && (amd64 || arm64 || riscv64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || s390x)

package device

// union with pointers, aligned to 8
type v4l2_format struct {
	typ uint32
	_   [4]byte
	pix v4l2_pix_format
	_   [152]byte
}

type v4l2_buffer struct {
	index     uint32        // 0
	typ       uint32        // 4
	bytesused uint32        // 8
	flags     uint32        // 12
	field     uint32        // 16
	_         [4]byte       // 20
	timestamp [16]byte      // 24
	timecode  v4l2_timecode // 40
	sequence  uint32        // 56
	memory    uint32        // 60
	offset    uint32        // 64
	_         [4]byte       // 68
	length    uint32        // 72
	reserved2 uint32        // 76
	requestfd int32         // 80
	_         [4]byte       // 84
}
