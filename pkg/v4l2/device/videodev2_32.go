//go:build linux && (386 || arm || mips || mipsle)

package device

type v4l2_format struct {
	typ uint32
	pix v4l2_pix_format
	_   [152]byte
}

type v4l2_buffer struct {
	index     uint32        // 0
	typ       uint32        // 4
	bytesused uint32        // 8
	flags     uint32        // 12
	field     uint32        // 16
	timestamp [8]byte       // 20
	timecode  v4l2_timecode // 28
	sequence  uint32        // 44
	memory    uint32        // 48
	offset    uint32        // 52
	length    uint32        // 56
	reserved2 uint32        // 60
	requestfd int32         // 64
}
