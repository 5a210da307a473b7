package core

const (
	KindVideo = "video"
)

// Encodings understood by capture devices and codec ports
const (
	CodecJPEG  = "JPEG"
	CodecMJPEG = "MJPEG"
	CodecH264  = "H264"
	CodecH265  = "H265"
	CodecI420  = "I420" // planar 4:2:0, Y then U then V
	CodecNV12  = "NV12"
	CodecYUYV  = "YUYV" // packed 4:2:2
)

// IsRaw - encoding with a fixed frame size for a given geometry
func IsRaw(encoding string) bool {
	switch encoding {
	case CodecI420, CodecNV12, CodecYUYV:
		return true
	}
	return false
}

// ParseCodec accepts ffmpeg-like names (mjpeg, yuv420p, yuyv422)
func ParseCodec(s string) string {
	switch s {
	case "jpeg", "jpg", "JPEG":
		return CodecJPEG
	case "mjpeg", "MJPEG", "mjpg":
		return CodecMJPEG
	case "h264", "H264":
		return CodecH264
	case "h265", "hevc", "H265":
		return CodecH265
	case "i420", "I420", "yuv420p", "yu12":
		return CodecI420
	case "nv12", "NV12":
		return CodecNV12
	case "yuyv", "yuyv422", "YUYV":
		return CodecYUYV
	}
	return ""
}
