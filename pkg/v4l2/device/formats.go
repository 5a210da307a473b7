package device

import (
	"github.com/AlexxIT/framepump/pkg/core"
)

const (
	V4L2_PIX_FMT_YUYV  = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	V4L2_PIX_FMT_MJPEG = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	V4L2_PIX_FMT_JPEG  = 'J' | 'P'<<8 | 'E'<<16 | 'G'<<24
	V4L2_PIX_FMT_H264  = 'H' | '2'<<8 | '6'<<16 | '4'<<24
	V4L2_PIX_FMT_YU12  = 'Y' | 'U'<<8 | '1'<<16 | '2'<<24
	V4L2_PIX_FMT_NV12  = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
)

type Format struct {
	FourCC uint32
	Name   string
	FFmpeg string
	Codec  string
}

var Formats = []Format{
	{V4L2_PIX_FMT_YUYV, "YUV 4:2:2", "yuyv422", core.CodecYUYV},
	{V4L2_PIX_FMT_MJPEG, "Motion-JPEG", "mjpeg", core.CodecMJPEG},
	{V4L2_PIX_FMT_JPEG, "JFIF JPEG", "mjpeg", core.CodecJPEG},
	{V4L2_PIX_FMT_H264, "H.264", "h264", core.CodecH264},
	{V4L2_PIX_FMT_YU12, "Planar YUV 4:2:0", "yuv420p", core.CodecI420},
	{V4L2_PIX_FMT_NV12, "Y/UV 4:2:0", "nv12", core.CodecNV12},
}

// FormatByCodec - zero FourCC if codec has no V4L2 equivalent
func FormatByCodec(codec string) Format {
	for _, f := range Formats {
		if f.Codec == codec {
			return f
		}
	}
	return Format{}
}

func FormatByFourCC(fourCC uint32) Format {
	for _, f := range Formats {
		if f.FourCC == fourCC {
			return f
		}
	}
	return Format{FourCC: fourCC, Name: core.FourCCString(fourCC)}
}

// PixFormat - capture format negotiated with the driver
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	BytesPerLine uint32
	SizeImage    uint32
}
