package y4m

import (
	"bytes"
	"image"
	"strconv"

	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/yuv"
)

const FourCC = "YUV4"

const magic = "YUV4MPEG2 "

const frameHdr = "FRAME\n"

type Header struct {
	Width      int
	Height     int
	FPS        int
	Colorspace string
}

func ParseHeader(b []byte) (h Header) {
	b = bytes.TrimPrefix(b, []byte(magic))
	b = bytes.TrimRight(b, "\n")

	for b != nil {
		// YUV4MPEG2 W1280 H720 F24:1 Ip A1:1 C420mpeg2 XYSCSS=420MPEG2
		// https://manned.org/yuv4mpeg.5
		// https://github.com/FFmpeg/FFmpeg/blob/master/libavformat/yuv4mpegenc.c
		if len(b) == 0 {
			break
		}
		key := b[0]

		var value string
		if i := bytes.IndexByte(b, ' '); i > 0 {
			value = string(b[1:i])
			b = b[i+1:]
		} else {
			value = string(b[1:])
			b = nil
		}

		switch key {
		case 'W':
			h.Width = core.Atoi(value)
		case 'H':
			h.Height = core.Atoi(value)
		case 'F':
			if num, den, ok := bytes.Cut([]byte(value), []byte(":")); ok && core.Atoi(string(den)) == 1 {
				h.FPS = core.Atoi(string(num))
			}
		case 'C':
			h.Colorspace = value
		}
	}

	if h.Colorspace == "" {
		h.Colorspace = "420jpeg"
	}
	return
}

func (h Header) String() string {
	s := magic + "W" + strconv.Itoa(h.Width) + " H" + strconv.Itoa(h.Height)
	if h.FPS > 0 {
		s += " F" + strconv.Itoa(h.FPS) + ":1"
	}
	if h.Colorspace != "" {
		s += " C" + h.Colorspace
	}
	return s + "\n"
}

func (h Header) FrameSize() int {
	w, h2 := h.Width, h.Height

	switch h.Colorspace {
	case "mono":
		return w * h2
	case "420mpeg2", "420jpeg", "420":
		return yuv.Size(w, h2)
	case "422":
		return w * h2 * 2
	case "444":
		return w * h2 * 3
	}

	return 0
}

func (h Header) NewImage(frame []byte) image.Image {
	rect := image.Rect(0, 0, h.Width, h.Height)

	switch h.Colorspace {
	case "mono":
		return &image.Gray{Pix: frame, Stride: h.Width, Rect: rect}
	case "420mpeg2", "420jpeg", "420":
		return yuv.NewImage(frame, h.Width, h.Height)
	}

	return nil
}
