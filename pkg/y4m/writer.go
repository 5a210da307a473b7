package y4m

import (
	"fmt"
	"io"
)

// Writer - YUV4MPEG2 stream of I420 frames
type Writer struct {
	wr     io.Writer
	hdr    Header
	frames int
}

func NewWriter(wr io.Writer, width, height, fps int) *Writer {
	return &Writer{wr: wr, hdr: Header{Width: width, Height: height, FPS: fps, Colorspace: "420jpeg"}}
}

// Write one frame, header goes before the first one
func (w *Writer) Write(frame []byte) (int, error) {
	if size := w.hdr.FrameSize(); len(frame) != size {
		return 0, fmt.Errorf("y4m: frame %d bytes, want %d", len(frame), size)
	}

	if w.frames == 0 {
		if _, err := io.WriteString(w.wr, w.hdr.String()); err != nil {
			return 0, err
		}
	}
	if _, err := io.WriteString(w.wr, frameHdr); err != nil {
		return 0, err
	}
	if _, err := w.wr.Write(frame); err != nil {
		return 0, err
	}

	w.frames++
	return len(frame), nil
}

func (w *Writer) Frames() int {
	return w.frames
}
