package runner

import (
	"fmt"
	"io"
	"os"

	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/mjpeg"
	"github.com/AlexxIT/framepump/pkg/y4m"
)

const (
	SinkY4M   = "y4m"   // YUV4MPEG2 of I420 frames
	SinkMJPEG = "mjpeg" // multipart JPEG stream
	SinkRaw   = "raw"   // frames as is, one after another
)

// NewSink wraps w for frames of format f
func NewSink(w io.Writer, kind string, f codec.Format, fps int) (io.Writer, error) {
	switch kind {
	case SinkY4M:
		if f.Encoding != core.CodecI420 {
			return nil, fmt.Errorf("runner: y4m needs %s, not %s: %w", core.CodecI420, f.Encoding, core.ErrConfig)
		}
		return y4m.NewWriter(w, f.Width, f.Height, fps), nil

	case SinkMJPEG:
		if f.Encoding != core.CodecJPEG && f.Encoding != core.CodecMJPEG {
			return nil, fmt.Errorf("runner: mjpeg needs JPEG, not %s: %w", f.Encoding, core.ErrConfig)
		}
		return &huffmanWriter{mjpeg.NewWriter(w)}, nil

	case SinkRaw:
		return w, nil
	}

	return nil, fmt.Errorf("runner: unknown sink %q: %w", kind, core.ErrConfig)
}

// huffmanWriter - camera MJPEG frames often have no DHT segment, players need it
type huffmanWriter struct {
	io.Writer
}

func (w *huffmanWriter) Write(p []byte) (int, error) {
	if _, err := w.Writer.Write(mjpeg.FixHuffman(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// OpenOutput - stdout for "-" or empty, else a new file
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}
