package y4m

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	h := ParseHeader([]byte("YUV4MPEG2 W1280 H720 F24:1 Ip A1:1 C420mpeg2 XYSCSS=420MPEG2\n"))
	require.Equal(t, Header{Width: 1280, Height: 720, FPS: 24, Colorspace: "420mpeg2"}, h)
	require.Equal(t, 1280*720*3/2, h.FrameSize())

	h = ParseHeader([]byte("YUV4MPEG2 W4 H2 Cmono"))
	require.Equal(t, 8, h.FrameSize())
	require.NotNil(t, h.NewImage(make([]byte, 8)))
}

func TestWriter(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	w := NewWriter(buf, 4, 2, 5)

	_, err := w.Write(make([]byte, 5))
	require.NotNil(t, err)

	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	for i := 0; i < 2; i++ {
		n, err := w.Write(frame)
		require.Nil(t, err)
		require.Equal(t, 12, n)
	}
	require.Equal(t, 2, w.Frames())

	hdr, body, ok := bytes.Cut(buf.Bytes(), []byte("\n"))
	require.True(t, ok)
	require.Equal(t, Header{Width: 4, Height: 2, FPS: 5, Colorspace: "420jpeg"}, ParseHeader(hdr))
	require.Equal(t, append(append([]byte(frameHdr), frame...), append([]byte(frameHdr), frame...)...), body)
}
