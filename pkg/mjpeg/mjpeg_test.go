package mjpeg

import (
	"bytes"
	"encoding/binary"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testImage() *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, 64, 48), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = byte(i * 7)
	}
	for i := range img.Cb {
		img.Cb[i] = byte(100 + i%50)
		img.Cr[i] = byte(150 - i%50)
	}
	return img
}

// stripDHT removes every DHT segment, like UVC cameras do
func stripDHT(b []byte) []byte {
	out := append([]byte{}, b[:2]...)
	for i := 2; i+4 <= len(b); {
		size := 2 + int(binary.BigEndian.Uint16(b[i+2:]))
		if b[i+1] == markerSOS {
			return append(out, b[i:]...)
		}
		if b[i+1] != markerDHT {
			out = append(out, b[i:i+size]...)
		}
		i += size
	}
	return out
}

func TestFixHuffman(t *testing.T) {
	b, err := Encode(nil, testImage(), 90)
	require.Nil(t, err)
	require.True(t, IsJPEG(b))

	orig, err := Decode(b)
	require.Nil(t, err)

	// already has tables
	require.Equal(t, b, FixHuffman(b))

	stripped := stripDHT(b)
	require.Less(t, len(stripped), len(b))
	require.False(t, bytes.Contains(stripped, []byte{0xFF, markerDHT}))

	fixed := FixHuffman(stripped)
	require.Equal(t, len(stripped)+len(huffmanDHT), len(fixed))

	img, err := Decode(stripped)
	require.Nil(t, err)
	require.Equal(t, orig, img)

	cfg, err := DecodeConfig(stripped)
	require.Nil(t, err)
	require.Equal(t, 64, cfg.Width)
	require.Equal(t, 48, cfg.Height)
}

func TestHuffmanDHT(t *testing.T) {
	// standard MJPEG DHT segment length
	require.Equal(t, uint16(0x01A2), binary.BigEndian.Uint16(huffmanDHT[2:]))
	require.Len(t, huffmanDHT, 2+0x01A2)
}

func TestFixHuffmanBroken(t *testing.T) {
	require.Equal(t, []byte("abc"), FixHuffman([]byte("abc")))

	b := []byte{0xFF, markerSOI, 0x00, 0x01, 0x02}
	require.Equal(t, b, FixHuffman(b))
}

func TestWriter(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	w := NewWriter(buf)

	n, err := w.Write([]byte("jpeg"))
	require.Nil(t, err)
	require.Equal(t, 4, n)
	require.True(t, strings.HasSuffix(buf.String(), "Content-Length: 4\r\n\r\njpeg\r\n"))
}
