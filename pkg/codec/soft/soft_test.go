package soft

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/mjpeg"
	"github.com/AlexxIT/framepump/pkg/yuv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// uvcFrame - baseline JPEG without DHT segment, like most UVC cameras send
func uvcFrame(t *testing.T, width, height int) []byte {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = byte(i)
	}

	b, err := mjpeg.Encode(nil, img, 75)
	require.Nil(t, err)

	out := append([]byte{}, b[:2]...)
	for i := 2; i+4 <= len(b); {
		size := 2 + int(binary.BigEndian.Uint16(b[i+2:]))
		if b[i+1] == 0xDA {
			return append(out, b[i:]...)
		}
		if b[i+1] != 0xC4 {
			out = append(out, b[i:i+size]...)
		}
		i += size
	}
	t.Fatal("no scan")
	return nil
}

func newDecoder(t *testing.T, width, height int) *codec.Pipeline {
	p := codec.New(New(Decode, zerolog.Nop()), zerolog.Nop())
	err := p.Configure(
		codec.Format{Encoding: core.CodecMJPEG, Width: width, Height: height, BufferNum: 2},
		codec.Format{Encoding: core.CodecI420, Width: width, Height: height},
	)
	require.Nil(t, err)
	require.Nil(t, p.Start())
	return p
}

func TestDecode(t *testing.T) {
	p := newDecoder(t, 1280, 960)

	f := p.OutputFormat()
	require.Equal(t, 1843200, f.BufferSize)

	require.Nil(t, p.Submit(uvcFrame(t, 1280, 960)))

	b, err := p.NextResultTimeout(5 * time.Second)
	require.Nil(t, err)
	require.Len(t, b, 1280*960+2*(1280*960/4))
	require.Len(t, b, 1843200)

	stats := p.Stats()
	require.Equal(t, uint64(1), stats.Submitted)
	require.Equal(t, uint64(1), stats.Results)

	require.Nil(t, p.Close())
}

func TestDecodeFormatChange(t *testing.T) {
	p := newDecoder(t, 1280, 960)

	// camera switched resolution, 360 is aligned to 368
	require.Nil(t, p.Submit(uvcFrame(t, 640, 360)))

	b, err := p.NextResultTimeout(5 * time.Second)
	require.Nil(t, err)
	require.Len(t, b, yuv.Size(640, 368))

	f := p.OutputFormat()
	require.Equal(t, 640, f.Width)
	require.Equal(t, 368, f.Height)
	require.Equal(t, uint64(1), p.Stats().FormatChanges)

	// grow back, output pool is reallocated
	require.Nil(t, p.Submit(uvcFrame(t, 1920, 1080)))

	b, err = p.NextResultTimeout(5 * time.Second)
	require.Nil(t, err)
	require.Len(t, b, yuv.Size(1920, 1088))

	_, out := p.Pools()
	require.GreaterOrEqual(t, out.Size(), yuv.Size(1920, 1088))

	require.Nil(t, p.Close())
}

func TestDecodeCorrupted(t *testing.T) {
	p := newDecoder(t, 320, 240)

	require.Nil(t, p.Submit([]byte("not a jpeg")))

	_, err := p.NextResultTimeout(100 * time.Millisecond)
	require.ErrorIs(t, err, core.ErrTimeout)
	require.Eventually(t, func() bool {
		return p.Stats().Errors == 1
	}, time.Second, 10*time.Millisecond)

	// error event is not fatal
	b, err := p.Convert(uvcFrame(t, 320, 240))
	require.Nil(t, err)
	require.Len(t, b, yuv.Size(320, 240))

	require.Nil(t, p.Close())
}

func TestEncode(t *testing.T) {
	p := codec.New(New(Encode, zerolog.Nop()), zerolog.Nop())
	err := p.Configure(
		codec.Format{Encoding: core.CodecI420, Width: 1280, Height: 960},
		codec.Format{Encoding: core.CodecJPEG},
	)
	require.Nil(t, err)
	require.Nil(t, p.Start())

	frame := make([]byte, yuv.Size(1280, 960))
	for i := range frame {
		frame[i] = byte(i % 251)
	}

	b, err := p.Convert(frame)
	require.Nil(t, err)
	require.True(t, mjpeg.IsJPEG(b))

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(b))
	require.Nil(t, err)
	require.Equal(t, 1280, cfg.Width)
	require.Equal(t, 960, cfg.Height)

	require.Nil(t, p.Close())
}

func TestCommit(t *testing.T) {
	c := New(Decode, zerolog.Nop())
	defer c.Close()

	_, err := c.Commit(codec.Input, codec.Format{Encoding: core.CodecH264})
	require.NotNil(t, err)

	in, err := c.Commit(codec.Input, codec.Format{Encoding: core.CodecMJPEG, Width: 1920, Height: 1080})
	require.Nil(t, err)
	require.Equal(t, DefaultBuffers, in.BufferNum)

	// geometry from input, aligned
	out, err := c.Commit(codec.Output, codec.Format{Encoding: core.CodecI420})
	require.Nil(t, err)
	require.Equal(t, 1088, out.Height)
	require.Equal(t, yuv.Size(1920, 1088), out.BufferSize)
}
