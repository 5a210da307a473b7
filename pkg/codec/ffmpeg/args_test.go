package ffmpeg

import (
	"testing"

	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/shell"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	args := &Args{
		Bin:    "ffmpeg",
		Global: "-hide_banner",
		Input:  "-f mjpeg -i -",
		Output: "-f rawvideo -",
	}
	args.AddCodec("-c:v rawvideo")
	args.AddFilter("scale=640:480")
	args.InsertFilter("format=nv12")

	require.True(t, args.HasFilters("scale="))
	require.False(t, args.HasFilters("transpose="))

	s := args.String()
	require.Equal(t, `ffmpeg -hide_banner -f mjpeg -i - -c:v rawvideo -vf "format=nv12,scale=640:480" -f rawvideo -`, s)
	require.Equal(t, "format=nv12,scale=640:480", shell.QuoteSplit(s)[9])
}

func TestParseVersion(t *testing.T) {
	b := []byte(`ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers
built with gcc 13 (Ubuntu 13.2.0-23ubuntu3)
libavutil      58. 29.100 / 58. 29.100
libavformat    60. 16.100 / 60. 16.100
`)
	ff, av := ParseVersion(b)
	require.Equal(t, "6.1.1-3ubuntu5", ff)
	require.Equal(t, "60.16.100", av)
	require.True(t, av >= minLibavformat)

	ff, av = ParseVersion([]byte("garbage"))
	require.Empty(t, ff)
	require.Empty(t, av)
}

func newComponent(mode Mode) *Component {
	return &Component{Global: DefaultGlobal, bin: DefaultBin, mode: mode, log: zerolog.Nop()}
}

func TestDecodeArgs(t *testing.T) {
	c := newComponent(Decode)

	in, err := c.Commit(codec.Input, codec.Format{Encoding: core.CodecMJPEG, Width: 1280, Height: 960})
	require.Nil(t, err)
	require.Equal(t, encodedInputSize, in.BufferSize)
	require.Equal(t, DefaultBuffers, in.BufferNum)

	out, err := c.Commit(codec.Output, codec.Format{Encoding: core.CodecI420})
	require.Nil(t, err)
	require.Equal(t, 1280, out.Width)
	require.Equal(t, 1843200, out.BufferSize)

	s := c.Args().String()
	require.Contains(t, s, "-f mjpeg -i -")
	require.Contains(t, s, `-vf "scale=1280:960"`)
	require.Contains(t, s, "-pix_fmt:v yuv420p")
	require.Contains(t, s, "-f rawvideo -")

	c.Engine = EngineVAAPI
	require.Contains(t, c.Args().String(), "-hwaccel vaapi -fflags nobuffer")

	// decoder output needs a geometry
	c = newComponent(Decode)
	_, err = c.Commit(codec.Input, codec.Format{Encoding: core.CodecH264})
	require.Nil(t, err)
	_, err = c.Commit(codec.Output, codec.Format{Encoding: core.CodecI420})
	require.NotNil(t, err)
	_, err = c.Commit(codec.Input, codec.Format{Encoding: core.CodecYUYV})
	require.NotNil(t, err)
}

func TestEncodeArgs(t *testing.T) {
	c := newComponent(Encode)
	c.QScale = 5

	_, err := c.Commit(codec.Input, codec.Format{Encoding: core.CodecI420, Width: 640, Height: 480})
	require.Nil(t, err)
	out, err := c.Commit(codec.Output, codec.Format{Encoding: core.CodecJPEG})
	require.Nil(t, err)
	require.Equal(t, 640, out.Width)
	require.Equal(t, 460800+encodedMargin, out.BufferSize)

	s := c.Args().String()
	require.Contains(t, s, "-f rawvideo -pix_fmt yuv420p -s 640x480 -i -")
	require.Contains(t, s, "-c:v mjpeg -pix_fmt:v yuvj420p -q:v 5")
	require.NotContains(t, s, "-vf")
	require.Contains(t, s, "-f mjpeg -")

	c = newComponent(Encode)
	c.Engine = EngineVAAPI
	_, _ = c.Commit(codec.Input, codec.Format{Encoding: core.CodecI420, Width: 1920, Height: 1080})
	_, err = c.Commit(codec.Output, codec.Format{Encoding: core.CodecH264, Width: 1280, Height: 720})
	require.Nil(t, err)

	args := c.Args()
	require.Equal(t, []string{"format=nv12,hwupload", "scale_vaapi=1280:720"}, args.Filters)
	require.Contains(t, args.Global, "-init_hw_device vaapi")
	require.Contains(t, args.Codecs[0], "h264_vaapi")
	require.Contains(t, args.Output, "h264_metadata=aud=insert")
}

func TestMakeHardware(t *testing.T) {
	args := &Args{Codecs: []string{presets["h264"]}, Filters: []string{"scale=1280:-1"}}
	require.Equal(t, EngineRKMPP, MakeHardware(args, "h264", EngineRKMPP))
	require.Empty(t, args.Filters)
	require.Equal(t, presets["h264/rkmpp"]+" -width 1280", args.Codecs[0])

	args = &Args{Codecs: []string{presets["mjpeg"]}}
	require.Equal(t, EngineSoftware, MakeHardware(args, "mjpeg", EngineCUDA))
	require.Equal(t, presets["mjpeg"], args.Codecs[0])

	args = &Args{Input: "-i -"}
	require.Equal(t, EngineSoftware, MakeHWAccel(args, EngineV4L2M2M))
	require.Equal(t, EngineCUDA, MakeHWAccel(args, EngineCUDA))
	require.Equal(t, "-hwaccel cuda -i -", args.Input)
}
