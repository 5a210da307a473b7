package codec

import (
	"fmt"

	"github.com/AlexxIT/framepump/internal/app"
	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/codec/ffmpeg"
	"github.com/AlexxIT/framepump/pkg/codec/soft"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/rs/zerolog"
)

const (
	BackendNone   = "none"
	BackendSoft   = "soft"
	BackendFFmpeg = "ffmpeg"
)

type Config struct {
	Backend string `yaml:"backend"` // none, soft, ffmpeg
	Mode    string `yaml:"mode"`    // decode, encode or empty for autoselect by input
	Format  string `yaml:"format"`  // output encoding
	Size    string `yaml:"size"`    // output size, empty for input size
	Buffers int    `yaml:"buffers"`

	Quality int `yaml:"quality"` // soft JPEG quality
	Align   int `yaml:"align"`   // soft decoded geometry alignment

	FFmpeg struct {
		Bin    string `yaml:"bin"`
		Engine string `yaml:"engine"` // software, auto, vaapi, v4l2m2m, cuda, rkmpp, videotoolbox
		Global string `yaml:"global"`
		QScale int    `yaml:"qscale"`
	} `yaml:"ffmpeg"`
}

func LoadConfig() Config {
	var cfg struct {
		Mod Config `yaml:"codec"`
	}

	cfg.Mod.Backend = BackendSoft
	cfg.Mod.Align = soft.DefaultAlign
	cfg.Mod.FFmpeg.Bin = ffmpeg.DefaultBin
	cfg.Mod.FFmpeg.Engine = ffmpeg.EngineSoftware
	cfg.Mod.FFmpeg.Global = ffmpeg.DefaultGlobal

	app.LoadConfig(&cfg)

	log = app.GetLogger("codec")

	return cfg.Mod
}

var log = zerolog.Nop()

// Formats resolves mode and both port formats for the capture format
func Formats(cfg Config, in codec.Format) (decode bool, out codec.Format, err error) {
	switch cfg.Mode {
	case "":
		decode = !core.IsRaw(in.Encoding)
	case "decode":
		decode = true
	case "encode":
	default:
		return false, out, fmt.Errorf("codec: unknown mode %q: %w", cfg.Mode, core.ErrConfig)
	}

	if decode == core.IsRaw(in.Encoding) {
		return false, out, fmt.Errorf("codec: can't %s %s: %w", cfg.Mode, in.Encoding, core.ErrConfig)
	}

	out.Encoding = core.ParseCodec(cfg.Format)
	if out.Encoding == "" {
		if decode {
			out.Encoding = core.CodecI420
		} else {
			out.Encoding = core.CodecJPEG
		}
	}
	if core.IsRaw(out.Encoding) != decode {
		return false, out, fmt.Errorf("codec: wrong output %q: %w", cfg.Format, core.ErrConfig)
	}

	if cfg.Size != "" {
		if out.Width, out.Height = core.ParseSize(cfg.Size); out.Width <= 0 || out.Height <= 0 {
			return false, out, fmt.Errorf("codec: wrong size %q: %w", cfg.Size, core.ErrConfig)
		}
	}

	out.BufferNum = cfg.Buffers
	return decode, out, nil
}

// NewComponent creates the backend, nil component for the none backend
func NewComponent(cfg Config, decode bool) (codec.Component, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil

	case BackendSoft:
		mode := soft.Encode
		if decode {
			mode = soft.Decode
		}
		c := soft.New(mode, log)
		c.Quality = cfg.Quality
		if cfg.Align > 0 {
			c.Align = cfg.Align
		}
		return c, nil

	case BackendFFmpeg:
		mode := ffmpeg.Encode
		if decode {
			mode = ffmpeg.Decode
		}
		c, err := ffmpeg.New(mode, cfg.FFmpeg.Bin, log)
		if err != nil {
			return nil, err
		}
		c.Engine = cfg.FFmpeg.Engine
		c.QScale = cfg.FFmpeg.QScale
		if cfg.FFmpeg.Global != "" {
			c.Global = cfg.FFmpeg.Global
		}
		return c, nil
	}

	return nil, fmt.Errorf("codec: unknown backend %q: %w", cfg.Backend, core.ErrConfig)
}

// New returns a running pipeline for the input format, nil for the none backend
func New(cfg Config, in codec.Format) (*codec.Pipeline, error) {
	if cfg.Backend == BackendNone {
		return nil, nil
	}

	in.BufferNum = cfg.Buffers

	decode, out, err := Formats(cfg, in)
	if err != nil {
		return nil, err
	}

	comp, err := NewComponent(cfg, decode)
	if err != nil {
		return nil, err
	}

	p := codec.New(comp, log)

	if err = p.Configure(in, out); err != nil {
		_ = p.Close()
		return nil, err
	}
	if err = p.Start(); err != nil {
		_ = p.Close()
		return nil, err
	}

	log.Info().Str("backend", cfg.Backend).Stringer("input", p.InputFormat()).
		Stringer("output", p.OutputFormat()).Msg("[codec] running")

	return p, nil
}

// Probe - ffmpeg hardware engines that work on this machine
func Probe(bin string) ([]ffmpeg.Probe, error) {
	if _, err := ffmpeg.Version(bin); err != nil {
		return nil, err
	}
	return ffmpeg.ProbeAll(bin), nil
}
