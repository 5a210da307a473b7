package runner

import (
	"context"
	"time"

	"github.com/AlexxIT/framepump/internal/app"
	"github.com/AlexxIT/framepump/internal/capture"
	"github.com/AlexxIT/framepump/internal/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/yuv"
	"github.com/rs/zerolog"
)

type Config struct {
	Path   string        `yaml:"path"` // file path, "-" for stdout
	Sink   string        `yaml:"sink"` // y4m, mjpeg, raw or empty for autoselect
	Frames int           `yaml:"frames"`
	Stats  time.Duration `yaml:"stats"`
}

func LoadConfig() Config {
	var cfg struct {
		Mod Config `yaml:"output"`
	}

	cfg.Mod = Config{Path: "-", Stats: 10 * time.Second}

	app.LoadConfig(&cfg)

	log = app.GetLogger("runner")

	return cfg.Mod
}

var log = zerolog.Nop()

// Run opens the camera, the codec and the output, then pumps until ctx is done
func Run(ctx context.Context, capCfg capture.Config, codecCfg codec.Config, cfg Config) (err error) {
	ring, err := capture.Open(capCfg)
	if err != nil {
		return err
	}
	defer func() {
		err = core.Any(err, ring.Close())
	}()

	r := New(log)
	r.Source = ring
	r.Timeout = capCfg.Timeout
	r.Frames = cfg.Frames
	r.Stats = cfg.Stats

	in := capture.CodecFormat(ring.Format())

	if in.Encoding == core.CodecYUYV && codecCfg.Backend != codec.BackendNone {
		r.Convert = yuyvToI420(in.Width, in.Height)
		in.Encoding = core.CodecI420
	}

	out := in

	pipe, err := codec.New(codecCfg, in)
	if err != nil {
		return err
	}
	if pipe != nil {
		defer func() {
			err = core.Any(err, pipe.Close())
		}()
		r.Pipeline = pipe
		out = pipe.OutputFormat()
	}

	kind := cfg.Sink
	if kind == "" {
		kind = sinkFor(out.Encoding)
	}

	wr, err := OpenOutput(cfg.Path)
	if err != nil {
		return err
	}
	defer wr.Close()

	if r.Sink, err = NewSink(wr, kind, out, capCfg.FPS); err != nil {
		return err
	}

	log.Info().Str("sink", kind).Str("output", cfg.Path).Stringer("format", out).Msg("[runner] start")

	return r.Run(ctx)
}

func sinkFor(encoding string) string {
	switch encoding {
	case core.CodecI420:
		return SinkY4M
	case core.CodecJPEG, core.CodecMJPEG:
		return SinkMJPEG
	}
	return SinkRaw
}

func yuyvToI420(width, height int) func([]byte) ([]byte, error) {
	dst := make([]byte, yuv.Size(width, height))
	return func(src []byte) ([]byte, error) {
		if _, err := yuv.FromYUYV(dst, src, width, height); err != nil {
			return nil, err
		}
		return dst, nil
	}
}
